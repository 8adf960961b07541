// Package transform turns parsed requests into cached artifacts. On a
// cache miss the coordinator runs the codec at most once per key via an
// in-flight registry, bounded by an admission gate sized to the CPU
// budget. Callers that time out while a flight is running get an error;
// the flight completes and warms the cache for the next request.
package transform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"imgcast/internal/cache"
	"imgcast/internal/pathspec"
	"imgcast/internal/resize"
)

// Transformer is the image codec. Width and height of zero mean no
// resampling, only format conversion. sourcePath is the source's
// relative path; its extension selects the decoder.
type Transformer interface {
	Dimensions(src []byte, sourcePath string) (width, height int, err error)
	Transform(src []byte, sourcePath string, width, height int, format pathspec.Format) ([]byte, error)
}

// Result is a resolved artifact.
type Result struct {
	Data []byte
	ETag string
	Size int
}

// Coordinator resolves requests against the cache and the codec.
type Coordinator struct {
	sourceDir   string
	store       *cache.Store
	transformer Transformer
	sem         *semaphore.Weighted
	timeout     time.Duration
	flights     singleflight.Group
	log         *zap.Logger
}

// New creates a Coordinator. maxConcurrent bounds simultaneous codec
// invocations; timeout bounds both a caller's wait and a flight's wait
// for an admission slot.
func New(sourceDir string, store *cache.Store, transformer Transformer, maxConcurrent int, timeout time.Duration, log *zap.Logger) *Coordinator {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Coordinator{
		sourceDir:   sourceDir,
		store:       store,
		transformer: transformer,
		sem:         semaphore.NewWeighted(int64(maxConcurrent)),
		timeout:     timeout,
		log:         log,
	}
}

// Resolve returns the artifact for req, producing and caching it on a
// miss. Concurrent calls for the same variant share one codec run.
func (c *Coordinator) Resolve(ctx context.Context, req pathspec.Request) (*Result, error) {
	sourceRel := req.SourcePath()
	sourcePath := filepath.Join(c.sourceDir, filepath.FromSlash(sourceRel))

	fi, err := os.Stat(sourcePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("transform: stat source: %w", err)
	}
	modTime := fi.ModTime()

	key := cache.NewKey(req.VariantPath(), sourceRel)
	if data, ok := c.store.Get(key, modTime); ok {
		return &Result{Data: data, ETag: key.Digest, Size: len(data)}, nil
	}

	ch := c.flights.DoChan(key.Digest, func() (interface{}, error) {
		return c.generate(key, req, sourcePath, modTime)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		data := res.Val.([]byte)
		return &Result{Data: data, ETag: key.Digest, Size: len(data)}, nil
	case <-ctx.Done():
		// The flight keeps running on its own context so the result
		// still lands in the cache.
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}

func (c *Coordinator) generate(key cache.Key, req pathspec.Request, sourcePath string, modTime time.Time) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, ErrTimeout
	}
	defer c.sem.Release(1)

	// A flight for this key may have committed between our miss and
	// acquiring the slot.
	if data, ok := c.store.Get(key, modTime); ok {
		return data, nil
	}

	src, err := os.ReadFile(sourcePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("transform: read source: %w", err)
	}

	origWidth, origHeight, err := c.transformer.Dimensions(src, key.Source)
	if err != nil {
		return nil, fmt.Errorf("transform: probe %s: %w", key.Source, err)
	}

	plan := resize.Compute(origWidth, origHeight, req.Width, req.Height)
	var width, height int
	if plan.Resize {
		width, height = plan.Width, plan.Height
	}

	out, err := c.transformer.Transform(src, key.Source, width, height, req.Format)
	if err != nil {
		return nil, fmt.Errorf("transform: %s: %w", key.Source, err)
	}

	// Serve-first: a failed cache write must not fail the request.
	if err := c.store.Put(key, out, modTime); err != nil {
		c.log.Warn("cache write failed",
			zap.String("variant", key.Variant),
			zap.Error(err),
		)
	}

	return out, nil
}
