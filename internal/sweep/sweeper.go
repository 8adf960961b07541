// Package sweep reclaims persistent cache storage out of band. A pass
// deletes entries whose source vanished or changed, entries unread for
// too long, and finally the oldest entries until the tier fits its size
// budget. Every deletion is best-effort; one bad entry never aborts a
// pass.
package sweep

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"imgcast/internal/pathspec"
)

// Config holds the sweep parameters.
type Config struct {
	SourceDir   string
	CacheDir    string
	SizeBudget  int64
	MaxEntryAge time.Duration
	Interval    time.Duration
}

// Stats summarizes one pass.
type Stats struct {
	Checked        int
	Deleted        int
	Errors         int
	BytesReclaimed int64
}

// Sweeper runs periodic passes over the persistent tier. Start launches
// the schedule; Stop drains an in-flight pass before returning.
type Sweeper struct {
	cfg  Config
	log  *zap.Logger
	done chan struct{}
	wg   sync.WaitGroup
}

func New(cfg Config, log *zap.Logger) *Sweeper {
	return &Sweeper{
		cfg:  cfg,
		log:  log,
		done: make(chan struct{}),
	}
}

// Start begins periodic sweeping.
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-s.done:
				return
			}
		}
	}()
}

// Stop halts the schedule and waits for any running pass.
func (s *Sweeper) Stop() {
	close(s.done)
	s.wg.Wait()
}

type survivor struct {
	path    string
	modTime time.Time
	size    int64
}

// Sweep runs one full pass and returns its stats.
func (s *Sweeper) Sweep() Stats {
	var stats Stats
	var kept []survivor
	var keptSize int64

	err := filepath.WalkDir(s.cfg.CacheDir, func(entryPath string, d fs.DirEntry, err error) error {
		if err != nil {
			stats.Errors++
			s.log.Warn("sweep: walk error", zap.String("path", entryPath), zap.Error(err))
			return nil
		}
		if d.IsDir() || strings.HasSuffix(entryPath, ".tmp") {
			return nil
		}

		original, ok := pathspec.SplitVariant(d.Name())
		if !ok {
			return nil
		}
		stats.Checked++

		info, err := d.Info()
		if err != nil {
			stats.Errors++
			return nil
		}

		rel, err := filepath.Rel(s.cfg.CacheDir, entryPath)
		if err != nil {
			stats.Errors++
			return nil
		}
		sourcePath := filepath.Join(s.cfg.SourceDir, filepath.Dir(rel), original)

		srcInfo, err := os.Stat(sourcePath)
		switch {
		case errors.Is(err, os.ErrNotExist):
			s.remove(entryPath, info.Size(), "source missing", &stats)
			return nil
		case err != nil:
			stats.Errors++
			s.log.Warn("sweep: stat source", zap.String("source", sourcePath), zap.Error(err))
			return nil
		case !srcInfo.ModTime().Equal(info.ModTime()):
			s.remove(entryPath, info.Size(), "stale", &stats)
			return nil
		}

		if atime, ok := accessTime(info); ok && time.Since(atime) > s.cfg.MaxEntryAge {
			s.remove(entryPath, info.Size(), "cold", &stats)
			return nil
		}

		kept = append(kept, survivor{path: entryPath, modTime: info.ModTime(), size: info.Size()})
		keptSize += info.Size()
		return nil
	})
	if err != nil {
		stats.Errors++
		s.log.Error("sweep: walk failed", zap.Error(err))
	}

	// Oldest sources go first when the tier is over budget.
	if keptSize > s.cfg.SizeBudget {
		sort.Slice(kept, func(i, j int) bool {
			return kept[i].modTime.Before(kept[j].modTime)
		})
		for _, entry := range kept {
			if keptSize <= s.cfg.SizeBudget {
				break
			}
			s.remove(entry.path, entry.size, "over budget", &stats)
			keptSize -= entry.size
		}
	}

	s.log.Info("sweep completed",
		zap.Int("checked", stats.Checked),
		zap.Int("deleted", stats.Deleted),
		zap.Int("errors", stats.Errors),
		zap.String("reclaimed", humanize.Bytes(uint64(stats.BytesReclaimed))),
		zap.String("in_use", humanize.Bytes(uint64(keptSize))),
	)
	return stats
}

func (s *Sweeper) remove(path string, size int64, reason string, stats *Stats) {
	if err := os.Remove(path); err != nil {
		stats.Errors++
		s.log.Warn("sweep: delete failed", zap.String("path", path), zap.Error(err))
		return
	}
	stats.Deleted++
	stats.BytesReclaimed += size
	s.log.Debug("sweep: deleted entry", zap.String("path", path), zap.String("reason", reason))
}
