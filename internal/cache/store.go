// Package cache implements the tiered artifact store: an in-process LRU
// for small artifacts on top of a persistent file tier. Persistent
// entries carry the source image's modification time as their own file
// mtime; an entry is valid only while that timestamp matches the live
// source. The file layout mirrors the source tree, one file per variant.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const lockShards = 32

// Options configures the fast tier.
type Options struct {
	// FastCapacity is the maximum number of fast-tier entries.
	FastCapacity int
	// FastTTL bounds how long a fast-tier entry is served without
	// revalidating against the persistent tier.
	FastTTL time.Duration
	// FastItemLimit is the largest artifact size admitted to the fast
	// tier, in bytes.
	FastItemLimit int64
}

// Store is the tiered cache. All persistent-tier mutation for a key is
// serialized through one of a fixed set of hash-picked locks so that
// unrelated keys never contend.
type Store struct {
	cacheDir  string
	itemLimit int64
	mem       *memoryTier
	locks     [lockShards]sync.Mutex
}

// NewStore creates the store and its cache directory.
func NewStore(cacheDir string, opts Options) (*Store, error) {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return nil, fmt.Errorf("cache: create directory: %w", err)
	}
	return &Store{
		cacheDir:  cacheDir,
		itemLimit: opts.FastItemLimit,
		mem:       newMemoryTier(opts.FastCapacity, opts.FastTTL),
	}, nil
}

func (s *Store) filePath(key Key) string {
	return filepath.Join(s.cacheDir, filepath.FromSlash(key.Variant))
}

func (s *Store) lockFor(key Key) *sync.Mutex {
	return &s.locks[xxhash.Sum64String(key.Variant)%lockShards]
}

// Get returns the cached artifact for key, or false when absent or
// stale. sourceModTime is the live source's modification time; any
// mismatch invalidates the entry regardless of age.
func (s *Store) Get(key Key, sourceModTime time.Time) ([]byte, bool) {
	if data, ok := s.mem.get(key.Digest, sourceModTime); ok {
		return data, true
	}

	path := s.filePath(key)
	fi, err := os.Stat(path)
	if err != nil {
		return nil, false
	}

	if !fi.ModTime().Equal(sourceModTime) {
		// Stale: the source changed since this entry was written.
		s.remove(key)
		return nil, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	if int64(len(data)) <= s.itemLimit {
		s.mem.put(key.Digest, data, sourceModTime)
	}
	return data, true
}

// Put stores the artifact in the persistent tier and, when small enough,
// the fast tier. The persistent file is written to a temp path and
// renamed so concurrent readers never observe a partial entry, and its
// mtime is set to sourceModTime before the rename.
func (s *Store) Put(key Key, data []byte, sourceModTime time.Time) error {
	path := s.filePath(key)

	lock := s.lockFor(key)
	lock.Lock()
	err := writeAtomic(path, data, sourceModTime)
	lock.Unlock()
	if err != nil {
		return fmt.Errorf("cache: write %s: %w", key.Digest, err)
	}

	if int64(len(data)) <= s.itemLimit {
		s.mem.put(key.Digest, data, sourceModTime)
	}
	return nil
}

// Invalidate drops the entry from both tiers.
func (s *Store) Invalidate(key Key) {
	s.remove(key)
}

func (s *Store) remove(key Key) {
	s.mem.invalidate(key.Digest)

	lock := s.lockFor(key)
	lock.Lock()
	os.Remove(s.filePath(key))
	lock.Unlock()
}

func writeAtomic(path string, data []byte, modTime time.Time) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Chtimes(tmp, modTime, modTime); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
