package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	if opts.FastCapacity == 0 {
		opts.FastCapacity = 16
	}
	if opts.FastTTL == 0 {
		opts.FastTTL = time.Hour
	}
	if opts.FastItemLimit == 0 {
		opts.FastItemLimit = 1 << 20
	}
	store, err := NewStore(filepath.Join(t.TempDir(), "cache"), opts)
	require.NoError(t, err)
	return store
}

func TestPutThenGet(t *testing.T) {
	store := newTestStore(t, Options{})
	modTime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	key := NewKey("a/b.jpg@300w.webp", "a/b.jpg")

	require.NoError(t, store.Put(key, []byte("artifact"), modTime))

	got, ok := store.Get(key, modTime)
	require.True(t, ok)
	assert.Equal(t, []byte("artifact"), got)
}

func TestPutOverwrites(t *testing.T) {
	store := newTestStore(t, Options{})
	modTime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	key := NewKey("a/b.jpg@.png", "a/b.jpg")

	require.NoError(t, store.Put(key, []byte("first"), modTime))
	require.NoError(t, store.Put(key, []byte("second"), modTime))

	got, ok := store.Get(key, modTime)
	require.True(t, ok)
	assert.Equal(t, []byte("second"), got)
}

func TestPersistentFileCarriesSourceModTime(t *testing.T) {
	store := newTestStore(t, Options{})
	modTime := time.Date(2023, 7, 14, 8, 30, 0, 0, time.UTC)
	key := NewKey("a/b.jpg@100h.avif", "a/b.jpg")

	require.NoError(t, store.Put(key, []byte("x"), modTime))

	fi, err := os.Stat(store.filePath(key))
	require.NoError(t, err)
	assert.True(t, fi.ModTime().Equal(modTime), "file mtime must equal source mtime")
}

func TestGetStaleEntryIsInvalidated(t *testing.T) {
	store := newTestStore(t, Options{FastItemLimit: 1})
	t1 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	key := NewKey("a/b.jpg@300w.webp", "a/b.jpg")

	require.NoError(t, store.Put(key, []byte("old"), t1))

	_, ok := store.Get(key, t2)
	assert.False(t, ok, "changed source mtime must miss")

	_, err := os.Stat(store.filePath(key))
	assert.ErrorIs(t, err, os.ErrNotExist, "stale entry must be deleted")
}

func TestFastTierCoherence(t *testing.T) {
	store := newTestStore(t, Options{})
	t1 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Second)
	key := NewKey("a/b.jpg@300w.webp", "a/b.jpg")

	require.NoError(t, store.Put(key, []byte("old"), t1))

	// Entry is in the fast tier; a new source mtime must still miss.
	_, ok := store.Get(key, t2)
	assert.False(t, ok)
}

func TestPersistentHitPromotesSmallArtifacts(t *testing.T) {
	store := newTestStore(t, Options{FastItemLimit: 4})
	modTime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	small := NewKey("a/s.jpg@.png", "a/s.jpg")
	large := NewKey("a/l.jpg@.png", "a/l.jpg")

	require.NoError(t, store.Put(small, []byte("tiny"), modTime))
	require.NoError(t, store.Put(large, []byte("too large"), modTime))

	// Drop the fast tier so the next Get must come from disk.
	store.mem.invalidate(small.Digest)
	store.mem.invalidate(large.Digest)

	_, ok := store.Get(small, modTime)
	require.True(t, ok)
	_, ok = store.Get(large, modTime)
	require.True(t, ok)

	// Remove the files; only the promoted small artifact survives.
	require.NoError(t, os.Remove(store.filePath(small)))
	require.NoError(t, os.Remove(store.filePath(large)))

	_, ok = store.Get(small, modTime)
	assert.True(t, ok, "small artifact should be served from memory")
	_, ok = store.Get(large, modTime)
	assert.False(t, ok, "large artifact must not be promoted")
}

func TestFastTierTTL(t *testing.T) {
	store := newTestStore(t, Options{FastTTL: 10 * time.Millisecond})
	modTime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	key := NewKey("a/b.jpg@.png", "a/b.jpg")

	require.NoError(t, store.Put(key, []byte("x"), modTime))
	require.NoError(t, os.Remove(store.filePath(key)))

	_, ok := store.Get(key, modTime)
	require.True(t, ok, "fresh fast-tier entry should hit")

	time.Sleep(20 * time.Millisecond)

	_, ok = store.Get(key, modTime)
	assert.False(t, ok, "expired fast-tier entry must miss")
}

func TestFastTierEvictsByRecency(t *testing.T) {
	store := newTestStore(t, Options{FastCapacity: 2})
	modTime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	k1 := NewKey("a/1.jpg@.png", "a/1.jpg")
	k2 := NewKey("a/2.jpg@.png", "a/2.jpg")
	k3 := NewKey("a/3.jpg@.png", "a/3.jpg")

	require.NoError(t, store.Put(k1, []byte("one"), modTime))
	require.NoError(t, store.Put(k2, []byte("two"), modTime))
	require.NoError(t, store.Put(k3, []byte("three"), modTime))

	for _, k := range []Key{k1, k2, k3} {
		require.NoError(t, os.Remove(store.filePath(k)))
	}

	_, ok := store.Get(k1, modTime)
	assert.False(t, ok, "oldest entry should have been evicted")
	_, ok = store.Get(k2, modTime)
	assert.True(t, ok)
	_, ok = store.Get(k3, modTime)
	assert.True(t, ok)
}

func TestInvalidate(t *testing.T) {
	store := newTestStore(t, Options{})
	modTime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	key := NewKey("a/b.jpg@.png", "a/b.jpg")

	require.NoError(t, store.Put(key, []byte("x"), modTime))
	store.Invalidate(key)

	_, ok := store.Get(key, modTime)
	assert.False(t, ok)
	_, err := os.Stat(store.filePath(key))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNoPartialFilesVisible(t *testing.T) {
	store := newTestStore(t, Options{})
	modTime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	key := NewKey("a/b.jpg@.png", "a/b.jpg")

	require.NoError(t, store.Put(key, []byte("x"), modTime))

	entries, err := os.ReadDir(filepath.Dir(store.filePath(key)))
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), ".tmp")
	}
}

func TestKeyDeterminism(t *testing.T) {
	a := NewKey("a/b.jpg@300w.webp", "a/b.jpg")
	b := NewKey("a/b.jpg@300w.webp", "a/b.jpg")
	c := NewKey("a/b.jpg@301w.webp", "a/b.jpg")

	assert.Equal(t, a.Digest, b.Digest)
	assert.NotEqual(t, a.Digest, c.Digest)
	assert.Len(t, a.Digest, 32)
}
