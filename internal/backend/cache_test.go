package backend

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statFile(t *testing.T, path string) os.FileInfo {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info
}

func TestCacheGetPut(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", []byte("hello"))
	info := statFile(t, path)

	cache, err := NewCache(16, "")
	require.NoError(t, err)

	_, ok := cache.Get(path, info)
	assert.False(t, ok, "empty cache has no entries")

	a := &Analysis{Path: path, Method: MethodOffline, AnomalyScore: 0.3}
	cache.Put(path, info, a)

	got, ok := cache.Get(path, info)
	require.True(t, ok)
	assert.Equal(t, 0.3, got.AnomalyScore)
	assert.Equal(t, 1, cache.Len())
}

func TestCacheRejectsStaleEntries(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", []byte("hello"))
	info := statFile(t, path)

	cache, err := NewCache(16, "")
	require.NoError(t, err)
	cache.Put(path, info, &Analysis{Method: MethodOffline})

	t.Run("mod time change", func(t *testing.T) {
		future := time.Now().Add(3 * time.Second)
		require.NoError(t, os.Chtimes(path, future, future))

		_, ok := cache.Get(path, statFile(t, path))
		assert.False(t, ok)
	})

	t.Run("size change", func(t *testing.T) {
		cache.Put(path, statFile(t, path), &Analysis{Method: MethodOffline})
		require.NoError(t, os.WriteFile(path, []byte("hello, longer now"), 0o644))

		_, ok := cache.Get(path, statFile(t, path))
		assert.False(t, ok)
	})
}

func TestCacheDiskPersistence(t *testing.T) {
	dir := t.TempDir()
	cacheDir := filepath.Join(dir, "cache")
	path := writeFile(t, dir, "a.txt", []byte("hello"))
	info := statFile(t, path)

	cache, err := NewCache(16, cacheDir)
	require.NoError(t, err)
	cache.Put(path, info, &Analysis{Method: MethodOffline, AnomalyScore: 0.9})

	// A fresh cache instance over the same directory sees the entry.
	reopened, err := NewCache(16, cacheDir)
	require.NoError(t, err)
	got, ok := reopened.Get(path, info)
	require.True(t, ok)
	assert.Equal(t, 0.9, got.AnomalyScore)

	// Corrupt disk entries are ignored, not fatal.
	entries, err := os.ReadDir(cacheDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, entries[0].Name()), []byte("{broken"), 0o644))

	fresh, err := NewCache(16, cacheDir)
	require.NoError(t, err)
	_, ok = fresh.Get(path, info)
	assert.False(t, ok)
}

func TestCachePurge(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", []byte("hello"))
	info := statFile(t, path)

	cache, err := NewCache(16, "")
	require.NoError(t, err)
	cache.Put(path, info, &Analysis{})
	require.Equal(t, 1, cache.Len())

	cache.Purge()
	assert.Zero(t, cache.Len())
}
