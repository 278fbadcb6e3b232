package backend

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the in-memory LRU capacity in entries.
const DefaultCacheSize = 10000

// cacheEntry pairs a payload with the staleness signature of the file it
// was computed from.
type cacheEntry struct {
	Analysis *Analysis `json:"analysis"`
	ModTime  time.Time `json:"mod_time"`
	Size     int64     `json:"size"`
}

// stale reports whether the cached entry no longer matches the file on
// disk. Mod-time and size together form the staleness signature; presence
// alone is never enough.
func (e cacheEntry) stale(info os.FileInfo) bool {
	return !e.ModTime.Equal(info.ModTime()) || e.Size != info.Size()
}

// Cache maps file paths to previously computed analyses. Lookups are safe
// for concurrent use; a write race on the same path resolves as
// last-writer-wins, which is acceptable because recomputation is idempotent
// per mod-time. When a directory is configured, entries are mirrored to
// disk as JSON so results survive restarts.
type Cache struct {
	mem    *lru.Cache[string, cacheEntry]
	dir    string
	logger *slog.Logger
}

// NewCache creates a cache with the given in-memory capacity. dir enables
// on-disk persistence when non-empty; it is created if missing.
func NewCache(size int, dir string) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	mem, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &Cache{
		mem:    mem,
		dir:    dir,
		logger: slog.Default().With("component", "analysis-cache"),
	}, nil
}

// Dir returns the persistence directory, empty when disabled.
func (c *Cache) Dir() string { return c.dir }

// Len returns the number of in-memory entries.
func (c *Cache) Len() int { return c.mem.Len() }

// Get returns the cached analysis for path when it is still valid for the
// given file info. Entries for modified files are never returned.
func (c *Cache) Get(path string, info os.FileInfo) (*Analysis, bool) {
	if entry, ok := c.mem.Get(path); ok {
		if !entry.stale(info) {
			return entry.Analysis, true
		}
		c.mem.Remove(path)
	}

	if c.dir == "" {
		return nil, false
	}
	entry, ok := c.loadDisk(path)
	if !ok || entry.stale(info) {
		return nil, false
	}
	c.mem.Add(path, entry)
	return entry.Analysis, true
}

// Put stores an analysis keyed by path with the file's current staleness
// signature. Disk persistence failures are logged, not surfaced; the cache
// is an optimization, never a correctness dependency.
func (c *Cache) Put(path string, info os.FileInfo, a *Analysis) {
	entry := cacheEntry{
		Analysis: a,
		ModTime:  info.ModTime(),
		Size:     info.Size(),
	}
	c.mem.Add(path, entry)

	if c.dir == "" {
		return
	}
	if err := c.storeDisk(path, entry); err != nil {
		c.logger.Warn("failed to persist cache entry", "path", path, "error", err)
	}
}

// Purge drops all in-memory entries. Disk entries are left in place.
func (c *Cache) Purge() { c.mem.Purge() }

func (c *Cache) diskPath(path string) string {
	sum := sha256.Sum256([]byte(path))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+".json")
}

func (c *Cache) loadDisk(path string) (cacheEntry, bool) {
	data, err := os.ReadFile(c.diskPath(path))
	if err != nil {
		return cacheEntry{}, false
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Analysis == nil {
		return cacheEntry{}, false
	}
	return entry, true
}

func (c *Cache) storeDisk(path string, entry cacheEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return os.WriteFile(c.diskPath(path), data, 0o644)
}
