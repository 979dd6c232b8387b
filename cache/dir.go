package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/afero"
)

// Entry describes an immediate child of a directory.
type Entry struct {
	// Name is the base name of the child.
	Name string

	// Dir reports whether the child is a directory.
	Dir bool
}

// DirCache caches directory listings keyed by absolute path and validated
// by the directory's modification time.
type DirCache struct {
	fs    afero.Fs
	trust bool

	mu      sync.Mutex
	entries map[string]dirRecord
}

type dirRecord struct {
	entries []Entry
	modTime time.Time
}

// NewDirCache creates a directory cache over the given filesystem.
// When trust is false every lookup re-enumerates the directory.
func NewDirCache(fs afero.Fs, trust bool) *DirCache {
	return &DirCache{
		fs:      fs,
		trust:   trust,
		entries: make(map[string]dirRecord),
	}
}

// Entries returns the immediate children of path in name order.
// Results are served from the cache while the directory's modification
// time is unchanged. Enumeration failures are never cached.
func (c *DirCache) Entries(path string) ([]Entry, error) {
	key := normPath(path)

	info, err := c.fs.Stat(key)
	if err != nil {
		c.drop(key)
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	if !info.IsDir() {
		c.drop(key)
		return nil, fmt.Errorf("%s: %w", key, ErrNotDir)
	}

	modTime := info.ModTime()

	if c.trust {
		c.mu.Lock()
		rec, ok := c.entries[key]
		c.mu.Unlock()
		if ok && rec.modTime.Equal(modTime) {
			return rec.entries, nil
		}
	}

	infos, err := afero.ReadDir(c.fs, key)
	if err != nil {
		c.drop(key)
		return nil, fmt.Errorf("read dir %s: %w", key, err)
	}

	entries := make([]Entry, len(infos))
	for i, fi := range infos {
		entries[i] = Entry{Name: fi.Name(), Dir: fi.IsDir()}
	}

	c.mu.Lock()
	c.entries[key] = dirRecord{entries: entries, modTime: modTime}
	c.mu.Unlock()

	return entries, nil
}

// Names returns the child names of path in name order. It exists to serve
// as a matcher Lister.
func (c *DirCache) Names(path string) ([]string, error) {
	entries, err := c.Entries(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names, nil
}

// Invalidate removes the cached listing for a single directory.
func (c *DirCache) Invalidate(path string) {
	c.drop(normPath(path))
}

// Clear drops every cached listing.
func (c *DirCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]dirRecord)
	c.mu.Unlock()
}

// Len returns the number of cached listings.
func (c *DirCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *DirCache) drop(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}
