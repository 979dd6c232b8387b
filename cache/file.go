package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"
)

// Record is a cached file snapshot. Content and ModTime always reflect the
// last read or write. Parsed holds an optional handler-specific decoded
// form; it is discarded whenever the content may have changed.
type Record struct {
	Path    string
	Content []byte
	ModTime time.Time
	Sum     uint64
	Parsed  any
}

// FileCache caches file contents keyed by absolute path and validated by
// modification time, with write-through semantics.
type FileCache struct {
	fs    afero.Fs
	trust bool

	mu      sync.Mutex
	records map[string]*Record
}

// NewFileCache creates a file cache over the given filesystem.
// When trust is false every Read re-reads the file; a matching content
// digest still preserves the decoded Parsed value.
func NewFileCache(fs afero.Fs, trust bool) *FileCache {
	return &FileCache{
		fs:      fs,
		trust:   trust,
		records: make(map[string]*Record),
	}
}

// Read returns the cached record for path, re-reading from disk when the
// modification time has changed. A re-read discards Parsed unless the
// content digest is unchanged.
func (c *FileCache) Read(path string) (*Record, error) {
	key := normPath(path)

	info, err := c.fs.Stat(key)
	if err != nil {
		c.drop(key)
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	modTime := info.ModTime()

	c.mu.Lock()
	prev := c.records[key]
	c.mu.Unlock()

	if c.trust && prev != nil && prev.ModTime.Equal(modTime) {
		return prev, nil
	}

	content, err := afero.ReadFile(c.fs, key)
	if err != nil {
		c.drop(key)
		return nil, fmt.Errorf("read %s: %w", key, err)
	}

	rec := &Record{
		Path:    key,
		Content: content,
		ModTime: modTime,
		Sum:     xxhash.Sum64(content),
	}
	// In trusted mode a modification-time mismatch always invalidates the
	// decoded form. Without trustworthy timestamps the digest decides.
	if !c.trust && prev != nil && prev.Sum == rec.Sum {
		rec.Parsed = prev.Parsed
	}

	c.mu.Lock()
	c.records[key] = rec
	c.mu.Unlock()

	return rec, nil
}

// Write writes content to disk and stores the post-write record. The
// caller supplies parsed when it wants the decoded form to stay coherent
// with the written bytes; otherwise the stored Parsed is nil.
func (c *FileCache) Write(path string, content []byte, parsed any) error {
	key := normPath(path)

	if err := afero.WriteFile(c.fs, key, content, 0o644); err != nil {
		c.drop(key)
		return fmt.Errorf("write %s: %w", key, err)
	}

	info, err := c.fs.Stat(key)
	if err != nil {
		c.drop(key)
		return fmt.Errorf("%s: %w: %v", key, ErrPostWriteStat, err)
	}

	c.mu.Lock()
	c.records[key] = &Record{
		Path:    key,
		Content: content,
		ModTime: info.ModTime(),
		Sum:     xxhash.Sum64(content),
		Parsed:  parsed,
	}
	c.mu.Unlock()

	return nil
}

// SetParsed attaches a decoded form to the current record for path.
// It is a no-op when the path is not cached.
func (c *FileCache) SetParsed(path string, parsed any) {
	key := normPath(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[key]
	if !ok {
		return
	}
	clone := *rec
	clone.Parsed = parsed
	c.records[key] = &clone
}

// Invalidate removes the cached record for a single file.
func (c *FileCache) Invalidate(path string) {
	c.drop(normPath(path))
}

// Clear drops every cached record.
func (c *FileCache) Clear() {
	c.mu.Lock()
	c.records = make(map[string]*Record)
	c.mu.Unlock()
}

// Len returns the number of cached records.
func (c *FileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

func (c *FileCache) drop(key string) {
	c.mu.Lock()
	delete(c.records, key)
	c.mu.Unlock()
}
