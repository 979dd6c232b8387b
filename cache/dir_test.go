package cache

import (
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestDirCacheEntries(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/proj/src", 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := afero.WriteFile(fs, "/proj/go.mod", []byte("module x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := afero.WriteFile(fs, "/proj/main.go", []byte("package main"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	c := NewDirCache(fs, true)
	entries, err := c.Entries("/proj")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}

	want := []Entry{
		{Name: "go.mod", Dir: false},
		{Name: "main.go", Dir: false},
		{Name: "src", Dir: true},
	}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i, e := range entries {
		if e != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, e, want[i])
		}
	}
}

func TestDirCacheServesFromCache(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/proj", 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := afero.WriteFile(fs, "/proj/a.txt", nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := fs.Chtimes("/proj", base, base); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	c := NewDirCache(fs, true)
	if _, err := c.Entries("/proj"); err != nil {
		t.Fatalf("Entries: %v", err)
	}

	// Add a child without advancing the directory mtime: the cached
	// listing must still be served.
	if err := afero.WriteFile(fs, "/proj/b.txt", nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := fs.Chtimes("/proj", base, base); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	entries, err := c.Entries("/proj")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("stale listing expected 1 entry, got %d", len(entries))
	}

	// Advance the mtime: the listing must be refreshed.
	if err := fs.Chtimes("/proj", base.Add(time.Second), base.Add(time.Second)); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	entries, err = c.Entries("/proj")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("refreshed listing expected 2 entries, got %d", len(entries))
	}
}

func TestDirCacheUntrustedAlwaysEnumerates(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/proj", 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := fs.Chtimes("/proj", base, base); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	c := NewDirCache(fs, false)
	if _, err := c.Entries("/proj"); err != nil {
		t.Fatalf("Entries: %v", err)
	}

	// Same mtime, new child: an untrusted cache must see the child.
	if err := afero.WriteFile(fs, "/proj/new.txt", nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := fs.Chtimes("/proj", base, base); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	entries, err := c.Entries("/proj")
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected live listing with 1 entry, got %d", len(entries))
	}
}

func TestDirCacheErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/file.txt", nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	c := NewDirCache(fs, true)
	if _, err := c.Entries("/missing"); err == nil {
		t.Error("expected error for missing directory")
	}
	if _, err := c.Entries("/file.txt"); err == nil {
		t.Error("expected error for non-directory")
	}
	if c.Len() != 0 {
		t.Errorf("failures must not be cached, got %d entries", c.Len())
	}
}

func TestDirCacheInvalidate(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/a", 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := fs.MkdirAll("/b", 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	c := NewDirCache(fs, true)
	if _, err := c.Entries("/a"); err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if _, err := c.Entries("/b"); err != nil {
		t.Fatalf("Entries: %v", err)
	}

	c.Invalidate("/a")
	if c.Len() != 1 {
		t.Errorf("after Invalidate: %d entries, want 1", c.Len())
	}
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("after Clear: %d entries, want 0", c.Len())
	}
}

func TestDirCacheNamesSorted(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/proj", 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"zeta.txt", "alpha.txt", "mid.txt"} {
		if err := afero.WriteFile(fs, "/proj/"+name, nil, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	c := NewDirCache(fs, true)
	names, err := c.Names("/proj")
	if err != nil {
		t.Fatalf("Names: %v", err)
	}
	want := []string{"alpha.txt", "mid.txt", "zeta.txt"}
	for i, n := range names {
		if n != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, n, want[i])
		}
	}
}
