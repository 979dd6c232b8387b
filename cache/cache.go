// Package cache provides modification-time validated caches for directory
// listings and file contents.
//
// Both caches key by the cleaned absolute path and validate entries against
// the on-disk modification time. When modification times are not trustworthy
// (see ProbeMtime) the caches re-read on every lookup; the file cache then
// falls back to content digests to decide whether a previously decoded value
// is still valid.
package cache

import (
	"errors"
	"path/filepath"
)

// Common errors returned by cache operations.
var (
	ErrNotDir        = errors.New("path is not a directory")
	ErrPostWriteStat = errors.New("stat after write failed")
)

// normPath returns the canonical cache key for a path.
func normPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
