package cache

import (
	"strconv"
	"time"

	"github.com/spf13/afero"
)

// probeAttempts bounds how long the probe waits for a timestamp to advance
// on filesystems with coarse-grained modification times.
const probeAttempts = 10

// ProbeMtime reports whether file modification times on the given
// filesystem advance when a file is rewritten. It writes a throwaway file
// under dir, stats it, rewrites it, and stats again; a timestamp that
// fails to advance means mtime-based cache validation would serve stale
// data and the caches must run in untrusted mode.
func ProbeMtime(fs afero.Fs, dir string) bool {
	path := normPath(dir) + "/.projconf-mtime-probe"
	defer fs.Remove(path)

	if err := afero.WriteFile(fs, path, []byte("0"), 0o600); err != nil {
		return false
	}
	first, err := fs.Stat(path)
	if err != nil {
		return false
	}

	for i := 1; i <= probeAttempts; i++ {
		if err := afero.WriteFile(fs, path, []byte(strconv.Itoa(i)), 0o600); err != nil {
			return false
		}
		second, err := fs.Stat(path)
		if err != nil {
			return false
		}
		if second.ModTime().After(first.ModTime()) {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}
