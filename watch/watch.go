// Package watch monitors the configuration directory for external
// changes. Artifact writes, creations, and removals are reported as
// events so the engine can invalidate caches and schedule a reload.
// Rapid bursts of events on the same path are coalesced by a debounce
// window before delivery.
package watch

import (
	"errors"
	"time"
)

// Common errors returned by watch operations.
var (
	ErrClosed       = errors.New("watcher is closed")
	ErrPathNotExist = errors.New("path does not exist")
)

// Op represents the type of file system operation.
type Op uint32

const (
	// OpCreate indicates a file or directory was created.
	OpCreate Op = 1 << iota
	// OpWrite indicates a file was written to.
	OpWrite
	// OpRemove indicates a file or directory was removed.
	OpRemove
	// OpRename indicates a file or directory was renamed.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpWrite:
		return "WRITE"
	case OpRemove:
		return "REMOVE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// Has returns true if the operation includes the given op.
func (op Op) Has(o Op) bool {
	return op&o == o
}

// Event represents a change to a configuration artifact.
type Event struct {
	// Path is the absolute path of the affected file or directory.
	Path string

	// Op is the operation that occurred. Coalesced events carry the
	// union of the operations observed during the debounce window.
	Op Op

	// Timestamp is when the most recent underlying event occurred.
	Timestamp time.Time
}

// Watcher delivers file change events for a watched tree.
type Watcher interface {
	// Events returns the channel of change events. The channel is
	// closed when the watcher is closed.
	Events() <-chan Event

	// Errors returns the channel of watch errors. The channel is
	// closed when the watcher is closed.
	Errors() <-chan error

	// Close stops the watcher and releases resources.
	Close() error
}

// Config holds watcher configuration.
type Config struct {
	// Debounce is the delay before delivering events. Events on the
	// same path within this window are coalesced. Default: 100ms.
	Debounce time.Duration

	// Buffer is the size of the event and error channels.
	// Default: 64.
	Buffer int

	// Extensions restricts file events to paths with one of these
	// suffixes. Directory events are always delivered. Empty means
	// no filtering.
	Extensions []string
}

// DefaultConfig returns a Config with the defaults above applied.
func DefaultConfig() Config {
	return Config{
		Debounce: 100 * time.Millisecond,
		Buffer:   64,
	}
}

// Option configures a watcher.
type Option func(*Config)

// WithDebounce sets the debounce window.
func WithDebounce(d time.Duration) Option {
	return func(c *Config) {
		c.Debounce = d
	}
}

// WithBuffer sets the channel buffer size.
func WithBuffer(size int) Option {
	return func(c *Config) {
		c.Buffer = size
	}
}

// WithExtensions restricts file events to the given suffixes.
func WithExtensions(exts []string) Option {
	return func(c *Config) {
		c.Extensions = exts
	}
}
