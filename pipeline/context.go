package pipeline

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/dshills/projconf/cache"
	"github.com/dshills/projconf/document"
)

// Handler applies a single configuration artifact. Handlers are routed by
// file extension in the execute stage.
type Handler func(ctx *Context, path string) error

// Context is the shared state of a configuration engine: where artifacts
// live, what has been detected and loaded during the current run, and the
// caches that persist across runs.
//
// The exported fields are set once at construction and never mutated
// afterwards; fields mutated by stages go through accessor methods.
type Context struct {
	// Fs is the filesystem all stages and handlers operate on.
	Fs afero.Fs

	// ConfigDir is the directory holding per-project artifacts.
	ConfigDir string

	// Extensions is the ordered list of handled extension suffixes.
	// The order fixes artifact emission order per extension family.
	Extensions []string

	// Log is the structured logger for the engine.
	Log zerolog.Logger

	// Dirs caches directory listings; Names serves matcher lookups.
	Dirs *cache.DirCache

	// Files caches file contents and decoded forms.
	Files *cache.FileCache

	// OnLoad fires when a run completes without being stopped.
	OnLoad func(*Context)

	// OnError receives every non-fatal error with the path involved,
	// and fatal errors once before the run quiesces.
	OnError func(*Context, error, string)

	// OnClear fires after Clear has reset per-run state.
	OnClear func(*Context)

	mu              sync.RWMutex
	root            string
	projectName     string
	filesLoaded     []string
	lastProjectJSON string
	doc             *document.Document

	stopMu  sync.Mutex
	stopped atomic.Bool
	stopCh  chan struct{}
}

// NewContext creates a context with a fresh document and an un-stopped
// run state.
func NewContext(fs afero.Fs, configDir string, dirs *cache.DirCache, files *cache.FileCache) *Context {
	return &Context{
		Fs:        fs,
		ConfigDir: configDir,
		Log:       zerolog.Nop(),
		Dirs:      dirs,
		Files:     files,
		doc:       document.New(),
		stopCh:    make(chan struct{}),
	}
}

// Root returns the detected project root, or "" when none is detected.
func (c *Context) Root() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.root
}

// SetRoot records the project root. The root is write-once per run unless
// override is set. It reports whether the value was applied.
func (c *Context) SetRoot(path string, override bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.root != "" && !override {
		return false
	}
	c.root = path
	return true
}

// ProjectName returns the current project name, possibly nested ("a/b").
func (c *Context) ProjectName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.projectName
}

// SetProjectName sets the project name. Handlers may refine the name a
// detect stage derived, e.g. from a manifest.
func (c *Context) SetProjectName(name string) {
	c.mu.Lock()
	c.projectName = name
	c.mu.Unlock()
}

// Document returns the merged configuration document.
func (c *Context) Document() *document.Document {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.doc
}

// FilesLoaded returns the artifacts applied in the current run, in
// application order.
func (c *Context) FilesLoaded() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.filesLoaded))
	copy(out, c.filesLoaded)
	return out
}

// AppendLoaded records a successfully applied artifact.
func (c *Context) AppendLoaded(path string) {
	c.mu.Lock()
	c.filesLoaded = append(c.filesLoaded, path)
	c.mu.Unlock()
}

// LastProjectJSON returns the persistence target for document writes.
func (c *Context) LastProjectJSON() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastProjectJSON
}

// SetLastProjectJSON records the most recent project-matching JSON
// artifact; document writes persist there.
func (c *Context) SetLastProjectJSON(path string) {
	c.mu.Lock()
	c.lastProjectJSON = path
	c.mu.Unlock()
}

// ResetRun clears per-run state and installs a fresh document, which it
// returns so the caller can re-attach observers. Caches are untouched.
func (c *Context) ResetRun() *document.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.root = ""
	c.projectName = ""
	c.filesLoaded = nil
	c.lastProjectJSON = ""
	c.doc = document.New()
	return c.doc
}

// Stop cancels the in-flight run. It is idempotent and safe from any
// goroutine. Every channel operation and every stage yield point observes
// the stop signal, so stages quiesce in bounded time.
func (c *Context) Stop() {
	c.stopMu.Lock()
	defer c.stopMu.Unlock()
	if c.stopped.Swap(true) {
		return
	}
	if c.stopCh != nil {
		close(c.stopCh)
	}
}

// Stopped reports whether the current run has been cancelled.
func (c *Context) Stopped() bool {
	return c.stopped.Load()
}

// StopChan returns the channel closed when the run is stopped.
func (c *Context) StopChan() <-chan struct{} {
	c.stopMu.Lock()
	defer c.stopMu.Unlock()
	return c.stopCh
}

// arm resets the stop state for a new run. The caller must guarantee no
// run is in flight.
func (c *Context) arm() {
	c.stopMu.Lock()
	defer c.stopMu.Unlock()
	c.stopped.Store(false)
	c.stopCh = make(chan struct{})
}

// ReportError surfaces a non-fatal error to the OnError callback and the
// log. Cancellation is never reported.
func (c *Context) ReportError(err error, path string) {
	if err == nil || c.Stopped() {
		return
	}
	c.Log.Warn().Err(err).Str("path", path).Msg("configuration error")
	if c.OnError != nil {
		c.OnError(c, err, path)
	}
}
