// Package projconf loads per-project editor configuration. Starting
// from a directory, it walks upward until a marker identifies the
// project root, discovers configuration artifacts for that project
// under a configuration directory, and executes them through
// extension-specific handlers. JSON-family artifacts merge into one
// reactive document; mutations to the document persist back to the
// project's JSON artifact.
package projconf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"github.com/dshills/projconf/cache"
	"github.com/dshills/projconf/document"
	"github.com/dshills/projconf/handler"
	"github.com/dshills/projconf/pipeline"
	"github.com/dshills/projconf/stage"
	"github.com/dshills/projconf/watch"
)

// Common errors returned by the engine.
var (
	ErrClosed          = errors.New("engine is closed")
	ErrNoPersistTarget = errors.New("no project JSON artifact to persist to")
)

// Engine owns the shared context, the caches, the stage pipeline, and
// the optional watchers. All methods are safe for concurrent use.
type Engine struct {
	opts   Options
	ctx    *pipeline.Context
	runner *pipeline.Runner
	lua    *handler.LuaRunner

	mu       sync.Mutex
	startDir string
	current  *pipeline.Run
	loaded   bool
	closed   bool

	// running suppresses the persistence observer while a run is
	// merging artifacts; only mutations made after a run completes
	// write back to disk.
	running atomic.Bool

	cfgWatch *watch.Debounced
	cwdWatch *watch.CwdWatcher
	watchWg  sync.WaitGroup
}

// Setup builds an engine from opts, applies defaults, installs the
// configured watchers, and for startup loading triggers the first run.
func Setup(opts Options) (*Engine, error) {
	opts = opts.withDefaults()

	trust := !opts.Cache.NoMtimeTrust && cache.ProbeMtime(opts.Fs, os.TempDir())

	ctx := pipeline.NewContext(
		opts.Fs,
		opts.ConfigDir,
		cache.NewDirCache(opts.Fs, trust),
		cache.NewFileCache(opts.Fs, trust),
	)
	ctx.Extensions = opts.Extensions
	ctx.Log = opts.Logger
	ctx.OnError = opts.OnError
	ctx.OnClear = opts.OnClear

	e := &Engine{
		opts:     opts,
		ctx:      ctx,
		startDir: opts.Loading.StartDir,
	}

	// The run is over once OnLoad fires, so callback mutations
	// already persist.
	ctx.OnLoad = func(c *pipeline.Context) {
		e.running.Store(false)
		if opts.OnLoad != nil {
			opts.OnLoad(c)
		}
	}

	stages := opts.Pipeline
	if stages == nil {
		stages = opts.defaultPipeline(e.buildRouter())
	}
	e.runner = pipeline.NewRunner(stages...)

	e.attachPersist(ctx.Document())

	if err := e.installWatchers(); err != nil {
		return nil, err
	}

	ctx.Log.Debug().
		Str("config_dir", opts.ConfigDir).
		Bool("mtime_trust", trust).
		Str("mode", string(opts.Loading.On)).
		Msg("engine ready")

	if opts.Loading.On == LoadStartup {
		if err := e.Load(); err != nil {
			e.Close()
			return nil, err
		}
	}

	return e, nil
}

// buildRouter assembles the extension router: built-in handlers first,
// then caller overrides.
func (e *Engine) buildRouter() stage.Router {
	e.lua = handler.NewLuaRunner()

	router := stage.Router{
		".json": handler.JSON(),
		".toml": handler.TOML(),
		".yaml": handler.YAML(),
		".yml":  handler.YAML(),
		".lua":  e.lua.Handler(),
	}
	if vim := handler.Vim(e.opts.VimHandler); vim != nil {
		router[".vim"] = vim
	}
	for ext, h := range e.opts.Handlers {
		router[ext] = h
	}
	return router
}

// Context returns the engine's shared context.
func (e *Engine) Context() *pipeline.Context {
	return e.ctx
}

// Document returns the current merged configuration document.
func (e *Engine) Document() *document.Document {
	return e.ctx.Document()
}

// Load runs the pipeline from the current start directory, stopping
// any in-flight run first. It returns once the run is scheduled, not
// once it completes; use LoadAwait to block on completion.
func (e *Engine) Load() error {
	_, err := e.LoadAwait()
	return err
}

// LoadAwait schedules a run and returns its handle. The handle's
// Await resolves with the shared context once the run quiesces.
func (e *Engine) LoadAwait() (*pipeline.Run, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrClosed
	}
	e.stopCurrentLocked()

	doc := e.ctx.ResetRun()
	e.attachPersist(doc)
	e.running.Store(true)

	run, err := e.runner.Start(e.ctx, e.startDir)
	if err != nil {
		e.running.Store(false)
		return nil, err
	}
	e.current = run
	e.loaded = true

	go func() {
		<-run.Done()
		e.mu.Lock()
		if e.current == run {
			e.current = nil
			e.running.Store(false)
		}
		e.mu.Unlock()
	}()

	return run, nil
}

// Resolve is Load followed by a blocking wait.
func (e *Engine) Resolve(ctx context.Context) (*pipeline.Context, error) {
	run, err := e.LoadAwait()
	if err != nil {
		return nil, err
	}
	return run.Await(ctx)
}

// Clear stops any in-flight run and resets root, project name, loaded
// files, and the document. Caches are untouched; a later Load reuses
// them.
func (e *Engine) Clear() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.stopCurrentLocked()
	doc := e.ctx.ResetRun()
	e.attachPersist(doc)
	e.mu.Unlock()

	e.ctx.Log.Debug().Msg("engine cleared")
	if e.ctx.OnClear != nil {
		e.ctx.OnClear(e.ctx)
	}
}

// OnBufferEnter tells the engine the host opened a file. In lazy mode
// the first call triggers a load from the file's location; with buffer
// watching enabled every call does.
func (e *Engine) OnBufferEnter(path string) {
	e.mu.Lock()
	trigger := false
	switch {
	case e.closed:
	case e.opts.Loading.Watch.Buffer:
		trigger = true
	case e.opts.Loading.On == LoadLazy && !e.loaded:
		trigger = true
	}
	if trigger {
		e.startDir = path
	}
	e.mu.Unlock()

	if trigger {
		if err := e.Load(); err != nil {
			e.ctx.ReportError(err, path)
		}
	}
}

// OnCwdChange tells the engine the working directory moved; it clears
// and reloads from the new directory.
func (e *Engine) OnCwdChange(dir string) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.startDir = dir
	e.mu.Unlock()

	e.Clear()
	if err := e.Load(); err != nil {
		e.ctx.ReportError(err, dir)
	}
}

// Close stops the in-flight run, the watchers, and the Lua runtime.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.stopCurrentLocked()
	e.mu.Unlock()

	if e.cfgWatch != nil {
		_ = e.cfgWatch.Close()
	}
	if e.cwdWatch != nil {
		_ = e.cwdWatch.Close()
	}
	e.watchWg.Wait()

	if e.lua != nil {
		e.lua.Close()
	}
	return nil
}

// stopCurrentLocked cancels the in-flight run and waits for it to
// quiesce. Stop is bounded, so the wait is too. Caller holds e.mu.
func (e *Engine) stopCurrentLocked() {
	if e.current == nil {
		return
	}
	e.ctx.Stop()
	<-e.current.Done()
	e.current = nil
	e.running.Store(false)
}

// attachPersist subscribes the write-back observer to a fresh
// document. Artifact merges and mutations during a run stay in memory;
// sets and deletes after a run completes serialize the full document
// to the project's JSON artifact through the file cache.
func (e *Engine) attachPersist(doc *document.Document) {
	doc.Subscribe(func(ch document.Change) {
		if ch.Type == document.ChangeMerge || e.running.Load() {
			return
		}
		e.persist()
	})
}

func (e *Engine) persist() {
	target := e.ctx.LastProjectJSON()
	if target == "" {
		e.ctx.ReportError(ErrNoPersistTarget, "")
		return
	}

	snap := e.ctx.Document().Snapshot()
	content, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		e.ctx.ReportError(fmt.Errorf("serialize document: %w", err), target)
		return
	}
	content = append(content, '\n')

	if err := e.ctx.Files.Write(target, content, snap); err != nil {
		e.ctx.ReportError(fmt.Errorf("persist document: %w", err), target)
		return
	}
	e.ctx.Log.Debug().Str("path", target).Msg("document persisted")
}

// installWatchers wires the config-dir and cwd watchers per options.
func (e *Engine) installWatchers() error {
	debounce := time.Duration(e.opts.Loading.Watch.DebounceMS) * time.Millisecond

	if e.opts.Loading.Watch.ConfigDir {
		if _, ok := e.opts.Fs.(*afero.OsFs); !ok {
			e.ctx.Log.Debug().Msg("config dir watching needs the os filesystem, skipping")
		} else {
			inner, err := watch.NewDirWatcher(
				e.opts.ConfigDir,
				watch.WithExtensions(e.opts.Extensions),
				watch.WithDebounce(debounce),
			)
			switch {
			case errors.Is(err, watch.ErrPathNotExist):
				e.ctx.Log.Debug().Str("dir", e.opts.ConfigDir).Msg("config dir absent, not watching")
			case err != nil:
				return fmt.Errorf("watch config dir: %w", err)
			default:
				e.cfgWatch = watch.NewDebounced(inner, debounce)
				e.watchWg.Add(1)
				go e.configLoop()
			}
		}
	}

	if e.opts.Loading.Watch.Cwd {
		w, err := watch.NewCwdWatcher(debounce)
		if err != nil {
			return fmt.Errorf("watch cwd: %w", err)
		}
		e.cwdWatch = w
		e.watchWg.Add(1)
		go e.cwdLoop()
	}

	return nil
}

// configLoop reacts to debounced artifact changes: invalidate the
// touched cache entries, then clear and reload.
func (e *Engine) configLoop() {
	defer e.watchWg.Done()

	for {
		select {
		case ev, ok := <-e.cfgWatch.Events():
			if !ok {
				return
			}
			e.ctx.Log.Debug().Str("path", ev.Path).Stringer("op", ev.Op).Msg("artifact changed")
			e.ctx.Files.Invalidate(ev.Path)
			e.ctx.Dirs.Invalidate(filepath.Dir(ev.Path))
			e.Clear()
			if err := e.Load(); err != nil && !errors.Is(err, ErrClosed) {
				e.ctx.ReportError(err, ev.Path)
			}

		case err, ok := <-e.cfgWatch.Errors():
			if !ok {
				return
			}
			e.ctx.ReportError(err, e.opts.ConfigDir)
		}
	}
}

func (e *Engine) cwdLoop() {
	defer e.watchWg.Done()

	for {
		select {
		case ev, ok := <-e.cwdWatch.Events():
			if !ok {
				return
			}
			e.OnCwdChange(ev.Path)

		case err, ok := <-e.cwdWatch.Errors():
			if !ok {
				return
			}
			e.ctx.ReportError(err, "")
		}
	}
}
