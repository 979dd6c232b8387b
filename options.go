package projconf

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/dshills/projconf/matcher"
	"github.com/dshills/projconf/pipeline"
	"github.com/dshills/projconf/stage"
)

// LoadMode controls when the engine runs the discovery pipeline.
type LoadMode string

const (
	// LoadStartup runs the pipeline once during Setup.
	LoadStartup LoadMode = "startup"

	// LoadLazy defers the first run until a buffer is entered.
	LoadLazy LoadMode = "lazy"

	// LoadManual leaves all runs to explicit Load calls.
	LoadManual LoadMode = "manual"
)

// WatchOptions controls which external triggers schedule a reload.
type WatchOptions struct {
	// ConfigDir watches the configuration directory for artifact
	// changes. Events are debounced, then the engine clears and
	// reloads.
	ConfigDir bool

	// Buffer reloads on every OnBufferEnter call, not only the first.
	Buffer bool

	// Cwd polls the process working directory and reloads from the
	// new directory when it changes.
	Cwd bool

	// DebounceMS is the debounce window in milliseconds for config-dir
	// events and the poll interval for the cwd watcher. Default 100.
	DebounceMS int
}

// LoadingOptions controls load scheduling.
type LoadingOptions struct {
	// On selects the load mode. Default LoadStartup.
	On LoadMode

	// StartDir is where the upward walk begins. Default is the process
	// working directory.
	StartDir string

	// Watch configures reload triggers.
	Watch WatchOptions
}

// CacheOptions controls cache behaviour.
type CacheOptions struct {
	// NoMtimeTrust forces re-reads on every lookup. By default the
	// caches trust modification times when a probe confirms the
	// filesystem advances them.
	NoMtimeTrust bool
}

// Options configures an Engine. The zero value is not usable; pass it
// through Setup, which applies the defaults documented per field.
type Options struct {
	// ConfigDir holds per-project artifacts. Default is
	// <user config dir>/projconf.
	ConfigDir string

	// ConfigDirFunc computes the artifact directory at Setup time. It
	// takes precedence over ConfigDir when both are set.
	ConfigDirFunc func() (string, error)

	// Fs is the filesystem everything operates on. Default os filesystem.
	Fs afero.Fs

	// Logger receives structured engine logs. Default is a no-op logger.
	Logger zerolog.Logger

	// Extensions is the ordered list of artifact extensions. The order
	// fixes discovery order per extension family. Default
	// [".json", ".toml", ".yaml", ".lua", ".vim"].
	Extensions []string

	// RootMarkers decides which directory is the project root.
	// Default matcher.Name(".git").
	RootMarkers matcher.Matcher

	// Pipeline replaces the default stage sequence
	// [Walk, Detect, FindFiles, Execute] entirely when non-nil.
	Pipeline []pipeline.Stage

	// Handlers adds or overrides extension handlers in the execute
	// router. Defaults cover .json, .toml, .yaml, and .lua.
	Handlers map[string]pipeline.Handler

	// VimHandler executes .vim artifacts. Only an embedding host can
	// source vimscript, so without one .vim artifacts are skipped.
	VimHandler pipeline.Handler

	// Async marks extensions whose handlers run concurrently during
	// the execute stage.
	Async map[string]bool

	// Loading controls when runs happen and what triggers reloads.
	Loading LoadingOptions

	// Cache controls mtime trust.
	Cache CacheOptions

	// OnLoad fires after a run completes without being stopped.
	OnLoad func(*pipeline.Context)

	// OnError receives every recoverable error with the path involved.
	OnError func(*pipeline.Context, error, string)

	// OnClear fires after Clear has reset the engine state.
	OnClear func(*pipeline.Context)
}

// defaultExtensions orders merge-family artifacts before script-like
// ones so scripts observe the fully merged document.
func defaultExtensions() []string {
	return []string{".json", ".toml", ".yaml", ".lua", ".vim"}
}

func (o Options) withDefaults() Options {
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.ConfigDirFunc != nil {
		if dir, err := o.ConfigDirFunc(); err == nil && dir != "" {
			o.ConfigDir = dir
		}
	}
	if o.ConfigDir == "" {
		if base, err := os.UserConfigDir(); err == nil {
			o.ConfigDir = filepath.Join(base, "projconf")
		} else {
			o.ConfigDir = filepath.Join(os.TempDir(), "projconf")
		}
	}
	if len(o.Extensions) == 0 {
		o.Extensions = defaultExtensions()
	}
	if o.RootMarkers == nil {
		o.RootMarkers = matcher.Name(".git")
	}
	if o.Loading.On == "" {
		o.Loading.On = LoadStartup
	}
	if o.Loading.StartDir == "" {
		if wd, err := os.Getwd(); err == nil {
			o.Loading.StartDir = wd
		} else {
			o.Loading.StartDir = "/"
		}
	}
	if o.Loading.Watch.DebounceMS <= 0 {
		o.Loading.Watch.DebounceMS = 100
	}
	return o
}

// defaultPipeline builds the standard four-stage sequence.
func (o Options) defaultPipeline(router stage.Router) []pipeline.Stage {
	return []pipeline.Stage{
		stage.NewWalk(stage.WalkOptions{}),
		stage.NewDetect(stage.DetectOptions{Matcher: o.RootMarkers}),
		stage.NewFindFiles(stage.FindFilesOptions{}),
		stage.NewExecute(stage.ExecuteOptions{Router: router, Async: o.Async}),
	}
}
