package stage

import (
	"path/filepath"
	"strings"

	"github.com/dshills/projconf/pipeline"
)

// FindFilesOptions configures a FindFiles stage.
type FindFilesOptions struct {
	// Extensions overrides the context's extension order. Leave nil to
	// use ctx.Extensions.
	Extensions []string
}

// FindFiles enumerates candidate configuration artifacts for the detected
// project under the configuration directory. Inputs only trigger the
// lookup; the emitted items are artifact paths.
//
// Emission order is fixed per extension: the root-level file
// <config>/<name><ext> first, then for a nested name "a/b" the deeper
// <config>/a/b<ext>, then the contents of the project directory in name
// order. The order is what gives the merged document its later-wins
// semantics, so it must be deterministic.
type FindFiles struct {
	opts FindFilesOptions
}

// NewFindFiles creates a find-files stage.
func NewFindFiles(opts FindFilesOptions) *FindFiles {
	return &FindFiles{opts: opts}
}

// Name implements pipeline.Stage.
func (f *FindFiles) Name() string { return "find_files" }

// Run implements pipeline.Stage.
func (f *FindFiles) Run(ctx *pipeline.Context, rx, tx *pipeline.Chan) {
	// Dedup scope is the current run.
	seen := make(map[string]bool)

	for {
		it, ok := rx.Recv()
		if !ok || ctx.Stopped() {
			return
		}
		if it.Done {
			tx.Send(pipeline.DoneItem())
			return
		}
		if !f.emit(ctx, tx, seen) {
			return
		}
	}
}

// emit streams every not-yet-seen candidate downstream. It returns false
// when the run was stopped mid-emission.
func (f *FindFiles) emit(ctx *pipeline.Context, tx *pipeline.Chan, seen map[string]bool) bool {
	name := ctx.ProjectName()
	if name == "" {
		return true
	}

	exts := f.opts.Extensions
	if exts == nil {
		exts = ctx.Extensions
	}
	parts := strings.Split(name, "/")

	for _, ext := range exts {
		// Root-level artifacts, outer name before inner name: a.ext
		// precedes a/b.ext so the deeper artifact wins the merge.
		for i := 1; i <= len(parts); i++ {
			dir := filepath.Join(append([]string{ctx.ConfigDir}, parts[:i-1]...)...)
			base := parts[i-1] + ext
			if f.childExists(ctx, dir, base) {
				if !f.send(ctx, tx, seen, filepath.Join(dir, base)) {
					return false
				}
			}
		}

		// Directory contents, outer before inner, in name order.
		for i := 1; i <= len(parts); i++ {
			dir := filepath.Join(append([]string{ctx.ConfigDir}, parts[:i]...)...)
			entries, err := ctx.Dirs.Entries(dir)
			if err != nil {
				continue
			}
			for _, e := range entries {
				if e.Dir || !strings.HasSuffix(e.Name, ext) {
					continue
				}
				if !f.send(ctx, tx, seen, filepath.Join(dir, e.Name)) {
					return false
				}
			}
		}
	}
	return true
}

func (f *FindFiles) childExists(ctx *pipeline.Context, dir, name string) bool {
	entries, err := ctx.Dirs.Entries(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.Name == name {
			return !e.Dir
		}
	}
	return false
}

func (f *FindFiles) send(ctx *pipeline.Context, tx *pipeline.Chan, seen map[string]bool, path string) bool {
	if seen[path] {
		return true
	}
	seen[path] = true
	if ctx.Stopped() {
		return false
	}
	return tx.Send(pipeline.Item{Path: path})
}
