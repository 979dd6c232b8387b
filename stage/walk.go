// Package stage provides the built-in pipeline stages: walking ancestor
// directories, detecting the project root, discovering configuration
// artifacts, and executing them through extension handlers.
package stage

import (
	"path/filepath"

	"github.com/dshills/projconf/matcher"
	"github.com/dshills/projconf/pipeline"
)

// Direction selects which way Walk traverses the tree.
type Direction int

const (
	// Up walks from the start directory toward the filesystem root.
	Up Direction = iota

	// Down is reserved; only Up is implemented.
	Down
)

// WalkOptions configures a Walk stage.
type WalkOptions struct {
	// Direction of traversal. Only Up is supported.
	Direction Direction

	// Predicate optionally filters emitted directories. When nil every
	// ancestor is emitted.
	Predicate matcher.Predicate
}

// Walk emits the ancestor directories of each input path, from the start
// directory up to the filesystem root inclusive. A file input starts from
// its parent directory.
type Walk struct {
	opts WalkOptions
}

// NewWalk creates a walk stage.
func NewWalk(opts WalkOptions) *Walk {
	return &Walk{opts: opts}
}

// Name implements pipeline.Stage.
func (w *Walk) Name() string { return "walk" }

// Run implements pipeline.Stage.
func (w *Walk) Run(ctx *pipeline.Context, rx, tx *pipeline.Chan) {
	for {
		it, ok := rx.Recv()
		if !ok || ctx.Stopped() {
			return
		}
		if it.Done {
			tx.Send(pipeline.DoneItem())
			return
		}

		dir := filepath.Clean(it.Path)
		if info, err := ctx.Fs.Stat(dir); err == nil && !info.IsDir() {
			dir = filepath.Dir(dir)
		}

		for {
			if ctx.Stopped() {
				return
			}
			if w.opts.Predicate == nil || w.opts.Predicate(dir) {
				if !tx.Send(pipeline.Item{Path: dir}) {
					return
				}
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}
}
