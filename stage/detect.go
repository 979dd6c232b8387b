package stage

import (
	"path/filepath"
	"sync"

	"github.com/dshills/projconf/matcher"
	"github.com/dshills/projconf/pipeline"
)

// DetectOptions configures a Detect stage.
type DetectOptions struct {
	// Matcher decides whether a directory is the project root.
	Matcher matcher.Matcher

	// Override lets this stage replace a root an earlier detect stage
	// recorded. By default the root is write-once per run, so a second
	// detect stage for a more specific marker must opt in.
	Override bool

	// OnMatch runs on the first directory the matcher accepts. When nil
	// the default records the directory as the project root and derives
	// the project name from its base name.
	OnMatch func(ctx *pipeline.Context, path string)
}

// Detect evaluates a matcher against each incoming directory and records
// the first match as the project root. The stage is pass-through: every
// input is forwarded so downstream stages still see all ancestors.
type Detect struct {
	opts DetectOptions

	once sync.Once
	pred matcher.Predicate
}

// NewDetect creates a detect stage.
func NewDetect(opts DetectOptions) *Detect {
	return &Detect{opts: opts}
}

// Name implements pipeline.Stage.
func (d *Detect) Name() string { return "detect" }

// Run implements pipeline.Stage.
func (d *Detect) Run(ctx *pipeline.Context, rx, tx *pipeline.Chan) {
	// Normalisation happens once; the directory cache serves every
	// child-name lookup afterwards.
	d.once.Do(func() {
		d.pred = matcher.Normalize(d.opts.Matcher, ctx.Dirs.Names)
	})

	for {
		it, ok := rx.Recv()
		if !ok || ctx.Stopped() {
			return
		}
		if it.Done {
			tx.Send(pipeline.DoneItem())
			return
		}

		if d.pred(it.Path) {
			d.match(ctx, it.Path)
		}
		if !tx.Send(it) {
			return
		}
	}
}

func (d *Detect) match(ctx *pipeline.Context, path string) {
	if d.opts.OnMatch != nil {
		d.opts.OnMatch(ctx, path)
		return
	}
	if ctx.SetRoot(path, d.opts.Override) {
		ctx.SetProjectName(filepath.Base(path))
		ctx.Log.Debug().Str("root", path).Msg("project root detected")
	}
}
