package stage

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dshills/projconf/pipeline"
)

// Router maps extension suffixes (".json", ".lua", ...) to handlers.
type Router map[string]pipeline.Handler

// ExecuteOptions configures an Execute stage.
type ExecuteOptions struct {
	// Router resolves the handler for an artifact by extension.
	// Artifacts with no routed handler are skipped.
	Router Router

	// Async marks extensions whose handler runs on its own goroutine.
	// All asynchronous handlers are joined before the Done sentinel is
	// forwarded, so completion still means every artifact was applied.
	Async map[string]bool
}

// Execute routes each discovered artifact to its handler. Handler errors
// are reported and do not abort the run; successes are recorded in the
// context's loaded-file list in application order.
type Execute struct {
	opts ExecuteOptions
}

// NewExecute creates an execute stage.
func NewExecute(opts ExecuteOptions) *Execute {
	return &Execute{opts: opts}
}

// Name implements pipeline.Stage.
func (e *Execute) Name() string { return "execute" }

// Run implements pipeline.Stage.
func (e *Execute) Run(ctx *pipeline.Context, rx, tx *pipeline.Chan) {
	var wg sync.WaitGroup

	for {
		it, ok := rx.Recv()
		if !ok || ctx.Stopped() {
			wg.Wait()
			return
		}
		if it.Done {
			wg.Wait()
			if ctx.Stopped() {
				return
			}
			tx.Send(pipeline.DoneItem())
			return
		}

		ext := filepath.Ext(it.Path)
		handler, routed := e.opts.Router[ext]
		if !routed {
			ctx.Log.Debug().Str("path", it.Path).Msg("no handler for extension, skipping")
			continue
		}

		if e.opts.Async[ext] {
			wg.Add(1)
			go func(path string) {
				defer wg.Done()
				e.apply(ctx, handler, path)
			}(it.Path)
			continue
		}
		e.apply(ctx, handler, it.Path)
	}
}

// apply invokes a handler with panic recovery. A panicking handler is an
// error for that artifact, not for the run.
func (e *Execute) apply(ctx *pipeline.Context, handler pipeline.Handler, path string) {
	err := func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("handler panic: %v", rec)
			}
		}()
		return handler(ctx, path)
	}()

	if err != nil {
		ctx.ReportError(err, path)
		return
	}
	ctx.AppendLoaded(path)
}
