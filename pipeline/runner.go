package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Common errors returned by the runner.
var (
	ErrNoStages  = errors.New("pipeline has no stages")
	ErrRunActive = errors.New("a run is already in flight")
)

// Stage is one link of the pipeline. Run consumes items from rx and
// produces to tx until it sees the Done sentinel, which it forwards
// exactly once before returning. When a Send or Recv reports the run was
// stopped, Run must return without forwarding anything.
type Stage interface {
	// Name identifies the stage in logs.
	Name() string

	// Run processes the stream. It is invoked on its own goroutine,
	// once per run.
	Run(ctx *Context, rx, tx *Chan)
}

// Runner executes a fixed sequence of stages.
type Runner struct {
	stages   []Stage
	capacity int
}

// NewRunner creates a runner over the given stages.
func NewRunner(stages ...Stage) *Runner {
	return &Runner{stages: stages, capacity: DefaultCapacity}
}

// Stages returns the configured stage sequence.
func (r *Runner) Stages() []Stage {
	return r.stages
}

// Run is a handle to an in-flight or completed pipeline run.
type Run struct {
	ID  string
	ctx *Context

	done chan struct{}
}

// Done returns a channel closed when the run has quiesced, whether it
// completed or was stopped.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Await blocks until the run quiesces and returns the shared context.
func (r *Run) Await(ctx context.Context) (*Context, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done:
		return r.ctx, nil
	}
}

// Start begins a run from startDir. It creates one channel per inter-stage
// edge plus a source channel, feeds the source with the start item and the
// Done sentinel, and launches one goroutine per stage. OnLoad fires when
// the terminal stage has drained and no stop occurred.
//
// The caller must not start a second run on the same context while one is
// in flight.
func (r *Runner) Start(ctx *Context, startDir string) (*Run, error) {
	if len(r.stages) == 0 {
		return nil, ErrNoStages
	}

	ctx.arm()
	stop := ctx.StopChan()

	chans := make([]*Chan, len(r.stages)+1)
	for i := range chans {
		chans[i] = NewChan(r.capacity, stop)
	}

	run := &Run{
		ID:   uuid.NewString(),
		ctx:  ctx,
		done: make(chan struct{}),
	}
	log := ctx.Log.With().Str("run", run.ID).Logger()
	log.Debug().Str("start_dir", startDir).Msg("pipeline run starting")

	var wg sync.WaitGroup
	for i, st := range r.stages {
		wg.Add(1)
		go func(i int, st Stage) {
			defer wg.Done()
			defer func() {
				// A stage failure is fatal for the run: report once,
				// then stop so every other stage quiesces.
				if rec := recover(); rec != nil {
					ctx.ReportError(fmt.Errorf("stage %s: %v", st.Name(), rec), "")
					ctx.Stop()
				}
			}()
			st.Run(ctx, chans[i], chans[i+1])
		}(i, st)
	}

	source := chans[0]
	source.Send(Item{Path: startDir})
	source.Send(DoneItem())

	sink := chans[len(chans)-1]
	go func() {
		defer close(run.done)
		// Drain the sink so a terminal stage that forwards items never
		// blocks on a channel nobody reads.
		for {
			it, ok := sink.Recv()
			if !ok || it.Done {
				break
			}
		}
		wg.Wait()
		if ctx.Stopped() {
			log.Debug().Msg("pipeline run stopped")
			return
		}
		log.Debug().Msg("pipeline run complete")
		if ctx.OnLoad != nil {
			ctx.OnLoad(ctx)
		}
	}()

	return run, nil
}
