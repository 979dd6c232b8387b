package watch

import (
	"os"
	"sync"
	"time"
)

// CwdWatcher polls the process working directory and emits an event
// when it changes. There is no kernel notification for chdir, so
// polling is the only portable option. The poll interval trades
// detection latency against wakeups; the default of one second is
// fine for editor session use.
type CwdWatcher struct {
	interval time.Duration
	getwd    func() (string, error)

	events chan Event
	errors chan error

	mu      sync.Mutex
	last    string
	closed  bool
	closeCh chan struct{}
	loopWg  sync.WaitGroup
}

// NewCwdWatcher starts polling at the given interval. An interval of
// zero or less uses one second.
func NewCwdWatcher(interval time.Duration) (*CwdWatcher, error) {
	return newCwdWatcher(interval, os.Getwd)
}

func newCwdWatcher(interval time.Duration, getwd func() (string, error)) (*CwdWatcher, error) {
	if interval <= 0 {
		interval = time.Second
	}

	start, err := getwd()
	if err != nil {
		return nil, err
	}

	w := &CwdWatcher{
		interval: interval,
		getwd:    getwd,
		events:   make(chan Event, 8),
		errors:   make(chan error, 8),
		last:     start,
		closeCh:  make(chan struct{}),
	}

	w.loopWg.Add(1)
	go w.pollLoop()

	return w, nil
}

// Current returns the most recently observed working directory.
func (w *CwdWatcher) Current() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Events returns the event channel. Each event's Path is the new
// working directory and its Op is OpRename.
func (w *CwdWatcher) Events() <-chan Event {
	return w.events
}

// Errors returns the error channel.
func (w *CwdWatcher) Errors() <-chan error {
	return w.errors
}

// Close stops polling.
func (w *CwdWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	w.loopWg.Wait()
	close(w.events)
	close(w.errors)
	return nil
}

func (w *CwdWatcher) pollLoop() {
	defer w.loopWg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.closeCh:
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

func (w *CwdWatcher) poll() {
	dir, err := w.getwd()
	if err != nil {
		select {
		case w.errors <- err:
		default:
		}
		return
	}

	w.mu.Lock()
	changed := dir != w.last
	if changed {
		w.last = dir
	}
	w.mu.Unlock()

	if !changed {
		return
	}

	select {
	case w.events <- Event{Path: dir, Op: OpRename, Timestamp: time.Now()}:
	default:
	}
}

var _ Watcher = (*CwdWatcher)(nil)
