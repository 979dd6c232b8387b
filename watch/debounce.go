package watch

import (
	"sync"
	"time"
)

// Debounced wraps a Watcher and coalesces rapid events on the same
// path into one. An event is held for the debounce window; further
// events on the same path merge their operations into the pending
// event and restart the window.
type Debounced struct {
	inner Watcher
	delay time.Duration

	mu      sync.Mutex
	pending map[string]*pendingEvent
	events  chan Event
	errors  chan error
	closed  bool
	closeCh chan struct{}
	loopWg  sync.WaitGroup
	fireWg  sync.WaitGroup
}

type pendingEvent struct {
	event Event
	timer *time.Timer
}

// NewDebounced wraps inner with a debounce window of delay.
func NewDebounced(inner Watcher, delay time.Duration) *Debounced {
	if delay <= 0 {
		delay = 100 * time.Millisecond
	}

	dw := &Debounced{
		inner:   inner,
		delay:   delay,
		pending: make(map[string]*pendingEvent),
		events:  make(chan Event, 64),
		errors:  make(chan error, 64),
		closeCh: make(chan struct{}),
	}

	dw.loopWg.Add(1)
	go dw.processLoop()

	return dw
}

// Events returns the debounced event channel.
func (dw *Debounced) Events() <-chan Event {
	return dw.events
}

// Errors returns the error channel.
func (dw *Debounced) Errors() <-chan error {
	return dw.errors
}

// Close stops the debounced watcher and the inner watcher.
func (dw *Debounced) Close() error {
	dw.mu.Lock()
	if dw.closed {
		dw.mu.Unlock()
		return nil
	}
	dw.closed = true
	close(dw.closeCh)

	for path, p := range dw.pending {
		p.timer.Stop()
		delete(dw.pending, path)
	}
	dw.mu.Unlock()

	err := dw.inner.Close()
	dw.loopWg.Wait()
	// A timer callback that already claimed its pending event may still
	// be delivering; it must finish before the channels close.
	dw.fireWg.Wait()

	close(dw.events)
	close(dw.errors)
	return err
}

// Flush immediately fires all pending events.
func (dw *Debounced) Flush() {
	dw.mu.Lock()
	paths := make([]string, 0, len(dw.pending))
	for path, p := range dw.pending {
		p.timer.Stop()
		paths = append(paths, path)
	}
	dw.mu.Unlock()

	for _, path := range paths {
		dw.fire(path)
	}
}

// PendingCount returns the number of events waiting for their window
// to expire.
func (dw *Debounced) PendingCount() int {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	return len(dw.pending)
}

func (dw *Debounced) processLoop() {
	defer dw.loopWg.Done()

	for {
		select {
		case <-dw.closeCh:
			return

		case event, ok := <-dw.inner.Events():
			if !ok {
				return
			}
			dw.handle(event)

		case err, ok := <-dw.inner.Errors():
			if !ok {
				return
			}
			dw.forwardError(err)
		}
	}
}

func (dw *Debounced) handle(event Event) {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if dw.closed {
		return
	}

	if p, exists := dw.pending[event.Path]; exists {
		p.event.Op |= event.Op
		p.event.Timestamp = event.Timestamp
		p.timer.Reset(dw.delay)
		return
	}

	p := &pendingEvent{event: event}
	p.timer = time.AfterFunc(dw.delay, func() {
		dw.fire(event.Path)
	})
	dw.pending[event.Path] = p
}

// fire sends a pending event and removes it from the map.
func (dw *Debounced) fire(path string) {
	dw.mu.Lock()
	p, exists := dw.pending[path]
	if !exists || dw.closed {
		dw.mu.Unlock()
		return
	}
	delete(dw.pending, path)
	event := p.event
	dw.fireWg.Add(1)
	dw.mu.Unlock()
	defer dw.fireWg.Done()

	select {
	case dw.events <- event:
	case <-dw.closeCh:
	default:
		// Channel full, drop event.
	}
}

func (dw *Debounced) forwardError(err error) {
	select {
	case dw.errors <- err:
	case <-dw.closeCh:
	default:
	}
}

var _ Watcher = (*Debounced)(nil)
