package pipeline

// DefaultCapacity is the bound of an inter-stage channel. A small constant
// suffices; the bound is what provides back-pressure for streaming stages.
const DefaultCapacity = 64

// Chan is a bounded single-producer single-consumer channel between two
// stages. Send and Recv observe the run's stop signal, so every channel
// operation is a cancellation point.
type Chan struct {
	ch   chan Item
	stop <-chan struct{}
}

// NewChan creates a channel with the given capacity, observing stop.
func NewChan(capacity int, stop <-chan struct{}) *Chan {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Chan{ch: make(chan Item, capacity), stop: stop}
}

// Send delivers an item downstream, blocking while the channel is full.
// It returns false when the run has been stopped; the caller must then
// return without forwarding anything further.
func (c *Chan) Send(it Item) bool {
	select {
	case <-c.stop:
		return false
	case c.ch <- it:
		return true
	}
}

// Recv takes the next item from upstream, blocking while the channel is
// empty. It returns ok=false when the run has been stopped; the returned
// item is then the Done sentinel so naive loops terminate either way.
func (c *Chan) Recv() (Item, bool) {
	select {
	case <-c.stop:
		return DoneItem(), false
	case it := <-c.ch:
		return it, true
	}
}

// Len returns the number of queued items.
func (c *Chan) Len() int {
	return len(c.ch)
}
