// Package pipeline implements the streaming, cancellable stage runtime.
//
// A pipeline is a finite ordered list of stages connected by bounded
// channels. Each stage is a goroutine consuming items from an upstream
// channel and producing to a downstream one. End-of-stream is signalled
// in-band by a Done item rather than by closing the channel, which avoids
// double-close hazards when cancellation races normal termination.
package pipeline

// Item is the unit of work flowing between stages.
type Item struct {
	// Path is the payload: a directory or artifact path.
	Path string

	// Done marks the end-of-stream sentinel. A Done item carries no
	// payload and must be forwarded downstream exactly once.
	Done bool
}

// DoneItem returns the end-of-stream sentinel.
func DoneItem() Item {
	return Item{Done: true}
}
