package pipeline

import (
	"testing"
	"time"
)

func TestChanSendRecv(t *testing.T) {
	stop := make(chan struct{})
	c := NewChan(4, stop)

	if !c.Send(Item{Path: "/a"}) {
		t.Fatal("Send failed on open channel")
	}
	if !c.Send(DoneItem()) {
		t.Fatal("Send of sentinel failed")
	}

	it, ok := c.Recv()
	if !ok || it.Path != "/a" || it.Done {
		t.Fatalf("Recv = %+v, %v", it, ok)
	}
	it, ok = c.Recv()
	if !ok || !it.Done {
		t.Fatalf("Recv sentinel = %+v, %v", it, ok)
	}
}

func TestChanStopUnblocksSender(t *testing.T) {
	stop := make(chan struct{})
	c := NewChan(1, stop)
	c.Send(Item{Path: "/fill"})

	result := make(chan bool)
	go func() {
		// Channel is full; this blocks until stop.
		result <- c.Send(Item{Path: "/blocked"})
	}()

	close(stop)
	select {
	case ok := <-result:
		if ok {
			t.Error("Send reported success after stop")
		}
	case <-time.After(time.Second):
		t.Fatal("sender did not unblock after stop")
	}
}

func TestChanStopUnblocksReceiver(t *testing.T) {
	stop := make(chan struct{})
	c := NewChan(1, stop)

	result := make(chan bool)
	go func() {
		it, ok := c.Recv()
		result <- ok && !it.Done
	}()

	close(stop)
	select {
	case live := <-result:
		if live {
			t.Error("Recv returned a live item after stop")
		}
	case <-time.After(time.Second):
		t.Fatal("receiver did not unblock after stop")
	}
}

func TestChanDefaultCapacity(t *testing.T) {
	c := NewChan(0, make(chan struct{}))
	for i := 0; i < DefaultCapacity; i++ {
		if !c.Send(Item{Path: "/x"}) {
			t.Fatalf("Send %d blocked below default capacity", i)
		}
	}
	if c.Len() != DefaultCapacity {
		t.Errorf("Len = %d, want %d", c.Len(), DefaultCapacity)
	}
}
