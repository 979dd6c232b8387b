package watch

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// mockWatcher feeds events and errors to a Debounced under test.
type mockWatcher struct {
	mu     sync.Mutex
	events chan Event
	errors chan error
	closed bool
}

func newMockWatcher() *mockWatcher {
	return &mockWatcher{
		events: make(chan Event, 64),
		errors: make(chan error, 64),
	}
}

func (m *mockWatcher) Events() <-chan Event {
	return m.events
}

func (m *mockWatcher) Errors() <-chan error {
	return m.errors
}

func (m *mockWatcher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.events)
		close(m.errors)
	}
	return nil
}

func (m *mockWatcher) send(path string, op Op) {
	m.events <- Event{Path: path, Op: op, Timestamp: time.Now()}
}

func waitEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("event channel closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestOpString(t *testing.T) {
	tests := []struct {
		op   Op
		want string
	}{
		{OpCreate, "CREATE"},
		{OpWrite, "WRITE"},
		{OpRemove, "REMOVE"},
		{OpRename, "RENAME"},
		{Op(0), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Op(%d).String() = %q, want %q", tt.op, got, tt.want)
		}
	}
}

func TestDebouncedDeliversAfterWindow(t *testing.T) {
	mock := newMockWatcher()
	dw := NewDebounced(mock, 20*time.Millisecond)
	defer dw.Close()

	mock.send("/c/p.json", OpWrite)

	ev := waitEvent(t, dw.Events())
	if ev.Path != "/c/p.json" || !ev.Op.Has(OpWrite) {
		t.Errorf("event = %+v", ev)
	}
}

func TestDebouncedCoalescesSamePath(t *testing.T) {
	mock := newMockWatcher()
	dw := NewDebounced(mock, 50*time.Millisecond)
	defer dw.Close()

	mock.send("/c/p.json", OpCreate)
	mock.send("/c/p.json", OpWrite)
	mock.send("/c/p.json", OpWrite)

	ev := waitEvent(t, dw.Events())
	if !ev.Op.Has(OpCreate) || !ev.Op.Has(OpWrite) {
		t.Errorf("coalesced ops = %v", ev.Op)
	}

	select {
	case extra := <-dw.Events():
		t.Errorf("unexpected second event: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDebouncedDistinctPaths(t *testing.T) {
	mock := newMockWatcher()
	dw := NewDebounced(mock, 20*time.Millisecond)
	defer dw.Close()

	mock.send("/c/a.json", OpWrite)
	mock.send("/c/b.json", OpWrite)

	seen := map[string]bool{}
	seen[waitEvent(t, dw.Events()).Path] = true
	seen[waitEvent(t, dw.Events()).Path] = true

	if !seen["/c/a.json"] || !seen["/c/b.json"] {
		t.Errorf("seen = %v", seen)
	}
}

func TestDebouncedFlush(t *testing.T) {
	mock := newMockWatcher()
	dw := NewDebounced(mock, 10*time.Second)
	defer dw.Close()

	mock.send("/c/p.json", OpWrite)

	// Wait for the event to land in the pending map.
	deadline := time.Now().Add(2 * time.Second)
	for dw.PendingCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("event never became pending")
		}
		time.Sleep(time.Millisecond)
	}

	dw.Flush()
	ev := waitEvent(t, dw.Events())
	if ev.Path != "/c/p.json" {
		t.Errorf("flushed event = %+v", ev)
	}
	if dw.PendingCount() != 0 {
		t.Errorf("pending after flush = %d", dw.PendingCount())
	}
}

func TestDebouncedForwardsErrors(t *testing.T) {
	mock := newMockWatcher()
	dw := NewDebounced(mock, 20*time.Millisecond)
	defer dw.Close()

	wantErr := errors.New("watch failure")
	mock.errors <- wantErr

	select {
	case err := <-dw.Errors():
		if !errors.Is(err, wantErr) {
			t.Errorf("err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error")
	}
}

func TestDebouncedCloseIsIdempotent(t *testing.T) {
	mock := newMockWatcher()
	dw := NewDebounced(mock, 20*time.Millisecond)

	if err := dw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := dw.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if _, ok := <-dw.Events(); ok {
		t.Error("events channel still open after Close")
	}
}

func TestCwdWatcherDetectsChange(t *testing.T) {
	var mu sync.Mutex
	dir := "/one"
	getwd := func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		return dir, nil
	}

	w, err := newCwdWatcher(5*time.Millisecond, getwd)
	if err != nil {
		t.Fatalf("newCwdWatcher: %v", err)
	}
	defer w.Close()

	if w.Current() != "/one" {
		t.Fatalf("Current = %q", w.Current())
	}

	mu.Lock()
	dir = "/two"
	mu.Unlock()

	ev := waitEvent(t, w.Events())
	if ev.Path != "/two" {
		t.Errorf("event path = %q", ev.Path)
	}
	if w.Current() != "/two" {
		t.Errorf("Current after change = %q", w.Current())
	}
}

func TestCwdWatcherNoEventWithoutChange(t *testing.T) {
	getwd := func() (string, error) { return "/stable", nil }

	w, err := newCwdWatcher(time.Millisecond, getwd)
	if err != nil {
		t.Fatalf("newCwdWatcher: %v", err)
	}
	defer w.Close()

	select {
	case ev := <-w.Events():
		t.Errorf("unexpected event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCwdWatcherReportsGetwdError(t *testing.T) {
	wantErr := errors.New("getwd failed")
	calls := 0
	var mu sync.Mutex
	getwd := func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return "/start", nil
		}
		return "", wantErr
	}

	w, err := newCwdWatcher(time.Millisecond, getwd)
	if err != nil {
		t.Fatalf("newCwdWatcher: %v", err)
	}
	defer w.Close()

	select {
	case got := <-w.Errors():
		if !errors.Is(got, wantErr) {
			t.Errorf("err = %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for error")
	}
}

func TestDirWatcherRejectsMissingDir(t *testing.T) {
	if _, err := NewDirWatcher("/nonexistent/projconf-test-dir"); !errors.Is(err, ErrPathNotExist) {
		t.Errorf("err = %v, want ErrPathNotExist", err)
	}
}

func TestDirWatcherDeliversWrite(t *testing.T) {
	dir := t.TempDir()
	w, err := NewDirWatcher(dir, WithExtensions([]string{".json"}))
	if err != nil {
		t.Fatalf("NewDirWatcher: %v", err)
	}
	defer w.Close()

	// Writes with an irrelevant extension are filtered out.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "p.json"), []byte(`{"a":1}`), 0o644); err != nil {
		t.Fatal(err)
	}

	ev := waitEvent(t, w.Events())
	if ev.Path != filepath.Join(dir, "p.json") {
		t.Errorf("event path = %q", ev.Path)
	}
}
