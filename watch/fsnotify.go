package watch

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DirWatcher watches a configuration directory and its immediate
// subdirectories using fsnotify. Subdirectories created while
// watching are added automatically, so artifact directories for
// nested project names are picked up without a restart.
type DirWatcher struct {
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	config  Config
	root    string

	events chan Event
	errors chan error

	closed  bool
	closeCh chan struct{}
	loopWg  sync.WaitGroup
}

// NewDirWatcher creates a watcher rooted at dir. The directory and
// every existing subdirectory are registered before the watcher
// starts delivering events.
func NewDirWatcher(dir string, opts ...Option) (*DirWatcher, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.Buffer <= 0 {
		config.Buffer = 64
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrPathNotExist
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, ErrPathNotExist
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &DirWatcher{
		watcher: fsw,
		config:  config,
		root:    abs,
		events:  make(chan Event, config.Buffer),
		errors:  make(chan error, config.Buffer),
		closeCh: make(chan struct{}),
	}

	if err := w.addTree(abs); err != nil {
		fsw.Close()
		return nil, err
	}

	w.loopWg.Add(1)
	go w.processLoop()

	return w, nil
}

// Root returns the watched directory.
func (w *DirWatcher) Root() string {
	return w.root
}

// Events returns the event channel.
func (w *DirWatcher) Events() <-chan Event {
	return w.events
}

// Errors returns the error channel.
func (w *DirWatcher) Errors() <-chan error {
	return w.errors
}

// Close stops the watcher.
func (w *DirWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	err := w.watcher.Close()
	w.loopWg.Wait()

	close(w.events)
	close(w.errors)
	return err
}

// addTree registers dir and all subdirectories below it.
func (w *DirWatcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		return w.watcher.Add(p)
	})
}

func (w *DirWatcher) processLoop() {
	defer w.loopWg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case fsEvent, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(fsEvent)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.sendError(err)
		}
	}
}

func (w *DirWatcher) handleFSEvent(fsEvent fsnotify.Event) {
	op := convertOp(fsEvent.Op)
	if op == 0 {
		return
	}

	isDir := false
	if op.Has(OpCreate) {
		if info, err := os.Stat(fsEvent.Name); err == nil && info.IsDir() {
			isDir = true
			if err := w.watcher.Add(fsEvent.Name); err != nil {
				w.sendError(err)
			}
		}
	}

	if !isDir && !w.relevant(fsEvent.Name) {
		return
	}

	w.sendEvent(Event{
		Path:      fsEvent.Name,
		Op:        op,
		Timestamp: time.Now(),
	})
}

// relevant reports whether a file path carries one of the configured
// artifact extensions.
func (w *DirWatcher) relevant(path string) bool {
	if len(w.config.Extensions) == 0 {
		return true
	}
	for _, ext := range w.config.Extensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func (w *DirWatcher) sendEvent(event Event) {
	select {
	case w.events <- event:
	default:
		// Channel full, drop event. The engine reloads the whole
		// configuration on any event, so a dropped event is only a
		// problem when no later event arrives either.
	}
}

func (w *DirWatcher) sendError(err error) {
	select {
	case w.errors <- err:
	default:
	}
}

// convertOp converts fsnotify.Op to watch.Op.
func convertOp(fsOp fsnotify.Op) Op {
	var op Op
	if fsOp.Has(fsnotify.Create) {
		op |= OpCreate
	}
	if fsOp.Has(fsnotify.Write) {
		op |= OpWrite
	}
	if fsOp.Has(fsnotify.Remove) {
		op |= OpRemove
	}
	if fsOp.Has(fsnotify.Rename) {
		op |= OpRename
	}
	return op
}

var _ Watcher = (*DirWatcher)(nil)
