// Package document implements the merged configuration document.
//
// A Document is a nested string-keyed map addressed by dot-separated
// paths. It supports deep merging with later-wins semantics and notifies
// subscribed observers on every mutation, which is how persistence is
// wired without the document holding a reference to its owner.
package document

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
)

// ChangeType classifies a document mutation.
type ChangeType int

const (
	// ChangeSet indicates a value was set at a path.
	ChangeSet ChangeType = iota

	// ChangeDelete indicates a value was removed from a path.
	ChangeDelete

	// ChangeMerge indicates an artifact was merged into the document.
	ChangeMerge
)

// String returns the change type name.
func (t ChangeType) String() string {
	switch t {
	case ChangeSet:
		return "set"
	case ChangeDelete:
		return "delete"
	case ChangeMerge:
		return "merge"
	default:
		return "unknown"
	}
}

// Change describes a single document mutation.
type Change struct {
	// Path is the dot-separated path that changed. Empty for merges.
	Path string

	// Type is the kind of mutation.
	Type ChangeType

	// Old is the previous value at the path, when one existed.
	Old any

	// New is the value now at the path. Nil for deletes.
	New any
}

// Observer receives document change notifications. Observers are invoked
// synchronously, outside the document lock, in subscription order.
type Observer func(Change)

// Document is an observable nested map.
type Document struct {
	mu        sync.RWMutex
	data      map[string]any
	observers map[int]Observer
	nextID    int
}

// New creates an empty document.
func New() *Document {
	return &Document{
		data:      make(map[string]any),
		observers: make(map[int]Observer),
	}
}

// Subscribe registers an observer and returns its subscription id.
func (d *Document) Subscribe(fn Observer) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.observers[id] = fn
	return id
}

// Unsubscribe removes a previously registered observer.
func (d *Document) Unsubscribe(id int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.observers, id)
}

// Get returns the value at a dot-separated path. An empty path returns a
// deep copy of the whole document.
func (d *Document) Get(path string) (any, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if path == "" {
		return cloneValue(d.data), true
	}

	current := any(d.data)
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		val, exists := m[part]
		if !exists {
			return nil, false
		}
		current = val
	}
	return current, true
}

// Set writes a value at a dot-separated path, creating intermediate maps
// as needed, and emits exactly one ChangeSet notification. A non-map value
// on the way is replaced by a map.
func (d *Document) Set(path string, value any) {
	if path == "" {
		return
	}

	d.mu.Lock()
	parts := strings.Split(path, ".")
	current := d.data
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}
	leaf := parts[len(parts)-1]
	old := current[leaf]
	current[leaf] = cloneValue(value)
	observers := d.observerList()
	d.mu.Unlock()

	notify(observers, Change{Path: path, Type: ChangeSet, Old: old, New: value})
}

// Delete removes the value at a dot-separated path. It reports whether a
// value was present, and emits one ChangeDelete notification when it was.
func (d *Document) Delete(path string) bool {
	if path == "" {
		return false
	}

	d.mu.Lock()
	parts := strings.Split(path, ".")
	current := d.data
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			d.mu.Unlock()
			return false
		}
		current = next
	}
	leaf := parts[len(parts)-1]
	old, exists := current[leaf]
	if !exists {
		d.mu.Unlock()
		return false
	}
	delete(current, leaf)
	observers := d.observerList()
	d.mu.Unlock()

	notify(observers, Change{Path: path, Type: ChangeDelete, Old: old})
	return true
}

// MergeValue deep-merges src into the document under later-wins semantics
// and emits one ChangeMerge notification. Persistence observers are
// expected to ignore merges; merging is how artifacts load, not a user
// write.
func (d *Document) MergeValue(src map[string]any) {
	d.mu.Lock()
	d.data = Merge(d.data, src)
	observers := d.observerList()
	d.mu.Unlock()

	notify(observers, Change{Type: ChangeMerge, New: src})
}

// Snapshot returns a deep copy of the document contents.
func (d *Document) Snapshot() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return cloneValue(d.data).(map[string]any)
}

// Keys returns the sorted keys of the map at a dot-separated path. An
// empty path lists the top level.
func (d *Document) Keys(path string) []string {
	var m map[string]any
	if path == "" {
		d.mu.RLock()
		m = d.data
		keys := sortedKeys(m)
		d.mu.RUnlock()
		return keys
	}

	val, ok := d.Get(path)
	if !ok {
		return nil
	}
	m, ok = val.(map[string]any)
	if !ok {
		return nil
	}
	return sortedKeys(m)
}

// Len returns the number of top-level keys.
func (d *Document) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.data)
}

// Walk visits every leaf value in the document as (dot-path, value) pairs
// in sorted path order. This is the explicit enumeration contract for
// hosts whose iteration cannot delegate through the document.
func (d *Document) Walk(fn func(path string, value any)) {
	flat := flatten(d.Snapshot(), "")
	paths := make([]string, 0, len(flat))
	for p := range flat {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		fn(p, flat[p])
	}
}

// Equal reports whether the document contents equal other's.
func (d *Document) Equal(other *Document) bool {
	if other == nil {
		return false
	}
	return valuesEqual(any(d.Snapshot()), any(other.Snapshot()))
}

// MarshalJSON serializes the document contents as a JSON object.
func (d *Document) MarshalJSON() ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return json.Marshal(d.data)
}

func (d *Document) observerList() []Observer {
	ids := make([]int, 0, len(d.observers))
	for id := range d.observers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	list := make([]Observer, len(ids))
	for i, id := range ids {
		list[i] = d.observers[id]
	}
	return list
}

func notify(observers []Observer, change Change) {
	for _, fn := range observers {
		fn(change)
	}
}

func flatten(m map[string]any, prefix string) map[string]any {
	out := make(map[string]any)
	for k, v := range m {
		full := k
		if prefix != "" {
			full = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok && len(nested) > 0 {
			for fk, fv := range flatten(nested, full) {
				out[fk] = fv
			}
		} else {
			out[full] = v
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
