package docstore

import (
	"context"
	"sync"

	"github.com/tidwall/gjson"
)

// Memory is an in-process Store used by tests and single-node deployments.
type Memory struct {
	mu       sync.RWMutex
	docs     map[string]map[string][]byte // collection -> key -> doc
	watchers map[string]map[int]func(Event)
	nextID   int
}

// NewMemory creates an empty in-memory document store.
func NewMemory() *Memory {
	return &Memory{
		docs:     make(map[string]map[string][]byte),
		watchers: make(map[string]map[int]func(Event)),
	}
}

// Get retrieves a document by key.
func (m *Memory) Get(_ context.Context, collection, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[collection][key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(doc))
	copy(out, doc)
	return out, nil
}

// Put stores a document, replacing any existing one under the key.
func (m *Memory) Put(_ context.Context, collection, key string, doc []byte) error {
	stored := make([]byte, len(doc))
	copy(stored, doc)

	m.mu.Lock()
	if m.docs[collection] == nil {
		m.docs[collection] = make(map[string][]byte)
	}
	m.docs[collection][key] = stored
	fns := m.watcherList(collection)
	m.mu.Unlock()

	for _, fn := range fns {
		fn(Event{Type: EventPut, Collection: collection, Key: key, Doc: stored})
	}
	return nil
}

// Query returns all documents whose top-level string field matches the predicate.
func (m *Memory) Query(_ context.Context, collection, field string, op Op, value string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Entry
	for key, doc := range m.docs[collection] {
		fv := gjson.GetBytes(doc, field).String()
		if compareStrings(fv, op, value) {
			cp := make([]byte, len(doc))
			copy(cp, doc)
			out = append(out, Entry{Key: key, Doc: cp})
		}
	}
	return out, nil
}

// Delete removes a document by key.
func (m *Memory) Delete(_ context.Context, collection, key string) error {
	m.mu.Lock()
	_, existed := m.docs[collection][key]
	delete(m.docs[collection], key)
	fns := m.watcherList(collection)
	m.mu.Unlock()

	if existed {
		for _, fn := range fns {
			fn(Event{Type: EventDelete, Collection: collection, Key: key})
		}
	}
	return nil
}

// DeleteMatching removes all documents matching the predicate. The predicate
// is evaluated under the write lock, so a concurrent Put that refreshes a
// field cannot have its document swept on a stale read.
func (m *Memory) DeleteMatching(_ context.Context, collection, field string, op Op, value string) (int64, error) {
	m.mu.Lock()
	var removed []string
	for key, doc := range m.docs[collection] {
		fv := gjson.GetBytes(doc, field).String()
		if compareStrings(fv, op, value) {
			delete(m.docs[collection], key)
			removed = append(removed, key)
		}
	}
	fns := m.watcherList(collection)
	m.mu.Unlock()

	for _, key := range removed {
		for _, fn := range fns {
			fn(Event{Type: EventDelete, Collection: collection, Key: key})
		}
	}
	return int64(len(removed)), nil
}

// Watch subscribes to changes in a collection.
func (m *Memory) Watch(_ context.Context, collection string, fn func(Event)) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.watchers[collection] == nil {
		m.watchers[collection] = make(map[int]func(Event))
	}
	id := m.nextID
	m.nextID++
	m.watchers[collection][id] = fn

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.watchers[collection], id)
	}
	return cancel, nil
}

// watcherList snapshots registered watchers; callers must hold mu.
func (m *Memory) watcherList(collection string) []func(Event) {
	fns := make([]func(Event), 0, len(m.watchers[collection]))
	for _, fn := range m.watchers[collection] {
		fns = append(fns, fn)
	}
	return fns
}
