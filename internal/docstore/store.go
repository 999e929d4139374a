// Package docstore defines the document persistence abstraction used by the
// mentorchat service. Documents are opaque JSON values addressed by
// (collection, key); queries compare a single top-level field.
package docstore

import (
	"context"
	"errors"
)

// Sentinel errors returned by Store implementations. Backend-specific
// failures are wrapped so callers can match with errors.Is.
var (
	ErrNotFound    = errors.New("docstore: document not found")
	ErrUnavailable = errors.New("docstore: backend unavailable")
)

// Op is a comparison operator for Query and DeleteMatching.
type Op string

const (
	OpEqual   Op = "=="
	OpLess    Op = "<"
	OpGreater Op = ">"
)

// Entry is a single query result.
type Entry struct {
	Key string
	Doc []byte
}

// EventType identifies a change notification kind.
type EventType string

const (
	EventPut    EventType = "put"
	EventDelete EventType = "delete"
)

// Event describes a single document change.
type Event struct {
	Type       EventType
	Collection string
	Key        string
	Doc        []byte
}

// Store is the document persistence interface. All operations are
// context-aware and may fail with ErrUnavailable on transient backend
// trouble.
type Store interface {
	// Get retrieves a document by key. Returns ErrNotFound if absent.
	Get(ctx context.Context, collection, key string) ([]byte, error)

	// Put stores a document, replacing any existing one under the key.
	Put(ctx context.Context, collection, key string, doc []byte) error

	// Query returns all documents whose top-level string field compares
	// true against value. String comparison is lexicographic, which
	// orders ISO-8601 timestamps chronologically.
	Query(ctx context.Context, collection, field string, op Op, value string) ([]Entry, error)

	// Delete removes a document by key. Deleting an absent document is
	// not an error.
	Delete(ctx context.Context, collection, key string) error

	// DeleteMatching removes all documents matching the field predicate
	// and reports how many were removed. The predicate is re-evaluated
	// atomically at delete time, so a document updated after a stale
	// read is not lost.
	DeleteMatching(ctx context.Context, collection, field string, op Op, value string) (int64, error)

	// Watch subscribes to changes in a collection. The returned cancel
	// function stops delivery; fn must not block.
	Watch(ctx context.Context, collection string, fn func(Event)) (func(), error)
}

// compareStrings applies op to lexicographically ordered strings.
func compareStrings(a string, op Op, b string) bool {
	switch op {
	case OpEqual:
		return a == b
	case OpLess:
		return a < b
	case OpGreater:
		return a > b
	}
	return false
}
