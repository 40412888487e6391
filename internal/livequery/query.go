package livequery

import (
	"context"

	"github.com/notekeeper/notekeeper/internal/store"
)

// Query is a re-executable read against the Record Store.
// Queries with equal keys are shared: one execution serves every subscriber.
type Query[T any] struct {
	exec    func(ctx context.Context, r store.Reader) (T, error)
	affects func(store.Change) bool
	key     string
}

// NewQuery creates a query identified by key. affects reports whether a
// committed change may alter the result; a nil affects re-runs on every change.
func NewQuery[T any](key string, affects func(store.Change) bool, exec func(ctx context.Context, r store.Reader) (T, error)) Query[T] {
	if affects == nil {
		affects = func(store.Change) bool { return true }
	}
	return Query[T]{key: key, affects: affects, exec: exec}
}

// Key returns the query identity.
func (q Query[T]) Key() string {
	return q.key
}

// Affects reports whether change may alter the query result.
func (q Query[T]) Affects(change store.Change) bool {
	return q.affects(change)
}

// OnTables returns an affects func that matches changes to any of tables.
func OnTables(tables ...store.Table) func(store.Change) bool {
	return func(c store.Change) bool {
		for _, t := range tables {
			if c.Touches(t) {
				return true
			}
		}
		return false
	}
}

// Snapshot is one delivered query result.
// Seq increases with every execution of the shared query. When Err is set,
// Value holds the last successful result (or the zero value if there is none).
type Snapshot[T any] struct {
	Value T
	Err   error
	Key   string
	Seq   uint64
}
