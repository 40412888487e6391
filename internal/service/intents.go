package service

import (
	"context"
	"sync"
)

// IntentKind names a mutating facade operation.
type IntentKind string

// Intent kinds reported in IntentResult.
const (
	IntentCreateNote         IntentKind = "create_note"
	IntentUpdateNote         IntentKind = "update_note"
	IntentUpdateNoteWithTags IntentKind = "update_note_with_tags"
	IntentDeleteNote         IntentKind = "delete_note"
	IntentCreateTag          IntentKind = "create_tag"
	IntentUpdateTag          IntentKind = "update_tag"
	IntentDeleteTag          IntentKind = "delete_tag"
	IntentAttachTag          IntentKind = "attach_tag"
	IntentDetachTag          IntentKind = "detach_tag"
)

// IntentResult reports the outcome of one intent.
// Err is nil on success. EntityID is the ID of the created note or tag for
// create intents, and the target ID otherwise.
type IntentResult struct {
	Err      error
	ID       string
	Kind     IntentKind
	EntityID int64
}

// intent is one queued unit of work. A barrier intent has no run func and
// only signals when the worker reaches it.
type intent struct {
	run     func(ctx context.Context) (int64, error)
	barrier chan struct{}
	id      string
	kind    IntentKind
}

// intentQueue is an unbounded FIFO. Issuing an intent never blocks the caller.
type intentQueue struct {
	mu     sync.Mutex
	items  []intent
	signal chan struct{}
	closed bool
}

func newIntentQueue() *intentQueue {
	return &intentQueue{signal: make(chan struct{}, 1)}
}

// push appends it and reports false if the queue is closed.
func (q *intentQueue) push(it intent) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, it)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// pop removes the oldest intent. ok is false when the queue is empty;
// done is true once the queue is both closed and empty.
func (q *intentQueue) pop() (it intent, ok, done bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return intent{}, false, q.closed
	}
	it = q.items[0]
	q.items[0] = intent{}
	q.items = q.items[1:]
	return it, true, false
}

func (q *intentQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *intentQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
