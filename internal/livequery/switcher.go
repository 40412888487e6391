package livequery

import (
	"context"
	"sync"

	domainerrors "github.com/notekeeper/notekeeper/internal/errors"
)

// Switcher follows one query at a time on a single output stream.
//
// Switch supersedes the previous query: its subscription is closed, any
// undelivered snapshot from it is discarded, and snapshots it still
// produces are dropped by generation. Only results of the latest query
// reach Updates.
type Switcher[T any] struct {
	m *Manager

	mu     sync.Mutex
	gen    uint64
	cur    *Subscription[T]
	out    chan Snapshot[T]
	closed bool
}

// NewSwitcher creates a Switcher that subscribes through m.
func NewSwitcher[T any](m *Manager) *Switcher[T] {
	return &Switcher[T]{
		m:   m,
		out: make(chan Snapshot[T], 1),
	}
}

// Switch starts following q and stops following the previous query.
// Switching to the key already followed is a no-op.
func (sw *Switcher[T]) Switch(ctx context.Context, q Query[T]) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.closed {
		return domainerrors.ErrClosed
	}
	if sw.cur != nil && sw.cur.Key() == q.Key() {
		return nil
	}

	sw.gen++
	gen := sw.gen

	if sw.cur != nil {
		sw.cur.Close()
		sw.cur = nil
	}
	select {
	case <-sw.out:
	default:
	}

	sub, err := Subscribe(ctx, sw.m, q)
	if err != nil {
		return err
	}
	sw.cur = sub

	go sw.forward(gen, sub)
	return nil
}

// Current returns the key of the followed query, or "" before the first Switch.
func (sw *Switcher[T]) Current() string {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.cur == nil {
		return ""
	}
	return sw.cur.Key()
}

// Updates returns the output stream. It is closed by Close.
func (sw *Switcher[T]) Updates() <-chan Snapshot[T] {
	return sw.out
}

// Close stops following the current query and closes Updates.
func (sw *Switcher[T]) Close() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.closed {
		return
	}
	sw.closed = true
	if sw.cur != nil {
		sw.cur.Close()
		sw.cur = nil
	}
	close(sw.out)
}

func (sw *Switcher[T]) forward(gen uint64, sub *Subscription[T]) {
	for snap := range sub.Updates() {
		sw.mu.Lock()
		if sw.closed || gen != sw.gen {
			sw.mu.Unlock()
			continue
		}
		select {
		case <-sw.out:
		default:
		}
		sw.out <- snap
		sw.mu.Unlock()
	}
}
