package livequery

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	domainerrors "github.com/notekeeper/notekeeper/internal/errors"
	"github.com/notekeeper/notekeeper/internal/id"
	"github.com/notekeeper/notekeeper/internal/store"
)

// entry is one shared live query and its subscribers.
type entry[T any] struct {
	m       *Manager
	q       Query[T]
	ctx     context.Context
	cancel  context.CancelFunc
	dirty   chan struct{}
	limiter *rate.Limiter

	mu      sync.Mutex
	subs    map[string]*Subscription[T]
	seq     uint64
	last    T
	current Snapshot[T]
	ready   bool
}

func newEntry[T any](m *Manager, q Query[T]) *entry[T] {
	ctx, cancel := context.WithCancel(m.ctx)
	return &entry[T]{
		m:       m,
		q:       q,
		ctx:     ctx,
		cancel:  cancel,
		dirty:   make(chan struct{}, 1),
		limiter: rate.NewLimiter(m.refreshLimit, m.refreshBurst),
		subs:    make(map[string]*Subscription[T]),
	}
}

func (e *entry[T]) affects(change store.Change) bool {
	return e.q.Affects(change)
}

// markDirty requests a re-execution. A pending request already covers
// this one, so a full channel is fine.
func (e *entry[T]) markDirty() {
	select {
	case e.dirty <- struct{}{}:
	default:
	}
}

func (e *entry[T]) run() {
	defer e.m.wg.Done()

	e.refresh()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-e.dirty:
			if err := e.limiter.Wait(e.ctx); err != nil {
				return
			}
			e.refresh()
		}
	}
}

func (e *entry[T]) refresh() {
	val, err := execShared(e.ctx, e.m, e.q)
	if e.ctx.Err() != nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.seq++
	snap := Snapshot[T]{Key: e.q.key, Seq: e.seq}
	if err != nil {
		e.m.logger.Warn("live query failed",
			"query", e.q.key,
			"error", err,
		)
		snap.Value = e.last
		snap.Err = err
	} else {
		e.last = val
		snap.Value = val
	}
	e.current = snap
	e.ready = true

	for _, s := range e.subs {
		s.deliver(snap)
	}
}

// add registers s and hands it the cached snapshot, if any. Caller holds m.mu.
func (e *entry[T]) add(s *Subscription[T]) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.subs[s.id] = s
	if e.ready {
		s.deliver(e.current)
	}
}

func (e *entry[T]) shutdown() {
	e.cancel()

	e.mu.Lock()
	subs := make([]*Subscription[T], 0, len(e.subs))
	for _, s := range e.subs {
		subs = append(subs, s)
	}
	e.mu.Unlock()

	for _, s := range subs {
		s.closeMailbox()
	}
}

// Subscription receives snapshots of one live query.
//
// Delivery is level-triggered: Updates holds at most one undelivered
// snapshot, and a newer one replaces it. Slow readers skip intermediate
// results but always end on the latest.
type Subscription[T any] struct {
	entry *entry[T]
	stop  func() bool
	id    string

	mu      sync.Mutex
	out     chan Snapshot[T]
	lastSeq uint64
	closed  bool

	closeOnce sync.Once
}

// Subscribe starts following q. The current result is delivered first,
// from cache if another subscriber already keeps q live. The subscription
// ends when ctx is done or Close is called.
func Subscribe[T any](ctx context.Context, m *Manager, q Query[T]) (*Subscription[T], error) {
	subID, err := id.Generate(id.PrefixSubscription)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "subscribe")
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, domainerrors.ErrClosed
	}

	var (
		e     *entry[T]
		start bool
	)
	if existing, ok := m.entries[q.key]; ok {
		e, ok = existing.(*entry[T])
		if !ok {
			m.mu.Unlock()
			return nil, domainerrors.Internalf("query %q is live with a different result type", q.key)
		}
	} else {
		e = newEntry(m, q)
		m.entries[q.key] = e
		m.wg.Add(1)
		start = true
	}

	s := &Subscription[T]{
		entry: e,
		id:    subID,
		out:   make(chan Snapshot[T], 1),
	}
	e.add(s)
	m.mu.Unlock()

	if start {
		m.logger.Debug("live query started", "query", q.key)
		go e.run()
	}

	stop := context.AfterFunc(ctx, s.Close)
	s.mu.Lock()
	s.stop = stop
	s.mu.Unlock()
	return s, nil
}

// ID returns the subscription identifier.
func (s *Subscription[T]) ID() string {
	return s.id
}

// Key returns the key of the followed query.
func (s *Subscription[T]) Key() string {
	return s.entry.q.key
}

// Updates returns the snapshot channel. It is closed when the
// subscription ends.
func (s *Subscription[T]) Updates() <-chan Snapshot[T] {
	return s.out
}

// Close ends the subscription. The last subscriber to leave tears the
// live query down. Close is idempotent.
func (s *Subscription[T]) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		stop := s.stop
		s.mu.Unlock()
		if stop != nil {
			stop()
		}

		e := s.entry
		m := e.m

		m.mu.Lock()
		e.mu.Lock()
		delete(e.subs, s.id)
		last := len(e.subs) == 0
		if last {
			if cur, ok := m.entries[e.q.key]; ok && cur == liveQuery(e) {
				delete(m.entries, e.q.key)
			}
		}
		e.mu.Unlock()
		m.mu.Unlock()

		if last {
			e.cancel()
			m.logger.Debug("live query stopped", "query", e.q.key)
		}
		s.closeMailbox()
	})
}

// deliver replaces any undelivered snapshot with snap. Snapshots that are
// not newer than the last one delivered are dropped.
func (s *Subscription[T]) deliver(snap Snapshot[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || snap.Seq <= s.lastSeq {
		return
	}
	s.lastSeq = snap.Seq

	select {
	case <-s.out:
	default:
	}
	s.out <- snap
}

func (s *Subscription[T]) closeMailbox() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.out)
}
