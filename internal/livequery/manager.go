// Package livequery turns Record Store reads into push-based streams.
//
// The store reports every committed mutation to the Manager. The Manager
// marks the live queries that depend on the touched tables as dirty, and
// each dirty query re-executes once and pushes the new snapshot to all of
// its subscribers.
package livequery

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	domainerrors "github.com/notekeeper/notekeeper/internal/errors"
	"github.com/notekeeper/notekeeper/internal/store"
)

var _ store.ChangeNotifier = (*Manager)(nil)

// liveQuery is the type-erased view of an entry held by the Manager.
type liveQuery interface {
	affects(store.Change) bool
	markDirty()
	shutdown()
}

// Manager tracks live queries and re-executes them when the store changes.
type Manager struct {
	reader store.Reader
	logger *slog.Logger
	group  singleflight.Group

	// ctx bounds every query execution; cancelled by Shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	changes  chan store.Change
	wake     chan struct{}
	overflow atomic.Bool

	// generation counts notified changes. Executions only share a
	// singleflight call within one generation, so a read that started
	// before a commit is never handed to a caller that arrived after it.
	generation atomic.Uint64

	refreshLimit rate.Limit
	refreshBurst int

	mu      sync.Mutex
	entries map[string]liveQuery
	closed  bool
	wg      sync.WaitGroup

	// Shutdown state - protected by shutdownMu
	shutdownMu sync.RWMutex
	shutdown   bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithRefreshRate limits how often a single live query re-executes.
// perSecond <= 0 disables the limit.
func WithRefreshRate(perSecond float64, burst int) Option {
	return func(m *Manager) {
		if perSecond <= 0 {
			m.refreshLimit = rate.Inf
			return
		}
		m.refreshLimit = rate.Limit(perSecond)
		m.refreshBurst = max(burst, 1)
	}
}

// WithEventBuffer sets the capacity of the change channel.
func WithEventBuffer(n int) Option {
	return func(m *Manager) {
		m.changes = make(chan store.Change, max(n, 1))
	}
}

// NewManager creates a Manager reading from r.
// Call Start in a goroutine to begin dispatching changes.
func NewManager(r store.Reader, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		reader:       r,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
		changes:      make(chan store.Change, 256),
		wake:         make(chan struct{}, 1),
		refreshLimit: rate.Inf,
		refreshBurst: 1,
		entries:      make(map[string]liveQuery),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Notify implements store.ChangeNotifier. It never blocks: when the change
// channel is full, every live query is marked dirty instead.
func (m *Manager) Notify(change store.Change) {
	m.generation.Add(1)

	m.shutdownMu.RLock()
	defer m.shutdownMu.RUnlock()
	if m.shutdown {
		return
	}

	select {
	case m.changes <- change:
	default:
		m.overflow.Store(true)
		select {
		case m.wake <- struct{}{}:
		default:
		}
	}
}

// Start dispatches changes to live queries until ctx is done or Shutdown
// is called. It should be run once, in its own goroutine.
func (m *Manager) Start(ctx context.Context) {
	m.logger.Info("live query manager starting")

	for {
		select {
		case change, ok := <-m.changes:
			if !ok {
				return
			}
			m.dispatch(change)

		case <-m.wake:
			if m.overflow.Swap(false) {
				m.logger.Warn("change buffer overflowed, refreshing every live query")
				m.dispatchAll()
			}

		case <-ctx.Done():
			m.logger.Info("live query manager stopping")
			return
		}
	}
}

// Shutdown stops accepting changes, dispatches the ones already queued,
// then closes every subscription and waits for query goroutines to exit.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("live query manager shutdown initiated")

	m.shutdownMu.Lock()
	if m.shutdown {
		m.shutdownMu.Unlock()
		return nil
	}
	m.shutdown = true
	close(m.changes)
	m.shutdownMu.Unlock()

	for change := range m.changes {
		m.dispatch(change)
	}

	m.mu.Lock()
	m.closed = true
	entries := make([]liveQuery, 0, len(m.entries))
	for key, e := range m.entries {
		entries = append(entries, e)
		delete(m.entries, key)
	}
	m.mu.Unlock()

	for _, e := range entries {
		e.shutdown()
	}
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("live query manager shutdown complete")
		return nil
	case <-ctx.Done():
		m.logger.Warn("live query shutdown timed out")
		return ctx.Err()
	}
}

// Live reports how many distinct queries currently have subscribers.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *Manager) dispatch(change store.Change) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries {
		if e.affects(change) {
			e.markDirty()
		}
	}
}

func (m *Manager) dispatchAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries {
		e.markDirty()
	}
}

// Fetch executes q once and returns its current result.
// It shares an in-flight execution of the same query when one started
// after the most recent change.
func Fetch[T any](ctx context.Context, m *Manager, q Query[T]) (T, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		var zero T
		return zero, domainerrors.ErrClosed
	}
	return execShared(ctx, m, q)
}

func execShared[T any](ctx context.Context, m *Manager, q Query[T]) (T, error) {
	key := q.key + "@" + strconv.FormatUint(m.generation.Load(), 10)
	ch := m.group.DoChan(key, func() (any, error) {
		return q.exec(m.ctx, m.reader)
	})

	select {
	case res := <-ch:
		v, _ := res.Val.(T)
		return v, res.Err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
