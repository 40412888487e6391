// Package sqlite implements the notekeeper Record Store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	domainerrors "github.com/notekeeper/notekeeper/internal/errors"
	"github.com/notekeeper/notekeeper/internal/store"
	"github.com/notekeeper/notekeeper/internal/store/sqlite/migrations"
)

var _ store.Store = (*Store)(nil)

// Store provides SQLite-backed persistence for notes, tags and their links.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time

	// writeMu makes the store the single writer gate: write transactions
	// never overlap, so a deferred transaction never has to upgrade its lock
	// while another in-process writer holds it.
	writeMu sync.Mutex

	mu       sync.RWMutex
	notifier store.ChangeNotifier
}

// Option configures a Store.
type Option func(*options)

type options struct {
	now          func() time.Time
	busyTimeout  time.Duration
	maxOpenConns int
	targetSchema int
}

// WithClock overrides the clock used for note timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithBusyTimeout sets how long SQLite waits on a locked database before
// returning SQLITE_BUSY.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) { o.busyTimeout = d }
}

// WithMaxOpenConns sets the connection pool size.
func WithMaxOpenConns(n int) Option {
	return func(o *options) { o.maxOpenConns = n }
}

// WithSchemaVersion migrates to the given version instead of the latest.
// Only useful for exercising upgrades.
func WithSchemaVersion(v int) Option {
	return func(o *options) { o.targetSchema = v }
}

// Open creates or opens a SQLite store at the given path.
// It configures WAL mode and per-connection pragmas, then migrates the schema.
// Failing to open the database is a StorageUnavailable error; failing to
// migrate it is a MigrationFailed error. Both are fatal for the caller.
func Open(ctx context.Context, path string, logger *slog.Logger, opts ...Option) (*Store, error) {
	o := options{
		now:          time.Now,
		busyTimeout:  5 * time.Second,
		maxOpenConns: 4,
		targetSchema: migrations.Latest,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, domainerrors.Wrapf(err, domainerrors.CodeStorageUnavailable, "create database directory %s", dir)
		}
	}

	db, err := sql.Open("sqlite", dsn(path, o.busyTimeout))
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeStorageUnavailable, "open sqlite")
	}

	db.SetMaxOpenConns(o.maxOpenConns)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, domainerrors.Wrap(err, domainerrors.CodeStorageUnavailable, "connect sqlite")
	}

	s := &Store{
		db:       db,
		logger:   logger,
		now:      o.now,
		notifier: store.NewNoopNotifier(),
	}

	// journal_mode is persistent, so setting it once is enough.
	err = s.withRetry(ctx, func() error {
		_, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL")
		return err
	})
	if err != nil {
		db.Close()
		return nil, domainerrors.Wrap(err, domainerrors.CodeStorageUnavailable, "enable WAL")
	}

	// Another process may be opening the same file. The migration waits for
	// the write lock, and a BUSY that outlasts the timeout is retried once.
	migrator := migrations.Default(logger)
	err = s.withRetry(ctx, func() error {
		_, err := migrator.Migrate(ctx, db, o.targetSchema)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("database opened", "path", path)
	return s, nil
}

// dsn builds a modernc connection string. Pragmas passed as _pragma apply
// to every pooled connection, unlike a one-off Exec.
func dsn(path string, busyTimeout time.Duration) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "synchronous(NORMAL)")
	return "file:" + path + "?" + q.Encode()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	s.logger.Info("closing database")
	return s.db.Close()
}

// SetNotifier sets the receiver of committed changes.
func (s *Store) SetNotifier(n store.ChangeNotifier) {
	if n == nil {
		n = store.NewNoopNotifier()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = n
}

// SchemaVersion reports the schema version of the open database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	return migrations.Version(ctx, s.db)
}

func (s *Store) notify(change store.Change) {
	s.mu.RLock()
	n := s.notifier
	s.mu.RUnlock()
	n.Notify(change)
}

// timestamp returns the current time truncated to the stored precision.
func (s *Store) timestamp() time.Time {
	return fromMillis(s.now().UnixMilli())
}

// writeTx runs fn in a write transaction, retrying once on a transient lock error.
// fn may run twice, so it must only assign to outer variables, never append.
func (s *Store) writeTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// readTx runs fn in a transaction so multi-statement reads see one snapshot.
func (s *Store) readTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return s.withRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback()

		return fn(tx)
	})
}

// withRetry runs fn and retries it once if it failed on a busy or locked database.
func (s *Store) withRetry(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil || !isTransient(err) {
		return err
	}

	s.logger.Warn("transient database error, retrying", "error", err)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(50 * time.Millisecond):
	}
	return fn()
}

// isTransient reports whether err is SQLITE_BUSY or SQLITE_LOCKED.
func isTransient(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	default:
		return false
	}
}

// isConstraint reports whether err is a SQLite constraint failure.
func isConstraint(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}

// toMillis converts a time to the stored Unix millisecond form.
func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// fromMillis converts a stored Unix millisecond value back to time.Time.
func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
