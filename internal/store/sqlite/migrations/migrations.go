// Package migrations owns the notekeeper schema and its upgrade path.
//
// The schema version lives in PRAGMA user_version. Migrate applies every
// pending step inside one transaction together with the version bump, so an
// open either lands on the target version or leaves the database untouched.
// The transaction takes the write lock before reading the version, so
// concurrent opens of one database queue up instead of failing.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	domainerrors "github.com/notekeeper/notekeeper/internal/errors"
)

//go:embed sql/*.sql
var sqlFiles embed.FS

// Latest is the schema version the application expects.
const Latest = 2

// Execer runs statements inside the migration transaction.
// *sql.Conn and *sql.Tx satisfy it.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Step upgrades the schema from Version-1 to Version.
// Up must be idempotent against a layout that already has its changes.
type Step struct {
	Up      func(ctx context.Context, q Execer) error
	Name    string
	Version int
}

// Migrator applies an ordered list of steps.
type Migrator struct {
	logger *slog.Logger
	steps  []Step
}

// New creates a migrator for the given steps. Steps must be ordered by
// Version starting at 1 with no gaps.
func New(logger *slog.Logger, steps ...Step) (*Migrator, error) {
	for i, step := range steps {
		if step.Version != i+1 {
			return nil, fmt.Errorf("migration %q has version %d, want %d", step.Name, step.Version, i+1)
		}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Migrator{steps: steps, logger: logger}, nil
}

// Default returns the migrator for the built-in notekeeper schema.
func Default(logger *slog.Logger) *Migrator {
	m, err := New(logger, Steps()...)
	if err != nil {
		panic(err)
	}
	return m
}

// Steps returns the built-in schema steps.
func Steps() []Step {
	return []Step{
		{Version: 1, Name: "create notes", Up: execFile("sql/0001_notes.sql")},
		{Version: 2, Name: "add categories and tags", Up: upgradeToTagged},
	}
}

// Latest returns the highest version this migrator knows.
func (m *Migrator) Latest() int {
	return len(m.steps)
}

// Version returns the schema version recorded in the database.
func Version(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}) (int, error) {
	var v int
	if err := q.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return v, nil
}

// Migrate upgrades db to target. It returns the version found before the upgrade.
// Any failure rolls back every step applied by this call and is reported as
// a MigrationFailed error.
func (m *Migrator) Migrate(ctx context.Context, db *sql.DB, target int) (int, error) {
	if target > m.Latest() {
		return 0, domainerrors.Wrapf(nil, domainerrors.CodeMigrationFailed,
			"unknown schema version %d (latest is %d)", target, m.Latest())
	}

	// Already current: no need to take the write lock.
	if v, err := Version(ctx, db); err == nil && v == target {
		return v, nil
	}

	// database/sql has no way to ask for BEGIN IMMEDIATE, so the
	// transaction is driven by hand on one pinned connection.
	conn, err := db.Conn(ctx)
	if err != nil {
		return 0, domainerrors.Wrap(err, domainerrors.CodeMigrationFailed, "acquire connection")
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return 0, domainerrors.Wrap(err, domainerrors.CodeMigrationFailed, "begin migration")
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.WithoutCancel(ctx), "ROLLBACK")
		}
	}()

	// Re-read under the lock: another open may have migrated meanwhile.
	current, err := Version(ctx, conn)
	if err != nil {
		return 0, domainerrors.Wrap(err, domainerrors.CodeMigrationFailed, "read schema version")
	}

	if current > target {
		return current, domainerrors.Wrapf(nil, domainerrors.CodeMigrationFailed,
			"schema version %d is newer than %d; downgrades are not supported", current, target)
	}
	if current == target {
		return current, nil
	}

	for _, step := range m.steps[current:target] {
		m.logger.Info("applying migration",
			"version", step.Version,
			"name", step.Name,
		)
		if err := step.Up(ctx, conn); err != nil {
			return current, domainerrors.Wrapf(err, domainerrors.CodeMigrationFailed,
				"migration %d (%s)", step.Version, step.Name)
		}
	}

	// PRAGMA does not take bound parameters; target is an int we control.
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", target)); err != nil {
		return current, domainerrors.Wrap(err, domainerrors.CodeMigrationFailed, "set schema version")
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return current, domainerrors.Wrap(err, domainerrors.CodeMigrationFailed, "commit migration")
	}
	committed = true

	m.logger.Info("schema migrated", "from", current, "to", target)
	return current, nil
}

// execFile returns a step body that executes an embedded SQL file.
func execFile(name string) func(ctx context.Context, q Execer) error {
	return func(ctx context.Context, q Execer) error {
		body, err := sqlFiles.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := q.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("exec %s: %w", name, err)
		}
		return nil
	}
}

// upgradeToTagged adds category and updated_at to notes, backfills updated_at
// from created_at and creates the tag tables.
func upgradeToTagged(ctx context.Context, q Execer) error {
	if _, err := addColumnIfNotExists(ctx, q, "notes", "category", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return err
	}

	added, err := addColumnIfNotExists(ctx, q, "notes", "updated_at", "INTEGER NOT NULL DEFAULT 0")
	if err != nil {
		return err
	}
	if added {
		if _, err := q.ExecContext(ctx, `UPDATE notes SET updated_at = created_at`); err != nil {
			return fmt.Errorf("backfill updated_at: %w", err)
		}
	}

	return execFile("sql/0002_tags.sql")(ctx, q)
}

// addColumnIfNotExists adds a column unless the table already has it.
// It reports whether the column was added.
func addColumnIfNotExists(ctx context.Context, q Execer, table, column, definition string) (bool, error) {
	exists, err := columnExists(ctx, q, table, column)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition)
	if _, err := q.ExecContext(ctx, stmt); err != nil {
		return false, fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return true, nil
}

func columnExists(ctx context.Context, q Execer, table, column string) (bool, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return false, fmt.Errorf("scan table_info %s: %w", table, err)
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
