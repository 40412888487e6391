package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/notekeeper/notekeeper/internal/domain"
	domainerrors "github.com/notekeeper/notekeeper/internal/errors"
	"github.com/notekeeper/notekeeper/internal/store"
)

// noteColumns is the ordered list of columns selected in note queries.
// Must match the scan order in scanNote.
const noteColumns = `id, title, content, category, created_at, updated_at`

// scanNote scans a sql.Row (or sql.Rows via its Scan method) into a domain.Note.
func scanNote(scanner interface{ Scan(dest ...any) error }) (domain.Note, error) {
	var (
		n         domain.Note
		createdAt int64
		updatedAt int64
	)
	if err := scanner.Scan(&n.ID, &n.Title, &n.Content, &n.Category, &createdAt, &updatedAt); err != nil {
		return domain.Note{}, err
	}
	n.CreatedAt = fromMillis(createdAt)
	n.UpdatedAt = fromMillis(updatedAt)
	return n, nil
}

// queryNotes runs a note query and collects the rows. Never returns nil on success.
func queryNotes(ctx context.Context, q querier, query string, args ...any) ([]domain.Note, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	notes := []domain.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return notes, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CreateNote inserts a note and returns its new ID.
// The note's ID and timestamps are filled in on success.
func (s *Store) CreateNote(ctx context.Context, n *domain.Note) (int64, error) {
	return s.CreateNoteWithTags(ctx, n, nil)
}

// CreateNoteWithTags inserts a note and links it to the given tags in one transaction.
func (s *Store) CreateNoteWithTags(ctx context.Context, n *domain.Note, tagIDs []int64) (int64, error) {
	note := *n
	note.InitTimestamps(s.timestamp())

	var noteID int64
	err := s.writeTx(ctx, func(tx *sql.Tx) error {
		id, err := insertNote(ctx, tx, &note)
		if err != nil {
			return err
		}
		if err := insertLinks(ctx, tx, id, tagIDs); err != nil {
			return err
		}
		noteID = id
		return nil
	})
	if err != nil {
		return 0, err
	}

	note.ID = noteID
	*n = note

	tables := []store.Table{store.TableNotes}
	if len(tagIDs) > 0 {
		tables = append(tables, store.TableNoteTagLinks)
	}
	s.notify(store.Change{Tables: tables, NoteIDs: []int64{noteID}, TagIDs: tagIDs})

	return noteID, nil
}

func insertNote(ctx context.Context, q querier, n *domain.Note) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO notes (title, content, category, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		n.Title,
		n.Content,
		n.Category,
		toMillis(n.CreatedAt),
		toMillis(n.UpdatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert note: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// UpdateNote writes the note's title, content and category and refreshes UpdatedAt.
// CreatedAt is never changed. Returns store.ErrNotFound if the note does not exist.
func (s *Store) UpdateNote(ctx context.Context, n *domain.Note) error {
	note := *n
	note.Touch(s.timestamp())

	err := s.writeTx(ctx, func(tx *sql.Tx) error {
		createdAt, err := updateNote(ctx, tx, &note)
		if err != nil {
			return err
		}
		note.CreatedAt = createdAt
		return nil
	})
	if err != nil {
		return err
	}

	*n = note
	s.notify(store.Change{Tables: []store.Table{store.TableNotes}, NoteIDs: []int64{note.ID}})
	return nil
}

// UpdateNoteWithTags updates the note and replaces its tag set in one transaction.
func (s *Store) UpdateNoteWithTags(ctx context.Context, n *domain.Note, tagIDs []int64) error {
	note := *n
	note.Touch(s.timestamp())

	err := s.writeTx(ctx, func(tx *sql.Tx) error {
		createdAt, err := updateNote(ctx, tx, &note)
		if err != nil {
			return err
		}
		note.CreatedAt = createdAt
		return replaceLinks(ctx, tx, note.ID, tagIDs)
	})
	if err != nil {
		return err
	}

	*n = note
	s.notify(store.Change{
		Tables:  []store.Table{store.TableNotes, store.TableNoteTagLinks},
		NoteIDs: []int64{note.ID},
		TagIDs:  tagIDs,
	})
	return nil
}

// updateNote writes the mutable columns and returns the stored creation time.
func updateNote(ctx context.Context, q querier, n *domain.Note) (time.Time, error) {
	var createdAt int64
	err := q.QueryRowContext(ctx, `
		UPDATE notes
		SET title = ?, content = ?, category = ?, updated_at = ?
		WHERE id = ?
		RETURNING created_at`,
		n.Title,
		n.Content,
		n.Category,
		toMillis(n.UpdatedAt),
		n.ID,
	).Scan(&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, domainerrors.NotFoundf("note %d not found", n.ID)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("update note %d: %w", n.ID, err)
	}
	return fromMillis(createdAt), nil
}

// DeleteNote removes a note and, in the same transaction, every link that
// references it. Deleting a missing note is a no-op.
func (s *Store) DeleteNote(ctx context.Context, id int64) error {
	var deleted bool
	err := s.writeTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM note_tag_links WHERE note_id = ?`, id); err != nil {
			return fmt.Errorf("delete links for note %d: %w", id, err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete note %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		deleted = n > 0
		return nil
	})
	if err != nil {
		return err
	}

	if deleted {
		s.notify(store.Change{
			Tables:  []store.Table{store.TableNotes, store.TableNoteTagLinks},
			NoteIDs: []int64{id},
		})
	}
	return nil
}

// GetNote retrieves a note by its ID.
// Returns store.ErrNotFound if the note does not exist.
func (s *Store) GetNote(ctx context.Context, id int64) (*domain.Note, error) {
	var n domain.Note
	err := s.withRetry(ctx, func() error {
		var err error
		n, err = getNote(ctx, s.db, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func getNote(ctx context.Context, q querier, id int64) (domain.Note, error) {
	row := q.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Note{}, domainerrors.NotFoundf("note %d not found", id)
	}
	if err != nil {
		return domain.Note{}, fmt.Errorf("get note %d: %w", id, err)
	}
	return n, nil
}

// ListNotes returns all notes, newest ID first.
func (s *Store) ListNotes(ctx context.Context) ([]domain.Note, error) {
	var notes []domain.Note
	err := s.withRetry(ctx, func() error {
		var err error
		notes, err = queryNotes(ctx, s.db, `SELECT `+noteColumns+` FROM notes ORDER BY id DESC`)
		return err
	})
	return notes, err
}

// SearchNotes returns notes whose title or content contains query,
// ignoring case, newest ID first. A blank query returns every note.
func (s *Store) SearchNotes(ctx context.Context, query string) ([]domain.Note, error) {
	if strings.TrimSpace(query) == "" {
		return s.ListNotes(ctx)
	}

	folded := foldString(query)

	var notes []domain.Note
	err := s.withRetry(ctx, func() error {
		var err error
		notes, err = queryNotes(ctx, s.db, `
			SELECT `+noteColumns+` FROM notes
			WHERE instr(casefold(title), ?) > 0 OR instr(casefold(content), ?) > 0
			ORDER BY id DESC`,
			folded, folded,
		)
		return err
	})
	return notes, err
}

// GetNotesByTag returns the notes carrying a tag, most recently updated first.
func (s *Store) GetNotesByTag(ctx context.Context, tagID int64) ([]domain.Note, error) {
	var notes []domain.Note
	err := s.withRetry(ctx, func() error {
		var err error
		notes, err = queryNotes(ctx, s.db, `
			SELECT n.id, n.title, n.content, n.category, n.created_at, n.updated_at
			FROM notes n
			INNER JOIN note_tag_links l ON l.note_id = n.id
			WHERE l.tag_id = ?
			ORDER BY n.updated_at DESC, n.id DESC`,
			tagID,
		)
		return err
	})
	return notes, err
}
