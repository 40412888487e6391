package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/notekeeper/notekeeper/internal/domain"
	domainerrors "github.com/notekeeper/notekeeper/internal/errors"
	"github.com/notekeeper/notekeeper/internal/store"
)

// AttachTag links a tag to a note. Attaching an existing link is a no-op.
// Returns store.ErrConstraintViolation if the note or tag does not exist.
func (s *Store) AttachTag(ctx context.Context, noteID, tagID int64) error {
	var inserted bool
	err := s.writeTx(ctx, func(tx *sql.Tx) error {
		n, err := insertLink(ctx, tx, noteID, tagID)
		inserted = n > 0
		return err
	})
	if err != nil {
		return err
	}

	if inserted {
		s.notify(store.Change{
			Tables:  []store.Table{store.TableNoteTagLinks},
			NoteIDs: []int64{noteID},
			TagIDs:  []int64{tagID},
		})
	}
	return nil
}

// DetachTag removes the link between a note and a tag if present.
func (s *Store) DetachTag(ctx context.Context, noteID, tagID int64) error {
	var removed bool
	err := s.writeTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM note_tag_links WHERE note_id = ? AND tag_id = ?`, noteID, tagID)
		if err != nil {
			return fmt.Errorf("delete link %d/%d: %w", noteID, tagID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		removed = n > 0
		return nil
	})
	if err != nil {
		return err
	}

	if removed {
		s.notify(store.Change{
			Tables:  []store.Table{store.TableNoteTagLinks},
			NoteIDs: []int64{noteID},
			TagIDs:  []int64{tagID},
		})
	}
	return nil
}

// ReplaceTagsForNote clears every link of a note and attaches tagIDs instead,
// in one transaction. Readers see either the old or the new tag set.
// Returns store.ErrNotFound if the note does not exist.
func (s *Store) ReplaceTagsForNote(ctx context.Context, noteID int64, tagIDs []int64) error {
	err := s.writeTx(ctx, func(tx *sql.Tx) error {
		if _, err := getNote(ctx, tx, noteID); err != nil {
			return err
		}
		return replaceLinks(ctx, tx, noteID, tagIDs)
	})
	if err != nil {
		return err
	}

	s.notify(store.Change{
		Tables:  []store.Table{store.TableNoteTagLinks},
		NoteIDs: []int64{noteID},
		TagIDs:  tagIDs,
	})
	return nil
}

func replaceLinks(ctx context.Context, q querier, noteID int64, tagIDs []int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM note_tag_links WHERE note_id = ?`, noteID); err != nil {
		return fmt.Errorf("clear links for note %d: %w", noteID, err)
	}
	return insertLinks(ctx, q, noteID, tagIDs)
}

func insertLinks(ctx context.Context, q querier, noteID int64, tagIDs []int64) error {
	for _, tagID := range tagIDs {
		if _, err := insertLink(ctx, q, noteID, tagID); err != nil {
			return err
		}
	}
	return nil
}

// insertLink inserts one link, ignoring duplicates. It returns the number of rows inserted.
// OR IGNORE does not cover foreign keys, so a dangling ID still fails.
func insertLink(ctx context.Context, q querier, noteID, tagID int64) (int64, error) {
	res, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO note_tag_links (note_id, tag_id) VALUES (?, ?)`, noteID, tagID)
	if err != nil {
		if isConstraint(err) {
			return 0, domainerrors.ConstraintViolationf(
				"note %d or tag %d does not exist", noteID, tagID).WithCause(err)
		}
		return 0, fmt.Errorf("insert link %d/%d: %w", noteID, tagID, err)
	}
	return res.RowsAffected()
}

// ListLinks returns every note-tag link ordered by note then tag.
func (s *Store) ListLinks(ctx context.Context) ([]domain.NoteTagLink, error) {
	var links []domain.NoteTagLink
	err := s.withRetry(ctx, func() error {
		list, err := queryLinks(ctx, s.db)
		if err != nil {
			return err
		}
		links = list
		return nil
	})
	return links, err
}

func queryLinks(ctx context.Context, q querier) ([]domain.NoteTagLink, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT note_id, tag_id FROM note_tag_links ORDER BY note_id, tag_id`)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()

	links := []domain.NoteTagLink{}
	for rows.Next() {
		var l domain.NoteTagLink
		if err := rows.Scan(&l.NoteID, &l.TagID); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}
	return links, nil
}

// GetNoteWithTags returns a note with its tags ordered by name.
// Both reads share one transaction. Returns store.ErrNotFound if the note does not exist.
func (s *Store) GetNoteWithTags(ctx context.Context, id int64) (*domain.NoteWithTags, error) {
	var result *domain.NoteWithTags
	err := s.readTx(ctx, func(tx *sql.Tx) error {
		note, err := getNote(ctx, tx, id)
		if err != nil {
			return err
		}
		byNote, err := tagsByNote(ctx, tx, `WHERE l.note_id = ?`, id)
		if err != nil {
			return err
		}
		result = &domain.NoteWithTags{Note: note, Tags: tagsOrEmpty(byNote[id])}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListNotesWithTags returns every note with its tags, most recently updated first.
func (s *Store) ListNotesWithTags(ctx context.Context) ([]domain.NoteWithTags, error) {
	var result []domain.NoteWithTags
	err := s.readTx(ctx, func(tx *sql.Tx) error {
		notes, err := queryNotes(ctx, tx,
			`SELECT `+noteColumns+` FROM notes ORDER BY updated_at DESC, id DESC`)
		if err != nil {
			return err
		}
		byNote, err := tagsByNote(ctx, tx, "")
		if err != nil {
			return err
		}

		list := make([]domain.NoteWithTags, 0, len(notes))
		for _, n := range notes {
			list = append(list, domain.NoteWithTags{Note: n, Tags: tagsOrEmpty(byNote[n.ID])})
		}
		result = list
		return nil
	})
	return result, err
}

// tagsByNote loads linked tags grouped by note ID, each group ordered by name.
func tagsByNote(ctx context.Context, q querier, where string, args ...any) (map[int64][]domain.Tag, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT l.note_id, t.id, t.name, t.color
		FROM note_tag_links l
		INNER JOIN tags t ON t.id = l.tag_id
		`+where+`
		ORDER BY t.name ASC, t.id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("query note tags: %w", err)
	}
	defer rows.Close()

	byNote := make(map[int64][]domain.Tag)
	for rows.Next() {
		var (
			noteID int64
			t      domain.Tag
		)
		if err := rows.Scan(&noteID, &t.ID, &t.Name, &t.Color); err != nil {
			return nil, fmt.Errorf("scan note tag: %w", err)
		}
		byNote[noteID] = append(byNote[noteID], t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate note tags: %w", err)
	}
	return byNote, nil
}

func tagsOrEmpty(tags []domain.Tag) []domain.Tag {
	if tags == nil {
		return []domain.Tag{}
	}
	return tags
}
