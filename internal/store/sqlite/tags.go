package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/notekeeper/notekeeper/internal/domain"
	domainerrors "github.com/notekeeper/notekeeper/internal/errors"
	"github.com/notekeeper/notekeeper/internal/store"
)

// tagColumns is the ordered list of columns selected in tag queries.
// Must match the scan order in scanTag.
const tagColumns = `id, name, color`

func scanTag(scanner interface{ Scan(dest ...any) error }) (domain.Tag, error) {
	var t domain.Tag
	err := scanner.Scan(&t.ID, &t.Name, &t.Color)
	return t, err
}

// CreateTag inserts a new tag and returns its ID.
// An empty color is replaced with domain.DefaultTagColor. Names are not
// required to be unique.
func (s *Store) CreateTag(ctx context.Context, t *domain.Tag) (int64, error) {
	tag := *t
	tag.ApplyDefaults()

	var tagID int64
	err := s.writeTx(ctx, func(tx *sql.Tx) error {
		id, err := insertTag(ctx, tx, &tag)
		if err != nil {
			return err
		}
		tagID = id
		return nil
	})
	if err != nil {
		return 0, err
	}

	tag.ID = tagID
	*t = tag
	s.notify(store.Change{Tables: []store.Table{store.TableTags}, TagIDs: []int64{tagID}})
	return tagID, nil
}

func insertTag(ctx context.Context, q querier, t *domain.Tag) (int64, error) {
	res, err := q.ExecContext(ctx,
		`INSERT INTO tags (name, color) VALUES (?, ?)`,
		t.Name,
		t.Color,
	)
	if err != nil {
		return 0, fmt.Errorf("insert tag: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// UpdateTag renames or recolors a tag.
// Returns store.ErrNotFound if the tag does not exist.
func (s *Store) UpdateTag(ctx context.Context, t *domain.Tag) error {
	tag := *t
	tag.ApplyDefaults()

	err := s.writeTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE tags SET name = ?, color = ? WHERE id = ?`,
			tag.Name,
			tag.Color,
			tag.ID,
		)
		if err != nil {
			return fmt.Errorf("update tag %d: %w", tag.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return domainerrors.NotFoundf("tag %d not found", tag.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	*t = tag
	s.notify(store.Change{Tables: []store.Table{store.TableTags}, TagIDs: []int64{tag.ID}})
	return nil
}

// DeleteTag removes a tag and its links to notes in one transaction.
// The notes themselves are kept. Deleting a missing tag is a no-op.
func (s *Store) DeleteTag(ctx context.Context, id int64) error {
	var noteIDs []int64
	var deleted bool
	err := s.writeTx(ctx, func(tx *sql.Tx) error {
		ids, err := noteIDsForTag(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM note_tag_links WHERE tag_id = ?`, id); err != nil {
			return fmt.Errorf("delete links for tag %d: %w", id, err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete tag %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		noteIDs = ids
		deleted = n > 0
		return nil
	})
	if err != nil {
		return err
	}

	if deleted {
		tables := []store.Table{store.TableTags}
		if len(noteIDs) > 0 {
			tables = append(tables, store.TableNoteTagLinks)
		}
		s.notify(store.Change{Tables: tables, NoteIDs: noteIDs, TagIDs: []int64{id}})
	}
	return nil
}

func noteIDsForTag(ctx context.Context, q querier, tagID int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `SELECT note_id FROM note_tag_links WHERE tag_id = ?`, tagID)
	if err != nil {
		return nil, fmt.Errorf("query links for tag %d: %w", tagID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetTag retrieves a tag by its ID.
// Returns store.ErrNotFound if the tag does not exist.
func (s *Store) GetTag(ctx context.Context, id int64) (*domain.Tag, error) {
	var t domain.Tag
	err := s.withRetry(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `SELECT `+tagColumns+` FROM tags WHERE id = ?`, id)
		var err error
		t, err = scanTag(row)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.NotFoundf("tag %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get tag %d: %w", id, err)
	}
	return &t, nil
}

// ListTags returns all tags ordered by name.
func (s *Store) ListTags(ctx context.Context) ([]domain.Tag, error) {
	var tags []domain.Tag
	err := s.withRetry(ctx, func() error {
		list, err := queryTags(ctx, s.db)
		if err != nil {
			return err
		}
		tags = list
		return nil
	})
	return tags, err
}

// queryTags loads every tag ordered by name. Never returns nil on success.
func queryTags(ctx context.Context, q querier) ([]domain.Tag, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+tagColumns+` FROM tags ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	tags := []domain.Tag{}
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return tags, nil
}
