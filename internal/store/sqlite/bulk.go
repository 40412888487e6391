package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/notekeeper/notekeeper/internal/domain"
	domainerrors "github.com/notekeeper/notekeeper/internal/errors"
	"github.com/notekeeper/notekeeper/internal/store"
)

// Snapshot reads every note, tag and link in one read transaction, so the
// links always reference notes and tags that are part of the result.
// Notes are ordered by ID.
func (s *Store) Snapshot(ctx context.Context) (*domain.Dataset, error) {
	var data *domain.Dataset
	err := s.readTx(ctx, func(tx *sql.Tx) error {
		notes, err := queryNotes(ctx, tx, `SELECT `+noteColumns+` FROM notes ORDER BY id ASC`)
		if err != nil {
			return err
		}
		tags, err := queryTags(ctx, tx)
		if err != nil {
			return err
		}
		links, err := queryLinks(ctx, tx)
		if err != nil {
			return err
		}
		data = &domain.Dataset{Notes: notes, Tags: tags, Links: links}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Import inserts a dataset in one write transaction. Every entity gets a new
// ID; links are rewritten to the new IDs. With replace set, existing notes,
// tags and links are deleted first. A failure leaves the store unchanged.
//
// Timestamps are kept as given. A zero CreatedAt becomes now and a zero
// UpdatedAt becomes CreatedAt.
func (s *Store) Import(ctx context.Context, data *domain.Dataset, replace bool) (*store.ImportResult, error) {
	now := s.timestamp()

	var result *store.ImportResult
	err := s.writeTx(ctx, func(tx *sql.Tx) error {
		if replace {
			if err := clearAll(ctx, tx); err != nil {
				return err
			}
		}

		res := &store.ImportResult{
			NoteIDs: make(map[int64]int64, len(data.Notes)),
			TagIDs:  make(map[int64]int64, len(data.Tags)),
		}

		for _, t := range data.Tags {
			tag := t
			tag.ApplyDefaults()
			id, err := insertTag(ctx, tx, &tag)
			if err != nil {
				return fmt.Errorf("import tag %d: %w", t.ID, err)
			}
			res.TagIDs[t.ID] = id
		}

		for _, n := range data.Notes {
			note := n
			if note.CreatedAt.IsZero() {
				note.CreatedAt = now
			}
			if note.UpdatedAt.IsZero() {
				note.UpdatedAt = note.CreatedAt
			}
			id, err := insertNote(ctx, tx, &note)
			if err != nil {
				return fmt.Errorf("import note %d: %w", n.ID, err)
			}
			res.NoteIDs[n.ID] = id
		}

		for _, l := range data.Links {
			noteID, okNote := res.NoteIDs[l.NoteID]
			tagID, okTag := res.TagIDs[l.TagID]
			if !okNote || !okTag {
				return domainerrors.ConstraintViolationf(
					"link %d/%d references a note or tag outside the dataset", l.NoteID, l.TagID)
			}
			inserted, err := insertLink(ctx, tx, noteID, tagID)
			if err != nil {
				return err
			}
			res.Links += int(inserted)
		}

		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(store.Change{
		Tables: []store.Table{store.TableNotes, store.TableTags, store.TableNoteTagLinks},
	})
	return result, nil
}

func clearAll(ctx context.Context, q querier) error {
	for _, table := range []store.Table{store.TableNoteTagLinks, store.TableNotes, store.TableTags} {
		if _, err := q.ExecContext(ctx, `DELETE FROM `+string(table)); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}
