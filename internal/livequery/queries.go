package livequery

import (
	"context"
	"fmt"

	"github.com/notekeeper/notekeeper/internal/domain"
	domainerrors "github.com/notekeeper/notekeeper/internal/errors"
	"github.com/notekeeper/notekeeper/internal/store"
)

// AllNotes lists every note, newest first.
func AllNotes() Query[[]domain.Note] {
	return NewQuery("notes:all",
		OnTables(store.TableNotes),
		func(ctx context.Context, r store.Reader) ([]domain.Note, error) {
			return r.ListNotes(ctx)
		})
}

// Search lists notes whose title or content contains term.
// A blank term behaves like AllNotes.
func Search(term string) Query[[]domain.Note] {
	return NewQuery("notes:search:"+term,
		OnTables(store.TableNotes),
		func(ctx context.Context, r store.Reader) ([]domain.Note, error) {
			return r.SearchNotes(ctx, term)
		})
}

// AllTags lists every tag by name.
func AllTags() Query[[]domain.Tag] {
	return NewQuery("tags:all",
		OnTables(store.TableTags),
		func(ctx context.Context, r store.Reader) ([]domain.Tag, error) {
			return r.ListTags(ctx)
		})
}

// AllNotesWithTags lists every note with its tags, most recently updated first.
func AllNotesWithTags() Query[[]domain.NoteWithTags] {
	return NewQuery("notes-with-tags:all",
		OnTables(store.TableNotes, store.TableTags, store.TableNoteTagLinks),
		func(ctx context.Context, r store.Reader) ([]domain.NoteWithTags, error) {
			return r.ListNotesWithTags(ctx)
		})
}

// NoteWithTags follows one note and its tags. The value is nil once the
// note no longer exists.
func NoteWithTags(noteID int64) Query[*domain.NoteWithTags] {
	return NewQuery(fmt.Sprintf("note-with-tags:%d", noteID),
		func(c store.Change) bool {
			return c.Touches(store.TableTags) || c.TouchesNote(noteID)
		},
		func(ctx context.Context, r store.Reader) (*domain.NoteWithTags, error) {
			n, err := r.GetNoteWithTags(ctx, noteID)
			if domainerrors.Is(err, domainerrors.ErrNotFound) {
				return nil, nil
			}
			return n, err
		})
}

// NotesByTag lists the notes carrying a tag, most recently updated first.
func NotesByTag(tagID int64) Query[[]domain.Note] {
	return NewQuery(fmt.Sprintf("notes:by-tag:%d", tagID),
		OnTables(store.TableNotes, store.TableTags, store.TableNoteTagLinks),
		func(ctx context.Context, r store.Reader) ([]domain.Note, error) {
			return r.GetNotesByTag(ctx, tagID)
		})
}
