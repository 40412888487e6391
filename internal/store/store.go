// Package store defines the persistence contract for notekeeper.
package store

import (
	"context"

	"github.com/notekeeper/notekeeper/internal/domain"
)

// Reader is the read side of the Record Store.
// Live queries execute against a Reader.
type Reader interface {
	// Notes
	GetNote(ctx context.Context, id int64) (*domain.Note, error)
	ListNotes(ctx context.Context) ([]domain.Note, error)
	SearchNotes(ctx context.Context, query string) ([]domain.Note, error)
	GetNotesByTag(ctx context.Context, tagID int64) ([]domain.Note, error)
	GetNoteWithTags(ctx context.Context, id int64) (*domain.NoteWithTags, error)
	ListNotesWithTags(ctx context.Context) ([]domain.NoteWithTags, error)

	// Tags
	GetTag(ctx context.Context, id int64) (*domain.Tag, error)
	ListTags(ctx context.Context) ([]domain.Tag, error)

	// Links
	ListLinks(ctx context.Context) ([]domain.NoteTagLink, error)
}

// Store is the Record Store: it exclusively owns notes, tags and their links.
//
// Every mutation that touches more than one table runs in a single transaction.
// After a mutation commits the store reports it to its ChangeNotifier.
type Store interface {
	Reader

	// Lifecycle
	Close() error
	SetNotifier(n ChangeNotifier)

	// Notes
	CreateNote(ctx context.Context, note *domain.Note) (int64, error)
	CreateNoteWithTags(ctx context.Context, note *domain.Note, tagIDs []int64) (int64, error)
	UpdateNote(ctx context.Context, note *domain.Note) error
	UpdateNoteWithTags(ctx context.Context, note *domain.Note, tagIDs []int64) error
	DeleteNote(ctx context.Context, id int64) error

	// Tags
	CreateTag(ctx context.Context, tag *domain.Tag) (int64, error)
	UpdateTag(ctx context.Context, tag *domain.Tag) error
	DeleteTag(ctx context.Context, id int64) error

	// Links
	AttachTag(ctx context.Context, noteID, tagID int64) error
	DetachTag(ctx context.Context, noteID, tagID int64) error
	ReplaceTagsForNote(ctx context.Context, noteID int64, tagIDs []int64) error

	// Bulk
	Snapshot(ctx context.Context) (*domain.Dataset, error)
	Import(ctx context.Context, data *domain.Dataset, replace bool) (*ImportResult, error)
}

// ImportResult maps the IDs of an imported dataset to the IDs the store
// assigned to them.
type ImportResult struct {
	NoteIDs map[int64]int64
	TagIDs  map[int64]int64
	Links   int
}
