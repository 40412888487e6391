package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notekeeper/notekeeper/internal/domain"
	"github.com/notekeeper/notekeeper/internal/store"
)

func TestSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := createNote(t, s, "first", "")
	second := createNote(t, s, "second", "")
	work := createTag(t, s, "work")
	home := createTag(t, s, "home")
	require.NoError(t, s.AttachTag(ctx, second, work))
	require.NoError(t, s.AttachTag(ctx, first, home))

	data, err := s.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, []int64{first, second}, noteIDs(data.Notes))
	require.Len(t, data.Tags, 2)
	assert.Equal(t, "home", data.Tags[0].Name)
	assert.Equal(t, []domain.NoteTagLink{
		{NoteID: first, TagID: home},
		{NoteID: second, TagID: work},
	}, data.Links)
}

func TestSnapshot_Empty(t *testing.T) {
	s := newTestStore(t)

	data, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, data.Notes)
	assert.NotNil(t, data.Tags)
	assert.NotNil(t, data.Links)
}

func TestImport_RemapsIDsAndKeepsTimestamps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	createNote(t, s, "existing", "")

	created := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	updated := created.Add(time.Hour)
	result, err := s.Import(ctx, &domain.Dataset{
		Notes: []domain.Note{
			{ID: 1, Title: "imported", CreatedAt: created, UpdatedAt: updated},
			{ID: 2, Title: "no dates"},
		},
		Tags:  []domain.Tag{{ID: 10, Name: "errands"}},
		Links: []domain.NoteTagLink{{NoteID: 1, TagID: 10}},
	}, false)
	require.NoError(t, err)
	assert.Len(t, result.NoteIDs, 2)
	assert.Equal(t, 1, result.Links)

	notes, err := s.ListNotes(ctx)
	require.NoError(t, err)
	assert.Len(t, notes, 3)

	got, err := s.GetNoteWithTags(ctx, result.NoteIDs[1])
	require.NoError(t, err)
	assert.Equal(t, created, got.Note.CreatedAt)
	assert.Equal(t, updated, got.Note.UpdatedAt)
	require.Len(t, got.Tags, 1)
	assert.Equal(t, result.TagIDs[10], got.Tags[0].ID)
	assert.Equal(t, domain.DefaultTagColor, got.Tags[0].Color)

	undated, err := s.GetNote(ctx, result.NoteIDs[2])
	require.NoError(t, err)
	assert.False(t, undated.CreatedAt.IsZero())
	assert.Equal(t, undated.CreatedAt, undated.UpdatedAt)
}

func TestImport_ReplaceDeletesExistingRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := createNote(t, s, "old", "")
	oldTag := createTag(t, s, "old")
	require.NoError(t, s.AttachTag(ctx, old, oldTag))

	_, err := s.Import(ctx, &domain.Dataset{
		Notes: []domain.Note{{ID: 1, Title: "new"}},
	}, true)
	require.NoError(t, err)

	data, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, data.Notes, 1)
	assert.Equal(t, "new", data.Notes[0].Title)
	assert.Empty(t, data.Tags)
	assert.Empty(t, data.Links)
}

func TestImport_FailureLeavesStoreUnchanged(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	kept := createNote(t, s, "kept", "")
	keptTag := createTag(t, s, "kept")
	require.NoError(t, s.AttachTag(ctx, kept, keptTag))

	before, err := s.Snapshot(ctx)
	require.NoError(t, err)

	// The last link fails after the clear and every insert have run.
	_, err = s.Import(ctx, &domain.Dataset{
		Notes: []domain.Note{{ID: 1, Title: "partial"}},
		Tags:  []domain.Tag{{ID: 1, Name: "partial"}},
		Links: []domain.NoteTagLink{{NoteID: 1, TagID: 1}, {NoteID: 1, TagID: 99}},
	}, true)
	assert.ErrorIs(t, err, store.ErrConstraintViolation)

	after, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestImport_NotifiesEveryTable(t *testing.T) {
	s := newTestStore(t)
	rec := &recorder{}
	s.SetNotifier(rec)

	_, err := s.Import(context.Background(), &domain.Dataset{
		Notes: []domain.Note{{ID: 1, Title: "n"}},
	}, false)
	require.NoError(t, err)

	changes := rec.all()
	require.Len(t, changes, 1)
	assert.True(t, changes[0].Touches(store.TableNotes))
	assert.True(t, changes[0].Touches(store.TableTags))
	assert.True(t, changes[0].Touches(store.TableNoteTagLinks))
	assert.True(t, changes[0].TouchesNote(12345))
}
