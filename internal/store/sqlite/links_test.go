package sqlite

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notekeeper/notekeeper/internal/domain"
	"github.com/notekeeper/notekeeper/internal/store"
)

func TestAttachTag_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	noteID := createNote(t, s, "n", "")
	tagID := createTag(t, s, "t")

	require.NoError(t, s.AttachTag(ctx, noteID, tagID))
	require.NoError(t, s.AttachTag(ctx, noteID, tagID))

	links, err := s.ListLinks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.NoteTagLink{{NoteID: noteID, TagID: tagID}}, links)
}

func TestAttachTag_MissingRowsAreConstraintViolations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	noteID := createNote(t, s, "n", "")
	tagID := createTag(t, s, "t")

	err := s.AttachTag(ctx, noteID, 999)
	assert.ErrorIs(t, err, store.ErrConstraintViolation)

	err = s.AttachTag(ctx, 999, tagID)
	assert.ErrorIs(t, err, store.ErrConstraintViolation)

	links, err := s.ListLinks(ctx)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestDetachTag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	noteID := createNote(t, s, "n", "")
	tagID := createTag(t, s, "t")
	require.NoError(t, s.AttachTag(ctx, noteID, tagID))

	require.NoError(t, s.DetachTag(ctx, noteID, tagID))
	require.NoError(t, s.DetachTag(ctx, noteID, tagID))

	links, err := s.ListLinks(ctx)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestGetNoteWithTags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	noteID := createNote(t, s, "n", "")
	other := createNote(t, s, "other", "")
	zeta := createTag(t, s, "zeta")
	alpha := createTag(t, s, "alpha")
	require.NoError(t, s.AttachTag(ctx, noteID, zeta))
	require.NoError(t, s.AttachTag(ctx, noteID, alpha))

	got, err := s.GetNoteWithTags(ctx, noteID)
	require.NoError(t, err)
	assert.Equal(t, noteID, got.Note.ID)
	assert.Equal(t, []int64{alpha, zeta}, got.TagIDs())

	untagged, err := s.GetNoteWithTags(ctx, other)
	require.NoError(t, err)
	assert.NotNil(t, untagged.Tags)
	assert.Empty(t, untagged.Tags)

	_, err = s.GetNoteWithTags(ctx, 999)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListNotesWithTags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := createNote(t, s, "first", "")
	second := createNote(t, s, "second", "")
	tagID := createTag(t, s, "t")
	require.NoError(t, s.AttachTag(ctx, first, tagID))

	// Touch first so it becomes the most recently updated.
	require.NoError(t, s.UpdateNote(ctx, &domain.Note{ID: first, Title: "first!"}))

	list, err := s.ListNotesWithTags(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first, list[0].Note.ID)
	assert.Equal(t, []int64{tagID}, list[0].TagIDs())
	assert.Equal(t, second, list[1].Note.ID)
	assert.NotNil(t, list[1].Tags)
	assert.Empty(t, list[1].Tags)
}

func TestGetNotesByTag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := createNote(t, s, "a", "")
	b := createNote(t, s, "b", "")
	createNote(t, s, "c", "")
	tagID := createTag(t, s, "t")
	require.NoError(t, s.AttachTag(ctx, a, tagID))
	require.NoError(t, s.AttachTag(ctx, b, tagID))

	notes, err := s.GetNotesByTag(ctx, tagID)
	require.NoError(t, err)
	assert.Equal(t, []int64{b, a}, noteIDs(notes))

	none, err := s.GetNotesByTag(ctx, 999)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCreateNoteWithTags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t1 := createTag(t, s, "one")
	t2 := createTag(t, s, "two")

	n := &domain.Note{Title: "tagged"}
	id, err := s.CreateNoteWithTags(ctx, n, []int64{t2, t1, t1})
	require.NoError(t, err)

	got, err := s.GetNoteWithTags(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []int64{t1, t2}, got.TagIDs())
}

func TestCreateNoteWithTags_BadTagRollsBackNote(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateNoteWithTags(ctx, &domain.Note{Title: "orphan"}, []int64{999})
	assert.ErrorIs(t, err, store.ErrConstraintViolation)

	notes, err := s.ListNotes(ctx)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestReplaceTagsForNote(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	noteID := createNote(t, s, "n", "")
	a := createTag(t, s, "a")
	b := createTag(t, s, "b")
	c := createTag(t, s, "c")
	require.NoError(t, s.AttachTag(ctx, noteID, a))
	require.NoError(t, s.AttachTag(ctx, noteID, b))

	require.NoError(t, s.ReplaceTagsForNote(ctx, noteID, []int64{c}))
	got, err := s.GetNoteWithTags(ctx, noteID)
	require.NoError(t, err)
	assert.Equal(t, []int64{c}, got.TagIDs())

	require.NoError(t, s.ReplaceTagsForNote(ctx, noteID, nil))
	got, err = s.GetNoteWithTags(ctx, noteID)
	require.NoError(t, err)
	assert.Empty(t, got.Tags)

	err = s.ReplaceTagsForNote(ctx, 999, []int64{a})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReplaceTagsForNote_FailureKeepsOldSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	noteID := createNote(t, s, "n", "")
	a := createTag(t, s, "a")
	require.NoError(t, s.AttachTag(ctx, noteID, a))

	err := s.ReplaceTagsForNote(ctx, noteID, []int64{999})
	assert.ErrorIs(t, err, store.ErrConstraintViolation)

	got, err := s.GetNoteWithTags(ctx, noteID)
	require.NoError(t, err)
	assert.Equal(t, []int64{a}, got.TagIDs())
}

func TestUpdateNoteWithTags_Atomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	noteID := createNote(t, s, "before", "")
	a := createTag(t, s, "a")
	b := createTag(t, s, "b")
	require.NoError(t, s.AttachTag(ctx, noteID, a))

	err := s.UpdateNoteWithTags(ctx, &domain.Note{ID: noteID, Title: "after"}, []int64{b, 999})
	assert.ErrorIs(t, err, store.ErrConstraintViolation)

	got, err := s.GetNoteWithTags(ctx, noteID)
	require.NoError(t, err)
	assert.Equal(t, "before", got.Note.Title)
	assert.Equal(t, []int64{a}, got.TagIDs())

	require.NoError(t, s.UpdateNoteWithTags(ctx, &domain.Note{ID: noteID, Title: "after"}, []int64{b}))
	got, err = s.GetNoteWithTags(ctx, noteID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Note.Title)
	assert.Equal(t, []int64{b}, got.TagIDs())
}

// Readers must only ever observe the old or the new tag set, never a mix.
func TestReplaceTagsForNote_ReadersSeeWholeSets(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	noteID := createNote(t, s, "n", "")
	oldSet := []int64{createTag(t, s, "a"), createTag(t, s, "b")}
	newSet := []int64{createTag(t, s, "c"), createTag(t, s, "d")}
	require.NoError(t, s.ReplaceTagsForNote(ctx, noteID, oldSet))

	var wg sync.WaitGroup
	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range 50 {
			set := oldSet
			if i%2 == 0 {
				set = newSet
			}
			assert.NoError(t, s.ReplaceTagsForNote(ctx, noteID, set))
		}
		close(done)
	}()

	for {
		select {
		case <-done:
			wg.Wait()
			return
		default:
		}
		got, err := s.GetNoteWithTags(ctx, noteID)
		require.NoError(t, err)
		ids := got.TagIDs()
		assert.True(t, equalIDs(ids, oldSet) || equalIDs(ids, newSet), "observed partial set %v", ids)
	}
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestLinkNotifications(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	noteID := createNote(t, s, "n", "")
	tagID := createTag(t, s, "t")

	rec := &recorder{}
	s.SetNotifier(rec)

	require.NoError(t, s.AttachTag(ctx, noteID, tagID))
	require.NoError(t, s.AttachTag(ctx, noteID, tagID)) // duplicate, silent
	require.NoError(t, s.DetachTag(ctx, noteID, tagID))
	require.NoError(t, s.DetachTag(ctx, noteID, tagID)) // absent, silent

	changes := rec.all()
	require.Len(t, changes, 2)
	for _, c := range changes {
		assert.True(t, c.Touches(store.TableNoteTagLinks))
		assert.True(t, c.TouchesNote(noteID))
	}
}
