package backup

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notekeeper/notekeeper/internal/domain"
	"github.com/notekeeper/notekeeper/internal/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "notes.db"), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestService(t *testing.T) (*Service, *sqlite.Store) {
	t.Helper()
	s := newTestStore(t)
	svc := NewService(s, filepath.Join(t.TempDir(), "backups"), slog.New(slog.DiscardHandler))
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC) }
	return svc, s
}

// seed creates two tags and three notes; "groceries" carries both tags.
func seed(t *testing.T, s *sqlite.Store) {
	t.Helper()
	ctx := context.Background()

	home, err := s.CreateTag(ctx, &domain.Tag{Name: "home"})
	require.NoError(t, err)
	urgent, err := s.CreateTag(ctx, &domain.Tag{Name: "urgent", Color: "#FF0000"})
	require.NoError(t, err)

	created := time.Date(2025, 12, 24, 18, 0, 0, 0, time.UTC)
	_, err = s.CreateNoteWithTags(ctx, &domain.Note{Title: "groceries", Content: "milk", CreatedAt: created}, []int64{home, urgent})
	require.NoError(t, err)
	_, err = s.CreateNoteWithTags(ctx, &domain.Note{Title: "plants", Content: "water ferns"}, []int64{home})
	require.NoError(t, err)
	_, err = s.CreateNote(ctx, &domain.Note{Title: "ideas", Category: "work"})
	require.NoError(t, err)
}

func TestExport_WritesManifestAndEntities(t *testing.T) {
	svc, s := newTestService(t)
	seed(t, s)

	var buf bytes.Buffer
	result, err := svc.Export(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, EntityCounts{Notes: 3, Tags: 2, Links: 3}, result.Counts)

	doc, validation, err := decode(&buf)
	require.NoError(t, err)
	assert.True(t, validation.Valid, validation.Errors)
	assert.Equal(t, FormatVersion, doc.Manifest.Version)
	assert.Equal(t, 2, doc.Manifest.SchemaVersion)
	assert.Equal(t, []string{"groceries", "plants", "ideas"}, []string{doc.Notes[0].Title, doc.Notes[1].Title, doc.Notes[2].Title})
	assert.Equal(t, "#6200EE", doc.Tags[0].Color)
}

// racingStore deletes a tag right after the first read, the way a
// concurrent facade intent could.
type racingStore struct {
	*sqlite.Store
	tagID int64
	once  sync.Once
}

func (r *racingStore) race(ctx context.Context) {
	r.once.Do(func() { _ = r.Store.DeleteTag(ctx, r.tagID) })
}

func (r *racingStore) Snapshot(ctx context.Context) (*domain.Dataset, error) {
	data, err := r.Store.Snapshot(ctx)
	r.race(ctx)
	return data, err
}

func (r *racingStore) ListNotesWithTags(ctx context.Context) ([]domain.NoteWithTags, error) {
	notes, err := r.Store.ListNotesWithTags(ctx)
	r.race(ctx)
	return notes, err
}

func (r *racingStore) ListTags(ctx context.Context) ([]domain.Tag, error) {
	tags, err := r.Store.ListTags(ctx)
	r.race(ctx)
	return tags, err
}

func TestExport_ConcurrentDeleteStaysRestorable(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	tagID, err := s.CreateTag(ctx, &domain.Tag{Name: "doomed"})
	require.NoError(t, err)
	_, err = s.CreateNoteWithTags(ctx, &domain.Note{Title: "tagged"}, []int64{tagID})
	require.NoError(t, err)

	svc := NewService(&racingStore{Store: s, tagID: tagID}, t.TempDir(), slog.New(slog.DiscardHandler))

	var buf bytes.Buffer
	_, err = svc.Export(ctx, &buf)
	require.NoError(t, err)

	tags, err := s.ListTags(ctx)
	require.NoError(t, err)
	require.Empty(t, tags, "tag should be gone from the store")

	doc, validation, err := decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.True(t, validation.Valid, validation.Errors)
	assert.Len(t, doc.Tags, 1)
	assert.Len(t, doc.Links, 1)

	dst, _ := newTestService(t)
	_, err = dst.RestoreFrom(ctx, &buf, RestoreOptions{})
	require.NoError(t, err)
}

func TestExport_EmptyStore(t *testing.T) {
	svc, _ := newTestService(t)

	var buf bytes.Buffer
	result, err := svc.Export(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, EntityCounts{}, result.Counts)
	assert.Contains(t, buf.String(), "version: \"1.0\"")
}

func TestRestore_RoundTripIntoFreshStore(t *testing.T) {
	ctx := context.Background()
	src, srcStore := newTestService(t)
	seed(t, srcStore)

	var buf bytes.Buffer
	_, err := src.Export(ctx, &buf)
	require.NoError(t, err)

	dst, dstStore := newTestService(t)
	result, err := dst.RestoreFrom(ctx, &buf, RestoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, EntityCounts{Notes: 3, Tags: 2, Links: 3}, result.Imported)

	notes, err := dstStore.ListNotesWithTags(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 3)

	byTitle := make(map[string]domain.NoteWithTags)
	for _, n := range notes {
		byTitle[n.Note.Title] = n
	}
	groceries := byTitle["groceries"]
	assert.Equal(t, "milk", groceries.Note.Content)
	assert.Equal(t, time.Date(2025, 12, 24, 18, 0, 0, 0, time.UTC), groceries.Note.CreatedAt)
	require.Len(t, groceries.Tags, 2)
	assert.Equal(t, "home", groceries.Tags[0].Name)
	assert.Equal(t, "#FF0000", groceries.Tags[1].Color)
	assert.Empty(t, byTitle["ideas"].Tags)
	assert.Equal(t, "work", byTitle["ideas"].Note.Category)
}

func TestRestore_MergeKeepsExistingData(t *testing.T) {
	ctx := context.Background()
	svc, s := newTestService(t)
	seed(t, s)

	var buf bytes.Buffer
	_, err := svc.Export(ctx, &buf)
	require.NoError(t, err)

	_, err = svc.RestoreFrom(ctx, &buf, RestoreOptions{Mode: RestoreModeMerge})
	require.NoError(t, err)

	notes, err := s.ListNotes(ctx)
	require.NoError(t, err)
	assert.Len(t, notes, 6)
	tags, err := s.ListTags(ctx)
	require.NoError(t, err)
	assert.Len(t, tags, 4)
}

func TestRestore_ReplaceClearsExistingData(t *testing.T) {
	ctx := context.Background()
	svc, s := newTestService(t)
	seed(t, s)

	var buf bytes.Buffer
	_, err := svc.Export(ctx, &buf)
	require.NoError(t, err)

	_, err = s.CreateNote(ctx, &domain.Note{Title: "scratch"})
	require.NoError(t, err)

	result, err := svc.RestoreFrom(ctx, &buf, RestoreOptions{Mode: RestoreModeReplace})
	require.NoError(t, err)

	notes, err := s.ListNotes(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 3)
	for _, n := range notes {
		assert.NotEqual(t, "scratch", n.Title)
	}

	restored := make(map[int64]bool)
	for _, id := range result.TagIDs {
		restored[id] = true
	}
	links, err := s.ListLinks(ctx)
	require.NoError(t, err)
	assert.Len(t, links, 3)
	for _, l := range links {
		assert.True(t, restored[l.TagID], "link to tag %d was not restored", l.TagID)
	}
}

func TestRestore_DryRunWritesNothing(t *testing.T) {
	ctx := context.Background()
	src, srcStore := newTestService(t)
	seed(t, srcStore)

	var buf bytes.Buffer
	_, err := src.Export(ctx, &buf)
	require.NoError(t, err)

	dst, dstStore := newTestService(t)
	result, err := dst.RestoreFrom(ctx, &buf, RestoreOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, EntityCounts{Notes: 3, Tags: 2, Links: 3}, result.Imported)

	notes, err := dstStore.ListNotes(ctx)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestRestore_RejectsBadDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{
			name: "empty",
			doc:  "",
			want: ErrInvalidManifest,
		},
		{
			name: "missing version",
			doc:  "manifest:\n  counts: {notes: 0, tags: 0, links: 0}\n",
			want: ErrInvalidManifest,
		},
		{
			name: "future major version",
			doc:  "manifest:\n  version: \"2.0\"\n",
			want: ErrVersionMismatch,
		},
		{
			name: "unknown field",
			doc:  "manifest:\n  version: \"1.0\"\nbooks: []\n",
			want: ErrCorruptedBackup,
		},
		{
			name: "dangling link",
			doc: `manifest:
  version: "1.0"
  counts: {notes: 1, tags: 0, links: 1}
notes:
  - {id: 1, title: a}
links:
  - {note_id: 1, tag_id: 7}
`,
			want: ErrCorruptedBackup,
		},
		{
			name: "counts mismatch",
			doc: `manifest:
  version: "1.0"
  counts: {notes: 5, tags: 0, links: 0}
notes:
  - {id: 1, title: a}
`,
			want: ErrCorruptedBackup,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, s := newTestService(t)

			_, err := svc.RestoreFrom(context.Background(), strings.NewReader(tt.doc), RestoreOptions{})
			require.ErrorIs(t, err, tt.want)

			notes, err := s.ListNotes(context.Background())
			require.NoError(t, err)
			assert.Empty(t, notes)
		})
	}
}

func TestRestore_UnknownMode(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.RestoreFrom(context.Background(), strings.NewReader(""), RestoreOptions{Mode: "overwrite"})
	assert.Error(t, err)
}

func TestService_CreateListGetDelete(t *testing.T) {
	ctx := context.Background()
	svc, s := newTestService(t)
	seed(t, s)

	backups, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, backups)

	info, err := svc.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, "backup-2026-03-01-093000.000", info.ID)
	assert.Positive(t, info.Size)

	backups, err = svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, info.ID, backups[0].ID)

	validation, err := svc.Validate(ctx, info.Path)
	require.NoError(t, err)
	assert.True(t, validation.Valid)
	assert.Equal(t, 3, validation.Manifest.Counts.Notes)

	// No temp files are left behind.
	entries, err := os.ReadDir(filepath.Dir(info.Path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, svc.Delete(ctx, info.ID))
	_, err = svc.Get(ctx, info.ID)
	assert.ErrorIs(t, err, ErrBackupNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, info.ID), ErrBackupNotFound)
}

func TestService_RestoreFromFile(t *testing.T) {
	ctx := context.Background()
	svc, s := newTestService(t)
	seed(t, s)

	info, err := svc.Create(ctx)
	require.NoError(t, err)

	dst, dstStore := newTestService(t)
	_, err = dst.Restore(ctx, info.Path, RestoreOptions{})
	require.NoError(t, err)

	tags, err := dstStore.ListTags(ctx)
	require.NoError(t, err)
	assert.Len(t, tags, 2)

	_, err = dst.Restore(ctx, filepath.Join(t.TempDir(), "missing.notes.yaml"), RestoreOptions{})
	assert.ErrorIs(t, err, ErrBackupNotFound)
}

func TestValidate_UnreadableFile(t *testing.T) {
	svc, _ := newTestService(t)
	result, err := svc.Validate(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Errors)
}
