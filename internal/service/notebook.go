// Package service holds the Application Facade: the single coordination
// point that turns UI intents into Record Store calls and exposes the live
// query streams the UI renders.
package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/notekeeper/notekeeper/internal/domain"
	domainerrors "github.com/notekeeper/notekeeper/internal/errors"
	"github.com/notekeeper/notekeeper/internal/id"
	"github.com/notekeeper/notekeeper/internal/livequery"
	"github.com/notekeeper/notekeeper/internal/store"
	"github.com/notekeeper/notekeeper/internal/validation"
)

// Notebook is the Application Facade.
//
// Mutating intents return an intent ID immediately and run in issue order
// on a single worker goroutine. Their outcome is published on Results;
// the visible effect arrives through the live query streams.
type Notebook struct {
	store     store.Store
	live      *livequery.Manager
	validator *validation.Validator
	logger    *slog.Logger

	notes *livequery.Switcher[[]domain.Note]

	termMu sync.Mutex
	term   string

	queue *intentQueue
	wg    sync.WaitGroup

	resultsMu     sync.RWMutex
	results       chan IntentResult
	resultsClosed bool

	closeOnce sync.Once
}

// Option configures a Notebook.
type Option func(*options)

type options struct {
	resultBuffer int
}

// WithResultBuffer sets the capacity of the Results channel.
func WithResultBuffer(n int) Option {
	return func(o *options) { o.resultBuffer = n }
}

// NewNotebook creates the facade and starts its worker.
// The notes stream starts on the unfiltered list.
func NewNotebook(st store.Store, live *livequery.Manager, v *validation.Validator, logger *slog.Logger, opts ...Option) (*Notebook, error) {
	o := options{resultBuffer: 64}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	n := &Notebook{
		store:     st,
		live:      live,
		validator: v,
		logger:    logger,
		notes:     livequery.NewSwitcher[[]domain.Note](live),
		queue:     newIntentQueue(),
		results:   make(chan IntentResult, max(o.resultBuffer, 1)),
	}

	if err := n.notes.Switch(context.Background(), livequery.AllNotes()); err != nil {
		return nil, err
	}

	n.wg.Add(1)
	go n.work()

	return n, nil
}

// Close stops accepting intents, waits for queued ones to finish and closes
// the notes stream and Results.
func (n *Notebook) Close() error {
	n.closeOnce.Do(func() {
		n.queue.close()
		n.wg.Wait()
		n.notes.Close()

		n.resultsMu.Lock()
		n.resultsClosed = true
		close(n.results)
		n.resultsMu.Unlock()
		n.logger.Info("notebook closed")
	})
	return nil
}

// --- Streams -----------------------------------------------------------------

// Notes streams the note list for the current search term: every note when
// the term is blank, otherwise the notes matching it. Changing the term
// discards results of the previous one.
func (n *Notebook) Notes() <-chan livequery.Snapshot[[]domain.Note] {
	return n.notes.Updates()
}

// NotesWithTags streams every note with its tags.
func (n *Notebook) NotesWithTags(ctx context.Context) (*livequery.Subscription[[]domain.NoteWithTags], error) {
	return livequery.Subscribe(ctx, n.live, livequery.AllNotesWithTags())
}

// Tags streams every tag ordered by name.
func (n *Notebook) Tags(ctx context.Context) (*livequery.Subscription[[]domain.Tag], error) {
	return livequery.Subscribe(ctx, n.live, livequery.AllTags())
}

// NoteWithTags streams one note and its tags. The value is nil while the
// note does not exist.
func (n *Notebook) NoteWithTags(ctx context.Context, noteID int64) (*livequery.Subscription[*domain.NoteWithTags], error) {
	return livequery.Subscribe(ctx, n.live, livequery.NoteWithTags(noteID))
}

// NotesByTag streams the notes carrying a tag.
func (n *Notebook) NotesByTag(ctx context.Context, tagID int64) (*livequery.Subscription[[]domain.Note], error) {
	return livequery.Subscribe(ctx, n.live, livequery.NotesByTag(tagID))
}

// GetNote looks a note up directly. Returns store.ErrNotFound if it does not exist.
func (n *Notebook) GetNote(ctx context.Context, noteID int64) (*domain.Note, error) {
	return n.store.GetNote(ctx, noteID)
}

// Results reports the outcome of every intent, in issue order. It is closed
// by Close.
//
// The channel is buffered (see WithResultBuffer) and the worker never blocks
// on it: when the buffer is full, further results are dropped. A dropped
// result is still logged, at warn level for failures. Callers that must see
// every failure have to keep draining Results.
func (n *Notebook) Results() <-chan IntentResult {
	return n.results
}

// --- Search ------------------------------------------------------------------

// SearchTerm returns the current search term.
func (n *Notebook) SearchTerm() string {
	n.termMu.Lock()
	defer n.termMu.Unlock()
	return n.term
}

// UpdateSearchQuery replaces the search term and switches the notes stream.
func (n *Notebook) UpdateSearchQuery(term string) error {
	n.termMu.Lock()
	defer n.termMu.Unlock()

	n.term = term
	q := livequery.AllNotes()
	if strings.TrimSpace(term) != "" {
		q = livequery.Search(term)
	}
	return n.notes.Switch(context.Background(), q)
}

// ClearSearch resets the search term so the notes stream lists every note.
func (n *Notebook) ClearSearch() error {
	return n.UpdateSearchQuery("")
}

// --- Intents -----------------------------------------------------------------

type createNoteInput struct {
	Title  string  `json:"title" validate:"notblank"`
	TagIDs []int64 `json:"tag_ids" validate:"dive,gt=0"`
}

type updateNoteInput struct {
	Title  string  `json:"title" validate:"notblank"`
	TagIDs []int64 `json:"tag_ids" validate:"dive,gt=0"`
	ID     int64   `json:"id" validate:"gt=0"`
}

type tagInput struct {
	Name  string `json:"name" validate:"notblank"`
	Color string `json:"color,omitempty" validate:"omitempty,hexcolor"`
}

type idInput struct {
	ID int64 `json:"id" validate:"gt=0"`
}

type linkInput struct {
	NoteID int64 `json:"note_id" validate:"gt=0"`
	TagID  int64 `json:"tag_id" validate:"gt=0"`
}

// CreateNote inserts a note and links it to initialTags in one transaction.
func (n *Notebook) CreateNote(note domain.Note, initialTags []int64) string {
	return n.issue(IntentCreateNote, createNoteInput{Title: note.Title, TagIDs: initialTags},
		func(ctx context.Context) (int64, error) {
			return n.store.CreateNoteWithTags(ctx, &note, initialTags)
		})
}

// UpdateNote writes the note's fields. A missing note fails with NotFound.
func (n *Notebook) UpdateNote(note domain.Note) string {
	return n.issue(IntentUpdateNote, updateNoteInput{ID: note.ID, Title: note.Title},
		func(ctx context.Context) (int64, error) {
			return note.ID, n.store.UpdateNote(ctx, &note)
		})
}

// UpdateNoteWithTags writes the note's fields and replaces its tag set in
// one transaction.
func (n *Notebook) UpdateNoteWithTags(note domain.Note, tagIDs []int64) string {
	return n.issue(IntentUpdateNoteWithTags, updateNoteInput{ID: note.ID, Title: note.Title, TagIDs: tagIDs},
		func(ctx context.Context) (int64, error) {
			return note.ID, n.store.UpdateNoteWithTags(ctx, &note, tagIDs)
		})
}

// DeleteNote removes a note and its tag links.
func (n *Notebook) DeleteNote(note domain.Note) string {
	return n.issue(IntentDeleteNote, idInput{ID: note.ID},
		func(ctx context.Context) (int64, error) {
			return note.ID, n.store.DeleteNote(ctx, note.ID)
		})
}

// CreateTag creates a tag with the default color.
func (n *Notebook) CreateTag(name string) string {
	tag := domain.Tag{Name: strings.TrimSpace(name)}
	return n.issue(IntentCreateTag, tagInput{Name: tag.Name},
		func(ctx context.Context) (int64, error) {
			return n.store.CreateTag(ctx, &tag)
		})
}

// UpdateTag renames or recolors a tag.
func (n *Notebook) UpdateTag(tag domain.Tag) string {
	tag.Name = strings.TrimSpace(tag.Name)
	return n.issue(IntentUpdateTag, tagInput{Name: tag.Name, Color: tag.Color},
		func(ctx context.Context) (int64, error) {
			return tag.ID, n.store.UpdateTag(ctx, &tag)
		})
}

// DeleteTag removes a tag and its links. Notes are kept.
func (n *Notebook) DeleteTag(tag domain.Tag) string {
	return n.issue(IntentDeleteTag, idInput{ID: tag.ID},
		func(ctx context.Context) (int64, error) {
			return tag.ID, n.store.DeleteTag(ctx, tag.ID)
		})
}

// AttachTag links a tag to a note. Attaching twice is not an error.
func (n *Notebook) AttachTag(noteID, tagID int64) string {
	return n.issue(IntentAttachTag, linkInput{NoteID: noteID, TagID: tagID},
		func(ctx context.Context) (int64, error) {
			return noteID, n.store.AttachTag(ctx, noteID, tagID)
		})
}

// DetachTag removes a tag from a note if present.
func (n *Notebook) DetachTag(noteID, tagID int64) string {
	return n.issue(IntentDetachTag, linkInput{NoteID: noteID, TagID: tagID},
		func(ctx context.Context) (int64, error) {
			return noteID, n.store.DetachTag(ctx, noteID, tagID)
		})
}

// Flush waits until every intent issued before the call has finished.
func (n *Notebook) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if !n.queue.push(intent{barrier: done}) {
		return domainerrors.ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending reports how many intents are waiting for the worker.
func (n *Notebook) Pending() int {
	return n.queue.len()
}

// issue validates input and queues run. Validation failures and a closed
// facade are reported on Results like any other failure.
func (n *Notebook) issue(kind IntentKind, input any, run func(ctx context.Context) (int64, error)) string {
	intentID := id.MustGenerate(id.PrefixIntent)

	if err := n.validator.Validate(input); err != nil {
		n.publish(IntentResult{ID: intentID, Kind: kind, Err: err})
		return intentID
	}

	if !n.queue.push(intent{id: intentID, kind: kind, run: run}) {
		n.publish(IntentResult{ID: intentID, Kind: kind, Err: domainerrors.ErrClosed})
	}
	return intentID
}

// work runs intents one at a time in issue order until the queue is closed
// and drained. Intents always run to completion.
func (n *Notebook) work() {
	defer n.wg.Done()

	ctx := context.Background()
	for {
		it, ok, done := n.queue.pop()
		if done {
			return
		}
		if !ok {
			<-n.queue.signal
			continue
		}

		if it.barrier != nil {
			close(it.barrier)
			continue
		}

		entityID, err := it.run(ctx)
		n.publish(IntentResult{ID: it.id, Kind: it.kind, EntityID: entityID, Err: err})
	}
}

func (n *Notebook) publish(res IntentResult) {
	if res.Err != nil {
		n.logger.Warn("intent failed",
			"intent_id", res.ID,
			"kind", res.Kind,
			"code", domainerrors.CodeOf(res.Err),
			"error", res.Err,
		)
	} else {
		n.logger.Debug("intent completed",
			"intent_id", res.ID,
			"kind", res.Kind,
			"entity_id", res.EntityID,
		)
	}

	n.resultsMu.RLock()
	defer n.resultsMu.RUnlock()
	if n.resultsClosed {
		return
	}

	select {
	case n.results <- res:
	default:
		n.logger.Warn("intent result dropped, results buffer full",
			"intent_id", res.ID,
			"kind", res.Kind,
		)
	}
}
