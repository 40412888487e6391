package store

import "slices"

// Table names a persisted table. Live queries declare the tables they read.
type Table string

const (
	TableNotes        Table = "notes"
	TableTags         Table = "tags"
	TableNoteTagLinks Table = "note_tag_links"
)

// Change describes a committed mutation.
// NoteIDs and TagIDs name the affected rows when known; an empty list
// means "unknown" and must be treated as touching every row of the table.
type Change struct {
	Tables  []Table
	NoteIDs []int64
	TagIDs  []int64
}

// Touches reports whether the change wrote to the given table.
func (c Change) Touches(t Table) bool {
	return slices.Contains(c.Tables, t)
}

// TouchesNote reports whether the change may have affected the given note,
// either through the notes table or through its tag links.
func (c Change) TouchesNote(noteID int64) bool {
	if !c.Touches(TableNotes) && !c.Touches(TableNoteTagLinks) {
		return false
	}
	return len(c.NoteIDs) == 0 || slices.Contains(c.NoteIDs, noteID)
}

// ChangeNotifier receives committed changes.
// The store uses this to drive live queries without depending on them.
// Notify must not block.
type ChangeNotifier interface {
	Notify(change Change)
}

// NoopNotifier is a no-op implementation of ChangeNotifier for testing.
type NoopNotifier struct{}

// Notify implements ChangeNotifier as a no-op.
func (NoopNotifier) Notify(Change) {}

// NewNoopNotifier creates a new no-op notifier.
func NewNoopNotifier() ChangeNotifier {
	return NoopNotifier{}
}

// NotifierFunc adapts a function to the ChangeNotifier interface.
type NotifierFunc func(Change)

// Notify calls f(change).
func (f NotifierFunc) Notify(change Change) { f(change) }
