package domain

// DefaultTagColor is the accent color given to tags created without one.
const DefaultTagColor = "#6200EE"

// Tag is a label shared by any number of notes.
// Names are not required to be unique.
type Tag struct {
	Name  string `json:"name" yaml:"name"`
	Color string `json:"color" yaml:"color"`
	ID    int64  `json:"id" yaml:"id"`
}

// ApplyDefaults fills in the accent color when none is set.
func (t *Tag) ApplyDefaults() {
	if t.Color == "" {
		t.Color = DefaultTagColor
	}
}

// NoteTagLink records that a note carries a tag.
// The (NoteID, TagID) pair is unique; attaching twice is a no-op.
type NoteTagLink struct {
	NoteID int64 `json:"note_id" yaml:"note_id"`
	TagID  int64 `json:"tag_id" yaml:"tag_id"`
}

// Dataset is every note, tag and link in a store, read or written as a unit.
type Dataset struct {
	Notes []Note        `json:"notes" yaml:"notes"`
	Tags  []Tag         `json:"tags" yaml:"tags"`
	Links []NoteTagLink `json:"links" yaml:"links"`
}
