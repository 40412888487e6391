// Package domain defines the notekeeper entities shared by the store, the
// live query layer and the facade.
package domain

import "time"

// Note is a short text note.
// ID is assigned by the store on insert. CreatedAt is written once;
// UpdatedAt is refreshed on every mutation.
type Note struct {
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
	Title     string    `json:"title" yaml:"title"`
	Content   string    `json:"content" yaml:"content"`
	Category  string    `json:"category" yaml:"category"`
	ID        int64     `json:"id" yaml:"id"`
}

// IsNew reports whether the note has not been stored yet.
func (n *Note) IsNew() bool {
	return n.ID == 0
}

// InitTimestamps sets CreatedAt (if unset) and UpdatedAt for a note about to be inserted.
func (n *Note) InitTimestamps(now time.Time) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now
}

// Touch updates the UpdatedAt timestamp.
// Call this whenever the note changes.
func (n *Note) Touch(now time.Time) {
	n.UpdatedAt = now
}

// NoteWithTags is a note together with the tags currently linked to it,
// ordered by tag name. It is computed per read and never persisted.
type NoteWithTags struct {
	Note Note  `json:"note" yaml:"note"`
	Tags []Tag `json:"tags" yaml:"tags"`
}

// TagIDs returns the IDs of the attached tags in display order.
func (n *NoteWithTags) TagIDs() []int64 {
	ids := make([]int64, 0, len(n.Tags))
	for _, t := range n.Tags {
		ids = append(ids, t.ID)
	}
	return ids
}

// HasTag reports whether the tag is attached to the note.
func (n *NoteWithTags) HasTag(tagID int64) bool {
	for _, t := range n.Tags {
		if t.ID == tagID {
			return true
		}
	}
	return false
}
