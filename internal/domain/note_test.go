package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNote_InitTimestamps(t *testing.T) {
	now := time.UnixMilli(5000)

	n := Note{Title: "fresh"}
	n.InitTimestamps(now)
	assert.Equal(t, now, n.CreatedAt)
	assert.Equal(t, now, n.UpdatedAt)

	// An explicit creation time survives (used by backup import).
	created := time.UnixMilli(1000)
	imported := Note{Title: "imported", CreatedAt: created}
	imported.InitTimestamps(now)
	assert.Equal(t, created, imported.CreatedAt)
	assert.Equal(t, now, imported.UpdatedAt)
}

func TestNote_TouchKeepsCreatedAt(t *testing.T) {
	n := Note{CreatedAt: time.UnixMilli(1000), UpdatedAt: time.UnixMilli(1000)}
	n.Touch(time.UnixMilli(2000))

	assert.Equal(t, time.UnixMilli(1000), n.CreatedAt)
	assert.Equal(t, time.UnixMilli(2000), n.UpdatedAt)
}

func TestNote_IsNew(t *testing.T) {
	assert.True(t, (&Note{}).IsNew())
	assert.False(t, (&Note{ID: 3}).IsNew())
}

func TestNoteWithTags_TagHelpers(t *testing.T) {
	nwt := NoteWithTags{
		Note: Note{ID: 1},
		Tags: []Tag{{ID: 7, Name: "home"}, {ID: 3, Name: "work"}},
	}

	assert.Equal(t, []int64{7, 3}, nwt.TagIDs())
	assert.True(t, nwt.HasTag(3))
	assert.False(t, nwt.HasTag(4))
}

func TestTag_ApplyDefaults(t *testing.T) {
	tag := Tag{Name: "ideas"}
	tag.ApplyDefaults()
	assert.Equal(t, DefaultTagColor, tag.Color)

	colored := Tag{Name: "urgent", Color: "#FF0000"}
	colored.ApplyDefaults()
	assert.Equal(t, "#FF0000", colored.Color)
}
