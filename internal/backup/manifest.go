package backup

import (
	"time"

	"github.com/notekeeper/notekeeper/internal/domain"
)

// FormatVersion is the backup format version. Increment major on breaking changes.
const FormatVersion = "1.0"

// Manifest describes backup contents.
type Manifest struct {
	CreatedAt     time.Time    `yaml:"created_at"`
	Version       string       `yaml:"version"`
	Counts        EntityCounts `yaml:"counts"`
	SchemaVersion int          `yaml:"schema_version"`
}

// EntityCounts tracks entity counts for validation and reporting.
type EntityCounts struct {
	Notes int `yaml:"notes" json:"notes"`
	Tags  int `yaml:"tags" json:"tags"`
	Links int `yaml:"links" json:"links"`
}

// Document is the whole backup file.
type Document struct {
	Manifest Manifest             `yaml:"manifest"`
	Notes    []domain.Note        `yaml:"notes"`
	Tags     []domain.Tag         `yaml:"tags"`
	Links    []domain.NoteTagLink `yaml:"links"`
}

// counts returns the actual entity counts of the document.
func (d *Document) counts() EntityCounts {
	return EntityCounts{Notes: len(d.Notes), Tags: len(d.Tags), Links: len(d.Links)}
}
