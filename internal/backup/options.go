package backup

import "time"

// RestoreMode determines how to handle existing data.
type RestoreMode string

const (
	// RestoreModeMerge adds backup data next to existing data.
	RestoreModeMerge RestoreMode = "merge"

	// RestoreModeReplace deletes every existing note and tag first.
	RestoreModeReplace RestoreMode = "replace"
)

// Valid returns true if the restore mode is recognized.
func (m RestoreMode) Valid() bool {
	switch m {
	case RestoreModeMerge, RestoreModeReplace:
		return true
	default:
		return false
	}
}

// RestoreOptions configures restoration.
type RestoreOptions struct {
	Mode   RestoreMode
	DryRun bool // Validate without writing
}

// ExportResult contains the outcome of an export.
type ExportResult struct {
	Counts   EntityCounts  `json:"counts"`
	Duration time.Duration `json:"duration"`
}

// RestoreResult contains the outcome of a restore.
// Restored entities get new IDs; NoteIDs and TagIDs map backup IDs to them.
type RestoreResult struct {
	NoteIDs  map[int64]int64 `json:"note_ids"`
	TagIDs   map[int64]int64 `json:"tag_ids"`
	Imported EntityCounts    `json:"imported"`
	Duration time.Duration   `json:"duration"`
}

// ValidationResult describes backup validity.
type ValidationResult struct {
	Manifest *Manifest    `json:"manifest,omitempty"`
	Actual   EntityCounts `json:"actual"`
	Errors   []string     `json:"errors,omitempty"`
	Valid    bool         `json:"valid"`
}
