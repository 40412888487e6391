package store

import (
	domainerrors "github.com/notekeeper/notekeeper/internal/errors"
)

// Error is the coded error type returned by store implementations.
type Error = domainerrors.Error

// Sentinel errors.
var (
	// ErrNotFound is returned when an update or lookup references a missing row.
	ErrNotFound = domainerrors.ErrNotFound

	// ErrConstraintViolation is returned when a write breaks referential integrity,
	// e.g. linking a tag to a note that does not exist.
	ErrConstraintViolation = domainerrors.ErrConstraintViolation

	// ErrStorageUnavailable is returned when the database cannot be opened.
	ErrStorageUnavailable = domainerrors.ErrStorageUnavailable

	// ErrMigrationFailed is returned when a schema upgrade step fails.
	ErrMigrationFailed = domainerrors.ErrMigrationFailed
)
