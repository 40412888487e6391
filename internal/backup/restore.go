package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/notekeeper/notekeeper/internal/domain"
)

// Restore restores from a backup file.
func (s *Service) Restore(ctx context.Context, path string, opts RestoreOptions) (*RestoreResult, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBackupNotFound
		}
		return nil, err
	}
	defer f.Close()

	s.logger.Info("starting restore", "path", path, "mode", opts.Mode, "dry_run", opts.DryRun)
	return s.RestoreFrom(ctx, f, opts)
}

// RestoreFrom restores the YAML document read from r.
// The document is fully validated before anything is written, and it is
// applied in one transaction: on failure the store is left as it was,
// including in replace mode.
func (s *Service) RestoreFrom(ctx context.Context, r io.Reader, opts RestoreOptions) (*RestoreResult, error) {
	start := time.Now()
	if opts.Mode == "" {
		opts.Mode = RestoreModeMerge
	}
	if !opts.Mode.Valid() {
		return nil, fmt.Errorf("unknown restore mode %q", opts.Mode)
	}

	doc, validation, err := decode(r)
	if err != nil {
		return nil, err
	}
	if !validation.Valid {
		return nil, fmt.Errorf("%w: %s", ErrCorruptedBackup, strings.Join(validation.Errors, "; "))
	}

	result := &RestoreResult{
		NoteIDs: make(map[int64]int64, len(doc.Notes)),
		TagIDs:  make(map[int64]int64, len(doc.Tags)),
	}
	if opts.DryRun {
		result.Imported = validation.Actual
		result.Duration = time.Since(start)
		return result, nil
	}

	imported, err := s.store.Import(ctx, &domain.Dataset{
		Notes: doc.Notes,
		Tags:  doc.Tags,
		Links: doc.Links,
	}, opts.Mode == RestoreModeReplace)
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	result.NoteIDs = imported.NoteIDs
	result.TagIDs = imported.TagIDs
	result.Imported = EntityCounts{
		Notes: len(imported.NoteIDs),
		Tags:  len(imported.TagIDs),
		Links: imported.Links,
	}

	result.Duration = time.Since(start)
	s.logger.Info("restore complete",
		"mode", opts.Mode,
		"notes", result.Imported.Notes,
		"tags", result.Imported.Tags,
		"links", result.Imported.Links,
		"duration", result.Duration)
	return result, nil
}

// Validate checks a backup file without importing.
func (s *Service) Validate(_ context.Context, path string) (*ValidationResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return &ValidationResult{
			Valid:  false,
			Errors: []string{fmt.Sprintf("failed to open backup: %v", err)},
		}, nil
	}
	defer f.Close()

	_, result, err := decode(f)
	if err != nil {
		return &ValidationResult{Valid: false, Errors: []string{err.Error()}}, nil
	}
	return result, nil
}

// decode parses a backup document and checks its integrity.
// A malformed document is an error; an inconsistent one is reported in the result.
func decode(r io.Reader) (*Document, *ValidationResult, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, ErrInvalidManifest
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrCorruptedBackup, err)
	}
	if doc.Manifest.Version == "" {
		return nil, nil, ErrInvalidManifest
	}
	if !compatible(doc.Manifest.Version) {
		return nil, nil, fmt.Errorf("%w: %s (want %s)", ErrVersionMismatch, doc.Manifest.Version, FormatVersion)
	}

	result := &ValidationResult{
		Manifest: &doc.Manifest,
		Actual:   doc.counts(),
		Valid:    true,
	}
	fail := func(format string, args ...any) {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf(format, args...))
	}

	if result.Actual != doc.Manifest.Counts {
		fail("manifest counts %+v do not match contents %+v", doc.Manifest.Counts, result.Actual)
	}

	notes := make(map[int64]bool, len(doc.Notes))
	for _, n := range doc.Notes {
		if notes[n.ID] {
			fail("duplicate note id %d", n.ID)
		}
		notes[n.ID] = true
	}
	tags := make(map[int64]bool, len(doc.Tags))
	for _, t := range doc.Tags {
		if tags[t.ID] {
			fail("duplicate tag id %d", t.ID)
		}
		tags[t.ID] = true
	}
	for _, l := range doc.Links {
		if !notes[l.NoteID] {
			fail("link references missing note %d", l.NoteID)
		}
		if !tags[l.TagID] {
			fail("link references missing tag %d", l.TagID)
		}
	}

	return &doc, result, nil
}

// compatible reports whether a backup of version v can be read.
// Minor versions are forward compatible; the major version must match.
func compatible(v string) bool {
	major, _, _ := strings.Cut(v, ".")
	want, _, _ := strings.Cut(FormatVersion, ".")
	return major == want
}
