package backup

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/notekeeper/notekeeper/internal/store"
)

// FileSuffix is appended to every backup file written by Create.
const FileSuffix = ".notes.yaml"

// schemaVersioner is implemented by stores that can report their schema version.
type schemaVersioner interface {
	SchemaVersion(ctx context.Context) (int, error)
}

// BackupInfo describes a backup file on disk.
type BackupInfo struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
}

// Service manages backup creation, listing and restore.
type Service struct {
	store     store.Store
	backupDir string
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a Service that keeps backup files in backupDir.
func NewService(s store.Store, backupDir string, logger *slog.Logger) *Service {
	return &Service{
		store:     s,
		backupDir: backupDir,
		logger:    logger,
		now:       time.Now,
	}
}

// Export writes a YAML document of every note, tag and link to w.
// Notes, tags and links are read in one transaction.
func (s *Service) Export(ctx context.Context, w io.Writer) (*ExportResult, error) {
	start := time.Now()

	doc, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode backup: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode backup: %w", err)
	}

	return &ExportResult{Counts: doc.Manifest.Counts, Duration: time.Since(start)}, nil
}

func (s *Service) snapshot(ctx context.Context) (*Document, error) {
	data, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}

	doc := &Document{
		Notes: data.Notes,
		Tags:  data.Tags,
		Links: data.Links,
	}
	doc.Manifest = Manifest{
		CreatedAt: s.now().UTC(),
		Version:   FormatVersion,
		Counts:    doc.counts(),
	}
	if sv, ok := s.store.(schemaVersioner); ok {
		v, err := sv.SchemaVersion(ctx)
		if err != nil {
			return nil, fmt.Errorf("read schema version: %w", err)
		}
		doc.Manifest.SchemaVersion = v
	}
	return doc, nil
}

// Create writes a new timestamped backup file to the backup directory.
func (s *Service) Create(ctx context.Context) (*BackupInfo, error) {
	if err := os.MkdirAll(s.backupDir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	id := "backup-" + s.now().UTC().Format("2006-01-02-150405.000")
	path := s.Path(id)

	f, err := os.CreateTemp(s.backupDir, ".backup-*")
	if err != nil {
		return nil, fmt.Errorf("create backup file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	result, err := s.Export(ctx, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, fmt.Errorf("finalize backup: %w", err)
	}

	s.logger.Info("backup complete",
		"path", path,
		"notes", result.Counts.Notes,
		"tags", result.Counts.Tags,
		"links", result.Counts.Links,
		"duration", result.Duration)

	return s.Get(ctx, id)
}

// List returns all available backups, newest first.
func (s *Service) List(_ context.Context) ([]BackupInfo, error) {
	entries, err := os.ReadDir(s.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var backups []BackupInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), FileSuffix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		backups = append(backups, BackupInfo{
			ID:        strings.TrimSuffix(entry.Name(), FileSuffix),
			Path:      filepath.Join(s.backupDir, entry.Name()),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		if backups[i].CreatedAt.Equal(backups[j].CreatedAt) {
			return backups[i].ID > backups[j].ID
		}
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})

	return backups, nil
}

// Get returns a backup by ID.
func (s *Service) Get(_ context.Context, id string) (*BackupInfo, error) {
	path := s.Path(id)

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBackupNotFound
		}
		return nil, err
	}

	return &BackupInfo{
		ID:        id,
		Path:      path,
		Size:      info.Size(),
		CreatedAt: info.ModTime(),
	}, nil
}

// Delete removes a backup.
func (s *Service) Delete(ctx context.Context, id string) error {
	info, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return os.Remove(info.Path)
}

// Path returns the file path for a backup ID.
func (s *Service) Path(id string) string {
	return filepath.Join(s.backupDir, id+FileSuffix)
}
