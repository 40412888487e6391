package di

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/samber/do/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notekeeper/notekeeper/internal/backup"
	"github.com/notekeeper/notekeeper/internal/config"
	"github.com/notekeeper/notekeeper/internal/di/providers"
	"github.com/notekeeper/notekeeper/internal/domain"
	domainerrors "github.com/notekeeper/notekeeper/internal/errors"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("NOTES_STORAGE_DATA_DIR", filepath.Join(dir, "notes"))
	t.Setenv("NOTES_LOGGER_LEVEL", "error")
	t.Chdir(dir)
	return dir
}

func TestBootstrap_WiresDataLayer(t *testing.T) {
	dir := isolate(t)

	injector := NewContainer(config.LoadOptions{})
	require.NoError(t, Bootstrap(injector))
	t.Cleanup(func() { injector.Shutdown() })

	cfg := do.MustInvoke[*config.Config](injector)
	assert.Equal(t, filepath.Join(dir, "notes", "notes.db"), cfg.Storage.DBPath())

	nb := do.MustInvoke[*providers.NotebookHandle](injector)
	nb.CreateNote(domain.Note{Title: "wired"}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, nb.Flush(ctx))

	// The store notifies the live query manager, so the notes stream catches up.
	require.Eventually(t, func() bool {
		select {
		case snap := <-nb.Notes():
			return len(snap.Value) == 1 && snap.Value[0].Title == "wired"
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	svc := do.MustInvoke[*backup.Service](injector)
	info, err := svc.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "notes", "backups"), filepath.Dir(info.Path))
}

func TestBootstrap_UnopenableStorageFails(t *testing.T) {
	isolate(t)
	t.Setenv("NOTES_STORAGE_DB_FILE", "/dev/null/notes.db")

	injector := NewContainer(config.LoadOptions{})
	err := Bootstrap(injector)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create database directory")
}

func TestShutdown_ClosesFacade(t *testing.T) {
	isolate(t)

	injector := NewContainer(config.LoadOptions{})
	require.NoError(t, Bootstrap(injector))

	nb := do.MustInvoke[*providers.NotebookHandle](injector)
	injector.Shutdown()

	err := nb.Flush(context.Background())
	assert.ErrorIs(t, err, domainerrors.ErrClosed)
}
