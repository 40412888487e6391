package providers

import (
	"log/slog"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/notekeeper/notekeeper/internal/backup"
	"github.com/notekeeper/notekeeper/internal/config"
	"github.com/notekeeper/notekeeper/internal/service"
	"github.com/notekeeper/notekeeper/internal/validation"
)

// ProvideValidator provides the intent validator.
func ProvideValidator(_ do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}

// NotebookHandle wraps the facade with shutdown capability.
type NotebookHandle struct {
	*service.Notebook
}

// Shutdown implements do.Shutdownable. Queued intents finish first.
func (h *NotebookHandle) Shutdown() error {
	return h.Close()
}

// ProvideNotebook provides the Application Facade.
func ProvideNotebook(i do.Injector) (*NotebookHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	liveHandle := do.MustInvoke[*LiveQueryHandle](i)
	v := do.MustInvoke[*validation.Validator](i)

	nb, err := service.NewNotebook(storeHandle.Store, liveHandle.Manager, v, log.With("component", "notebook"),
		service.WithResultBuffer(cfg.Facade.ResultBuffer))
	if err != nil {
		return nil, err
	}
	return &NotebookHandle{Notebook: nb}, nil
}

// ProvideBackupService provides backup export and restore.
func ProvideBackupService(i do.Injector) (*backup.Service, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	return backup.NewService(storeHandle.Store, filepath.Join(cfg.Storage.DataDir, "backups"), log.With("component", "backup")), nil
}
