package providers

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/do/v2"

	"github.com/notekeeper/notekeeper/internal/config"
	"github.com/notekeeper/notekeeper/internal/livequery"
)

// liveQueryDrainTimeout bounds how long Shutdown waits for in-flight live
// query refreshes.
const liveQueryDrainTimeout = 30 * time.Second

// LiveQueryHandle wraps the live query manager with its context for lifecycle management.
type LiveQueryHandle struct {
	*livequery.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *LiveQueryHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), liveQueryDrainTimeout)
	defer cancel()
	err := h.Manager.Shutdown(ctx)
	h.cancel()
	return err
}

// ProvideLiveQuery provides the live query manager and subscribes it to store changes.
func ProvideLiveQuery(i do.Injector) (*LiveQueryHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	manager := livequery.NewManager(storeHandle.Store, log.With("component", "livequery"),
		livequery.WithRefreshRate(cfg.LiveQuery.RefreshRate, cfg.LiveQuery.RefreshBurst),
		livequery.WithEventBuffer(cfg.LiveQuery.EventBuffer),
	)
	storeHandle.SetNotifier(manager)

	// Start in background
	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	return &LiveQueryHandle{
		Manager: manager,
		cancel:  cancel,
	}, nil
}
