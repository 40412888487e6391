// Package di provides dependency injection configuration for notekeeper.
package di

import (
	"github.com/samber/do/v2"

	"github.com/notekeeper/notekeeper/internal/backup"
	"github.com/notekeeper/notekeeper/internal/config"
	"github.com/notekeeper/notekeeper/internal/di/providers"
)

// NewContainer creates and configures the DI container with all providers.
// opts tells ProvideConfig where to load configuration from.
func NewContainer(opts config.LoadOptions) *do.RootScope {
	injector := do.New()

	do.ProvideValue(injector, opts)

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Data layer
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideLiveQuery)

	// Facade
	do.Provide(injector, providers.ProvideValidator)
	do.Provide(injector, providers.ProvideNotebook)
	do.Provide(injector, providers.ProvideBackupService)

	return injector
}

// Bootstrap initializes the data layer and the facade.
// Storage that cannot be opened or migrated fails here, before any intent runs.
func Bootstrap(injector do.Injector) error {
	if _, err := do.Invoke[*providers.StoreHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.LiveQueryHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.NotebookHandle](injector); err != nil {
		return err
	}
	_, err := do.Invoke[*backup.Service](injector)
	return err
}
