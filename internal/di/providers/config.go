// Package providers contains dependency injection providers for notekeeper.
package providers

import (
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/notekeeper/notekeeper/internal/config"
	"github.com/notekeeper/notekeeper/internal/logger"
)

// ProvideConfig loads the configuration from the LoadOptions registered in the container.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	opts, err := do.Invoke[config.LoadOptions](i)
	if err != nil {
		opts = config.LoadOptions{}
	}
	return config.Load(opts)
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*slog.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Format:      cfg.Logger.Format,
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Debug("configuration loaded",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"db_path", cfg.Storage.DBPath(),
	)

	return log, nil
}
