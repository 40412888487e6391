package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/notekeeper/notekeeper/internal/backup"
	"github.com/notekeeper/notekeeper/internal/config"
	"github.com/notekeeper/notekeeper/internal/di"
	"github.com/notekeeper/notekeeper/internal/di/providers"
	"github.com/notekeeper/notekeeper/internal/livequery"
	"github.com/notekeeper/notekeeper/internal/service"
)

// intentTimeout bounds how long a command waits for its intents to finish.
const intentTimeout = 30 * time.Second

// app holds the container shared by every command of one invocation.
type app struct {
	cfgFile  string
	envFile  string
	injector *do.RootScope
}

func (a *app) notebook() *service.Notebook {
	return do.MustInvoke[*providers.NotebookHandle](a.injector).Notebook
}

func (a *app) live() *livequery.Manager {
	return do.MustInvoke[*providers.LiveQueryHandle](a.injector).Manager
}

func (a *app) store() *providers.StoreHandle {
	return do.MustInvoke[*providers.StoreHandle](a.injector)
}

func (a *app) backups() *backup.Service {
	return do.MustInvoke[*backup.Service](a.injector)
}

// run issues one intent through issue, waits for it and returns its result.
func (a *app) run(ctx context.Context, issue func(nb *service.Notebook) string) (service.IntentResult, error) {
	nb := a.notebook()
	intentID := issue(nb)

	ctx, cancel := context.WithTimeout(ctx, intentTimeout)
	defer cancel()
	if err := nb.Flush(ctx); err != nil {
		return service.IntentResult{}, err
	}

	for {
		select {
		case res, ok := <-nb.Results():
			if !ok {
				return service.IntentResult{}, errors.New("notebook closed")
			}
			if res.ID == intentID {
				return res, res.Err
			}
		default:
			return service.IntentResult{}, fmt.Errorf("no result for intent %s", intentID)
		}
	}
}

// execute runs root and shuts the container down afterwards. cobra skips
// PersistentPostRun hooks when RunE fails, so the shutdown cannot live there.
func (a *app) execute(ctx context.Context, root *cobra.Command) error {
	defer a.shutdown()
	return root.ExecuteContext(ctx)
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "notesctl",
		Short: "Manage notes and tags in a local notekeeper database",
		Long: `notesctl drives the notekeeper data layer from the command line.
Every mutation goes through the same facade the application uses, so
validation, ordering and change notification behave identically.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == cobra.ShellCompRequestCmd || cmd.Name() == cobra.ShellCompNoDescRequestCmd {
				return nil
			}
			a.injector = di.NewContainer(config.LoadOptions{
				Flags:      cmd.Flags(),
				ConfigFile: a.cfgFile,
				EnvFile:    a.envFile,
			})
			return di.Bootstrap(a.injector)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is ./notekeeper.yaml or $XDG_CONFIG_HOME/notekeeper/notekeeper.yaml)")
	flags.StringVar(&a.envFile, "env-file", ".env", "file of NOTES_* variables loaded before the environment")
	flags.String("env", "", "environment: development, test or production")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("log-format", "", "log format: pretty or json")
	flags.String("data-dir", "", "directory holding the database and backups")
	flags.String("db-file", "", "database file name, relative to the data dir")

	root.AddCommand(
		newAddCmd(a),
		newListCmd(a),
		newSearchCmd(a),
		newShowCmd(a),
		newEditCmd(a),
		newRmCmd(a),
		newTagCmd(a),
		newAttachCmd(a),
		newDetachCmd(a),
		newWatchCmd(a),
		newExportCmd(a),
		newRestoreCmd(a),
		newMigrateCmd(a),
	)

	return root
}

// shutdown closes the facade, the live query manager and the store, in that order.
// It is a no-op once the container is gone.
func (a *app) shutdown() {
	if a.injector == nil {
		return
	}
	injector := a.injector
	a.injector = nil

	log, logErr := do.Invoke[*slog.Logger](injector)
	if report := injector.Shutdown(); report != nil && logErr == nil {
		log.Debug("container shut down", "report", report)
	}
}

// parseID parses a positive note or tag ID argument.
func parseID(kind, s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", kind, s)
	}
	return id, nil
}
