package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/notekeeper/notekeeper/internal/backup"
	"github.com/notekeeper/notekeeper/internal/store/sqlite/migrations"
)

func newExportCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export notes, tags and links as YAML",
		Long: `Writes a YAML backup. Without --output the backup is saved in the
backups directory under the data dir; --output - writes to stdout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc := a.backups()

			switch output {
			case "":
				info, err := svc.Create(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "backup written to %s\n", info.Path)
				return nil
			case "-":
				_, err := svc.Export(cmd.Context(), cmd.OutOrStdout())
				return err
			default:
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				result, err := svc.Export(cmd.Context(), f)
				if closeErr := f.Close(); err == nil {
					err = closeErr
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "exported %d notes, %d tags, %d links to %s\n",
					result.Counts.Notes, result.Counts.Tags, result.Counts.Links, output)
				return nil
			}
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "file to write, or - for stdout")
	return cmd
}

func newRestoreCmd(a *app) *cobra.Command {
	var (
		mode   string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "restore FILE",
		Short: "Restore a YAML backup",
		Long: `Imports a backup written by export. Restored notes and tags get new IDs.
--mode merge keeps existing data; --mode replace deletes it first.
The restore is applied in one transaction: if it fails, nothing changes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.backups().Restore(cmd.Context(), args[0], backup.RestoreOptions{
				Mode:   backup.RestoreMode(mode),
				DryRun: dryRun,
			})
			if err != nil {
				return err
			}
			verb := "restored"
			if dryRun {
				verb = "would restore"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d notes, %d tags, %d links\n",
				verb, result.Imported.Notes, result.Imported.Tags, result.Imported.Links)
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", string(backup.RestoreModeMerge), "merge or replace")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the backup without writing")
	return cmd
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Upgrade the database schema and print its version",
		Long:  `Opening the database applies any pending migrations. This command only reports the result.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := a.store().SchemaVersion(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (latest %d)\n", v, migrations.Latest)
			return nil
		},
	}
}
