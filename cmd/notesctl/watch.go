package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func newWatchCmd(a *app) *cobra.Command {
	var (
		term  string
		count int
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print the note list every time it changes",
		Long: `Subscribes to the live notes stream and prints each snapshot until
interrupted. Changes made by other notesctl processes are not seen;
the stream follows mutations made through this process only.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			nb := a.notebook()
			if term != "" {
				if err := nb.UpdateSearchQuery(term); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			for seen := 0; count <= 0 || seen < count; seen++ {
				select {
				case snap, ok := <-nb.Notes():
					if !ok {
						return nil
					}
					fmt.Fprintf(out, "-- %s (%d notes)\n", time.Now().Format("15:04:05"), len(snap.Value))
					if snap.Err != nil {
						fmt.Fprintf(out, "refresh failed: %v\n", snap.Err)
					}
					printNotes(out, snap.Value)
				case <-ctx.Done():
					return nil
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&term, "search", "s", "", "only notes matching this term")
	cmd.Flags().IntVarP(&count, "count", "n", 0, "exit after this many snapshots (0 = until interrupted)")
	return cmd
}
