package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/notekeeper/notekeeper/internal/domain"
	"github.com/notekeeper/notekeeper/internal/livequery"
	"github.com/notekeeper/notekeeper/internal/service"
)

func newTagCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tag",
		Short:   "Manage tags",
		Long:    `Create, list, suggest, recolor or delete tags.`,
		Aliases: []string{"tags"},
	}

	cmd.AddCommand(
		newTagCreateCmd(a),
		newTagListCmd(a),
		newTagSuggestCmd(a),
		newTagUpdateCmd(a),
		newTagRmCmd(a),
	)
	return cmd
}

func newTagCreateCmd(a *app) *cobra.Command {
	var color string

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a tag",
		Long:  `Creates a tag. Names need not be unique. Without --color the default accent color is used.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.run(cmd.Context(), func(nb *service.Notebook) string {
				return nb.CreateTag(args[0])
			})
			if err != nil {
				return err
			}
			if color != "" {
				if _, err := a.run(cmd.Context(), func(nb *service.Notebook) string {
					return nb.UpdateTag(domain.Tag{ID: res.EntityID, Name: args[0], Color: color})
				}); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created tag %d\n", res.EntityID)
			return nil
		},
	}

	cmd.Flags().StringVar(&color, "color", "", "hex color, e.g. #FF5722")
	return cmd
}

func newTagListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Short:   "List tags by name",
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tags, err := livequery.Fetch(cmd.Context(), a.live(), livequery.AllTags())
			if err != nil {
				return err
			}
			printTags(cmd.OutOrStdout(), tags)
			return nil
		},
	}
}

func newTagSuggestCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "suggest INPUT",
		Short: "Suggest existing tags for partial input",
		Long:  `Fuzzy-matches INPUT against tag names. Names starting with INPUT rank first.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tags, err := a.notebook().SuggestTags(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			printTags(cmd.OutOrStdout(), tags)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "maximum number of suggestions")
	return cmd
}

func newTagUpdateCmd(a *app) *cobra.Command {
	var (
		name  string
		color string
	)

	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Rename or recolor a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("tag", args[0])
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("name") && !cmd.Flags().Changed("color") {
				return fmt.Errorf("at least one of --name or --color is required")
			}

			tag, err := a.store().GetTag(cmd.Context(), id)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("name") {
				tag.Name = name
			}
			if cmd.Flags().Changed("color") {
				tag.Color = color
			}

			if _, err := a.run(cmd.Context(), func(nb *service.Notebook) string {
				return nb.UpdateTag(*tag)
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated tag %d\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&color, "color", "", "new hex color")
	return cmd
}

func newTagRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm ID",
		Short:   "Delete a tag and detach it from every note",
		Aliases: []string{"delete"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("tag", args[0])
			if err != nil {
				return err
			}
			if _, err := a.run(cmd.Context(), func(nb *service.Notebook) string {
				return nb.DeleteTag(domain.Tag{ID: id})
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted tag %d\n", id)
			return nil
		},
	}
}

func newAttachCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "attach NOTE_ID TAG_ID",
		Short: "Attach a tag to a note",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			noteID, tagID, err := parseLink(args)
			if err != nil {
				return err
			}
			if _, err := a.run(cmd.Context(), func(nb *service.Notebook) string {
				return nb.AttachTag(noteID, tagID)
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "attached tag %d to note %d\n", tagID, noteID)
			return nil
		},
	}
}

func newDetachCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "detach NOTE_ID TAG_ID",
		Short: "Detach a tag from a note",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			noteID, tagID, err := parseLink(args)
			if err != nil {
				return err
			}
			if _, err := a.run(cmd.Context(), func(nb *service.Notebook) string {
				return nb.DetachTag(noteID, tagID)
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "detached tag %d from note %d\n", tagID, noteID)
			return nil
		},
	}
}

func parseLink(args []string) (noteID, tagID int64, err error) {
	if noteID, err = parseID("note", args[0]); err != nil {
		return 0, 0, err
	}
	if tagID, err = parseID("tag", args[1]); err != nil {
		return 0, 0, err
	}
	return noteID, tagID, nil
}

func printTags(out io.Writer, tags []domain.Tag) {
	if len(tags) == 0 {
		fmt.Fprintln(out, "No tags found.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCOLOR")
	for _, t := range tags {
		fmt.Fprintf(w, "%d\t%s\t%s\n", t.ID, t.Name, t.Color)
	}
	w.Flush()
}
