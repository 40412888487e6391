package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/notekeeper/notekeeper/internal/domain"
	"github.com/notekeeper/notekeeper/internal/livequery"
	"github.com/notekeeper/notekeeper/internal/service"
)

func newAddCmd(a *app) *cobra.Command {
	var (
		content  string
		category string
		tags     []int64
	)

	cmd := &cobra.Command{
		Use:   "add TITLE",
		Short: "Create a note",
		Long:  `Creates a note and links it to the given tag IDs in one transaction.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			note := domain.Note{Title: args[0], Content: content, Category: category}
			res, err := a.run(cmd.Context(), func(nb *service.Notebook) string {
				return nb.CreateNote(note, tags)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created note %d\n", res.EntityID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&content, "content", "c", "", "note body")
	cmd.Flags().StringVar(&category, "category", "", "note category")
	cmd.Flags().Int64SliceVarP(&tags, "tag", "t", nil, "tag ID to attach (repeatable)")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	var (
		withTags bool
		tagID    int64
	)

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List notes",
		Long:    `Lists notes newest first. With --with-tags, notes are ordered by last update and show their tags.`,
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			switch {
			case withTags:
				notes, err := livequery.Fetch(ctx, a.live(), livequery.AllNotesWithTags())
				if err != nil {
					return err
				}
				printNotesWithTags(cmd.OutOrStdout(), notes)
				return nil
			case tagID > 0:
				notes, err := livequery.Fetch(ctx, a.live(), livequery.NotesByTag(tagID))
				if err != nil {
					return err
				}
				printNotes(cmd.OutOrStdout(), notes)
				return nil
			default:
				notes, err := livequery.Fetch(ctx, a.live(), livequery.AllNotes())
				if err != nil {
					return err
				}
				printNotes(cmd.OutOrStdout(), notes)
				return nil
			}
		},
	}

	cmd.Flags().BoolVarP(&withTags, "with-tags", "w", false, "show each note's tags")
	cmd.Flags().Int64Var(&tagID, "tag", 0, "only notes carrying this tag ID")
	return cmd
}

func newSearchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search TERM",
		Short: "Find notes whose title or content contains TERM",
		Long:  `Case-insensitive substring search over title and content. A blank term lists every note.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := livequery.AllNotes()
			if strings.TrimSpace(args[0]) != "" {
				q = livequery.Search(args[0])
			}
			notes, err := livequery.Fetch(cmd.Context(), a.live(), q)
			if err != nil {
				return err
			}
			printNotes(cmd.OutOrStdout(), notes)
			return nil
		},
	}
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one note with its tags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("note", args[0])
			if err != nil {
				return err
			}
			nwt, err := livequery.Fetch(cmd.Context(), a.live(), livequery.NoteWithTags(id))
			if err != nil {
				return err
			}
			if nwt == nil {
				return fmt.Errorf("note %d not found", id)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "ID:       %d\n", nwt.Note.ID)
			fmt.Fprintf(w, "Title:    %s\n", nwt.Note.Title)
			fmt.Fprintf(w, "Category: %s\n", nwt.Note.Category)
			fmt.Fprintf(w, "Created:  %s\n", nwt.Note.CreatedAt.Local().Format("2006-01-02 15:04"))
			fmt.Fprintf(w, "Updated:  %s\n", nwt.Note.UpdatedAt.Local().Format("2006-01-02 15:04"))
			fmt.Fprintf(w, "Tags:     %s\n", tagList(nwt.Tags))
			if nwt.Note.Content != "" {
				fmt.Fprintf(w, "\n%s\n", nwt.Note.Content)
			}
			return nil
		},
	}
}

func newEditCmd(a *app) *cobra.Command {
	var (
		title     string
		content   string
		category  string
		tags      []int64
		clearTags bool
	)

	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Update a note",
		Long: `Updates the fields given as flags. --tag replaces the whole tag set
atomically with the field update. --clear-tags removes every tag.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("note", args[0])
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if !flags.Changed("title") && !flags.Changed("content") && !flags.Changed("category") && !flags.Changed("tag") && !clearTags {
				return fmt.Errorf("at least one of --title, --content, --category, --tag or --clear-tags is required")
			}

			note, err := a.notebook().GetNote(cmd.Context(), id)
			if err != nil {
				return err
			}
			if flags.Changed("title") {
				note.Title = title
			}
			if flags.Changed("content") {
				note.Content = content
			}
			if flags.Changed("category") {
				note.Category = category
			}

			_, err = a.run(cmd.Context(), func(nb *service.Notebook) string {
				if clearTags {
					return nb.UpdateNoteWithTags(*note, nil)
				}
				if flags.Changed("tag") {
					return nb.UpdateNoteWithTags(*note, tags)
				}
				return nb.UpdateNote(*note)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated note %d\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVarP(&content, "content", "c", "", "new body")
	cmd.Flags().StringVar(&category, "category", "", "new category")
	cmd.Flags().Int64SliceVarP(&tags, "tag", "t", nil, "replace tags with these IDs (repeatable)")
	cmd.Flags().BoolVar(&clearTags, "clear-tags", false, "remove every tag")
	cmd.MarkFlagsMutuallyExclusive("tag", "clear-tags")
	return cmd
}

func newRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm ID",
		Short:   "Delete a note and its tag links",
		Aliases: []string{"delete"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("note", args[0])
			if err != nil {
				return err
			}
			if _, err := a.run(cmd.Context(), func(nb *service.Notebook) string {
				return nb.DeleteNote(domain.Note{ID: id})
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted note %d\n", id)
			return nil
		},
	}
}

func printNotes(out io.Writer, notes []domain.Note) {
	if len(notes) == 0 {
		fmt.Fprintln(out, "No notes found.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tCATEGORY\tUPDATED")
	for _, n := range notes {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", n.ID, n.Title, n.Category, n.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}

func printNotesWithTags(out io.Writer, notes []domain.NoteWithTags) {
	if len(notes) == 0 {
		fmt.Fprintln(out, "No notes found.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tTAGS")
	for _, n := range notes {
		fmt.Fprintf(w, "%d\t%s\t%s\n", n.Note.ID, n.Note.Title, tagList(n.Tags))
	}
	w.Flush()
}

func tagList(tags []domain.Tag) string {
	if len(tags) == 0 {
		return "-"
	}
	names := make([]string, len(tags))
	for i, t := range tags {
		names[i] = t.Name
	}
	return strings.Join(names, ", ")
}
