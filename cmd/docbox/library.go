package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/openmined/docbox/internal/client"
	"github.com/openmined/docbox/internal/docsdk"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newMkdirCmd())
	rootCmd.AddCommand(newRemoveCmd())
	rootCmd.AddCommand(newMoveCmd())
	rootCmd.AddCommand(newRestoreCmd())
}

type listing struct {
	Folders   []*docsdk.Folder   `json:"folders" yaml:"folders"`
	Documents []*docsdk.Document `json:"documents" yaml:"documents"`
}

func newListCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:     "ls [folder-id]",
		Aliases: []string{"list"},
		Short:   "List the folders and documents of a folder (root by default)",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var folderID string
			if len(args) == 1 {
				folderID = args[0]
			}

			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				folders, err := c.Folders(ctx, folderID)
				if err != nil {
					return err
				}
				docs, err := c.Documents(ctx, folderID)
				if err != nil {
					return err
				}

				l := listing{Folders: folders, Documents: docs}
				if ok, err := printStructured(cmd.OutOrStdout(), output, l); ok || err != nil {
					return err
				}
				printListing(cmd.OutOrStdout(), l)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format (text, json, yaml)")
	return cmd
}

func printListing(w io.Writer, l listing) {
	if len(l.Folders) == 0 && len(l.Documents) == 0 {
		fmt.Fprintln(w, gray.Render("(empty)"))
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, f := range l.Folders {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", cyan.Render(f.Name+"/"), gray.Render("folder"), "-", lightGray.Render(f.ID))
	}
	for _, d := range l.Documents {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Name, gray.Render(d.ContentType), humanize.IBytes(uint64(d.Size)), lightGray.Render(d.ID))
	}
	tw.Flush()
}

func newSearchCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search documents by name, best matches first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				res, err := c.Search(ctx, args[0])
				if err != nil {
					return err
				}
				if ok, err := printStructured(cmd.OutOrStdout(), output, res); ok || err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(res.Matches) == 0 {
					fmt.Fprintf(out, "No documents match %q\n", res.Query)
					return nil
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				for _, m := range res.Matches {
					fmt.Fprintf(tw, "%.2f\t%s\t%s\n", m.Score, m.Document.Name, lightGray.Render(m.Document.ID))
				}
				return tw.Flush()
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format (text, json, yaml)")
	return cmd
}

func newMkdirCmd() *cobra.Command {
	var parentID string

	cmd := &cobra.Command{
		Use:   "mkdir <name>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				f, err := c.API().Folders.Create(ctx, &docsdk.CreateFolderRequest{Name: args[0], ParentID: parentID})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created %s %s\n", cyan.Render(f.Path), lightGray.Render(f.ID))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&parentID, "parent", "p", "", "parent folder id")
	return cmd
}

const targetHelp = `Targets are document ids, or "folder:<id>" / "doc:<id>".`

func newRemoveCmd() *cobra.Command {
	var permanent bool

	cmd := &cobra.Command{
		Use:   "rm <target>...",
		Short: "Move folders and documents to the trash",
		Long:  "Move folders and documents to the trash. " + targetHelp,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := parseTargets(args)
			if err != nil {
				return err
			}
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				verb := "trashed"
				if permanent {
					verb = "deleted"
				}
				return bulkOutcome(cmd, verb, c.Delete(ctx, targets, permanent))
			})
		},
	}

	cmd.Flags().BoolVar(&permanent, "permanent", false, "delete for good instead of trashing")
	return cmd
}

func newMoveCmd() *cobra.Command {
	var dest string

	cmd := &cobra.Command{
		Use:   "mv <target>... --to <folder-id>",
		Short: "Move folders and documents into a folder",
		Long:  "Move folders and documents into a folder. An empty --to is the root. " + targetHelp,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := parseTargets(args)
			if err != nil {
				return err
			}
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				return bulkOutcome(cmd, "moved", c.Move(ctx, targets, dest))
			})
		},
	}

	cmd.Flags().StringVarP(&dest, "to", "t", "", "destination folder id")
	return cmd
}

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <target>...",
		Short: "Bring trashed folders and documents back",
		Long:  "Bring trashed folders and documents back. " + targetHelp,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := parseTargets(args)
			if err != nil {
				return err
			}
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				return bulkOutcome(cmd, "restored", c.Restore(ctx, targets))
			})
		},
	}
}
