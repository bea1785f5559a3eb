package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/openmined/docbox/internal/client"
	"github.com/openmined/docbox/internal/docsdk"
	"github.com/openmined/docbox/internal/transfer"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newDownloadCmd())
	rootCmd.AddCommand(newSplitCmd())
}

func newUploadCmd() *cobra.Command {
	var folderID string
	var include, exclude []string

	cmd := &cobra.Command{
		Use:   "upload <path>...",
		Short: "Upload files, or whole directories filtered by globs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := client.CollectFiles(args, include, exclude)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return client.ErrNoFiles
			}

			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				ids, err := c.Upload(folderID, files...)
				if err != nil {
					return err
				}

				var total int64
				for _, f := range files {
					total += f.Size
				}
				title := fmt.Sprintf("Uploading %d file(s), %s", len(files), humanize.IBytes(uint64(total)))

				rows := rowsFor(c.Uploads, ids,
					func(it transfer.Item[transfer.UploadPayload, transfer.UploadResult]) string {
						return it.Payload.Name
					},
					func(it transfer.Item[transfer.UploadPayload, transfer.UploadResult]) string {
						return it.Result.DocumentID
					},
				)
				_, err = runTransfers(cmd, c, title, rows)
				return err
			})
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringVarP(&folderID, "folder", "f", "", "destination folder id (root by default)")
	cmd.Flags().StringSliceVarP(&include, "include", "i", nil, "glob of files to pick inside directories, e.g. '**/*.pdf'")
	cmd.Flags().StringSliceVarP(&exclude, "exclude", "x", nil, "glob of files to skip inside directories")
	return cmd
}

func newDownloadCmd() *cobra.Command {
	var destDir, archive string

	cmd := &cobra.Command{
		Use:   "download <document-id>...",
		Short: "Download documents. Several documents end up in one zip archive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				docs := make([]*docsdk.Document, 0, len(args))
				for _, id := range args {
					d, err := c.API().Documents.Get(ctx, id)
					if err != nil {
						return fmt.Errorf("document %s: %w", id, err)
					}
					docs = append(docs, d)
				}

				id := c.Download(destDir, archive, docs...)
				rows := rowsFor(c.Downloads, []string{id},
					func(it transfer.Item[transfer.DownloadPayload, transfer.DownloadResult]) string {
						pl := it.Payload
						if pl.IsBundle() && pl.CurrentFile != "" && it.Status == transfer.Active {
							return fmt.Sprintf("%s (%d/%d %s)", pl.DisplayName(), pl.CurrentFileIndex+1, pl.FileCount, pl.CurrentFile)
						}
						return pl.DisplayName()
					},
					func(it transfer.Item[transfer.DownloadPayload, transfer.DownloadResult]) string {
						return it.Result.Path
					},
				)
				_, err := runTransfers(cmd, c, fmt.Sprintf("Downloading %d document(s)", len(docs)), rows)
				return err
			})
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringVarP(&destDir, "dest", "o", "", "destination directory (config download_dir by default)")
	cmd.Flags().StringVarP(&archive, "archive", "a", "", "zip name when downloading several documents")
	return cmd
}

func newSplitCmd() *cobra.Command {
	var (
		mode     string
		chunk    int
		ranges   []string
		pages    []int
		folderID string
		output   string
	)

	cmd := &cobra.Command{
		Use:   "split <document-id>",
		Short: "Split a PDF into several documents",
		Long: `Split a PDF into several documents.

Modes:
  all      one document per page
  chunks   documents of --chunk pages each
  ranges   one document per --range, e.g. --range 1-3 --range 7
  pages    one document per --page`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := transfer.ParseMode(mode)
			if err != nil {
				return err
			}
			parsed, err := parseRanges(ranges)
			if err != nil {
				return err
			}

			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				doc, err := c.API().Documents.Get(ctx, args[0])
				if err != nil {
					return err
				}

				id := c.Split(doc, transfer.ProcessingPayload{
					Mode:      m,
					ChunkSize: chunk,
					Ranges:    parsed,
					Pages:     pages,
					FolderID:  folderID,
				})

				rows := rowsFor(c.Processing, []string{id},
					func(it transfer.Item[transfer.ProcessingPayload, transfer.ProcessingResult]) string {
						return fmt.Sprintf("%s (%s)", it.Payload.Name, it.Payload.Mode)
					},
					func(it transfer.Item[transfer.ProcessingPayload, transfer.ProcessingResult]) string {
						if it.Status != transfer.Completed {
							return ""
						}
						return fmt.Sprintf("%d document(s) created", it.Result.OutputCount)
					},
				)
				_, runErr := runTransfers(cmd, c, "Splitting "+doc.Name, rows)
				if runErr != nil {
					return runErr
				}

				it, ok := c.Processing.Get(id)
				if !ok {
					return errors.New("split item vanished")
				}
				if handled, err := printStructured(cmd.OutOrStdout(), output, it.Result); handled || err != nil {
					return err
				}
				for _, e := range it.Result.Manifest {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", e.Name, gray.Render(fmt.Sprintf("%d page(s)", e.PageCount)), lightGray.Render(e.DocumentID))
				}
				return nil
			})
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringVarP(&mode, "mode", "m", string(transfer.ModeAll), "split mode (all, chunks, ranges, pages)")
	cmd.Flags().IntVar(&chunk, "chunk", 0, "pages per document in chunks mode")
	cmd.Flags().StringArrayVar(&ranges, "range", nil, "page range in ranges mode, e.g. 2-5")
	cmd.Flags().IntSliceVar(&pages, "page", nil, "page number in pages mode")
	cmd.Flags().StringVarP(&folderID, "folder", "f", "", "folder for the new documents (the source folder by default)")
	cmd.Flags().StringVar(&output, "output", outputText, "manifest output format (text, json, yaml)")
	return cmd
}

// parseRanges reads "3" and "2-5" style ranges.
func parseRanges(raw []string) ([]transfer.PageRange, error) {
	out := make([]transfer.PageRange, 0, len(raw))
	for _, r := range raw {
		from, to, isRange := strings.Cut(strings.TrimSpace(r), "-")
		if !isRange {
			to = from
		}
		f, err := strconv.Atoi(strings.TrimSpace(from))
		if err != nil {
			return nil, fmt.Errorf("invalid range %q", r)
		}
		t, err := strconv.Atoi(strings.TrimSpace(to))
		if err != nil {
			return nil, fmt.Errorf("invalid range %q", r)
		}
		out = append(out, transfer.PageRange{From: f, To: t})
	}
	return out, nil
}
