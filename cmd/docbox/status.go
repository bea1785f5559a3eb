package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/openmined/docbox/internal/client"
	"github.com/openmined/docbox/internal/transfer"
	"github.com/openmined/docbox/internal/version"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd())
}

func newStatusCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the session, token refresh and transfer queue state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				st := c.Status()
				if ok, err := printStructured(cmd.OutOrStdout(), output, st); ok || err != nil {
					return err
				}
				printStatus(cmd.OutOrStdout(), st)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format (text, json, yaml)")
	return cmd
}

func printStatus(w io.Writer, st client.Status) {
	keyValue(w, "Version", st.Version)
	keyValue(w, "Server", cyan.Render(st.Server))

	s := st.Session
	state := s.State
	if s.Authenticated {
		state = green.Render(state)
	} else {
		state = yellow.Render(state)
	}
	keyValue(w, "Session", state)
	if s.Email != "" {
		keyValue(w, "Email", s.Email)
	}
	if !s.ExpiresAt.IsZero() {
		keyValue(w, "Expires", humanize.Time(s.ExpiresAt))
	}
	if s.StorageLimit > 0 {
		keyValue(w, "Storage", fmt.Sprintf("%s of %s", humanize.IBytes(uint64(max(s.StorageUsed, 0))), humanize.IBytes(uint64(s.StorageLimit))))
	}
	keyValue(w, "Refresh", fmt.Sprintf("%d requested, %d sent, %d suppressed, %d failed",
		s.Refresh.RefreshRequests, s.Refresh.NetworkRefreshes, s.Refresh.Suppressed, s.Refresh.Failures))

	for _, q := range st.Queues {
		keyValue(w, q.Name, queueLine(q))
	}
	keyValue(w, "HTTP", fmt.Sprintf("%s sent, %s received", humanize.IBytes(uint64(st.HTTP.BytesSentTotal)), humanize.IBytes(uint64(st.HTTP.BytesRecvTotal))))
}

func queueLine(q transfer.Summary) string {
	if len(q.Counts) == 0 {
		return gray.Render("idle")
	}
	parts := make([]string, 0, len(q.Counts))
	for _, s := range []transfer.Status{transfer.Pending, transfer.Active, transfer.Completed, transfer.Error, transfer.Cancelled} {
		if n := q.Counts[s]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, s))
		}
	}
	return fmt.Sprintf("%s (%d%%)", strings.Join(parts, ", "), q.Progress)
}

func newVersionCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print docbox version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ok, err := printStructured(cmd.OutOrStdout(), output, version.Current()); ok || err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Detailed())
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format (text, json, yaml)")
	return cmd
}

func newConfigCmd() *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the merged configuration, optionally saving it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if save {
				if err := cfg.Save(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Saved %s\n", green.Render(cfg.Path))
			}
			_, err = printStructured(cmd.OutOrStdout(), outputJSON, cfg)
			return err
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "write the merged configuration to the config file")
	return cmd
}
