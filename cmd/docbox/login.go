package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/openmined/docbox/internal/client"
	"github.com/openmined/docbox/internal/session"
	"github.com/openmined/docbox/internal/utils"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newWhoamiCmd())
}

func newLoginCmd() *cobra.Command {
	var email string
	var passwordStdin bool
	var quiet bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the docbox server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			ctx := cmd.Context()

			c, err := openClient(cmd)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := checkRoute(ctx, cmd, c); err != nil {
				if !errors.Is(err, errAlreadyLoggedIn) {
					return err
				}
				if !quiet {
					fmt.Fprintln(cmd.OutOrStdout(), green.Render("**Already logged in**"))
					printProfile(cmd.OutOrStdout(), c)
				}
				return nil
			}

			submit := func(email, password string) error {
				_, err := c.Session().Login(ctx, email, password)
				return err
			}

			if passwordStdin {
				if err := utils.ValidateEmail(email); err != nil {
					return err
				}
				password, err := readLine(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				if err := submit(email, password); err != nil {
					return err
				}
			} else {
				if !isatty.IsTerminal(os.Stdin.Fd()) {
					return errors.New("no terminal for the login form; use --email with --password-stdin")
				}
				if err := RunLoginTUI(LoginTUIOpts{
					Email:          email,
					ServerURL:      c.Config().ServerURL,
					ConfigPath:     c.Config().Path,
					Submit:         submit,
					EmailValidator: utils.ValidateEmail,
				}); err != nil {
					return err
				}
			}

			if !quiet {
				fmt.Fprintln(cmd.OutOrStdout(), green.Render("Logged in"))
				printProfile(cmd.OutOrStdout(), c)
			}
			return nil
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin instead of the login form")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "disable output")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				if !c.Session().Session().IsAuthenticated() {
					fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
					return nil
				}
				if err := c.Session().Logout(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), green.Render("Logged out"))
				return nil
			})
		},
	}
}

func newWhoamiCmd() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				if refresh {
					if _, err := c.Session().FetchProfile(ctx); err != nil {
						if errors.Is(err, session.ErrRejected) {
							return errLoginRequired
						}
						return err
					}
				}
				printProfile(cmd.OutOrStdout(), c)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&refresh, "refresh", "r", false, "reload the profile from the server")
	return cmd
}

func printProfile(w io.Writer, c *client.Client) {
	snap := c.Session().Session()
	if snap.User == nil {
		keyValue(w, "Server", cyan.Render(c.Config().ServerURL))
		return
	}

	u := snap.User
	keyValue(w, "Email", cyan.Render(u.Email))
	if u.Name != "" {
		keyValue(w, "Name", u.Name)
	}
	keyValue(w, "Server", cyan.Render(c.Config().ServerURL))
	if u.StorageLimit > 0 {
		keyValue(w, "Storage", fmt.Sprintf("%s of %s", humanize.IBytes(uint64(max(u.StorageUsed, 0))), humanize.IBytes(uint64(u.StorageLimit))))
	}
	if !snap.ExpiresAt.IsZero() {
		keyValue(w, "Expires", humanize.Time(snap.ExpiresAt))
	}
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty input")
	}
	return line, nil
}
