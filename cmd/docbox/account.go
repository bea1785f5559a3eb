package main

import (
	"context"
	"fmt"

	"github.com/openmined/docbox/internal/client"
	"github.com/openmined/docbox/internal/utils"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newRegisterCmd())
	rootCmd.AddCommand(newConfirmCmd())
	rootCmd.AddCommand(newResendCodeCmd())
	rootCmd.AddCommand(newForgotPasswordCmd())
	rootCmd.AddCommand(newResetPasswordCmd())
}

func newRegisterCmd() *cobra.Command {
	var email, name string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account. The password is read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := utils.ValidateEmail(email); err != nil {
				return err
			}
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				password, err := promptSecret(cmd, "Password: ")
				if err != nil {
					return err
				}
				if err := utils.ValidatePassword(password); err != nil {
					return err
				}

				needsConfirm, err := c.Session().Register(ctx, email, password, name)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if needsConfirm {
					fmt.Fprintf(out, "Account created. A confirmation code was sent to %s\n", cyan.Render(email))
					fmt.Fprintf(out, "Run %s\n", green.Render("docbox confirm --email "+email+" --code <code>"))
					return nil
				}
				fmt.Fprintln(out, green.Render("Account created, you can log in now"))
				return nil
			})
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&name, "name", "n", "", "display name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newConfirmCmd() *cobra.Command {
	var email, code string

	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Confirm a new account with the emailed code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := utils.ValidateCode(code); err != nil {
				return err
			}
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				if err := c.Session().Confirm(ctx, email, code); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), green.Render("Account confirmed"))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVar(&code, "code", "", "confirmation code")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func newResendCodeCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "resend-code",
		Short: "Send a new confirmation code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				if err := c.Session().ResendCode(ctx, email); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Code sent to %s\n", cyan.Render(email))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newForgotPasswordCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Request a password reset code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				if err := c.Session().ForgotPassword(ctx, email); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "If %s has an account, a reset code is on its way\n", cyan.Render(email))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newResetPasswordCmd() *cobra.Command {
	var email, code string

	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set a new password with a reset code. The password is read from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := utils.ValidateCode(code); err != nil {
				return err
			}
			return withClient(cmd, func(ctx context.Context, c *client.Client) error {
				password, err := promptSecret(cmd, "New password: ")
				if err != nil {
					return err
				}
				if err := utils.ValidatePassword(password); err != nil {
					return err
				}
				if err := c.Session().ResetPassword(ctx, email, code, password); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), green.Render("Password updated, log in with the new one"))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVar(&code, "code", "", "reset code")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func promptSecret(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	secret, err := readLine(cmd.InOrStdin())
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return secret, nil
}
