package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/docbox/internal/devserver"
	"github.com/openmined/docbox/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "DOCBOX_DEV"

var rootCmd = &cobra.Command{
	Use:     "docbox-devserver",
	Short:   "Local docbox API server",
	Version: version.Detailed(),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true

		srv, err := devserver.New(cfg)
		if err != nil {
			return err
		}
		defer slog.Info("Bye!")
		return srv.Start(cmd.Context())
	},
}

func init() {
	d := devserver.DefaultConfig()
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringP("config", "c", "", "config file (json, yaml or toml)")
	rootCmd.Flags().StringP("bind", "b", d.Addr, "address to bind the server")
	rootCmd.Flags().String("public-url", "", "base url clients reach the server at (defaults to http://<bind>)")
	rootCmd.Flags().Bool("skip-confirmation", false, "mark new accounts confirmed right away")
	rootCmd.Flags().String("rate-limit", d.RateLimit, "request rate limit, e.g. 100-S; empty disables it")
}

func main() {
	slog.SetDefault(slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("devserver", "error", err)
		stop()
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*devserver.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("dotenv load", "error", err)
	}

	v := viper.New()
	setDefaults(v, devserver.DefaultConfig())

	if f := cmd.Flag("config"); f != nil && f.Value.String() != "" {
		v.SetConfigFile(f.Value.String())
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	for key, flag := range map[string]string{
		"addr":                   "bind",
		"public_url":             "public-url",
		"auth.skip_confirmation": "skip-confirmation",
		"rate_limit":             "rate-limit",
	} {
		if f := cmd.Flag(flag); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}

	// DOCBOX_DEV_AUTH_ACCESS_TOKEN_SECRET sets auth.access_token_secret
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := devserver.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	return cfg, cfg.Validate()
}

// setDefaults registers every key so env vars can reach it through Unmarshal.
func setDefaults(v *viper.Viper, d *devserver.Config) {
	v.SetDefault("addr", d.Addr)
	v.SetDefault("public_url", d.PublicURL)
	v.SetDefault("rate_limit", d.RateLimit)
	v.SetDefault("storage_limit", d.StorageLimit)
	v.SetDefault("job_delay", d.JobDelay)
	v.SetDefault("secure", d.Secure)

	v.SetDefault("auth.token_issuer", d.Auth.TokenIssuer)
	v.SetDefault("auth.access_token_secret", d.Auth.AccessTokenSecret)
	v.SetDefault("auth.access_token_expiry", d.Auth.AccessTokenExpiry)
	v.SetDefault("auth.refresh_token_secret", d.Auth.RefreshTokenSecret)
	v.SetDefault("auth.refresh_token_expiry", d.Auth.RefreshTokenExpiry)
	v.SetDefault("auth.code_expiry", d.Auth.CodeExpiry)
	v.SetDefault("auth.skip_confirmation", d.Auth.SkipConfirmation)

	v.SetDefault("blob.bucket_name", d.Blob.Bucket)
	v.SetDefault("blob.region", d.Blob.Region)
	v.SetDefault("blob.access_key", d.Blob.AccessKey)
	v.SetDefault("blob.secret_key", d.Blob.SecretKey)
	v.SetDefault("blob.endpoint", d.Blob.Endpoint)
	v.SetDefault("blob.url_expiry", d.Blob.URLExpiry)
	v.SetDefault("blob.signing_key", d.Blob.SigningKey)
}
