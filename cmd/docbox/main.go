package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/docbox/internal/client/config"
	"github.com/openmined/docbox/internal/utils"
	"github.com/openmined/docbox/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	home, _        = os.UserHomeDir()
	configFileName = "config"
	verbose        bool
)

var rootCmd = &cobra.Command{
	Use:           "docbox",
	Short:         "Docbox CLI",
	Version:       version.Detailed(),
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().SortFlags = false
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "docbox config file")
	rootCmd.PersistentFlags().StringP("server", "s", config.DefaultServerURL, "docbox api server")
	rootCmd.PersistentFlags().StringP("datadir", "d", config.DefaultConfigDir, "directory holding the session store")
	rootCmd.PersistentFlags().String("kv-backend", config.DefaultBackend, "session store backend (file, sqlite, memory)")
	rootCmd.PersistentFlags().IntP("concurrency", "j", config.DefaultConcurrency, "workers per transfer queue")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stdout")
}

func main() {
	logFile := config.DefaultLogFilePath

	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
		os.Exit(1)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	stdoutLevel := new(slog.LevelVar)
	stdoutLevel.Set(slog.LevelWarn)

	// stdout only shows warnings unless --verbose; the file gets everything
	stdoutHandler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      stdoutLevel,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
	logInterceptor := utils.NewLogInterceptor(file)
	fileHandler := slog.NewTextHandler(logInterceptor, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		// time is added by the interceptor
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(stdoutHandler, fileHandler)))

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if verbose {
			stdoutLevel.Set(slog.LevelDebug)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(err)
		stop()
		file.Close()
		os.Exit(1)
	}
}

// loadConfig merges .env, the config file, DOCBOX_* env vars and flags, in increasing priority.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("dotenv load", "error", err)
	}

	v := viper.New()
	config.SetDefaults(v)

	if f := cmd.Flag("config"); f != nil && f.Changed {
		v.SetConfigFile(f.Value.String())
	} else if p := os.Getenv(config.EnvPrefix + "_CONFIG_PATH"); p != "" {
		v.SetConfigFile(p)
	} else {
		v.AddConfigPath(config.DefaultConfigDir)
		v.AddConfigPath(filepath.Join(home, ".config", "docbox"))
		v.SetConfigName(configFileName)
		v.SetConfigType("json")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	for key, flag := range map[string]string{
		"server_url":  "server",
		"data_dir":    "datadir",
		"kv_backend":  "kv-backend",
		"concurrency": "concurrency",
	} {
		if f := cmd.Flag(flag); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}

	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()

	return config.FromViper(v)
}
