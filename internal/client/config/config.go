package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/openmined/docbox/internal/kv"
	"github.com/openmined/docbox/internal/session"
	"github.com/openmined/docbox/internal/transfer"
	"github.com/openmined/docbox/internal/utils"
	"github.com/spf13/viper"
)

const (
	EnvPrefix        = "DOCBOX"
	DefaultServerURL = "https://api.docbox.dev"
	DefaultBackend   = kv.BackendFile

	DefaultConcurrency      = 4
	DefaultPresignThreshold = "5MiB"
	DefaultJobPollInterval  = 2 * time.Second
)

var (
	home, _            = os.UserHomeDir()
	DefaultConfigDir   = filepath.Join(home, ".docbox")
	DefaultConfigPath  = filepath.Join(DefaultConfigDir, "config.json")
	DefaultLogFilePath = filepath.Join(DefaultConfigDir, "logs", "docbox.log")
	DefaultDownloadDir = filepath.Join(home, "Downloads")
)

var (
	ErrServerURL   = errors.New("config: invalid server url")
	ErrBackend     = errors.New("config: invalid kv backend")
	ErrThreshold   = errors.New("config: invalid presign threshold")
	ErrConcurrency = errors.New("config: concurrency must be between 1 and 32")
)

type Config struct {
	ServerURL string `json:"server_url" mapstructure:"server_url"`
	// DataDir holds the session store.
	DataDir     string `json:"data_dir" mapstructure:"data_dir"`
	DownloadDir string `json:"download_dir" mapstructure:"download_dir"`
	KVBackend   string `json:"kv_backend" mapstructure:"kv_backend"`
	Concurrency int    `json:"concurrency" mapstructure:"concurrency"`
	// PresignThreshold is a human readable size, e.g. "5MiB".
	PresignThreshold   string        `json:"presign_threshold" mapstructure:"presign_threshold"`
	RefreshLead        time.Duration `json:"refresh_lead,omitempty" mapstructure:"refresh_lead"`
	MinRefreshInterval time.Duration `json:"min_refresh_interval,omitempty" mapstructure:"min_refresh_interval"`
	SignalPollInterval time.Duration `json:"signal_poll_interval,omitempty" mapstructure:"signal_poll_interval"`
	JobPollInterval    time.Duration `json:"job_poll_interval,omitempty" mapstructure:"job_poll_interval"`
	Path               string        `json:"-" mapstructure:"-"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		ServerURL:        DefaultServerURL,
		DataDir:          DefaultConfigDir,
		DownloadDir:      DefaultDownloadDir,
		KVBackend:        DefaultBackend,
		Concurrency:      DefaultConcurrency,
		PresignThreshold: DefaultPresignThreshold,
		JobPollInterval:  DefaultJobPollInterval,
		Path:             DefaultConfigPath,
	}
}

// SetDefaults registers the defaults with v so that env and flags override them.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("server_url", d.ServerURL)
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("download_dir", d.DownloadDir)
	v.SetDefault("kv_backend", d.KVBackend)
	v.SetDefault("concurrency", d.Concurrency)
	v.SetDefault("presign_threshold", d.PresignThreshold)
	v.SetDefault("job_poll_interval", d.JobPollInterval)
}

// FromViper decodes and validates the merged configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	if used := v.ConfigFileUsed(); used != "" {
		cfg.Path = used
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values and resolves paths to absolute ones.
func (c *Config) Validate() error {
	if err := utils.ValidateURL(c.ServerURL); err != nil {
		return fmt.Errorf("%w: %w", ErrServerURL, err)
	}

	switch c.KVBackend {
	case kv.BackendFile, kv.BackendSqlite, kv.BackendMemory:
	case "":
		c.KVBackend = DefaultBackend
	default:
		return fmt.Errorf("%w: %q", ErrBackend, c.KVBackend)
	}

	if c.Concurrency == 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.Concurrency < 1 || c.Concurrency > 32 {
		return ErrConcurrency
	}

	if c.PresignThreshold == "" {
		c.PresignThreshold = DefaultPresignThreshold
	}
	if _, err := humanize.ParseBytes(c.PresignThreshold); err != nil {
		return fmt.Errorf("%w: %w", ErrThreshold, err)
	}

	for _, p := range []*string{&c.DataDir, &c.DownloadDir, &c.Path} {
		if *p == "" {
			continue
		}
		resolved, err := utils.ResolvePath(*p)
		if err != nil {
			return fmt.Errorf("config path %q: %w", *p, err)
		}
		*p = resolved
	}

	return nil
}

// Save writes the config as JSON to c.Path.
func (c *Config) Save() error {
	if c.Path == "" {
		c.Path = DefaultConfigPath
	}
	if err := utils.EnsureParent(c.Path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.Path, data, 0o600)
}

// PresignThresholdBytes is the parsed PresignThreshold. Invalid values fall back to the default.
func (c *Config) PresignThresholdBytes() int64 {
	n, err := humanize.ParseBytes(c.PresignThreshold)
	if err != nil || n == 0 {
		return transfer.DefaultPresignThreshold
	}
	return int64(n)
}

func (c *Config) UploadPolicy() transfer.UploadPolicy {
	return transfer.UploadPolicy{PresignThreshold: c.PresignThresholdBytes()}
}

func (c *Config) SessionConfig() session.Config {
	return session.Config{
		RefreshLead:        c.RefreshLead,
		MinInterval:        c.MinRefreshInterval,
		SignalPollInterval: c.SignalPollInterval,
	}
}
