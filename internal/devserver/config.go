package devserver

import (
	"fmt"
	"time"

	"github.com/openmined/docbox/internal/utils"
)

const DefaultAddr = "127.0.0.1:8080"

type Config struct {
	Addr string `mapstructure:"addr"`
	// PublicURL prefixes the locally signed upload urls. Defaults to http://Addr.
	PublicURL string     `mapstructure:"public_url"`
	Auth      AuthConfig `mapstructure:"auth"`
	Blob      BlobConfig `mapstructure:"blob"`
	// RateLimit in ulule/limiter format, e.g. "50-S". Empty disables limiting.
	RateLimit    string        `mapstructure:"rate_limit"`
	StorageLimit int64         `mapstructure:"storage_limit"`
	JobDelay     time.Duration `mapstructure:"job_delay"`
	// Secure enables HSTS and the other browser hardening headers.
	Secure bool `mapstructure:"secure"`
}

type AuthConfig struct {
	TokenIssuer        string        `mapstructure:"token_issuer"`
	AccessTokenSecret  string        `mapstructure:"access_token_secret"`
	AccessTokenExpiry  time.Duration `mapstructure:"access_token_expiry"`
	RefreshTokenSecret string        `mapstructure:"refresh_token_secret"`
	RefreshTokenExpiry time.Duration `mapstructure:"refresh_token_expiry"`
	CodeExpiry         time.Duration `mapstructure:"code_expiry"`
	// SkipConfirmation marks new accounts confirmed right away.
	SkipConfirmation bool `mapstructure:"skip_confirmation"`
	// OnCode receives every confirmation and reset code instead of an email.
	OnCode func(email, purpose, code string) `mapstructure:"-"`
}

// BlobConfig selects where presigned uploads land. An empty Bucket keeps bytes in memory
// behind locally signed urls.
type BlobConfig struct {
	Bucket    string        `mapstructure:"bucket_name"`
	Region    string        `mapstructure:"region"`
	AccessKey string        `mapstructure:"access_key"`
	SecretKey string        `mapstructure:"secret_key"`
	Endpoint  string        `mapstructure:"endpoint"`
	URLExpiry time.Duration `mapstructure:"url_expiry"`
	// SigningKey signs local upload urls.
	SigningKey string `mapstructure:"signing_key"`
}

func DefaultConfig() *Config {
	return &Config{
		Addr: DefaultAddr,
		Auth: AuthConfig{
			TokenIssuer:        "docbox-devserver",
			AccessTokenSecret:  "dev-access-secret",
			AccessTokenExpiry:  time.Hour,
			RefreshTokenSecret: "dev-refresh-secret",
			RefreshTokenExpiry: 30 * 24 * time.Hour,
			CodeExpiry:         15 * time.Minute,
		},
		Blob: BlobConfig{
			URLExpiry:  15 * time.Minute,
			SigningKey: "dev-signing-key",
		},
		RateLimit:    "100-S",
		StorageLimit: 1 << 30,
		JobDelay:     200 * time.Millisecond,
	}
}

func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("`addr` is required")
	}
	if c.PublicURL == "" {
		c.PublicURL = "http://" + c.Addr
	}
	if err := utils.ValidateURL(c.PublicURL); err != nil {
		return fmt.Errorf("`public_url`: %w", err)
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Blob.Validate()
}

func (c *AuthConfig) Validate() error {
	if c.TokenIssuer == "" {
		return fmt.Errorf("auth `token_issuer` is required")
	}
	if c.AccessTokenSecret == "" {
		return fmt.Errorf("auth `access_token_secret` is required")
	}
	if c.RefreshTokenSecret == "" {
		return fmt.Errorf("auth `refresh_token_secret` is required")
	}
	if c.AccessTokenExpiry <= 0 {
		return fmt.Errorf("auth `access_token_expiry` must be positive")
	}
	if c.CodeExpiry <= 0 {
		c.CodeExpiry = 15 * time.Minute
	}
	return nil
}

func (c *BlobConfig) Validate() error {
	if c.URLExpiry <= 0 {
		c.URLExpiry = 15 * time.Minute
	}
	if c.Bucket == "" {
		if c.SigningKey == "" {
			return fmt.Errorf("blob `signing_key` is required without a bucket")
		}
		return nil
	}
	if c.Region == "" {
		return fmt.Errorf("blob `region` is required")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return fmt.Errorf("blob `access_key` and `secret_key` are required")
	}
	if c.Endpoint != "" {
		if err := utils.ValidateURL(c.Endpoint); err != nil {
			return fmt.Errorf("blob `endpoint`: %w", err)
		}
	}
	return nil
}
