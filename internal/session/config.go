package session

import "time"

const (
	DefaultRefreshLead        = 5 * time.Minute
	DefaultMinInterval        = 10 * time.Second
	DefaultSignalPollInterval = 5 * time.Second
	DefaultSignalTTL          = 30 * time.Second
	DefaultRetryDelay         = 30 * time.Second
	DefaultSessionTTL         = 30 * 24 * time.Hour
)

// Config holds the refresh policy. Zero fields take the defaults.
type Config struct {
	// RefreshLead is how long before expiry a proactive refresh fires.
	RefreshLead time.Duration
	// MinInterval suppresses refresh attempts made this soon after a completed one.
	MinInterval time.Duration
	// SignalPollInterval is how often the refresh_needed flag is polled.
	SignalPollInterval time.Duration
	// SignalTTL is the lifetime of a raised refresh_needed flag.
	SignalTTL time.Duration
	// RetryDelay re-arms the scheduler after a transport failure.
	RetryDelay time.Duration
	// SessionTTL bounds the channel keys that outlive the access token.
	SessionTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.RefreshLead <= 0 {
		c.RefreshLead = DefaultRefreshLead
	}
	if c.MinInterval <= 0 {
		c.MinInterval = DefaultMinInterval
	}
	if c.SignalPollInterval <= 0 {
		c.SignalPollInterval = DefaultSignalPollInterval
	}
	if c.SignalTTL <= 0 {
		c.SignalTTL = DefaultSignalTTL
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = DefaultSessionTTL
	}
	return c
}
