package session

import (
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Keys of the secondary channel.
const (
	KeyAccessToken   = "access_token"
	KeyRefreshToken  = "refresh_token"
	KeyExpiresAt     = "expires_at"
	KeySession       = "session"
	KeyAuthenticated = "authenticated"
	KeyRefreshNeeded = "refresh_needed"
)

var projectedKeys = []string{KeyAccessToken, KeyRefreshToken, KeyExpiresAt, KeySession, KeyAuthenticated}

type entry struct {
	value   string
	expires time.Time
}

// Channel is a small set of named string values, each with its own expiry. Reads never
// block on I/O. The projected keys are written only by the Manager; refresh_needed is
// raised by the Guard and consumed by the Manager.
type Channel struct {
	clock   Clock
	mu      sync.RWMutex
	entries map[string]entry
	notify  chan struct{}
}

func NewChannel(clock Clock) *Channel {
	if clock == nil {
		clock = SystemClock
	}
	return &Channel{
		clock:   clock,
		entries: make(map[string]entry),
		notify:  make(chan struct{}, 1),
	}
}

// Get returns the value of key unless it is absent or expired.
func (c *Channel) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || !c.clock.Now().Before(e.expires) {
		return "", false
	}
	return e.value, true
}

// Snapshot returns every live key.
func (c *Channel) Snapshot() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.clock.Now()
	out := make(map[string]string, len(c.entries))
	for k, e := range c.entries {
		if now.Before(e.expires) {
			out[k] = e.value
		}
	}
	return out
}

// RaiseRefreshNeeded sets the short lived refresh flag and wakes the manager.
func (c *Channel) RaiseRefreshNeeded(ttl time.Duration) {
	c.mu.Lock()
	c.entries[KeyRefreshNeeded] = entry{value: "true", expires: c.clock.Now().Add(ttl)}
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *Channel) RefreshNeeded() bool {
	_, ok := c.Get(KeyRefreshNeeded)
	return ok
}

// Notify fires after RaiseRefreshNeeded. Only the Manager should receive from it.
func (c *Channel) Notify() <-chan struct{} {
	return c.notify
}

func (c *Channel) consumeRefreshNeeded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, KeyRefreshNeeded)
}

// sessionBlob is the composite value stored under KeySession. Tokens are projected
// under their own keys and never repeated here.
type sessionBlob struct {
	User            *Profile  `json:"user,omitempty"`
	IsAuthenticated bool      `json:"isAuthenticated"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

// project mirrors s into the channel. An unauthenticated session clears every key,
// refresh_needed included.
func (c *Channel) project(s Session, sessionTTL time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !s.IsAuthenticated() {
		clear(c.entries)
		return
	}

	now := c.clock.Now()
	sessionExp := now.Add(sessionTTL)
	accessExp := s.ExpiresAt
	if accessExp.IsZero() {
		accessExp = sessionExp
	}

	blob, _ := json.Marshal(sessionBlob{User: s.User, IsAuthenticated: true, ExpiresAt: s.ExpiresAt})

	c.entries[KeyAccessToken] = entry{value: s.Tokens.AccessToken, expires: accessExp}
	if s.Tokens.RefreshToken != "" {
		c.entries[KeyRefreshToken] = entry{value: s.Tokens.RefreshToken, expires: sessionExp}
	} else {
		delete(c.entries, KeyRefreshToken)
	}
	if !s.ExpiresAt.IsZero() {
		c.entries[KeyExpiresAt] = entry{value: strconv.FormatInt(s.ExpiresAt.Unix(), 10), expires: sessionExp}
	} else {
		delete(c.entries, KeyExpiresAt)
	}
	c.entries[KeySession] = entry{value: string(blob), expires: sessionExp}
	c.entries[KeyAuthenticated] = entry{value: "true", expires: sessionExp}
}
