// Package session keeps the signed-in user's credentials fresh.
//
// A Store holds the authoritative Session and persists it through a kv.Store. The
// Manager owns a single scheduler that refreshes tokens ahead of expiry and mirrors
// every Store mutation into a Channel, a synchronously readable projection that the
// Guard consults before running a command.
package session

import (
	"errors"
	"time"
)

// StoreKey is the namespace key the session record is persisted under.
const StoreKey = "docbox.session"

var (
	ErrNotAuthenticated = errors.New("session: not authenticated")
	ErrSessionRejected  = errors.New("session: rejected by server")
	ErrNoAccounts       = errors.New("session: account operations not configured")

	// ErrRejected is wrapped by Authenticator implementations when the server
	// definitively refuses the credentials, as opposed to a transport failure.
	ErrRejected = errors.New("credentials rejected")
)

// Profile is the signed-in user.
type Profile struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	StorageUsed  int64  `json:"storageUsed"`
	StorageLimit int64  `json:"storageLimit"`
}

// TokenSet is issued by login and refresh. ExpiresIn is relative to issuance.
type TokenSet struct {
	AccessToken  string `json:"accessToken"`
	IDToken      string `json:"idToken,omitempty"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Session is an immutable snapshot of the credential store.
type Session struct {
	User   *Profile  `json:"user,omitempty"`
	Tokens *TokenSet `json:"tokens,omitempty"`
	// ExpiresAt is the absolute access token expiry, computed once per token issuance.
	ExpiresAt time.Time `json:"expiresAt"`
}

// IsAuthenticated is derived from the tokens and never stored.
func (s Session) IsAuthenticated() bool {
	return s.Tokens != nil && s.Tokens.AccessToken != ""
}

func (s Session) clone() Session {
	out := Session{ExpiresAt: s.ExpiresAt}
	if s.User != nil {
		u := *s.User
		out.User = &u
	}
	if s.Tokens != nil {
		t := *s.Tokens
		out.Tokens = &t
	}
	return out
}

// State is the lifecycle state of the session.
type State int

const (
	Unauthenticated State = iota
	Valid
	Refreshing
)

func (s State) String() string {
	switch s {
	case Valid:
		return "valid"
	case Refreshing:
		return "refreshing"
	default:
		return "unauthenticated"
	}
}
