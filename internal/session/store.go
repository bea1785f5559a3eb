package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/openmined/docbox/internal/kv"
)

// Store is the credential store. Every mutation reads the current session, applies a
// patch, persists the whole record and notifies the observer before returning.
type Store struct {
	kv       kv.Store
	clock    Clock
	mu       sync.RWMutex
	session  Session
	observer func(Session)
}

func NewStore(backend kv.Store, clock Clock) *Store {
	if clock == nil {
		clock = SystemClock
	}
	return &Store{kv: backend, clock: clock}
}

// Observe installs fn to be called with a snapshot after every mutation. fn runs under
// the store lock so observers see mutations in order; it must not call back into the store.
func (s *Store) Observe(fn func(Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = fn
}

// Load replaces the in-memory session with the persisted one. It reports whether the
// session changed.
func (s *Store) Load(ctx context.Context) (bool, error) {
	data, err := s.kv.Get(ctx, StoreKey)
	if errors.Is(err, kv.ErrNotFound) {
		data = nil
	} else if err != nil {
		return false, fmt.Errorf("session: load: %w", err)
	}

	var loaded Session
	if len(data) > 0 {
		if err := json.Unmarshal(data, &loaded); err != nil {
			return false, fmt.Errorf("session: decode: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sameTokens(s.session.Tokens, loaded.Tokens) && s.session.ExpiresAt.Equal(loaded.ExpiresAt) && sameProfile(s.session.User, loaded.User) {
		return false, nil
	}
	if loaded.Tokens != nil && loaded.ExpiresAt.IsZero() {
		loaded.ExpiresAt = computeExpiry(loaded.Tokens, s.clock.Now())
	}
	s.session = loaded
	s.notify()
	return true, nil
}

// Snapshot returns a copy of the current session.
func (s *Store) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.clone()
}

// AccessToken implements the API client's token source.
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session.Tokens == nil {
		return ""
	}
	return s.session.Tokens.AccessToken
}

func (s *Store) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.ExpiresAt
}

// SetSession stores the result of a login.
func (s *Store) SetSession(ctx context.Context, user *Profile, tokens *TokenSet) error {
	return s.mutate(ctx, func(cur *Session) {
		if user != nil {
			u := *user
			cur.User = &u
		}
		s.applyTokens(cur, tokens)
	})
}

// SetTokens stores a refreshed token set and keeps the profile.
func (s *Store) SetTokens(ctx context.Context, tokens *TokenSet) error {
	return s.mutate(ctx, func(cur *Session) {
		s.applyTokens(cur, tokens)
	})
}

// SetTokensIf stores tokens only while the session still holds refreshToken. It reports
// false when a login or logout replaced the session in the meantime.
func (s *Store) SetTokensIf(ctx context.Context, refreshToken string, tokens *TokenSet) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.holds(refreshToken) {
		return false, nil
	}
	next := s.session.clone()
	s.applyTokens(&next, tokens)
	s.session = next
	s.notify()

	return true, s.persist(ctx, next)
}

// UpdateProfile patches the profile in place. It is a no-op without a profile.
func (s *Store) UpdateProfile(ctx context.Context, patch func(*Profile)) error {
	return s.mutate(ctx, func(cur *Session) {
		if cur.User != nil {
			patch(cur.User)
		}
	})
}

// ApplyStorageDelta adjusts the used storage counter, never below zero.
func (s *Store) ApplyStorageDelta(ctx context.Context, delta int64) error {
	return s.UpdateProfile(ctx, func(p *Profile) {
		p.StorageUsed = max(p.StorageUsed+delta, 0)
	})
}

// Clear removes the session from memory and from the kv backend.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = Session{}
	s.notify()

	if err := s.kv.Delete(ctx, StoreKey); err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	return nil
}

// ClearIf clears the session only while it still holds refreshToken.
func (s *Store) ClearIf(ctx context.Context, refreshToken string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.holds(refreshToken) {
		return false, nil
	}
	s.session = Session{}
	s.notify()

	if err := s.kv.Delete(ctx, StoreKey); err != nil {
		return true, fmt.Errorf("session: clear: %w", err)
	}
	return true, nil
}

// Holds reports whether the current session carries refreshToken.
func (s *Store) Holds(refreshToken string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.holds(refreshToken)
}

func (s *Store) holds(refreshToken string) bool {
	return refreshToken != "" && s.session.Tokens != nil && s.session.Tokens.RefreshToken == refreshToken
}

func (s *Store) mutate(ctx context.Context, patch func(*Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.session.clone()
	patch(&next)
	s.session = next
	s.notify()

	return s.persist(ctx, next)
}

// applyTokens resets the cached expiry whenever any field of the token set changed.
func (s *Store) applyTokens(cur *Session, tokens *TokenSet) {
	if tokens == nil {
		cur.Tokens = nil
		cur.ExpiresAt = time.Time{}
		return
	}
	if sameTokens(cur.Tokens, tokens) && !cur.ExpiresAt.IsZero() {
		return
	}
	t := *tokens
	cur.Tokens = &t
	cur.ExpiresAt = computeExpiry(&t, s.clock.Now())
}

func (s *Store) persist(ctx context.Context, sess Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	if err := s.kv.Set(ctx, StoreKey, data); err != nil {
		return fmt.Errorf("session: persist: %w", err)
	}
	return nil
}

func (s *Store) notify() {
	if s.observer != nil {
		s.observer(s.session.clone())
	}
}

// computeExpiry turns the relative expiresIn into an absolute instant. Without it the
// exp claim of a JWT access token is used; otherwise the expiry is unknown (zero).
func computeExpiry(tokens *TokenSet, now time.Time) time.Time {
	if tokens.ExpiresIn > 0 {
		return now.Add(time.Duration(tokens.ExpiresIn) * time.Second)
	}
	return jwtExpiry(tokens.AccessToken)
}

func jwtExpiry(token string) time.Time {
	if token == "" {
		return time.Time{}
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

func sameTokens(a, b *TokenSet) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameProfile(a, b *Profile) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
