package session

import (
	"testing"
	"time"

	"github.com/openmined/docbox/internal/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGuard(ch *Channel, clock Clock) *Guard {
	return NewGuard(ch, clock, GuardConfig{
		LoginRoute: "login",
		HomeRoute:  "ls",
		Routes: map[string]RouteKind{
			"login":   GuestOnly,
			"version": Public,
			"auth":    Public,
		},
	})
}

func TestGuard_Unauthenticated(t *testing.T) {
	clock := newFakeClock(t0)
	g := newTestGuard(NewChannel(clock), clock)

	assert.Equal(t, Decision{Action: Redirect, Target: "login"}, g.Check("ls"))
	assert.Equal(t, Decision{Action: Allow}, g.Check("login"))
	assert.Equal(t, Decision{Action: Allow}, g.Check("version"))
	assert.Equal(t, Decision{Action: Allow}, g.Check("auth reset"))
}

func TestGuard_Authenticated(t *testing.T) {
	clock := newFakeClock(t0)
	m := NewManager(Config{}, kv.NewMemoryStore(), &fakeAuth{}, WithClock(clock))
	_, err := m.Login(t.Context(), "alice@example.com", "pw")
	require.NoError(t, err)

	g := newTestGuard(m.Channel(), clock)
	assert.Equal(t, Decision{Action: Allow}, g.Check("ls"))
	assert.Equal(t, Decision{Action: Allow}, g.Check("folders ls"))
	assert.Equal(t, Decision{Action: Redirect, Target: "ls"}, g.Check("login"))
	assert.False(t, m.Channel().RefreshNeeded())
}

func TestGuard_StaleTokenRaisesSignal(t *testing.T) {
	clock := newFakeClock(t0)
	m := NewManager(Config{}, kv.NewMemoryStore(), &fakeAuth{}, WithClock(clock))
	_, err := m.Login(t.Context(), "alice@example.com", "pw")
	require.NoError(t, err)

	clock.Advance(time.Hour + time.Second)

	g := newTestGuard(m.Channel(), clock)
	d := g.Check("ls")
	assert.Equal(t, Allow, d.Action)
	assert.True(t, d.RefreshRequested)
	assert.True(t, m.Channel().RefreshNeeded())

	select {
	case <-m.Channel().Notify():
	default:
		t.Fatal("expected a push notification")
	}

	// the flag is short lived
	clock.Advance(DefaultSignalTTL)
	assert.False(t, m.Channel().RefreshNeeded())
}

func TestGuard_SessionExpired(t *testing.T) {
	clock := newFakeClock(t0)
	m := NewManager(Config{SessionTTL: 2 * time.Hour}, kv.NewMemoryStore(), &fakeAuth{}, WithClock(clock))
	_, err := m.Login(t.Context(), "alice@example.com", "pw")
	require.NoError(t, err)

	clock.Advance(3 * time.Hour)
	g := newTestGuard(m.Channel(), clock)
	assert.Equal(t, Decision{Action: Redirect, Target: "login"}, g.Check("ls"))
}

func TestChannel_KeysExpireIndependently(t *testing.T) {
	clock := newFakeClock(t0)
	ch := NewChannel(clock)
	ch.project(Session{
		Tokens:    &TokenSet{AccessToken: "a", RefreshToken: "r"},
		ExpiresAt: t0.Add(time.Minute),
	}, time.Hour)

	assert.Len(t, ch.Snapshot(), len(projectedKeys))

	clock.Advance(2 * time.Minute)
	_, ok := ch.Get(KeyAccessToken)
	assert.False(t, ok)
	_, ok = ch.Get(KeyRefreshToken)
	assert.True(t, ok)

	ch.project(Session{}, time.Hour)
	assert.Empty(t, ch.Snapshot())
}
