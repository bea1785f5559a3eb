package session

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/openmined/docbox/internal/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestManager(t *testing.T, backend kv.Store) (*Manager, *fakeAuth, *fakeClock) {
	t.Helper()
	if backend == nil {
		backend = kv.NewMemoryStore()
	}
	clock := newFakeClock(t0)
	auth := &fakeAuth{}
	m := NewManager(Config{}, backend, auth, WithClock(clock))
	return m, auth, clock
}

func login(t *testing.T, m *Manager) {
	t.Helper()
	_, err := m.Login(t.Context(), "alice@example.com", "hunter22x")
	require.NoError(t, err)
}

func TestLogin_ProjectsAndSchedules(t *testing.T) {
	m, _, _ := newTestManager(t, nil)
	login(t, m)

	s := m.Session()
	assert.True(t, s.IsAuthenticated())
	assert.Equal(t, t0.Add(time.Hour), s.ExpiresAt)
	assert.Equal(t, Valid, m.State())

	// an hour long token is refreshed five minutes before it expires
	assert.Equal(t, t0.Add(3300*time.Second), m.NextCheck())

	ch := m.Channel()
	tok, ok := ch.Get(KeyAccessToken)
	assert.True(t, ok)
	assert.Equal(t, s.Tokens.AccessToken, tok)
	auth, _ := ch.Get(KeyAuthenticated)
	assert.Equal(t, "true", auth)
	blob, ok := ch.Get(KeySession)
	assert.True(t, ok)
	assert.Contains(t, blob, `"isAuthenticated":true`)
	assert.NotContains(t, blob, s.Tokens.AccessToken)
}

func TestScheduler_FiresAtLeadBeforeExpiry(t *testing.T) {
	m, auth, clock := newTestManager(t, nil)
	login(t, m)
	require.NoError(t, m.Start(t.Context()))
	t.Cleanup(m.Stop)

	clock.Advance(3299 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 0, auth.refreshCalls.Load())

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return auth.refreshCalls.Load() == 1 }, time.Second, 5*time.Millisecond)

	// re-armed from the new token: T0+3300s + 3300s
	require.Eventually(t, func() bool {
		return m.NextCheck().Equal(t0.Add(6600 * time.Second))
	}, time.Second, 5*time.Millisecond)
}

func TestScheduleProactiveRefresh_ReplacesDeadline(t *testing.T) {
	m, _, _ := newTestManager(t, nil)

	m.ScheduleProactiveRefresh(t0.Add(time.Hour))
	m.ScheduleProactiveRefresh(t0.Add(2 * time.Hour))
	assert.Equal(t, t0.Add(2*time.Hour-DefaultRefreshLead), m.NextCheck())

	m.ScheduleProactiveRefresh(time.Time{})
	assert.True(t, m.NextCheck().IsZero())
}

func TestScheduler_PastDeadlineFiresImmediately(t *testing.T) {
	m, auth, _ := newTestManager(t, nil)
	login(t, m)
	require.NoError(t, m.Start(t.Context()))
	t.Cleanup(m.Stop)

	m.ScheduleProactiveRefresh(t0.Add(time.Minute))

	require.Eventually(t, func() bool { return auth.refreshCalls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestPerformRefresh_Dedup(t *testing.T) {
	m, auth, _ := newTestManager(t, nil)
	login(t, m)

	gate := make(chan struct{})
	auth.setGate(gate)

	const n = 8
	type outcome struct {
		ok  bool
		err error
	}
	results := make([]outcome, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := m.PerformRefresh(t.Context())
			results[i] = outcome{ok, err}
		}()
	}

	require.Eventually(t, func() bool { return m.stats.requests.Load() == n }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return m.State() == Refreshing }, time.Second, time.Millisecond)
	close(gate)
	wg.Wait()

	assert.EqualValues(t, 1, auth.refreshCalls.Load())
	for _, r := range results {
		assert.NoError(t, r.err)
		assert.True(t, r.ok)
	}
}

func TestPerformRefresh_RateLimit(t *testing.T) {
	m, auth, clock := newTestManager(t, nil)
	login(t, m)

	ok, err := m.PerformRefresh(t.Context())
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(3 * time.Second)
	ok, err = m.PerformRefresh(t.Context())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.EqualValues(t, 1, auth.refreshCalls.Load())

	clock.Advance(8 * time.Second)
	ok, err = m.PerformRefresh(t.Context())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 2, auth.refreshCalls.Load())
	assert.EqualValues(t, 1, m.Stats().Suppressed)
}

func TestPerformRefresh_NetworkErrorKeepsSession(t *testing.T) {
	m, auth, _ := newTestManager(t, nil)
	login(t, m)
	before := m.Session()

	auth.setErr(errNetwork)
	ok, err := m.PerformRefresh(t.Context())
	assert.False(t, ok)
	assert.ErrorIs(t, err, errNetwork)
	assert.NotErrorIs(t, err, ErrSessionRejected)

	assert.Equal(t, before, m.Session())
	assert.Equal(t, Valid, m.State())
	assert.Equal(t, t0.Add(DefaultRetryDelay), m.NextCheck())
	_, ok = m.Channel().Get(KeyAccessToken)
	assert.True(t, ok)
}

func TestPerformRefresh_RejectionClearsEverything(t *testing.T) {
	backend := kv.NewMemoryStore()
	m, auth, _ := newTestManager(t, backend)
	login(t, m)
	m.Channel().RaiseRefreshNeeded(time.Minute)

	auth.setErr(ErrRejected)
	ok, err := m.PerformRefresh(t.Context())
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrSessionRejected)

	assert.False(t, m.Session().IsAuthenticated())
	assert.Equal(t, Unauthenticated, m.State())
	assert.True(t, m.NextCheck().IsZero())
	assert.Empty(t, m.Channel().Snapshot())
	for _, key := range append(projectedKeys, KeyRefreshNeeded) {
		_, ok := m.Channel().Get(key)
		assert.False(t, ok, key)
	}

	_, err = backend.Get(t.Context(), StoreKey)
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestPerformRefresh_LogoutDuringFlightStaysLoggedOut(t *testing.T) {
	backend := kv.NewMemoryStore()
	m, auth, _ := newTestManager(t, backend)
	login(t, m)

	gate := make(chan struct{})
	auth.setGate(gate)

	type outcome struct {
		ok  bool
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		ok, err := m.PerformRefresh(t.Context())
		done <- outcome{ok, err}
	}()
	require.Eventually(t, func() bool { return auth.refreshCalls.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, m.Logout(t.Context()))
	close(gate)
	res := <-done

	assert.NoError(t, res.err)
	assert.False(t, res.ok)
	assert.False(t, m.Session().IsAuthenticated())
	assert.Nil(t, m.Session().Tokens)
	assert.True(t, m.NextCheck().IsZero())
	assert.Empty(t, m.Channel().Snapshot())

	_, err := backend.Get(t.Context(), StoreKey)
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestPerformRefresh_LateRejectionKeepsNewLogin(t *testing.T) {
	m, auth, _ := newTestManager(t, nil)
	login(t, m)

	gate := make(chan struct{})
	auth.setGate(gate)
	auth.setErr(ErrRejected)

	errc := make(chan error, 1)
	go func() {
		_, err := m.PerformRefresh(t.Context())
		errc <- err
	}()
	require.Eventually(t, func() bool { return auth.refreshCalls.Load() == 1 }, time.Second, time.Millisecond)

	login(t, m)
	fresh := m.Session().Tokens.AccessToken
	close(gate)

	assert.NoError(t, <-errc)
	s := m.Session()
	require.True(t, s.IsAuthenticated())
	assert.Equal(t, fresh, s.Tokens.AccessToken)
	assert.Equal(t, t0.Add(3300*time.Second), m.NextCheck())
	tok, ok := m.Channel().Get(KeyAccessToken)
	assert.True(t, ok)
	assert.Equal(t, fresh, tok)
}

func TestPerformRefresh_NotAuthenticated(t *testing.T) {
	m, auth, _ := newTestManager(t, nil)
	_, err := m.PerformRefresh(t.Context())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.EqualValues(t, 0, auth.refreshCalls.Load())
}

func TestPerformRefresh_CallerCancelDoesNotAbortFlight(t *testing.T) {
	m, auth, _ := newTestManager(t, nil)
	login(t, m)

	gate := make(chan struct{})
	auth.setGate(gate)

	ctx, cancel := context.WithCancel(t.Context())
	errc := make(chan error, 1)
	go func() {
		_, err := m.PerformRefresh(ctx)
		errc <- err
	}()
	require.Eventually(t, func() bool { return auth.refreshCalls.Load() == 1 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	before := m.Session().Tokens.AccessToken
	close(gate)
	require.Eventually(t, func() bool {
		return m.Session().Tokens.AccessToken != before
	}, time.Second, 5*time.Millisecond)
}

func TestSignal_TriggersRefreshAndIsConsumed(t *testing.T) {
	m, auth, _ := newTestManager(t, nil)
	login(t, m)
	require.NoError(t, m.Start(t.Context()))
	t.Cleanup(m.Stop)

	m.Channel().RaiseRefreshNeeded(DefaultSignalTTL)
	require.Eventually(t, func() bool { return auth.refreshCalls.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return !m.Channel().RefreshNeeded() }, time.Second, 5*time.Millisecond)
}

func TestSignal_ObservedByPolling(t *testing.T) {
	m, auth, clock := newTestManager(t, nil)
	login(t, m)

	// raise the flag without the push notification
	m.channel.mu.Lock()
	m.channel.entries[KeyRefreshNeeded] = entry{value: "true", expires: t0.Add(time.Minute)}
	m.channel.mu.Unlock()

	require.NoError(t, m.Start(t.Context()))
	t.Cleanup(m.Stop)

	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 0, auth.refreshCalls.Load())

	clock.Advance(DefaultSignalPollInterval)
	require.Eventually(t, func() bool { return auth.refreshCalls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestLogout_ClearsEvenWhenRemoteFails(t *testing.T) {
	m, auth, _ := newTestManager(t, nil)
	login(t, m)

	require.NoError(t, m.Logout(t.Context()))
	assert.EqualValues(t, 1, auth.logoutCalls.Load())
	assert.False(t, m.Session().IsAuthenticated())
	assert.Empty(t, m.Channel().Snapshot())
	assert.True(t, m.NextCheck().IsZero())
}

func TestStart_RestoresPersistedSession(t *testing.T) {
	backend := kv.NewMemoryStore()
	m, _, _ := newTestManager(t, backend)
	login(t, m)

	again, _, _ := newTestManager(t, backend)
	require.NoError(t, again.Start(t.Context()))
	t.Cleanup(again.Stop)

	assert.Equal(t, m.Session().Tokens, again.Session().Tokens)
	assert.Equal(t, m.Session().User, again.Session().User)
	assert.True(t, m.Session().ExpiresAt.Equal(again.Session().ExpiresAt))
	assert.Equal(t, t0.Add(3300*time.Second), again.NextCheck())
	_, ok := again.Channel().Get(KeyAccessToken)
	assert.True(t, ok)
}

func TestRefresh_AdoptsTokensRotatedElsewhere(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	backendA, err := kv.NewFileStore(path)
	require.NoError(t, err)
	backendB, err := kv.NewFileStore(path)
	require.NoError(t, err)

	a, authA, clock := newTestManager(t, backendA)
	login(t, a)

	b := NewManager(Config{}, backendB, authA, WithClock(clock))
	require.NoError(t, b.Start(t.Context()))
	t.Cleanup(b.Stop)

	ok, err := a.PerformRefresh(t.Context())
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 1, authA.refreshCalls.Load())

	ok, err = b.PerformRefresh(t.Context())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 1, authA.refreshCalls.Load(), "second process must not hit the network")
	assert.Equal(t, a.Session().Tokens, b.Session().Tokens)
	assert.EqualValues(t, 1, b.Stats().Adopted)
}

func TestFetchProfileAndStorageDelta(t *testing.T) {
	m, _, _ := newTestManager(t, nil)

	_, err := m.FetchProfile(t.Context())
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	login(t, m)
	p, err := m.FetchProfile(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.Name)

	require.NoError(t, m.ApplyStorageDelta(t.Context(), 100))
	assert.EqualValues(t, 142, m.Session().User.StorageUsed)
	require.NoError(t, m.ApplyStorageDelta(t.Context(), -1000))
	assert.EqualValues(t, 0, m.Session().User.StorageUsed)
}

func TestExpiry_ResetOnAnyTokenChange(t *testing.T) {
	m, auth, clock := newTestManager(t, nil)
	login(t, m)
	first := m.Session()

	clock.Advance(time.Minute)
	// same access token, different expiresIn: still a new issuance
	next := *first.Tokens
	next.ExpiresIn = 7200
	auth.next = &next

	ok, err := m.PerformRefresh(t.Context())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, t0.Add(time.Minute+2*time.Hour), m.Session().ExpiresAt)

	// identical token set keeps the cached expiry
	require.NoError(t, m.Store().SetTokens(t.Context(), &next))
	assert.Equal(t, t0.Add(time.Minute+2*time.Hour), m.Session().ExpiresAt)
}

func TestExpiry_FallsBackToJWTExp(t *testing.T) {
	exp := t0.Add(45 * time.Minute)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	store := NewStore(kv.NewMemoryStore(), newFakeClock(t0))
	require.NoError(t, store.SetTokens(t.Context(), &TokenSet{AccessToken: signed, RefreshToken: "r"}))
	assert.True(t, store.ExpiresAt().Equal(exp))

	require.NoError(t, store.SetTokens(t.Context(), &TokenSet{AccessToken: "opaque", RefreshToken: "r"}))
	assert.True(t, store.ExpiresAt().IsZero())
}
