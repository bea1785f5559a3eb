package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openmined/docbox/internal/kv"
	"golang.org/x/sync/singleflight"
)

const refreshKey = "refresh"

// Manager drives the session lifecycle: login, proactive refresh, logout, and the
// projection of the store into the Channel.
type Manager struct {
	cfg      Config
	clock    Clock
	store    *Store
	channel  *Channel
	auth     Authenticator
	accounts Accounts
	locker   kv.Locker
	sched    *scheduler

	flight      singleflight.Group
	mu          sync.Mutex
	lastAttempt time.Time
	refreshing  atomic.Bool

	stats managerStats

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type managerStats struct {
	requests   atomic.Int64
	refreshes  atomic.Int64
	suppressed atomic.Int64
	adopted    atomic.Int64
	failures   atomic.Int64
}

// Stats are counters for the status view.
type Stats struct {
	RefreshRequests    int64     `json:"refresh_requests" yaml:"refresh_requests"`
	NetworkRefreshes   int64     `json:"network_refreshes" yaml:"network_refreshes"`
	Suppressed         int64     `json:"suppressed" yaml:"suppressed"`
	Adopted            int64     `json:"adopted" yaml:"adopted"`
	Failures           int64     `json:"failures" yaml:"failures"`
	NextCheck          time.Time `json:"next_check" yaml:"next_check"`
	LastRefreshAttempt time.Time `json:"last_refresh_attempt" yaml:"last_refresh_attempt"`
}

type ManagerOption func(*Manager)

func WithClock(c Clock) ManagerOption {
	return func(m *Manager) { m.clock = c }
}

// WithLocker serializes refreshes across processes sharing the same kv backend.
func WithLocker(l kv.Locker) ManagerOption {
	return func(m *Manager) { m.locker = l }
}

func WithAccounts(a Accounts) ManagerOption {
	return func(m *Manager) { m.accounts = a }
}

func WithChannel(c *Channel) ManagerOption {
	return func(m *Manager) { m.channel = c }
}

func NewManager(cfg Config, backend kv.Store, auth Authenticator, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:   cfg.withDefaults(),
		clock: SystemClock,
		auth:  auth,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.channel == nil {
		m.channel = NewChannel(m.clock)
	}
	if m.locker == nil {
		if l, ok := backend.(kv.Locker); ok {
			m.locker = l
		}
	}

	m.store = NewStore(backend, m.clock)
	m.store.Observe(func(s Session) {
		m.channel.project(s, m.cfg.SessionTTL)
	})
	m.sched = newScheduler(m.clock, m.cfg.SignalPollInterval)

	return m
}

// Start loads the persisted session, arms the scheduler and runs it until Stop.
func (m *Manager) Start(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.cancel != nil {
		return errors.New("session: manager already started")
	}

	if _, err := m.store.Load(ctx); err != nil {
		return err
	}
	// project even when nothing was loaded so stale channel state is cleared
	m.channel.project(m.store.Snapshot(), m.cfg.SessionTTL)
	m.armFromStore()

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		m.sched.run(runCtx, schedulerHooks{
			onDeadline: m.onDeadline,
			onSignal:   m.onSignal,
			signalled:  m.channel.RefreshNeeded,
			push:       m.channel.Notify(),
		})
	}()

	slog.Debug("session manager started", "authenticated", m.store.Snapshot().IsAuthenticated(), "next check", m.sched.Next())
	return nil
}

// Stop halts the scheduler. An in-flight refresh is allowed to finish.
func (m *Manager) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil
}

func (m *Manager) Store() *Store       { return m.store }
func (m *Manager) Channel() *Channel   { return m.channel }
func (m *Manager) Session() Session    { return m.store.Snapshot() }
func (m *Manager) AccessToken() string { return m.store.AccessToken() }

// NextCheck is the armed proactive refresh deadline, zero when disarmed.
func (m *Manager) NextCheck() time.Time { return m.sched.Next() }

func (m *Manager) State() State {
	if m.refreshing.Load() {
		return Refreshing
	}
	if m.store.Snapshot().IsAuthenticated() {
		return Valid
	}
	return Unauthenticated
}

func (m *Manager) Stats() Stats {
	m.mu.Lock()
	last := m.lastAttempt
	m.mu.Unlock()

	return Stats{
		RefreshRequests:    m.stats.requests.Load(),
		NetworkRefreshes:   m.stats.refreshes.Load(),
		Suppressed:         m.stats.suppressed.Load(),
		Adopted:            m.stats.adopted.Load(),
		Failures:           m.stats.failures.Load(),
		NextCheck:          m.sched.Next(),
		LastRefreshAttempt: last,
	}
}

// ScheduleProactiveRefresh arms the single refresh deadline at expiry minus the lead.
// Re-arming replaces any earlier deadline.
func (m *Manager) ScheduleProactiveRefresh(expiry time.Time) {
	if expiry.IsZero() {
		m.sched.Disarm()
		return
	}
	m.sched.Arm(expiry.Add(-m.cfg.RefreshLead))
}

func (m *Manager) armFromStore() {
	s := m.store.Snapshot()
	if !s.IsAuthenticated() {
		m.sched.Disarm()
		return
	}
	m.ScheduleProactiveRefresh(s.ExpiresAt)
}

// Login authenticates and stores the new session.
func (m *Manager) Login(ctx context.Context, email, password string) (*Profile, error) {
	user, tokens, err := m.auth.Login(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("session: login: %w", err)
	}
	if tokens == nil || tokens.AccessToken == "" {
		return nil, fmt.Errorf("session: login: %w", ErrNotAuthenticated)
	}

	if err := m.store.SetSession(ctx, user, tokens); err != nil {
		return nil, err
	}
	m.armFromStore()

	slog.Info("session login", "email", email, "expires", m.store.ExpiresAt())
	return user, nil
}

// Logout revokes the refresh token best effort and always clears the local session.
func (m *Manager) Logout(ctx context.Context) error {
	s := m.store.Snapshot()
	if s.Tokens != nil && s.Tokens.RefreshToken != "" {
		if err := m.auth.Logout(ctx, s.Tokens.RefreshToken); err != nil {
			slog.Warn("session remote logout", "error", err)
		}
	}

	m.sched.Disarm()
	return m.store.Clear(ctx)
}

// FetchProfile reloads the profile from the server.
func (m *Manager) FetchProfile(ctx context.Context) (*Profile, error) {
	if !m.store.Snapshot().IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}

	profile, err := m.auth.Profile(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: profile: %w", err)
	}

	s := m.store.Snapshot()
	if s.User == nil {
		err = m.store.SetSession(ctx, profile, s.Tokens)
	} else {
		err = m.store.UpdateProfile(ctx, func(p *Profile) { *p = *profile })
	}
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// ApplyStorageDelta records bytes added (or removed) by a finished transfer.
func (m *Manager) ApplyStorageDelta(ctx context.Context, delta int64) error {
	if delta == 0 {
		return nil
	}
	return m.store.ApplyStorageDelta(ctx, delta)
}

// PerformRefresh refreshes the tokens. Concurrent callers share one network call and its
// outcome. Within MinInterval of a completed attempt it returns (false, nil) without I/O.
// A definitive rejection clears the session and returns ErrSessionRejected; a transport
// failure leaves the session as is and returns the error.
func (m *Manager) PerformRefresh(ctx context.Context) (bool, error) {
	ch := m.flight.DoChan(refreshKey, func() (any, error) {
		// the flight outlives any single caller's cancellation
		return m.refresh(context.WithoutCancel(ctx))
	})
	m.stats.requests.Add(1)

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		return res.Val.(bool), nil
	}
}

func (m *Manager) refresh(ctx context.Context) (bool, error) {
	m.mu.Lock()
	now := m.clock.Now()
	if !m.lastAttempt.IsZero() && now.Sub(m.lastAttempt) < m.cfg.MinInterval {
		m.mu.Unlock()
		m.stats.suppressed.Add(1)
		return false, nil
	}
	m.mu.Unlock()

	current := m.store.Snapshot()
	if current.Tokens == nil || current.Tokens.RefreshToken == "" {
		return false, ErrNotAuthenticated
	}

	m.refreshing.Store(true)
	defer m.refreshing.Store(false)

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx)
		if err != nil {
			return false, fmt.Errorf("session: refresh lock: %w", err)
		}
		defer func() {
			if err := unlock(); err != nil {
				slog.Warn("session refresh unlock", "error", err)
			}
		}()

		if adopted, err := m.adoptRotated(ctx, current); err != nil {
			slog.Warn("session reload before refresh", "error", err)
		} else if adopted {
			return true, nil
		}
	}

	started := current.Tokens.RefreshToken
	m.stats.refreshes.Add(1)
	tokens, err := m.auth.Refresh(ctx, started)

	m.mu.Lock()
	m.lastAttempt = m.clock.Now()
	m.mu.Unlock()

	if err != nil {
		m.stats.failures.Add(1)
		if errors.Is(err, ErrRejected) {
			cleared, cerr := m.store.ClearIf(ctx, started)
			if cerr != nil {
				slog.Error("session clear after rejection", "error", cerr)
			}
			if !cleared {
				slog.Debug("session refresh rejected for a replaced session, ignoring", "error", err)
				return false, nil
			}
			slog.Warn("session refresh rejected, signing out", "error", err)
			m.sched.Disarm()
			return false, fmt.Errorf("%w: %w", ErrSessionRejected, err)
		}

		if !m.store.Holds(started) {
			return false, fmt.Errorf("session: refresh: %w", err)
		}
		retryAt := m.clock.Now().Add(m.cfg.RetryDelay)
		slog.Warn("session refresh failed, will retry", "error", err, "retry at", retryAt)
		m.sched.Arm(retryAt)
		return false, fmt.Errorf("session: refresh: %w", err)
	}

	if tokens.RefreshToken == "" {
		tokens.RefreshToken = started
	}
	stored, err := m.store.SetTokensIf(ctx, started, tokens)
	if err != nil {
		// in memory state is already updated; only persistence failed
		slog.Error("session persist refreshed tokens", "error", err)
	}
	if !stored {
		// logout or a new login replaced the session while the call was in flight
		slog.Debug("session refresh result dropped, session replaced")
		return false, nil
	}
	m.armFromStore()
	m.channel.consumeRefreshNeeded()

	slog.Debug("session refreshed", "expires", m.store.ExpiresAt())
	return true, nil
}

// adoptRotated reloads the store and reports whether another process already rotated
// the tokens we were about to refresh.
func (m *Manager) adoptRotated(ctx context.Context, before Session) (bool, error) {
	if _, err := m.store.Load(ctx); err != nil {
		return false, err
	}

	after := m.store.Snapshot()
	if !after.IsAuthenticated() || sameTokens(before.Tokens, after.Tokens) {
		return false, nil
	}
	if !after.ExpiresAt.IsZero() && !m.clock.Now().Before(after.ExpiresAt.Add(-m.cfg.RefreshLead)) {
		return false, nil
	}

	m.stats.adopted.Add(1)
	m.armFromStore()
	m.channel.consumeRefreshNeeded()
	slog.Debug("session adopted tokens rotated by another process", "expires", after.ExpiresAt)
	return true, nil
}

func (m *Manager) onDeadline(ctx context.Context) {
	refreshed, err := m.PerformRefresh(ctx)
	if err != nil || refreshed {
		return
	}

	// suppressed by the rate limit: check again once the window has passed
	if m.store.Snapshot().IsAuthenticated() && m.sched.Next().IsZero() {
		m.mu.Lock()
		retryAt := m.lastAttempt.Add(m.cfg.MinInterval)
		m.mu.Unlock()
		m.sched.Arm(retryAt)
	}
}

func (m *Manager) onSignal(ctx context.Context) {
	if _, err := m.PerformRefresh(ctx); err != nil {
		slog.Debug("session refresh on signal", "error", err)
	}
	m.channel.consumeRefreshNeeded()
}

// Register and the other account flows pass through to the Accounts collaborator.
func (m *Manager) Register(ctx context.Context, email, password, name string) (bool, error) {
	if m.accounts == nil {
		return false, ErrNoAccounts
	}
	return m.accounts.Register(ctx, email, password, name)
}

func (m *Manager) Confirm(ctx context.Context, email, code string) error {
	if m.accounts == nil {
		return ErrNoAccounts
	}
	return m.accounts.Confirm(ctx, email, code)
}

func (m *Manager) ResendCode(ctx context.Context, email string) error {
	if m.accounts == nil {
		return ErrNoAccounts
	}
	return m.accounts.ResendCode(ctx, email)
}

func (m *Manager) ForgotPassword(ctx context.Context, email string) error {
	if m.accounts == nil {
		return ErrNoAccounts
	}
	return m.accounts.ForgotPassword(ctx, email)
}

func (m *Manager) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if m.accounts == nil {
		return ErrNoAccounts
	}
	return m.accounts.ResetPassword(ctx, email, code, newPassword)
}
