package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{now: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fakeTimer{c: make(chan time.Time, 1), at: c.now.Add(d)}
	if d <= 0 {
		t.fired.Store(true)
		t.c <- c.now
		return t
	}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and fires every timer that came due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
	live := c.timers[:0]
	for _, t := range c.timers {
		if t.stopped.Load() {
			continue
		}
		if !c.now.Before(t.at) {
			t.fired.Store(true)
			t.c <- c.now
			continue
		}
		live = append(live, t)
	}
	c.timers = live
}

type fakeTimer struct {
	c       chan time.Time
	at      time.Time
	fired   atomic.Bool
	stopped atomic.Bool
}

func (t *fakeTimer) C() <-chan time.Time { return t.c }

func (t *fakeTimer) Stop() bool {
	return !t.stopped.Swap(true) && !t.fired.Load()
}

var errNetwork = errors.New("dial tcp: connection refused")

// fakeAuth is a scripted Authenticator. Refresh blocks while gate is non-nil.
type fakeAuth struct {
	mu           sync.Mutex
	gate         chan struct{}
	refreshErr   error
	next         *TokenSet
	refreshCalls atomic.Int32
	logoutCalls  atomic.Int32
	issued       atomic.Int32
}

func (f *fakeAuth) Login(_ context.Context, email, _ string) (*Profile, *TokenSet, error) {
	return &Profile{ID: "u1", Email: email, StorageLimit: 1 << 30}, f.mint(3600), nil
}

func (f *fakeAuth) mint(expiresIn int64) *TokenSet {
	n := f.issued.Add(1)
	return &TokenSet{
		AccessToken:  "access-" + string(rune('a'+n)),
		RefreshToken: "refresh-" + string(rune('a'+n)),
		ExpiresIn:    expiresIn,
	}
}

func (f *fakeAuth) Refresh(ctx context.Context, _ string) (*TokenSet, error) {
	f.refreshCalls.Add(1)

	f.mu.Lock()
	gate, err, next := f.gate, f.refreshErr, f.next
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if next != nil {
		return next, nil
	}
	return f.mint(3600), nil
}

func (f *fakeAuth) Logout(context.Context, string) error {
	f.logoutCalls.Add(1)
	return errNetwork
}

func (f *fakeAuth) Profile(context.Context) (*Profile, error) {
	return &Profile{ID: "u1", Email: "alice@example.com", Name: "Alice", StorageUsed: 42, StorageLimit: 1 << 30}, nil
}

func (f *fakeAuth) setGate(ch chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = ch
}

func (f *fakeAuth) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshErr = err
}
