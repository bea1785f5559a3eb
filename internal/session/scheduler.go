package session

import (
	"context"
	"sync"
	"time"
)

// scheduler owns the single authoritative "next check" of the session. It wakes for the
// earlier of the armed refresh deadline and the next signal poll, using one timer.
type scheduler struct {
	clock        Clock
	pollInterval time.Duration

	mu       sync.Mutex
	deadline time.Time
	nudge    chan struct{}
}

type schedulerHooks struct {
	onDeadline func(ctx context.Context)
	onSignal   func(ctx context.Context)
	// signalled reports whether the refresh flag is set; checked on every poll
	signalled func() bool
	// push fires when the flag is raised
	push <-chan struct{}
}

func newScheduler(clock Clock, pollInterval time.Duration) *scheduler {
	return &scheduler{
		clock:        clock,
		pollInterval: pollInterval,
		nudge:        make(chan struct{}, 1),
	}
}

// Arm replaces the refresh deadline. A deadline in the past fires immediately.
func (s *scheduler) Arm(at time.Time) {
	s.mu.Lock()
	s.deadline = at
	s.mu.Unlock()
	s.wake()
}

func (s *scheduler) Disarm() {
	s.Arm(time.Time{})
}

// Next returns the armed deadline, zero when disarmed.
func (s *scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadline
}

func (s *scheduler) wake() {
	select {
	case s.nudge <- struct{}{}:
	default:
	}
}

// take disarms the deadline if it is still the one that fired.
func (s *scheduler) take(fired time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fired.IsZero() || !s.deadline.Equal(fired) {
		return false
	}
	s.deadline = time.Time{}
	return true
}

// run blocks until ctx is done. Hooks are invoked from this goroutine only, so the
// scheduler itself never triggers overlapping refreshes.
func (s *scheduler) run(ctx context.Context, hooks schedulerHooks) {
	nextPoll := s.clock.Now().Add(s.pollInterval)

	for {
		now := s.clock.Now()
		deadline := s.Next()

		wakeAt := nextPoll
		if !deadline.IsZero() && deadline.Before(wakeAt) {
			wakeAt = deadline
		}
		timer := s.clock.NewTimer(max(wakeAt.Sub(now), 0))

		select {
		case <-ctx.Done():
			timer.Stop()
			return

		case <-s.nudge:
			timer.Stop()

		case <-hooks.push:
			timer.Stop()
			hooks.onSignal(ctx)

		case <-timer.C():
			now = s.clock.Now()
			if !deadline.IsZero() && !now.Before(deadline) && s.take(deadline) {
				hooks.onDeadline(ctx)
			}
			if !now.Before(nextPoll) {
				nextPoll = now.Add(s.pollInterval)
				if hooks.signalled() {
					hooks.onSignal(ctx)
				}
			}
		}
	}
}
