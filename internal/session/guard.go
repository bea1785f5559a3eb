package session

import (
	"strconv"
	"strings"
	"time"
)

// Action is a guard decision.
type Action int

const (
	Allow Action = iota
	Redirect
)

func (a Action) String() string {
	if a == Redirect {
		return "redirect"
	}
	return "allow"
}

// Decision is the outcome of Guard.Check.
type Decision struct {
	Action Action
	// Target is where to go instead when Action is Redirect.
	Target string
	// RefreshRequested is set when the guard raised refresh_needed.
	RefreshRequested bool
}

// RouteKind classifies a route for the guard.
type RouteKind int

const (
	// Protected routes need a session.
	Protected RouteKind = iota
	// Public routes are always allowed.
	Public
	// GuestOnly routes (login, register) redirect signed-in users away.
	GuestOnly
)

type GuardConfig struct {
	LoginRoute string
	HomeRoute  string
	Routes     map[string]RouteKind
	SignalTTL  time.Duration
}

// Guard decides whether a route may run by reading the Channel only. It never performs
// I/O and never mutates the session; when the access token is stale it raises the
// refresh_needed flag for the Manager to act on.
type Guard struct {
	cfg     GuardConfig
	channel *Channel
	clock   Clock
}

func NewGuard(channel *Channel, clock Clock, cfg GuardConfig) *Guard {
	if clock == nil {
		clock = SystemClock
	}
	if cfg.SignalTTL <= 0 {
		cfg.SignalTTL = DefaultSignalTTL
	}
	if cfg.LoginRoute == "" {
		cfg.LoginRoute = "login"
	}
	return &Guard{cfg: cfg, channel: channel, clock: clock}
}

func (g *Guard) kind(route string) RouteKind {
	if k, ok := g.cfg.Routes[route]; ok {
		return k
	}
	// "folders ls" inherits from "folders"
	for route != "" {
		idx := strings.LastIndexByte(route, ' ')
		if idx < 0 {
			break
		}
		route = route[:idx]
		if k, ok := g.cfg.Routes[route]; ok {
			return k
		}
	}
	return Protected
}

// Check returns the decision for route.
func (g *Guard) Check(route string) Decision {
	kind := g.kind(route)
	if kind == Public {
		return Decision{Action: Allow}
	}

	authenticated := g.authenticated()
	if kind == GuestOnly {
		if authenticated {
			return Decision{Action: Redirect, Target: g.cfg.HomeRoute}
		}
		return Decision{Action: Allow}
	}

	if !authenticated {
		return Decision{Action: Redirect, Target: g.cfg.LoginRoute}
	}

	if g.accessValid() {
		return Decision{Action: Allow}
	}

	// stale access token but a refresh token is still around
	if _, ok := g.channel.Get(KeyRefreshToken); ok {
		g.channel.RaiseRefreshNeeded(g.cfg.SignalTTL)
		return Decision{Action: Allow, RefreshRequested: true}
	}
	return Decision{Action: Redirect, Target: g.cfg.LoginRoute}
}

func (g *Guard) authenticated() bool {
	v, ok := g.channel.Get(KeyAuthenticated)
	return ok && v == "true"
}

func (g *Guard) accessValid() bool {
	if _, ok := g.channel.Get(KeyAccessToken); !ok {
		return false
	}
	raw, ok := g.channel.Get(KeyExpiresAt)
	if !ok {
		// unknown expiry: trust the token until the server says otherwise
		return true
	}
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false
	}
	return g.clock.Now().Before(time.Unix(sec, 0))
}
