package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openmined/docbox/internal/client"
	"github.com/openmined/docbox/internal/session"
	"github.com/spf13/cobra"
)

var (
	errLoginRequired   = errors.New("not logged in, run `docbox login` first")
	errAlreadyLoggedIn = errors.New("already logged in")
)

const homeRoute = "ls"

// routeKinds classifies commands for the session guard. Anything not listed needs a session.
var routeKinds = map[string]session.RouteKind{
	"login":           session.GuestOnly,
	"register":        session.GuestOnly,
	"confirm":         session.GuestOnly,
	"resend-code":     session.GuestOnly,
	"forgot-password": session.GuestOnly,
	"reset-password":  session.GuestOnly,
	"logout":          session.Public,
	"status":          session.Public,
	"version":         session.Public,
	"config":          session.Public,
}

// route is the command path without the binary name, e.g. "folders ls".
func route(cmd *cobra.Command) string {
	path := cmd.CommandPath()
	if i := strings.IndexByte(path, ' '); i >= 0 {
		return path[i+1:]
	}
	return ""
}

// openClient builds the client from the merged config and loads the persisted session.
func openClient(cmd *cobra.Command) (*client.Client, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	c, err := client.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := c.Start(cmd.Context()); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// checkRoute applies the guard decision for cmd. A stale access token is refreshed in
// place before the command runs.
func checkRoute(ctx context.Context, cmd *cobra.Command, c *client.Client) error {
	guard := c.Guard(session.GuardConfig{
		LoginRoute: "login",
		HomeRoute:  homeRoute,
		Routes:     routeKinds,
	})

	d := guard.Check(route(cmd))
	slog.Debug("route guard", "route", route(cmd), "action", d.Action, "target", d.Target, "refresh", d.RefreshRequested)

	switch {
	case d.Action == session.Redirect && d.Target == homeRoute:
		return errAlreadyLoggedIn
	case d.Action == session.Redirect:
		return errLoginRequired
	case d.RefreshRequested:
		if _, err := c.Session().PerformRefresh(ctx); err != nil {
			if errors.Is(err, session.ErrSessionRejected) {
				return errLoginRequired
			}
			// transport trouble; the request interceptor retries once more on a 401
			slog.Warn("token refresh", "error", err)
		}
	}
	return nil
}

// withClient opens a client, guards the route and runs fn.
func withClient(cmd *cobra.Command, fn func(ctx context.Context, c *client.Client) error) error {
	cmd.SilenceUsage = true
	ctx := cmd.Context()

	c, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if c.Busy() {
			printWarning(cmd.ErrOrStderr(), "exiting with transfers in flight; they were not finished")
		}
		if err := c.Close(); err != nil {
			slog.Warn("client close", "error", err)
		}
	}()

	if err := checkRoute(ctx, cmd, c); err != nil {
		return err
	}
	return fn(ctx, c)
}

// bulkOutcome prints a bulk result and turns partial failure into an error.
func bulkOutcome(cmd *cobra.Command, verb string, r *client.BulkResult) error {
	out := cmd.OutOrStdout()
	for _, t := range r.Succeeded {
		fmt.Fprintf(out, "%s %s %s\n", green.Render(verb), gray.Render(string(t.Kind)), t.ID)
	}
	for _, f := range r.Failed {
		fmt.Fprintf(out, "%s %s %s: %s\n", red.Render("failed"), gray.Render(string(f.Target.Kind)), f.Target.ID, f.Error)
	}
	if !r.OK() {
		return fmt.Errorf("%s: %s", verb, r)
	}
	return nil
}

// parseTargets reads "folder:<id>" and "doc:<id>" arguments. A bare id is a document.
func parseTargets(args []string) ([]client.Target, error) {
	targets := make([]client.Target, 0, len(args))
	for _, arg := range args {
		kind, id, found := strings.Cut(arg, ":")
		if !found {
			targets = append(targets, client.Document(arg))
			continue
		}
		if id == "" {
			return nil, fmt.Errorf("empty id in %q", arg)
		}
		switch kind {
		case "folder", "f":
			targets = append(targets, client.Folder(id))
		case "doc", "document", "d":
			targets = append(targets, client.Document(id))
		default:
			return nil, fmt.Errorf("unknown target kind %q in %q", kind, arg)
		}
	}
	return targets, nil
}
