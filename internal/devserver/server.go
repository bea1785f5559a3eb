package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Server is a self contained implementation of the document API for local use and tests.
type Server struct {
	config  *Config
	server  *http.Server
	handler http.Handler

	auth    *AuthService
	library *Library
	jobs    *JobRunner
}

func New(config *Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	blobs, err := NewBlobStore(&config.Blob, config.PublicURL)
	if err != nil {
		return nil, err
	}

	svc := &services{
		auth:    NewAuthService(&config.Auth),
		library: NewLibrary(blobs, config.StorageLimit),
		blobs:   blobs,
	}
	svc.jobs = NewJobRunner(svc.library, blobs, config.JobDelay)
	svc.uploads = newUploadHandler(svc.library, blobs, config.Blob.URLExpiry)

	handler, err := setupRoutes(config, svc)
	if err != nil {
		svc.jobs.Close()
		return nil, fmt.Errorf("setup routes: %w", err)
	}

	return &Server{
		config:  config,
		handler: handler,
		auth:    svc.auth,
		library: svc.library,
		jobs:    svc.jobs,
		server: &http.Server{
			Addr:              config.Addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Handler exposes the routes, e.g. for httptest.NewServer.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Auth() *AuthService {
	return s.auth
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	slog.Info("devserver start", "addr", s.config.Addr, "public", s.config.PublicURL)
	defer slog.Info("devserver stop")

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.jobs.Close()
		return err
	case <-ctx.Done():
	}

	return s.Stop(context.Background())
}

func (s *Server) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	defer s.jobs.Close()
	return s.server.Shutdown(shutdownCtx)
}
