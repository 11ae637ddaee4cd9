package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is the process supervisor: a jobs branch for workers and periodic
// services and an api branch for the HTTP server.
type Tree struct {
	root *suture.Supervisor
	jobs *suture.Supervisor
	api  *suture.Supervisor
}

func NewTree(logger *slog.Logger, cfg TreeConfig) *Tree {
	def := DefaultTreeConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = def.FailureDecay
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = def.FailureBackoff
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	// MustHook has a pointer receiver
	handler := &sutureslog.Handler{Logger: logger}
	spec := suture.Spec{
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}
	rootSpec := spec
	rootSpec.EventHook = handler.MustHook()

	t := &Tree{
		root: suture.New("ojsync", rootSpec),
		jobs: suture.New("jobs", spec),
		api:  suture.New("api", spec),
	}
	t.root.Add(t.jobs)
	t.root.Add(t.api)
	return t
}

func (t *Tree) AddJobService(svc suture.Service) suture.ServiceToken { return t.jobs.Add(svc) }

func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken { return t.api.Add(svc) }

func (t *Tree) Serve(ctx context.Context) error { return t.root.Serve(ctx) }

func (t *Tree) ServeBackground(ctx context.Context) <-chan error { return t.root.ServeBackground(ctx) }

// HTTPServer is the part of *http.Server the service needs.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService runs an HTTP server as a supervised service with graceful
// shutdown.
type HTTPService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

func NewHTTPService(server HTTPServer, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout}
}

func (h *HTTPService) String() string { return "http-server" }

func (h *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}
