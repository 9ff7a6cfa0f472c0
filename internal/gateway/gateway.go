// ABOUTME: Gateway assembly: store, connector registry, dispatcher, transports
// ABOUTME: Owns the HTTP server lifecycle including graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/sagehq/sage-gateway/internal/config"
	"github.com/sagehq/sage-gateway/internal/connector"
	"github.com/sagehq/sage-gateway/internal/connector/github"
	"github.com/sagehq/sage-gateway/internal/connector/notion"
	"github.com/sagehq/sage-gateway/internal/credential"
	"github.com/sagehq/sage-gateway/internal/dispatch"
	"github.com/sagehq/sage-gateway/internal/metrics"
	"github.com/sagehq/sage-gateway/internal/store"
	"github.com/sagehq/sage-gateway/internal/transport"
)

const defaultShutdownTimeout = 5 * time.Second

// Gateway ties the persistence, connector, and transport layers together
// behind one HTTP server.
type Gateway struct {
	config     *config.Config
	store      store.Store
	registry   *connector.Registry
	metrics    *metrics.Metrics
	logger     *slog.Logger
	httpServer *http.Server
}

// New assembles a gateway from configuration. The store is opened and
// native connector plugins are registered; nothing listens until Run.
func New(cfg *config.Config, logger *slog.Logger, version string) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	registry := connector.NewRegistry(logger.With("component", "registry"))
	registry.Register(store.TypeGitHub, github.New(logger))
	registry.Register(store.TypeNotion, notion.New(logger))

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	dispatcher, err := dispatch.New(dispatch.Config{
		Store:       s,
		Registry:    registry,
		Resolver:    credential.NewResolver(s, logger.With("component", "credentials")),
		Metrics:     m,
		Logger:      logger.With("component", "dispatch"),
		Version:     version,
		CallTimeout: cfg.Connectors.CallTimeout,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}

	gw := &Gateway{
		config:   cfg,
		store:    s,
		registry: registry,
		metrics:  m,
		logger:   logger.With("component", "gateway"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", gw.handleHealth)

	if m != nil {
		mux.Handle("GET "+cfg.Metrics.Path, m.Handler())
	}

	transport.RegisterRoutes(mux, transport.Deps{
		Dispatcher: dispatcher,
		Store:      s,
		Metrics:    m,
		Logger:     logger.With("component", "transport"),
		Version:    version,
	})

	allowedOrigins := cfg.CORS.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	handler := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"*"},
	}).Handler(mux)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Handler exposes the assembled HTTP handler. Tests serve it directly.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Run serves until the context is canceled or the server fails, then
// shuts down gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.config.Server.HTTPAddr, err)
	}

	g.logger.Info("gateway listening",
		"addr", ln.Addr().String(),
		"metrics", g.config.Metrics.Enabled,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownErr := g.gracefulShutdown()
	if serveErr != nil {
		return serveErr
	}
	return shutdownErr
}

// gracefulShutdown uses a fresh context since the run context is already
// canceled by the time shutdown starts.
func (g *Gateway) gracefulShutdown() error {
	timeout := g.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server, external connector processes, and the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}

	g.registry.Close()

	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
