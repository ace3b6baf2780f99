// Package httpserver assembles the metastore backend, the protocol handler,
// and the router into one listening *http.Server, switching between the
// sqlite and postgres storage backends by configuration. Authentication is
// handled upstream of this package and is out of scope for it.
package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/hazeldav/hazeldav/internal/config"
	"github.com/hazeldav/hazeldav/internal/dav"
	"github.com/hazeldav/hazeldav/internal/metastore"
	"github.com/hazeldav/hazeldav/internal/metastore/postgres"
	"github.com/hazeldav/hazeldav/internal/metastore/sqlite"
	"github.com/hazeldav/hazeldav/internal/router"
)

// Server wraps the configured http.Server with a Start/Shutdown lifecycle,
// so cmd/hazeldav can stay a thin signal-handling loop.
type Server struct {
	http *http.Server
	logger zerolog.Logger
}

// NewServer opens the configured metastore backend, builds the protocol
// handler and router over it, and returns a Server plus a cleanup func that
// releases the metastore connection. The object database needs no
// separate setup: internal/dav/resource opens one per collection lazily
// under cfg.Storage.DataRoot.
func NewServer(cfg *config.Config, logger zerolog.Logger) (*Server, func(), error) {
	meta, err := openMetastore(cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	handlers := dav.NewHandlers(cfg, meta, logger)
	mux := router.New(cfg, handlers, logger)

	srv := &Server{
		http: &http.Server{
			Addr: cfg.HTTP.Addr,
			Handler: mux,
			ReadTimeout: 30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout: 120 * time.Second,
		},
		logger: logger,
	}
	cleanup := func() { meta.Close() }
	logger.Info().Msgf("listening on %s (meta=%s)", cfg.HTTP.Addr, cfg.Storage.MetaDriver)
	return srv, cleanup, nil
}

func openMetastore(cfg *config.Config, logger zerolog.Logger) (metastore.Store, error) {
	switch cfg.Storage.MetaDriver {
	case "postgres":
		return postgres.New(context.Background(), cfg.Storage.MetaDSN, logger)
	case "sqlite", "":
		return sqlite.New(cfg.Storage.MetaDSN, logger)
	default:
		return nil, fmt.Errorf("httpserver: unknown metastore driver %q", cfg.Storage.MetaDriver)
	}
}

// Start runs the HTTP server until it is shut down or fails.
func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
