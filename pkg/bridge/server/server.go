// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package server is the HTTP entry point of the façade. It serves the
// consolidated documents from the aggregator, routes everything below a
// group type to the owning source and runs filtered collection queries
// through the filter engine.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	apierrors "github.com/stacklok/regbridge/pkg/api/errors"
	"github.com/stacklok/regbridge/pkg/bridge/aggregator"
	"github.com/stacklok/regbridge/pkg/bridge/auth"
	"github.com/stacklok/regbridge/pkg/bridge/config"
	"github.com/stacklok/regbridge/pkg/bridge/filter"
	"github.com/stacklok/regbridge/pkg/bridge/router"
	"github.com/stacklok/regbridge/pkg/logger"
)

const (
	defaultRequestTimeout = 30 * time.Second
	readHeaderTimeout     = 10 * time.Second
	idleTimeout           = 60 * time.Second
	shutdownTimeout       = 30 * time.Second
)

// Config holds the dependencies of the gateway.
type Config struct {
	// Address to listen on, e.g. ":8080".
	Address string

	// BaseURL is the public URL of the façade that source URLs are
	// rewritten onto.
	BaseURL string

	// Auth configures incoming authentication.
	Auth *config.IncomingAuthConfig

	Aggregator *aggregator.Aggregator
	Filter     *filter.Engine

	// MetricsHandler serves /metrics. Nil leaves the route unmounted.
	MetricsHandler http.Handler

	// RequestTimeout bounds every request. Zero selects the default.
	RequestTimeout time.Duration
}

// Server is the façade HTTP gateway.
type Server struct {
	cfg     Config
	agg     *aggregator.Aggregator
	router  *router.Router
	filter  *filter.Engine
	policy  auth.OutgoingPolicy
	handler http.Handler
}

// New creates the gateway and its route table.
func New(cfg Config) (*Server, error) {
	if cfg.Aggregator == nil || cfg.Filter == nil {
		return nil, errors.New("server requires an aggregator and a filter engine")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	authn, err := auth.NewAuthenticator(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticator: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		agg:    cfg.Aggregator,
		router: router.New(cfg.Aggregator.Registry(), cfg.Aggregator, cfg.BaseURL),
		filter: cfg.Filter,
		policy: auth.NewOutgoingPolicy(cfg.Auth),
	}

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Timeout(cfg.RequestTimeout),
		LoggingMiddleware,
	)

	r.Get("/health", s.getHealth)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(authn))

		r.Get("/", apierrors.ErrorHandler(s.getRoot))
		r.Get("/model", apierrors.ErrorHandler(s.getModel))
		r.Get("/capabilities", apierrors.ErrorHandler(s.getCapabilities))
		r.Mount("/admin", s.adminRouter())
		r.Get("/*", apierrors.ErrorHandler(s.routed))
	})

	s.handler = r
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Router returns the path router.
func (s *Server) Router() *router.Router {
	return s.router
}

// Serve listens on the configured address until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address, err)
	}
	return s.ServeListener(ctx, listener)
}

// ServeListener serves on an existing listener until ctx is cancelled.
func (s *Server) ServeListener(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		BaseContext:       func(net.Listener) context.Context { return ctx },
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      s.cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("regbridge listening on %s", listener.Addr())
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info("server shutdown complete")
	return nil
}
