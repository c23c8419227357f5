// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package server exposes the auditor over HTTP.
//
// One audit at a time: concurrent cargo builds of the same workspace
// corrupt each other's target directory, so POST /v1/audits serializes
// runs behind a mutex and lets callers queue.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/sievertlabs/dosimeter/internal/audit"
)

// shutdownTimeout bounds connection draining on exit.
const shutdownTimeout = 10 * time.Second

// Runner is the audit entry point the server drives. Satisfied by
// *audit.Auditor; tests substitute stubs.
type Runner interface {
	Run(ctx context.Context, opts audit.Options) (*audit.Report, error)
}

// Config holds serve-mode settings.
type Config struct {
	// Addr is the listen address, e.g. ":8089".
	Addr string

	// CargoPath is the cargo binary passed through to audits.
	CargoPath string
}

// Server hosts the audit API.
type Server struct {
	cfg     Config
	auditor Runner
	logger  *slog.Logger
	metrics *metrics
	engine  *gin.Engine

	// runMu serializes audit runs.
	runMu sync.Mutex
}

// New creates a server around the given auditor. A nil logger falls back
// to slog.Default().
func New(auditor Runner, logger *slog.Logger, cfg Config) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		cfg:     cfg,
		auditor: auditor,
		logger:  logger,
		metrics: newMetrics(),
		engine:  gin.New(),
	}
	s.engine.Use(gin.Recovery())
	s.engine.Use(otelgin.Middleware("dosimeter"))
	s.registerRoutes()
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(
		promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})))

	v1 := s.engine.Group("/v1")
	{
		v1.POST("/audits", s.handleAudit)
	}
}

// Run serves until ctx is canceled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("serving audit API", "addr", s.cfg.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down", "timeout", shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
