// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sievertlabs/dosimeter/internal/audit"
)

// auditRequest is the POST /v1/audits body.
type auditRequest struct {
	ManifestPath      string   `json:"manifest_path" binding:"required"`
	Features          []string `json:"features"`
	AllFeatures       bool     `json:"all_features"`
	NoDefaultFeatures bool     `json:"no_default_features"`
	AllTargets        bool     `json:"all_targets"`
	Target            string   `json:"target"`
	IncludeTests      bool     `json:"include_tests"`
	EntryPointsOnly   bool     `json:"entry_points_only"`
}

// errorResponse is the JSON error body.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// handleAudit handles POST /v1/audits.
//
// Response:
//
//	200 OK: audit.Report
//	400 Bad Request: validation error
//	500 Internal Server Error: audit failure
func (s *Server) handleAudit(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := s.logger.With("request_id", requestID, "handler", "handleAudit")

	var req auditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, errorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	logger.Info("audit requested", "manifest_path", req.ManifestPath)

	s.metrics.auditsInFlight.Inc()
	s.runMu.Lock()
	started := time.Now()
	report, err := s.auditor.Run(c.Request.Context(), audit.Options{
		ManifestPath:      req.ManifestPath,
		Features:          req.Features,
		AllFeatures:       req.AllFeatures,
		NoDefaultFeatures: req.NoDefaultFeatures,
		AllTargets:        req.AllTargets,
		Target:            req.Target,
		IncludeTests:      req.IncludeTests,
		EntryPointsOnly:   req.EntryPointsOnly,
		CargoPath:         s.cfg.CargoPath,
		Quiet:             true,
	})
	elapsed := time.Since(started)
	s.runMu.Unlock()
	s.metrics.auditsInFlight.Dec()

	if err != nil {
		s.metrics.observe("error", elapsed.Seconds())
		logger.Error("audit failed", "error", err)
		c.JSON(http.StatusInternalServerError, errorResponse{
			Error: err.Error(),
			Code:  "AUDIT_FAILED",
		})
		return
	}

	s.metrics.observe("ok", elapsed.Seconds())
	logger.Info("audit complete", "run_id", report.RunID, "duration", elapsed)
	c.JSON(http.StatusOK, report)
}

// handleHealth handles GET /healthz.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// getOrCreateRequestID returns the inbound X-Request-ID or mints one, and
// echoes it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
