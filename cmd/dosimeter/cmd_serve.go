// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sievertlabs/dosimeter/internal/audit"
	"github.com/sievertlabs/dosimeter/internal/server"
	"github.com/sievertlabs/dosimeter/internal/telemetry"
)

// runServe hosts the audit API until SIGINT or SIGTERM.
func runServe(cmd *cobra.Command, args []string) error {
	shutdown, err := telemetry.Init(telemetry.Config{
		ServiceName:    "dosimeter",
		ServiceVersion: version,
		Enabled:        enableTrace,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	addr := effective(cmd, "addr", serveAddr, cfg.ServeAddr)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(audit.New(logger), logger, server.Config{
		Addr:      addr,
		CargoPath: cfg.Cargo,
	})
	return srv.Run(ctx)
}
