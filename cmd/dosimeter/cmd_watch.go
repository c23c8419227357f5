// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sievertlabs/dosimeter/internal/audit"
	"github.com/sievertlabs/dosimeter/internal/watch"
)

// runWatch audits once, then re-audits on every debounced source change
// until SIGINT or SIGTERM.
func runWatch(cmd *cobra.Command, args []string) error {
	opts, err := auditOptions(cmd)
	if err != nil {
		return err
	}

	root, err := watchRoot()
	if err != nil {
		return err
	}

	window := debounce
	if !cmd.Flags().Changed("debounce") {
		window = cfg.Debounce()
	}

	auditor := audit.New(logger)
	runOnce := func(ctx context.Context) error {
		report, err := auditor.Run(ctx, opts)
		if err != nil {
			return err
		}
		return printReport(report)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// First audit up front; later failures keep the watch alive.
	if err := runOnce(ctx); err != nil {
		return err
	}

	w, err := watch.New(runOnce, watch.Options{
		WorkspaceRoot: root,
		Debounce:      window,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	defer w.Close()

	return w.Run(ctx)
}

// watchRoot is the directory tree to watch: the manifest's directory when
// --manifest-path is given, the working directory otherwise.
func watchRoot() (string, error) {
	if manifestPath != "" {
		abs, err := filepath.Abs(manifestPath)
		if err != nil {
			return "", err
		}
		return filepath.Dir(abs), nil
	}
	return os.Getwd()
}
