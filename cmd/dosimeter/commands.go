// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sievertlabs/dosimeter/internal/audit"
	"github.com/sievertlabs/dosimeter/internal/config"
	"github.com/sievertlabs/dosimeter/internal/render"
	"github.com/sievertlabs/dosimeter/internal/tree"
	"github.com/sievertlabs/dosimeter/pkg/logging"
)

// version is stamped at build time via -ldflags.
var version = "0.1.0-dev"

// --- Global Command Variables ---
var (
	configPath   string
	logLevelFlag string

	manifestPath      string
	features          []string
	allFeatures       bool
	noDefaultFeatures bool
	allTargets        bool
	targetTriple      string
	invertTree        bool
	showAll           bool
	charsetFlag       string
	prefixFlag        string
	includeTests      bool
	entryPointsOnly   bool
	outputFormat      string
	formatPattern     string
	colorFlag         string
	quiet             bool

	serveAddr   string
	enableTrace bool

	debounce time.Duration

	cfg    config.Config
	logger *slog.Logger

	rootCmd = &cobra.Command{
		Use:   "dosimeter",
		Short: "Audit a Cargo dependency tree for unsafe Rust code",
		Long: `Dosimeter rebuilds a Cargo workspace with compiler interception,
scans every compiled source file for unsafe code, and renders the
dependency tree annotated with a safety verdict per crate.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}

	scanCmd = &cobra.Command{
		Use:   "scan",
		Short: "Run one audit and print the annotated dependency tree",
		RunE:  runScan, // Defined in cmd_scan.go
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Expose the auditor over HTTP",
		RunE:  runServe, // Defined in cmd_serve.go
	}

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Re-audit whenever workspace sources change",
		RunE:  runWatch, // Defined in cmd_watch.go
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the dosimeter version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dosimeter %s\n", version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default .dosimeter.yaml in the working directory)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "minimum log level: debug, info, warn, error")

	addScanFlags(scanCmd)
	addScanFlags(watchCmd)
	watchCmd.Flags().DurationVar(&debounce, "debounce", 0, "quiet window after the last change before re-auditing")

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address")
	serveCmd.Flags().BoolVar(&enableTrace, "trace", false, "export spans for each audit stage")

	rootCmd.AddCommand(scanCmd, serveCmd, watchCmd, versionCmd)
}

// addScanFlags registers the audit flags shared by scan and watch.
func addScanFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&manifestPath, "manifest-path", "", "path to Cargo.toml")
	f.StringSliceVar(&features, "features", nil, "features to activate")
	f.BoolVar(&allFeatures, "all-features", false, "activate all available features")
	f.BoolVar(&noDefaultFeatures, "no-default-features", false, "do not activate default features")
	f.BoolVar(&allTargets, "all-targets", false, "build all targets")
	f.StringVar(&targetTriple, "target", "", "platform triple to build for")
	f.BoolVar(&invertTree, "invert", false, "walk dependents instead of dependencies")
	f.BoolVar(&showAll, "all", false, "repeat already-printed subtrees")
	f.StringVar(&charsetFlag, "charset", "", "output charset: utf8 or ascii")
	f.StringVar(&prefixFlag, "prefix", "", "line prefix style: indent, depth, or none")
	f.BoolVar(&includeTests, "include-tests", false, "count unsafe usage in test code")
	f.BoolVar(&entryPointsOnly, "entry-points-only", false, "scan only crate entry-point files")
	f.StringVar(&outputFormat, "output", "text", "output format: text or json")
	f.StringVar(&formatPattern, "format", "", "package display pattern, e.g. \"{p} ({l})\"")
	f.StringVar(&colorFlag, "color", "", "color mode: auto, always, or never")
	f.BoolVar(&quiet, "quiet", false, "suppress the symbol legend")
}

// setup loads configuration and installs the logger before any command
// runs.
func setup(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	cfg, err = config.Load(configPath, cwd)
	if err != nil {
		return err
	}

	levelStr := cfg.LogLevel
	if logLevelFlag != "" {
		levelStr = logLevelFlag
	}
	level, err := logging.ParseLevel(levelStr)
	if err != nil {
		return err
	}
	logger = logging.Init(logging.Config{
		Level:   level,
		Service: "dosimeter",
	})
	return nil
}

// effective returns the flag value when set, the config value otherwise.
func effective(cmd *cobra.Command, flag, flagValue, configValue string) string {
	if cmd.Flags().Changed(flag) {
		return flagValue
	}
	if configValue != "" {
		return configValue
	}
	return flagValue
}

// auditOptions assembles the pipeline options from flags and config.
func auditOptions(cmd *cobra.Command) (audit.Options, error) {
	var opts audit.Options

	charset, err := tree.ParseCharset(effective(cmd, "charset", charsetFlag, cfg.Charset))
	if err != nil {
		return opts, err
	}
	prefix, err := tree.ParsePrefix(effective(cmd, "prefix", prefixFlag, cfg.Prefix))
	if err != nil {
		return opts, err
	}
	color, err := render.ParseColorMode(effective(cmd, "color", colorFlag, cfg.Color))
	if err != nil {
		return opts, err
	}

	var pattern *render.Pattern
	if formatPattern != "" {
		pattern, err = render.ParsePattern(formatPattern)
		if err != nil {
			return opts, err
		}
	}

	if outputFormat != "text" && outputFormat != "json" {
		return opts, fmt.Errorf("unknown output format %q", outputFormat)
	}

	opts = audit.Options{
		ManifestPath:      manifestPath,
		Features:          features,
		AllFeatures:       allFeatures,
		NoDefaultFeatures: noDefaultFeatures,
		AllTargets:        allTargets,
		Target:            targetTriple,
		CargoPath:         cfg.Cargo,
		Invert:            invertTree,
		All:               showAll,
		IncludeTests:      includeTests || cfg.IncludeTests,
		EntryPointsOnly:   entryPointsOnly,
		Charset:           charset,
		Prefix:            prefix,
		Pattern:           pattern,
		Color:             color,
		Quiet:             quiet,
	}
	return opts, nil
}
