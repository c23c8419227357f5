// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package audit runs the full unsafe-code audit pipeline: load the
// dependency graph, rebuild the workspace with compiler interception,
// resolve the compiled source set, scan it, and render the annotated
// tree. Each stage is traced; every run carries a uuid run id through
// logs and the report.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/sievertlabs/dosimeter/internal/cargo"
	"github.com/sievertlabs/dosimeter/internal/depinfo"
	"github.com/sievertlabs/dosimeter/internal/geiger"
	"github.com/sievertlabs/dosimeter/internal/graph"
	"github.com/sievertlabs/dosimeter/internal/intercept"
	"github.com/sievertlabs/dosimeter/internal/render"
	"github.com/sievertlabs/dosimeter/internal/scan"
	"github.com/sievertlabs/dosimeter/internal/telemetry"
	"github.com/sievertlabs/dosimeter/internal/tree"
)

// Options select what one audit run builds, scans, and renders.
type Options struct {
	// ManifestPath is the Cargo.toml to audit, the current directory's
	// when empty.
	ManifestPath string

	Features          []string
	AllFeatures       bool
	NoDefaultFeatures bool
	AllTargets        bool
	Target            string

	// CargoPath is the cargo binary, "cargo" when empty.
	CargoPath string

	// WrapperPath is the executable to install as RUSTC_WRAPPER. Empty
	// means the running binary.
	WrapperPath string

	// Invert walks dependents instead of dependencies.
	Invert bool

	// All repeats already-printed subtrees instead of truncating them.
	All bool

	// IncludeTests counts unsafe usage inside test code.
	IncludeTests bool

	// EntryPointsOnly scans only crate entry-point files.
	EntryPointsOnly bool

	Charset tree.Charset
	Prefix  tree.Prefix
	Pattern *render.Pattern
	Color   render.ColorMode
	Quiet   bool
}

// PackageReport is one package's entry in the JSON report.
type PackageReport struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	Version       string              `json:"version"`
	Verdict       string              `json:"verdict"`
	Counts        geiger.CounterBlock `json:"counts"`
	ForbidsUnsafe bool                `json:"forbids_unsafe"`
}

// Report is the result of one audit run. The exported fields form the
// stable JSON document; Text is the colored terminal rendering.
type Report struct {
	RunID      string          `json:"run_id"`
	Root       string          `json:"root"`
	DurationMS int64           `json:"duration_ms"`
	Packages   []PackageReport `json:"packages"`
	Tree       []string        `json:"tree"`

	Text []string `json:"-"`
}

// Auditor runs audits. Safe for sequential reuse; serve and watch modes
// serialize runs themselves since concurrent cargo builds of one
// workspace would trample each other's artifacts.
type Auditor struct {
	logger *slog.Logger
	tracer oteltrace.Tracer
}

// New creates an auditor. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger: logger,
		tracer: otel.Tracer(telemetry.TracerName),
	}
}

// Run executes the pipeline once.
func (a *Auditor) Run(ctx context.Context, opts Options) (*Report, error) {
	runID := uuid.NewString()
	logger := a.logger.With("run_id", runID)
	started := time.Now()

	wrapper := opts.WrapperPath
	if wrapper == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate wrapper executable: %w", err)
		}
		wrapper = exe
	}

	g, workspaceRoot, err := a.loadGraph(ctx, opts)
	if err != nil {
		return nil, err
	}
	logger.Info("loaded dependency graph",
		"packages", g.Len(), "workspace_root", workspaceRoot)

	resolved, err := a.capture(ctx, opts, wrapper, workspaceRoot, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("resolved compiled sources", "files", len(resolved))

	result, err := a.scanSources(ctx, opts, resolved, workspaceRoot, g, logger)
	if err != nil {
		return nil, err
	}

	report := a.render(ctx, opts, g, result)
	report.RunID = runID
	report.DurationMS = time.Since(started).Milliseconds()
	logger.Info("audit complete", "duration_ms", report.DurationMS)
	return report, nil
}

// loadGraph runs cargo metadata and decodes the graph.
func (a *Auditor) loadGraph(ctx context.Context, opts Options) (*graph.Graph, string, error) {
	ctx, span := a.tracer.Start(ctx, "audit.metadata")
	defer span.End()

	g, root, err := cargo.LoadGraph(ctx, cargo.MetadataOptions{
		CargoPath:         opts.CargoPath,
		ManifestPath:      opts.ManifestPath,
		Features:          opts.Features,
		AllFeatures:       opts.AllFeatures,
		NoDefaultFeatures: opts.NoDefaultFeatures,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "metadata failed")
		return nil, "", err
	}
	return g, root, nil
}

// capture cleans, rebuilds under interception, and resolves the set of
// compiled source files.
func (a *Auditor) capture(ctx context.Context, opts Options, wrapper, workspaceRoot string, logger *slog.Logger) (depinfo.FileSet, error) {
	driver := cargo.NewDriver(opts.CargoPath, wrapper, logger)
	buildOpts := cargo.BuildOptions{
		ManifestPath:      opts.ManifestPath,
		Features:          opts.Features,
		AllFeatures:       opts.AllFeatures,
		NoDefaultFeatures: opts.NoDefaultFeatures,
		AllTargets:        opts.AllTargets,
		Target:            opts.Target,
	}

	cleanCtx, cleanSpan := a.tracer.Start(ctx, "audit.clean")
	err := driver.Clean(cleanCtx, buildOpts)
	cleanSpan.End()
	if err != nil {
		return nil, err
	}

	handle := intercept.NewContext()
	checkCtx, checkSpan := a.tracer.Start(ctx, "audit.check")
	err = driver.Check(checkCtx, handle, buildOpts)
	if err != nil {
		checkSpan.RecordError(err)
		checkSpan.SetStatus(codes.Error, "instrumented build failed")
		checkSpan.End()
		return nil, err
	}
	checkSpan.End()

	capture, err := handle.Drain()
	if err != nil {
		return nil, fmt.Errorf("drain intercept capture: %w", err)
	}
	logger.Debug("drained capture",
		"invocations", capture.Invocations,
		"source_roots", len(capture.SourceRoots),
		"out_dirs", len(capture.OutDirs))

	_, resolveSpan := a.tracer.Start(ctx, "audit.resolve")
	defer resolveSpan.End()
	resolved, err := depinfo.Resolve(capture, workspaceRoot)
	if err != nil {
		resolveSpan.RecordError(err)
		resolveSpan.SetStatus(codes.Error, "dep-info resolution failed")
		return nil, err
	}
	return resolved, nil
}

// scanSources walks the graph's crates and counts unsafe usage.
func (a *Auditor) scanSources(ctx context.Context, opts Options, resolved depinfo.FileSet, workspaceRoot string, g *graph.Graph, logger *slog.Logger) (*scan.Result, error) {
	ctx, span := a.tracer.Start(ctx, "audit.scan")
	defer span.End()

	scannerOpts := []geiger.Option{geiger.WithLogger(logger)}
	if opts.IncludeTests {
		scannerOpts = append(scannerOpts, geiger.WithIncludeTests(true))
	}
	scanner := geiger.NewScanner(scannerOpts...)

	aggOpts := []scan.Option{
		scan.WithGitignore(workspaceRoot),
		scan.WithLogger(logger),
	}
	if opts.EntryPointsOnly {
		aggOpts = append(aggOpts, scan.WithMode(scan.ModeEntryPoints))
	}
	agg := scan.NewAggregator(scan.ScannerFunc(scanner), resolved, aggOpts...)

	result, err := agg.ScanGraph(ctx, g)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scan failed")
		return nil, err
	}
	return result, nil
}

// render walks the tree and assembles the report.
func (a *Auditor) render(ctx context.Context, opts Options, g *graph.Graph, result *scan.Result) *Report {
	_, span := a.tracer.Start(ctx, "audit.render")
	defer span.End()

	direction := graph.DirectionOutgoing
	if opts.Invert {
		direction = graph.DirectionIncoming
	}
	lines := tree.Walk(g, g.Root(), tree.WalkConfig{
		Direction: direction,
		Prefix:    opts.Prefix,
		Charset:   opts.Charset,
		All:       opts.All,
	})

	report := buildReport(g, result, lines, opts.Pattern)
	report.Text = render.Text(g, result, lines, render.Config{
		Charset: opts.Charset,
		Pattern: opts.Pattern,
		Color:   opts.Color,
		Quiet:   opts.Quiet,
	})
	return report
}

// buildReport assembles the stable JSON document: packages sorted by id,
// tree rendered without symbols or colors.
func buildReport(g *graph.Graph, result *scan.Result, lines []tree.Line, pattern *render.Pattern) *Report {
	packages := make([]PackageReport, 0, g.Len())
	for _, pkg := range g.Packages() {
		verdict := result.Verdict(pkg.ID)
		var counts geiger.CounterBlock
		if result != nil {
			counts = result.Packages[pkg.ID].Totals()
		}
		packages = append(packages, PackageReport{
			ID:            string(pkg.ID),
			Name:          pkg.Name,
			Version:       pkg.Version,
			Verdict:       verdict.String(),
			Counts:        counts,
			ForbidsUnsafe: verdict == scan.VerdictForbidsUnsafeEverywhere,
		})
	}
	sort.Slice(packages, func(i, j int) bool { return packages[i].ID < packages[j].ID })

	return &Report{
		Root:     string(g.Root()),
		Packages: packages,
		Tree:     render.Plain(g, lines, pattern),
	}
}
