// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package scan aggregates per-file unsafe metrics into per-package
// verdicts.
//
// The aggregator walks each package's crate directory for Rust sources,
// keeps the ones the resolver proved were actually compiled, scans them
// through an injected scan function, and tags the crate roots of library,
// binary, and build-script targets as entry points. The verdict rule lives
// on PackageMetrics so it stays replayable from its inputs.
package scan

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/sync/errgroup"

	"github.com/sievertlabs/dosimeter/internal/depinfo"
	"github.com/sievertlabs/dosimeter/internal/geiger"
	"github.com/sievertlabs/dosimeter/internal/graph"
	"github.com/sievertlabs/dosimeter/internal/rsfile"
)

// Mode selects which files of a package are scanned.
type Mode int

const (
	// ModeFull scans every resolved file of the package. Required for the
	// verdict's "counts anywhere" clause and for report totals.
	ModeFull Mode = iota

	// ModeEntryPoints scans only crate entry-point files. Enough to decide
	// the forbid directive, cheaper on large graphs.
	ModeEntryPoints
)

// String returns the string representation of the Mode.
func (m Mode) String() string {
	if m == ModeEntryPoints {
		return "entry-points"
	}
	return "full"
}

// Func scans one file. Injected so the aggregator stays independent of the
// parsing library.
type Func func(ctx context.Context, path string) (*geiger.Metrics, error)

// Option adjusts an Aggregator.
type Option func(*Aggregator)

// WithMode selects the scan mode. Default is ModeFull.
func WithMode(mode Mode) Option {
	return func(a *Aggregator) {
		a.mode = mode
	}
}

// WithConcurrency bounds parallel file scans. Default is GOMAXPROCS.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithStrict aborts the whole scan on the first per-package failure
// instead of downgrading the package to "no metrics".
func WithStrict(strict bool) Option {
	return func(a *Aggregator) {
		a.strict = strict
	}
}

// WithGitignore honors the .gitignore at workspaceRoot during directory
// walks, so vendored fixtures and generated files are not scanned.
func WithGitignore(workspaceRoot string) Option {
	return func(a *Aggregator) {
		gi, err := ignore.CompileIgnoreFile(filepath.Join(workspaceRoot, ".gitignore"))
		if err != nil {
			// No .gitignore is the common case for dependency crates.
			return
		}
		a.ignorer = gi
		a.ignoreRoot = workspaceRoot
	}
}

// WithLogger sets the logger. Nil falls back to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// Aggregator scans the packages of a dependency graph.
type Aggregator struct {
	scan        Func
	resolved    depinfo.FileSet
	mode        Mode
	concurrency int
	strict      bool
	ignorer     *ignore.GitIgnore
	ignoreRoot  string
	logger      *slog.Logger
}

// NewAggregator creates an aggregator over the resolved file set. Only
// files in the set are ever scanned; everything else on disk is treated as
// not compiled.
func NewAggregator(scanFn Func, resolved depinfo.FileSet, opts ...Option) *Aggregator {
	a := &Aggregator{
		scan:        scanFn,
		resolved:    resolved,
		concurrency: runtime.GOMAXPROCS(0),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ScanGraph scans every package in the graph and returns the collected
// metrics. A package whose files fail to scan is dropped from the result
// and logged, unless strict mode is set; its verdict then falls back to
// the conservative no-metrics reading.
func (a *Aggregator) ScanGraph(ctx context.Context, g *graph.Graph) (*Result, error) {
	result := &Result{Packages: make(map[graph.PackageID]*PackageMetrics)}
	for _, pkg := range g.Packages() {
		metrics, err := a.scanPackage(ctx, pkg)
		if err != nil {
			if a.strict || ctx.Err() != nil {
				return nil, err
			}
			a.logger.Warn("package scan incomplete, treating as unscanned",
				slog.String("package", pkg.Name),
				slog.String("error", err.Error()))
			continue
		}
		if len(metrics.Files) > 0 {
			result.Packages[pkg.ID] = metrics
		}
	}
	return result, nil
}

// fileJob is one file queued for scanning.
type fileJob struct {
	path       string
	entryPoint bool
}

// fileResult carries one finished scan back to the collector.
type fileResult struct {
	path       string
	entryPoint bool
	metrics    *geiger.Metrics
	err        error
}

// scanPackage collects and scans the candidate files of one package.
func (a *Aggregator) scanPackage(ctx context.Context, pkg *graph.Package) (*PackageMetrics, error) {
	jobs, err := a.candidates(pkg)
	if err != nil {
		return nil, err
	}

	metrics := &PackageMetrics{Files: make(map[string]*FileMetrics, len(jobs))}
	if len(jobs) == 0 {
		return metrics, nil
	}

	results := make(chan fileResult)
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(a.concurrency)
	go func() {
		for _, job := range jobs {
			grp.Go(func() error {
				m, err := a.scan(gctx, job.path)
				results <- fileResult{path: job.path, entryPoint: job.entryPoint, metrics: m, err: err}
				return nil
			})
		}
		// Workers never return errors; failures travel in the results.
		_ = grp.Wait()
		close(results)
	}()

	// Only this goroutine touches the map.
	var scanErr error
	for res := range results {
		if res.err != nil {
			if scanErr == nil {
				scanErr = res.err
			}
			continue
		}
		metrics.Files[res.path] = &FileMetrics{Metrics: *res.metrics, EntryPoint: res.entryPoint}
	}
	if scanErr != nil {
		return nil, scanErr
	}
	return metrics, nil
}

// candidates lists the package files to scan: entry-point roots always,
// plus in full mode every .rs file under the crate directory. Everything
// is filtered to the resolved set, and duplicate targets naming the same
// root collapse to one job.
func (a *Aggregator) candidates(pkg *graph.Package) ([]fileJob, error) {
	entryRoots := make(map[string]bool)
	for _, target := range pkg.Targets {
		root := rsfile.Classify(target.Kind, target.SrcPath)
		if !root.Role.EntryPoint() {
			continue
		}
		entryRoots[canonical(root.Path)] = true
	}

	seen := make(map[string]bool)
	var jobs []fileJob
	add := func(path string, entry bool) {
		if seen[path] || !a.resolved.Contains(path) {
			return
		}
		seen[path] = true
		jobs = append(jobs, fileJob{path: path, entryPoint: entry})
	}

	for path := range entryRoots {
		add(path, true)
	}
	if a.mode == ModeEntryPoints {
		return jobs, nil
	}

	crateDir := pkg.CrateDir()
	err := filepath.WalkDir(crateDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "target" || a.ignored(path) {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".rs") || a.ignored(path) {
			return nil
		}
		canon := canonical(path)
		add(canon, entryRoots[canon])
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// ignored reports whether the workspace .gitignore excludes path.
func (a *Aggregator) ignored(path string) bool {
	if a.ignorer == nil {
		return false
	}
	rel, err := filepath.Rel(a.ignoreRoot, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	return a.ignorer.MatchesPath(rel)
}

// canonical resolves symlinks best-effort so paths compare equal to the
// resolver's canonical set. A path that fails to resolve is used as-is and
// will simply not match.
func canonical(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return path
}

// ScannerFunc adapts a geiger.Scanner to the aggregator's Func type.
func ScannerFunc(s *geiger.Scanner) Func {
	return func(ctx context.Context, path string) (*geiger.Metrics, error) {
		return s.ScanFile(ctx, path)
	}
}
