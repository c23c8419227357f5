// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cargo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sievertlabs/dosimeter/internal/depinfo"
	"github.com/sievertlabs/dosimeter/internal/intercept"
)

// BuildOptions select what the instrumented build compiles.
type BuildOptions struct {
	ManifestPath      string
	Features          []string
	AllFeatures       bool
	NoDefaultFeatures bool
	AllTargets        bool

	// Target is the platform triple to build for, host when empty.
	Target string
}

// Driver runs cargo builds with rustc interception.
//
// Interception works by pointing RUSTC_WRAPPER at the dosimeter binary
// itself. Every wrapped rustc invocation reports its working directory and
// argv over a unix socket before executing the real compiler, and the
// driver's collector turns the reports into intercept observations. rustc
// runs in parallel across cargo's jobserver, so reports arrive
// concurrently; the intercept context's mutex is what keeps them whole.
type Driver struct {
	cargo   string
	wrapper string
	logger  *slog.Logger
}

// NewDriver creates a driver. cargoPath defaults to "cargo" when empty;
// wrapperPath must be the dosimeter executable, which re-executes as the
// rustc wrapper when it sees the socket environment variable.
func NewDriver(cargoPath, wrapperPath string, logger *slog.Logger) *Driver {
	if cargoPath == "" {
		cargoPath = "cargo"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{cargo: cargoPath, wrapper: wrapperPath, logger: logger}
}

// Clean removes prior build artifacts. Required before an instrumented
// build: cached artifacts would skip compiler invocations and leave stale
// dep-info files behind to be misread as current.
func (d *Driver) Clean(ctx context.Context, opts BuildOptions) error {
	args := []string{"clean"}
	if opts.ManifestPath != "" {
		args = append(args, "--manifest-path", opts.ManifestPath)
	}
	out, err := runCommand(ctx, d.cargo, args, nil)
	if err != nil {
		return fmt.Errorf("%w: clean: %v: %s", ErrBuildFailed, err, tail(out))
	}
	return nil
}

// Check runs cargo check with rustc interception, feeding every observed
// invocation into the handle. The caller drains the handle afterwards; a
// failed build returns ErrBuildFailed and the capture must be discarded.
func (d *Driver) Check(ctx context.Context, handle *intercept.Handle, opts BuildOptions) error {
	socketDir, err := os.MkdirTemp("", "dosimeter-*")
	if err != nil {
		return fmt.Errorf("create wrapper socket dir: %w", err)
	}
	defer os.RemoveAll(socketDir)
	socketPath := filepath.Join(socketDir, "wrapper.sock")

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on wrapper socket: %w", err)
	}

	collectorHandle := handle.Share()
	collector := startCollector(listener, collectorHandle, d.logger)

	args := []string{"check"}
	if opts.ManifestPath != "" {
		args = append(args, "--manifest-path", opts.ManifestPath)
	}
	if len(opts.Features) > 0 {
		args = append(args, "--features", strings.Join(opts.Features, ","))
	}
	if opts.AllFeatures {
		args = append(args, "--all-features")
	}
	if opts.NoDefaultFeatures {
		args = append(args, "--no-default-features")
	}
	if opts.AllTargets {
		args = append(args, "--all-targets")
	}
	if opts.Target != "" {
		args = append(args, "--target", opts.Target)
	}

	env := []string{
		"RUSTC_WRAPPER=" + d.wrapper,
		WrapperSocketEnv + "=" + socketPath,
	}
	out, buildErr := runCommand(ctx, d.cargo, args, env)

	listener.Close()
	collectErr := collector.wait()
	collectorHandle.Release()

	if buildErr != nil {
		return fmt.Errorf("%w: %v: %s", ErrBuildFailed, buildErr, tail(out))
	}
	return collectErr
}

// collector drains wrapper reports off the socket for the duration of one
// build.
type collector struct {
	grp *errgroup.Group
}

func (c *collector) wait() error {
	return c.grp.Wait()
}

// startCollector accepts wrapper connections until the listener closes.
// Each connection carries one JSON report; reports from concurrently
// running rustc processes are observed as they arrive.
func startCollector(listener net.Listener, handle *intercept.Handle, logger *slog.Logger) *collector {
	if logger == nil {
		logger = slog.Default()
	}
	grp := &errgroup.Group{}
	grp.Go(func() error {
		for {
			conn, err := listener.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return nil
				}
				return fmt.Errorf("accept wrapper connection: %w", err)
			}
			grp.Go(func() error {
				defer conn.Close()
				return handleReport(conn, handle, logger)
			})
		}
	})
	return &collector{grp: grp}
}

// wrapperReport is the JSON frame one wrapped rustc invocation sends.
type wrapperReport struct {
	// Cwd is the working directory rustc ran in; relative source
	// arguments resolve against it.
	Cwd string `json:"cwd"`

	// Args is the full rustc argv, compiler path first.
	Args []string `json:"args"`
}

func handleReport(conn net.Conn, handle *intercept.Handle, logger *slog.Logger) error {
	var report wrapperReport
	if err := json.NewDecoder(conn).Decode(&report); err != nil {
		return fmt.Errorf("decode wrapper report: %w", err)
	}

	inv, err := parseInvocation(report.Cwd, report.Args)
	if err != nil {
		return err
	}
	if len(inv.SourceRoots) == 0 {
		// Version probes and similar; nothing to record.
		logger.Debug("skipping rustc invocation without source arguments")
		return nil
	}
	return handle.Observe(inv)
}

// parseInvocation extracts the source roots and output directory from a
// rustc argv. Source roots are canonicalized against the reported working
// directory, matching what the dep-info resolver produces later.
func parseInvocation(cwd string, args []string) (intercept.CompilerInvocation, error) {
	var inv intercept.CompilerInvocation
	if len(args) < 2 {
		return inv, nil
	}
	// args[0] is the compiler path.
	rest := args[1:]
	for i := 0; i < len(rest); i++ {
		arg := rest[i]
		switch {
		case arg == "--out-dir" && i+1 < len(rest):
			i++
			inv.OutDir = absAgainst(cwd, rest[i])
		case strings.HasPrefix(arg, "--out-dir="):
			inv.OutDir = absAgainst(cwd, strings.TrimPrefix(arg, "--out-dir="))
		case strings.HasSuffix(arg, ".rs") && !strings.HasPrefix(arg, "-"):
			path := absAgainst(cwd, arg)
			canon, err := filepath.EvalSymlinks(path)
			if err != nil {
				return inv, depinfo.PathResolutionError{Path: path, Err: err}
			}
			inv.SourceRoots = append(inv.SourceRoots, canon)
		}
	}
	return inv, nil
}

func absAgainst(cwd, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(cwd, path)
}

// runCommand executes one toolchain command, returning its combined
// output for error reporting. extraEnv entries are appended to the
// inherited environment.
func runCommand(ctx context.Context, bin string, args, extraEnv []string) (string, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	if len(extraEnv) > 0 {
		cmd.Env = append(os.Environ(), extraEnv...)
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.String(), err
}
