// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cargo

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sievertlabs/dosimeter/internal/depinfo"
	"github.com/sievertlabs/dosimeter/internal/intercept"
)

// writeSource creates a real file so canonicalization succeeds, and
// returns both the raw and canonical paths.
func writeSource(t *testing.T, dir, rel string) (string, string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("pub fn f() {}\n"), 0o644))
	canon, err := filepath.EvalSymlinks(path)
	require.NoError(t, err)
	return path, canon
}

func TestParseInvocation(t *testing.T) {
	dir := t.TempDir()
	_, canonLib := writeSource(t, dir, "src/lib.rs")

	inv, err := parseInvocation(dir, []string{
		"/usr/bin/rustc",
		"--crate-name", "app",
		"--edition=2021",
		"src/lib.rs",
		"--out-dir", "target/debug/deps",
		"--emit=dep-info,metadata",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{canonLib}, inv.SourceRoots)
	assert.Equal(t, filepath.Join(dir, "target/debug/deps"), inv.OutDir)
}

func TestParseInvocationEqualsOutDir(t *testing.T) {
	dir := t.TempDir()
	_, canonLib := writeSource(t, dir, "src/lib.rs")

	inv, err := parseInvocation(dir, []string{"rustc", "src/lib.rs", "--out-dir=/abs/out"})
	require.NoError(t, err)
	assert.Equal(t, []string{canonLib}, inv.SourceRoots)
	assert.Equal(t, "/abs/out", inv.OutDir)
}

func TestParseInvocationVersionProbe(t *testing.T) {
	inv, err := parseInvocation("/anywhere", []string{"rustc", "-vV"})
	require.NoError(t, err)
	assert.Empty(t, inv.SourceRoots)
	assert.Empty(t, inv.OutDir)
}

func TestParseInvocationMissingSource(t *testing.T) {
	_, err := parseInvocation(t.TempDir(), []string{"rustc", "src/gone.rs"})
	var resolveErr depinfo.PathResolutionError
	require.ErrorAs(t, err, &resolveErr)
}

func TestCollectorGathersConcurrentReports(t *testing.T) {
	dir := t.TempDir()
	_, canonA := writeSource(t, dir, "a/src/lib.rs")
	_, canonB := writeSource(t, dir, "b/src/lib.rs")

	socketPath := filepath.Join(t.TempDir(), "wrapper.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	handle := intercept.NewContext()
	shared := handle.Share()
	c := startCollector(listener, shared, nil)

	reports := []wrapperReport{
		{Cwd: dir, Args: []string{"rustc", "a/src/lib.rs", "--out-dir", "/out/a"}},
		{Cwd: dir, Args: []string{"rustc", "b/src/lib.rs", "--out-dir", "/out/b"}},
		{Cwd: dir, Args: []string{"rustc", "-vV"}},
	}

	var wg sync.WaitGroup
	for _, report := range reports {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, sendReport(socketPath, report))
		}()
	}
	wg.Wait()

	listener.Close()
	require.NoError(t, c.wait())
	shared.Release()

	capture, err := handle.Drain()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{canonA, canonB}, capture.SourceRoots)
	assert.ElementsMatch(t, []string{"/out/a", "/out/b"}, capture.OutDirs)
	assert.Equal(t, 2, capture.Invocations)
}

func TestSendReportEncodesJSON(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "probe.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)
	defer listener.Close()

	done := make(chan wrapperReport, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var report wrapperReport
		if json.NewDecoder(conn).Decode(&report) == nil {
			done <- report
		}
	}()

	require.NoError(t, sendReport(socketPath, wrapperReport{Cwd: "/ws", Args: []string{"rustc", "-vV"}}))
	report := <-done
	assert.Equal(t, "/ws", report.Cwd)
	assert.Equal(t, []string{"rustc", "-vV"}, report.Args)
}

func TestIsWrapperInvocation(t *testing.T) {
	t.Setenv(WrapperSocketEnv, "")
	assert.False(t, IsWrapperInvocation([]string{"dosimeter", "rustc"}))

	t.Setenv(WrapperSocketEnv, "/tmp/wrapper.sock")
	assert.True(t, IsWrapperInvocation([]string{"dosimeter", "rustc", "-vV"}))
	assert.True(t, IsWrapperInvocation([]string{"dosimeter", "/toolchain/bin/rustc"}))
	assert.False(t, IsWrapperInvocation([]string{"dosimeter"}))

	// A leaked socket variable must not hijack a normal CLI invocation.
	assert.False(t, IsWrapperInvocation([]string{"dosimeter", "scan"}))
	assert.False(t, IsWrapperInvocation([]string{"dosimeter", "--manifest-path", "Cargo.toml"}))
}
