// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// startWatcher runs the watcher in the background and returns a counter
// of triggered runs plus a channel signaled on each run.
func startWatcher(t *testing.T, root string, debounce time.Duration) (*atomic.Int64, chan struct{}) {
	t.Helper()

	var runs atomic.Int64
	ran := make(chan struct{}, 16)
	w, err := New(func(context.Context) error {
		runs.Add(1)
		ran <- struct{}{}
		return nil
	}, Options{WorkspaceRoot: root, Debounce: debounce})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		w.Close()
	})
	return &runs, ran
}

func waitForRun(t *testing.T, ran chan struct{}) {
	t.Helper()
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never triggered a run")
	}
}

func TestTriggersOnSourceChange(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src", "lib.rs"), "pub fn f() {}\n")

	_, ran := startWatcher(t, root, 50*time.Millisecond)

	writeFile(t, filepath.Join(root, "src", "lib.rs"), "pub fn g() {}\n")
	waitForRun(t, ran)
}

func TestDebounceCoalescesBurst(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src", "lib.rs"), "pub fn f() {}\n")

	runs, ran := startWatcher(t, root, 300*time.Millisecond)

	// A burst of saves inside one quiet window.
	for i := 0; i < 5; i++ {
		writeFile(t, filepath.Join(root, "src", "lib.rs"), "pub fn f() {}\n")
		time.Sleep(10 * time.Millisecond)
	}
	waitForRun(t, ran)

	// Give a second debounce window a chance to fire spuriously.
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, int64(1), runs.Load())
}

func TestIgnoresIrrelevantFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "src", "lib.rs"), "pub fn f() {}\n")

	runs, _ := startWatcher(t, root, 50*time.Millisecond)

	writeFile(t, filepath.Join(root, "notes.txt"), "not rust\n")
	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, runs.Load())
}

func TestManifestChangeTriggers(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Cargo.toml"), "[package]\nname = \"app\"\n")

	_, ran := startWatcher(t, root, 50*time.Millisecond)

	writeFile(t, filepath.Join(root, "Cargo.toml"), "[package]\nname = \"app2\"\n")
	waitForRun(t, ran)
}

func TestGitignoredChangesAreFiltered(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "generated/\n")
	writeFile(t, filepath.Join(root, "generated", "out.rs"), "pub fn f() {}\n")

	w, err := New(func(context.Context) error { return nil },
		Options{WorkspaceRoot: root, Debounce: 50 * time.Millisecond})
	require.NoError(t, err)
	defer w.Close()

	assert.False(t, w.relevant(filepath.Join(root, "generated", "out.rs")))
	assert.True(t, w.relevant(filepath.Join(root, "src", "lib.rs")))
}
