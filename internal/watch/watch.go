// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package watch re-runs the audit when workspace sources change.
//
// A recursive fsnotify watcher covers the workspace, filtered through
// .gitignore so build output and editor droppings do not trigger runs.
// Events are debounced into a quiet window and runs are serialized; a
// burst of saves produces one audit.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	ignore "github.com/sabhiram/go-gitignore"
)

// RunFunc is the action triggered after a quiet window.
type RunFunc func(ctx context.Context) error

// Options configure a watcher.
type Options struct {
	// WorkspaceRoot is the directory tree to watch.
	WorkspaceRoot string

	// Debounce is the quiet window after the last relevant event.
	// Zero means 500ms.
	Debounce time.Duration

	// Logger falls back to slog.Default() when nil.
	Logger *slog.Logger
}

// Watcher triggers a run function on debounced source changes.
type Watcher struct {
	run      RunFunc
	root     string
	debounce time.Duration
	logger   *slog.Logger
	ignorer  *ignore.GitIgnore

	fs *fsnotify.Watcher
}

// New creates a watcher rooted at opts.WorkspaceRoot. The caller owns the
// watcher and must Close it when Run returns.
func New(run RunFunc, opts Options) (*Watcher, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		run:      run,
		root:     opts.WorkspaceRoot,
		debounce: debounce,
		logger:   logger,
		fs:       fsw,
	}
	if gi, err := ignore.CompileIgnoreFile(filepath.Join(opts.WorkspaceRoot, ".gitignore")); err == nil {
		w.ignorer = gi
	}

	if err := w.addTree(opts.WorkspaceRoot); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Close releases the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

// Run watches until ctx is canceled. Run errors from the callback are
// logged and watching continues; the next save gets a fresh audit.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watching for changes",
		"root", w.root, "debounce", w.debounce)

	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						w.logger.Warn("watch new directory", "path", event.Name, "error", err)
					}
				}
			}
			if !w.relevant(event.Name) {
				continue
			}
			w.logger.Debug("source change", "path", event.Name, "op", event.Op.String())
			timerC = time.After(w.debounce)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case <-timerC:
			timerC = nil
			if err := w.run(ctx); err != nil {
				w.logger.Error("audit failed, still watching", "error", err)
			}
		}
	}
}

// addTree registers dir and every directory below it, skipping build
// output, dotted directories, and anything gitignored.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.skipDir(path, d.Name()) {
			return filepath.SkipDir
		}
		return w.fs.Add(path)
	})
}

func (w *Watcher) skipDir(path, name string) bool {
	if name == "target" {
		return true
	}
	if strings.HasPrefix(name, ".") && path != w.root {
		return true
	}
	return w.ignoredRel(path)
}

// relevant reports whether a change to path should schedule a run:
// Rust sources and manifest files, unless gitignored.
func (w *Watcher) relevant(path string) bool {
	base := filepath.Base(path)
	switch {
	case strings.HasSuffix(base, ".rs"):
	case base == "Cargo.toml" || base == "Cargo.lock":
	default:
		return false
	}
	return !w.ignoredRel(path)
}

func (w *Watcher) ignoredRel(path string) bool {
	if w.ignorer == nil {
		return false
	}
	rel, err := filepath.Rel(w.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false
	}
	return w.ignorer.MatchesPath(rel)
}
