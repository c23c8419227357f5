// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package depinfo resolves which source files a build actually compiled.
//
// rustc writes a makefile-style dependency-info file (extension .d) next to
// every artifact it produces. The file lists, per build target, every source
// file the target depends on. Walking the build's output directories for
// these files and parsing them yields the ground truth of compiled sources,
// including module files that never appear on any command line.
package depinfo

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sievertlabs/dosimeter/internal/intercept"
)

// depInfoExt marks generated dependency-info files.
const depInfoExt = ".d"

// FileSet is a set of canonical source file paths.
type FileSet map[string]struct{}

// Contains reports whether path is in the set.
func (s FileSet) Contains(path string) bool {
	_, ok := s[path]
	return ok
}

// Add inserts path into the set.
func (s FileSet) Add(path string) {
	s[path] = struct{}{}
}

// Paths returns the set's members sorted.
func (s FileSet) Paths() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// TargetDeps is one dep-info entry: a build target and the source files it
// was compiled from.
type TargetDeps struct {
	Target string
	Deps   []string
}

// Resolve walks every captured output directory for dep-info files, parses
// them, and returns the union of their dependency paths with the capture's
// source roots. Relative dependency paths resolve against workspaceRoot and
// every path is canonicalized; the capture's source roots are canonical
// already and join the set as-is.
func Resolve(capture *intercept.Capture, workspaceRoot string) (FileSet, error) {
	files := make(FileSet)
	for _, dir := range capture.OutDirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(d.Name(), depInfoExt) {
				return nil
			}
			entries, err := ParseFile(path)
			if err != nil {
				return err
			}
			for _, entry := range entries {
				for _, dep := range entry.Deps {
					canon, err := canonicalize(dep, workspaceRoot)
					if err != nil {
						return err
					}
					files.Add(canon)
				}
			}
			return nil
		})
		if err != nil {
			// Parse and resolution failures carry their own context and
			// pass through; anything else is a traversal failure.
			var parseErr ParseError
			var resolveErr PathResolutionError
			if errors.As(err, &parseErr) || errors.As(err, &resolveErr) {
				return nil, err
			}
			return nil, WalkError{Dir: dir, Err: err}
		}
	}
	for _, p := range capture.SourceRoots {
		files.Add(p)
	}
	return files, nil
}

// ParseFile reads one dep-info file and returns its entries.
func ParseFile(path string) ([]TargetDeps, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, ParseError{Path: path, Err: err}
	}
	entries, err := Parse(string(contents))
	if err != nil {
		return nil, ParseError{Path: path, Err: err}
	}
	return entries, nil
}

// Parse decodes makefile-style dep-info content.
//
// Each relevant line has the form "target: dep dep ...". Lines without a
// ": " separator are skipped. Dependencies are whitespace-separated; a
// dependency ending in a backslash continues into the following token with
// the backslash replaced by a literal space, which is how the format writes
// filenames containing spaces.
func Parse(contents string) ([]TargetDeps, error) {
	var entries []TargetDeps
	for _, line := range strings.Split(contents, "\n") {
		pos := strings.Index(line, ": ")
		if pos < 0 {
			continue
		}
		target := line[:pos]
		fields := strings.Fields(line[pos+2:])
		deps := make([]string, 0, len(fields))
		for i := 0; i < len(fields); i++ {
			file := fields[i]
			for strings.HasSuffix(file, `\`) {
				i++
				if i >= len(fields) {
					return nil, fmt.Errorf("malformed dep-info: trailing backslash after %q", file)
				}
				file = file[:len(file)-1] + " " + fields[i]
			}
			deps = append(deps, file)
		}
		entries = append(entries, TargetDeps{Target: target, Deps: deps})
	}
	return entries, nil
}

// canonicalize makes path absolute against root and resolves symlinks.
func canonicalize(path, root string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", PathResolutionError{Path: path, Err: err}
	}
	return resolved, nil
}
