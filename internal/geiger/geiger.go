// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package geiger counts unsafe-marked constructs in Rust source files.
//
// The scanner parses one file at a time with tree-sitter and tallies
// functions, methods, impls, traits, and expressions, each split into safe
// and unsafe occurrences. It also detects a file-level
// #![forbid(unsafe_code)] inner attribute, which is the signal the
// aggregator treats as a compiler-enforced guarantee.
//
// The scanner sees one file in isolation. It cannot know whether a file is
// a crate entry point or which package owns it; that context belongs to the
// aggregation layer.
package geiger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
)

const (
	// DefaultMaxFileSize is the maximum file size the scanner accepts (10MB).
	DefaultMaxFileSize = 10 * 1024 * 1024

	// warnFileSize is the threshold at which a warning is logged (1MB).
	warnFileSize = 1 * 1024 * 1024
)

// Option configures a Scanner.
type Option func(*Scanner)

// WithMaxFileSize sets the maximum file size the scanner will accept.
func WithMaxFileSize(bytes int64) Option {
	return func(s *Scanner) {
		if bytes > 0 {
			s.maxFileSize = bytes
		}
	}
}

// WithIncludeTests includes #[test] functions and #[cfg(test)] modules in
// the counts. They are excluded by default: test-only unsafe code never
// ships in the compiled artifact.
func WithIncludeTests(include bool) Option {
	return func(s *Scanner) {
		s.includeTests = include
	}
}

// WithLogger sets the logger. Nil falls back to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Scanner scans Rust source files for unsafe-marked code.
//
// Thread Safety: a Scanner is safe for concurrent use; every Scan call
// creates its own tree-sitter parser instance.
type Scanner struct {
	maxFileSize  int64
	includeTests bool
	logger       *slog.Logger
}

// NewScanner creates a Scanner with the given options.
func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{
		maxFileSize: DefaultMaxFileSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScanFile reads and scans one file.
func (s *Scanner) ScanFile(ctx context.Context, path string) (*Metrics, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return s.Scan(ctx, content, path)
}

// Scan parses content and tallies its unsafe constructs. The path is used
// for diagnostics only.
func (s *Scanner) Scan(ctx context.Context, content []byte, path string) (*Metrics, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("scan canceled before start: %w", err)
	}
	if int64(len(content)) > s.maxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrFileTooLarge, path, len(content), s.maxFileSize)
	}
	if len(content) > warnFileSize {
		s.logger.Warn("scanning large file",
			slog.String("file", path),
			slog.Int("size_bytes", len(content)))
	}
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidContent, path)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(rust.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	metrics := &Metrics{}
	if root == nil {
		return metrics, nil
	}

	metrics.ForbidsUnsafe = forbidsUnsafe(root, content)
	s.visit(root, content, metrics, scanState{})
	return metrics, nil
}

// scanState carries the syntactic context down the tree walk.
type scanState struct {
	// inImpl marks descent through an impl block; function items found
	// here count as methods.
	inImpl bool

	// inUnsafe marks descent through an unsafe block or an unsafe
	// function body; expressions found here count as unsafe.
	inUnsafe bool
}

// visit recursively tallies node and its subtree into metrics.
func (s *Scanner) visit(node *sitter.Node, content []byte, m *Metrics, st scanState) {
	switch node.Type() {
	case "function_item":
		if !s.includeTests && hasTestAttribute(node, content) {
			return
		}
		unsafeFn := hasUnsafeKeyword(node, content)
		if st.inImpl {
			m.Counters.Methods.add(unsafeFn)
		} else {
			m.Counters.Functions.add(unsafeFn)
		}
		if unsafeFn {
			st.inUnsafe = true
		}

	case "impl_item":
		m.Counters.ItemImpls.add(hasUnsafeKeyword(node, content))
		st.inImpl = true

	case "trait_item":
		m.Counters.ItemTraits.add(hasUnsafeKeyword(node, content))

	case "unsafe_block":
		st.inUnsafe = true

	case "mod_item":
		if !s.includeTests && hasCfgTestAttribute(node, content) {
			return
		}
	}

	if isExpression(node.Type()) {
		m.Counters.Exprs.add(st.inUnsafe)
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		s.visit(node.NamedChild(i), content, m, st)
	}
}

// forbidsUnsafe reports a #![forbid(unsafe_code)] inner attribute among
// the file's top-level items.
func forbidsUnsafe(root *sitter.Node, content []byte) bool {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		if child.Type() != "inner_attribute_item" {
			continue
		}
		text := stripSpace(nodeText(child, content))
		if text == "#![forbid(unsafe_code)]" {
			return true
		}
	}
	return false
}

// hasUnsafeKeyword reports an `unsafe` keyword directly on the item, either
// as a bare token child or inside a function_modifiers group.
func hasUnsafeKeyword(node *sitter.Node, content []byte) bool {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "unsafe":
			return true
		case "function_modifiers":
			if strings.Contains(nodeText(child, content), "unsafe") {
				return true
			}
		}
	}
	return false
}

// hasTestAttribute reports a #[test] (or #[cfg(test)]) attribute on the
// item, carried by preceding attribute_item siblings.
func hasTestAttribute(node *sitter.Node, content []byte) bool {
	for _, attr := range precedingAttributes(node, content) {
		stripped := stripSpace(attr)
		if strings.Contains(stripped, "#[test]") || strings.Contains(stripped, "cfg(test") {
			return true
		}
	}
	return false
}

// hasCfgTestAttribute reports a #[cfg(test)] attribute on the item.
func hasCfgTestAttribute(node *sitter.Node, content []byte) bool {
	for _, attr := range precedingAttributes(node, content) {
		if strings.Contains(stripSpace(attr), "cfg(test") {
			return true
		}
	}
	return false
}

// precedingAttributes collects the attribute_item siblings immediately
// before node, nearest first.
func precedingAttributes(node *sitter.Node, content []byte) []string {
	var attrs []string
	for prev := node.PrevNamedSibling(); prev != nil; prev = prev.PrevNamedSibling() {
		if prev.Type() != "attribute_item" {
			break
		}
		attrs = append(attrs, nodeText(prev, content))
	}
	return attrs
}

// isExpression reports whether the node type is an expression form. The
// grammar names every expression node with an _expression suffix.
func isExpression(nodeType string) bool {
	return strings.HasSuffix(nodeType, "_expression")
}

func nodeText(node *sitter.Node, content []byte) string {
	return string(content[node.StartByte():node.EndByte()])
}

func stripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}
