// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package render turns walked tree lines and package verdicts into
// terminal output.
//
// Rendering is pure: the functions return line slices and write nothing.
// Colors come from lipgloss styles and are gated by an explicit color
// mode, with auto mode falling back to a TTY check, so piped output stays
// clean without the caller having to think about it.
package render

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/sievertlabs/dosimeter/internal/graph"
	"github.com/sievertlabs/dosimeter/internal/scan"
	"github.com/sievertlabs/dosimeter/internal/tree"
)

// ColorMode gates ANSI styling of the rendered lines.
type ColorMode int

const (
	// ColorAuto styles when stdout is a terminal.
	ColorAuto ColorMode = iota

	// ColorAlways styles unconditionally.
	ColorAlways

	// ColorNever emits plain text.
	ColorNever
)

// String returns the string representation of the ColorMode.
func (m ColorMode) String() string {
	switch m {
	case ColorAlways:
		return "always"
	case ColorNever:
		return "never"
	default:
		return "auto"
	}
}

// ParseColorMode converts a flag value to a ColorMode.
func ParseColorMode(s string) (ColorMode, error) {
	switch s {
	case "auto", "":
		return ColorAuto, nil
	case "always":
		return ColorAlways, nil
	case "never":
		return ColorNever, nil
	default:
		return ColorAuto, fmt.Errorf("unknown color mode %q", s)
	}
}

// symbols are the per-verdict markers for one charset.
type symbols struct {
	lock      string
	radiation string
	question  string
}

func symbolsFor(charset tree.Charset) symbols {
	if charset == tree.CharsetASCII {
		return symbols{lock: ":)", radiation: "!", question: "?"}
	}
	return symbols{lock: "🔒", radiation: "☢️", question: "❓"}
}

var (
	styleForbids  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	styleDetected = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
)

// Config controls text rendering.
type Config struct {
	// Charset selects the symbol set. Must match the charset the tree
	// was walked with, or vines and symbols will disagree.
	Charset tree.Charset

	// Pattern formats each package's display text. Nil means {p}.
	Pattern *Pattern

	// Color gates ANSI styling.
	Color ColorMode

	// Quiet suppresses the symbol legend above the tree.
	Quiet bool
}

// Text renders the walked lines into printable strings: an optional
// legend, then one line per tree line. Identical inputs render
// identically.
func Text(g *graph.Graph, verdicts *scan.Result, lines []tree.Line, cfg Config) []string {
	pattern := cfg.Pattern
	if pattern == nil {
		pattern, _ = ParsePattern(DefaultPattern)
	}
	syms := symbolsFor(cfg.Charset)
	colored := cfg.Color == ColorAlways ||
		(cfg.Color == ColorAuto && isatty.IsTerminal(os.Stdout.Fd()))

	var out []string
	if !cfg.Quiet {
		out = append(out, legend(syms)...)
	}

	for _, line := range lines {
		switch l := line.(type) {
		case tree.GroupLine:
			out = append(out, fmt.Sprintf("  %s%s", l.TreeVines, l.Kind.GroupLabel()))
		case tree.PackageLine:
			out = append(out, packageText(g, verdicts, l, pattern, syms, colored))
		}
	}
	return out
}

// Plain renders the walked lines without symbols, colors, or legend.
// Used for the JSON report's tree, which carries verdicts structurally.
func Plain(g *graph.Graph, lines []tree.Line, pattern *Pattern) []string {
	if pattern == nil {
		pattern, _ = ParsePattern(DefaultPattern)
	}
	var out []string
	for _, line := range lines {
		switch l := line.(type) {
		case tree.GroupLine:
			out = append(out, l.TreeVines+l.Kind.GroupLabel())
		case tree.PackageLine:
			name := string(l.ID)
			if pkg, ok := g.Package(l.ID); ok {
				name = pattern.Display(pkg)
			}
			out = append(out, l.TreeVines+name)
		}
	}
	return out
}

// legend maps each symbol to its meaning, mirroring the verdict rule.
func legend(syms symbols) []string {
	return []string{
		"",
		"Symbols: ",
		fmt.Sprintf("    %-2s = All entry point .rs files declare #![forbid(unsafe_code)].", syms.lock),
		fmt.Sprintf("    %-2s = No unsafe usage found, but the crate does not forbid it.", syms.question),
		fmt.Sprintf("    %-2s = Unsafe usage detected in this crate.", syms.radiation),
		"",
	}
}

func packageText(g *graph.Graph, verdicts *scan.Result, line tree.PackageLine, pattern *Pattern, syms symbols, colored bool) string {
	name := string(line.ID)
	if pkg, ok := g.Package(line.ID); ok {
		name = pattern.Display(pkg)
	}

	var symbol string
	switch verdicts.Verdict(line.ID) {
	case scan.VerdictForbidsUnsafeEverywhere:
		symbol = syms.lock
		if colored {
			name = styleForbids.Render(name)
		}
	case scan.VerdictUnsafeDetected:
		symbol = syms.radiation
		if colored {
			name = styleDetected.Render(name)
		}
	default:
		symbol = syms.question
	}
	return fmt.Sprintf("%s %s%s", symbol, line.TreeVines, name)
}
