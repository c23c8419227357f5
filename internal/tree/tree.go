// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tree walks a dependency graph into an ordered sequence of
// annotated text lines.
//
// The walk is depth-first from the root, children in the order the graph
// lists them. Each visited package yields one Package line; non-empty
// build and dev dependency groups yield a synthetic header line before
// their members. The walk itself is presentation-free: lines carry the
// pre-rendered indentation vines and an identity, and the renderer decides
// colors and symbols.
package tree

import (
	"fmt"
	"strconv"

	"github.com/sievertlabs/dosimeter/internal/graph"
)

// Charset selects the glyph set for tree vines and safety symbols.
type Charset int

const (
	// CharsetUTF8 renders box-drawing vines and emoji symbols.
	CharsetUTF8 Charset = iota

	// CharsetASCII renders 7-bit approximations.
	CharsetASCII
)

// String returns the string representation of the Charset.
func (c Charset) String() string {
	if c == CharsetASCII {
		return "ascii"
	}
	return "utf8"
}

// ParseCharset converts a flag value to a Charset.
func ParseCharset(s string) (Charset, error) {
	switch s {
	case "utf8", "":
		return CharsetUTF8, nil
	case "ascii":
		return CharsetASCII, nil
	default:
		return CharsetUTF8, fmt.Errorf("unknown charset %q", s)
	}
}

// Prefix selects the indentation style of rendered lines.
type Prefix int

const (
	// PrefixIndent draws tree vines.
	PrefixIndent Prefix = iota

	// PrefixDepth prints the numeric depth.
	PrefixDepth

	// PrefixNone renders flat lines.
	PrefixNone
)

// String returns the string representation of the Prefix.
func (p Prefix) String() string {
	switch p {
	case PrefixDepth:
		return "depth"
	case PrefixNone:
		return "none"
	default:
		return "indent"
	}
}

// ParsePrefix converts a flag value to a Prefix.
func ParsePrefix(s string) (Prefix, error) {
	switch s {
	case "indent", "":
		return PrefixIndent, nil
	case "depth":
		return PrefixDepth, nil
	case "none":
		return PrefixNone, nil
	default:
		return PrefixIndent, fmt.Errorf("unknown prefix style %q", s)
	}
}

// Line is one rendered tree line. The two variants are PackageLine and
// GroupLine; the interface is sealed so a switch over variants is
// exhaustive.
type Line interface {
	isLine()
}

// PackageLine announces one package of the graph.
type PackageLine struct {
	ID graph.PackageID

	// TreeVines is the pre-rendered indentation prefix.
	TreeVines string
}

func (PackageLine) isLine() {}

// GroupLine is the synthetic header introducing a run of non-normal
// dependencies, e.g. "build-dependencies".
type GroupLine struct {
	Kind graph.DepKind

	// TreeVines is the pre-rendered indentation prefix.
	TreeVines string
}

func (GroupLine) isLine() {}

// WalkConfig controls traversal and line prefixes.
type WalkConfig struct {
	// Direction selects dependencies (outgoing) or dependents (incoming).
	Direction graph.Direction

	// Prefix is the indentation style.
	Prefix Prefix

	// Charset selects vine glyphs under PrefixIndent.
	Charset Charset

	// All descends into subtrees already rendered elsewhere instead of
	// truncating them to a single line.
	All bool
}

// vineGlyphs are the per-charset connector strings.
type vineGlyphs struct {
	cont  string // ancestor level with more siblings below
	blank string // ancestor level exhausted
	tee   string // this package, more siblings follow
	last  string // this package, last sibling
}

func glyphsFor(charset Charset) vineGlyphs {
	if charset == CharsetASCII {
		return vineGlyphs{cont: "|   ", blank: "    ", tee: "|-- ", last: "`-- "}
	}
	return vineGlyphs{cont: "│   ", blank: "    ", tee: "├── ", last: "└── "}
}

// kindOrder is the fixed order dependency groups render in.
var kindOrder = []graph.DepKind{graph.DepKindNormal, graph.DepKindBuild, graph.DepKindDev}

// Walk renders the graph from root into an ordered line sequence. The
// output is deterministic for identical inputs.
func Walk(g *graph.Graph, root graph.PackageID, cfg WalkConfig) []Line {
	w := &walker{
		graph:   g,
		cfg:     cfg,
		glyphs:  glyphsFor(cfg.Charset),
		visited: make(map[graph.PackageID]bool),
		onPath:  make(map[graph.PackageID]bool),
	}
	w.node(root, nil)
	return w.lines
}

type walker struct {
	graph   *graph.Graph
	cfg     WalkConfig
	glyphs  vineGlyphs
	visited map[graph.PackageID]bool
	onPath  map[graph.PackageID]bool
	lines   []Line
}

// node emits the package line and, when the package is new to the output
// (or All is set), descends into its dependency groups. A package already
// on the current path is never re-entered, which bounds the walk even on
// a graph that violates the resolver's acyclicity guarantee.
func (w *walker) node(id graph.PackageID, levels []bool) {
	w.lines = append(w.lines, PackageLine{ID: id, TreeVines: w.packageVines(levels)})

	descend := w.cfg.All || !w.visited[id]
	w.visited[id] = true
	if !descend || w.onPath[id] {
		return
	}

	w.onPath[id] = true
	defer delete(w.onPath, id)

	edges := w.graph.Neighbors(id, w.cfg.Direction)
	for _, kind := range kindOrder {
		w.kindGroup(kind, edges, levels)
	}
}

// kindGroup renders the edges of one dependency kind. Build and dev
// groups get a header line under the indent prefix; kinds without a group
// label and without the inline-normal role contribute nothing.
func (w *walker) kindGroup(kind graph.DepKind, edges []graph.Edge, levels []bool) {
	var members []graph.PackageID
	for _, e := range edges {
		if e.Kind != kind {
			continue
		}
		next := e.Endpoint(w.cfg.Direction)
		if w.onPath[next] {
			continue
		}
		members = append(members, next)
	}
	if len(members) == 0 {
		return
	}

	if w.cfg.Prefix == PrefixIndent && kind.GroupLabel() != "" {
		w.lines = append(w.lines, GroupLine{Kind: kind, TreeVines: w.groupVines(levels)})
	}

	for i, member := range members {
		w.node(member, append(levels, i < len(members)-1))
	}
}

// packageVines renders the indentation prefix for a package line.
func (w *walker) packageVines(levels []bool) string {
	switch w.cfg.Prefix {
	case PrefixDepth:
		return depthPrefix(len(levels))
	case PrefixNone:
		return ""
	}

	var vines string
	for i, continues := range levels {
		switch {
		case i < len(levels)-1 && continues:
			vines += w.glyphs.cont
		case i < len(levels)-1:
			vines += w.glyphs.blank
		case continues:
			vines += w.glyphs.tee
		default:
			vines += w.glyphs.last
		}
	}
	return vines
}

// groupVines renders the indentation prefix for a group header, which
// sits between a parent and its children and draws only continuation
// glyphs.
func (w *walker) groupVines(levels []bool) string {
	var vines string
	for _, continues := range levels {
		if continues {
			vines += w.glyphs.cont
		} else {
			vines += w.glyphs.blank
		}
	}
	return vines
}

func depthPrefix(depth int) string {
	return strconv.Itoa(depth) + " "
}
