// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package graph models a resolved crate dependency graph.
//
// The graph is built once per audit run from the build tool's metadata and
// is read-only afterwards. Node identity is the metadata package id, which
// encodes name, version, and source origin, so two versions of the same
// crate are distinct nodes. Edges carry a dependency-kind tag and preserve
// the order the metadata listed them in; nothing here re-sorts neighbors.
package graph

import "path/filepath"

// PackageID uniquely identifies one package in a resolved graph.
type PackageID string

// TargetKind classifies a buildable target declared by a package manifest.
type TargetKind int

const (
	// TargetKindUnknown covers target kinds this tool does not recognize.
	TargetKindUnknown TargetKind = iota

	// TargetKindLib is a library target, including proc-macro crates.
	TargetKindLib

	// TargetKindBin is an executable target.
	TargetKindBin

	// TargetKindTest is an integration test target.
	TargetKindTest

	// TargetKindBench is a benchmark target.
	TargetKindBench

	// TargetKindExampleLib is an example built as a library.
	TargetKindExampleLib

	// TargetKindExampleBin is an example built as an executable.
	TargetKindExampleBin

	// TargetKindCustomBuild is a build script (build.rs).
	TargetKindCustomBuild
)

// String returns the string representation of the TargetKind.
func (k TargetKind) String() string {
	switch k {
	case TargetKindLib:
		return "lib"
	case TargetKindBin:
		return "bin"
	case TargetKindTest:
		return "test"
	case TargetKindBench:
		return "bench"
	case TargetKindExampleLib:
		return "example-lib"
	case TargetKindExampleBin:
		return "example-bin"
	case TargetKindCustomBuild:
		return "custom-build"
	default:
		return "unknown"
	}
}

// DepKind tags a dependency edge with the manifest section it came from.
type DepKind int

const (
	// DepKindNormal is a regular dependency.
	DepKindNormal DepKind = iota

	// DepKindBuild is a build-dependency (compiled for the host toolchain).
	DepKindBuild

	// DepKindDev is a dev-dependency (tests, examples, benches).
	DepKindDev

	// DepKindTargetSpecific is a dependency gated on a platform the current
	// resolve does not build for. These edges are carried for completeness
	// but are never walked or rendered.
	DepKindTargetSpecific
)

// String returns the string representation of the DepKind.
func (k DepKind) String() string {
	switch k {
	case DepKindNormal:
		return "normal"
	case DepKindBuild:
		return "build"
	case DepKindDev:
		return "dev"
	case DepKindTargetSpecific:
		return "target-specific"
	default:
		return "unknown"
	}
}

// GroupLabel returns the header label rendered before a run of dependencies
// of this kind, or "" for kinds that render without one.
func (k DepKind) GroupLabel() string {
	switch k {
	case DepKindBuild:
		return "build-dependencies"
	case DepKindDev:
		return "dev-dependencies"
	default:
		return ""
	}
}

// Direction selects which way edges are walked.
type Direction int

const (
	// DirectionOutgoing walks from a package to its dependencies.
	DirectionOutgoing Direction = iota

	// DirectionIncoming walks from a package to its dependents.
	DirectionIncoming
)

// String returns the string representation of the Direction.
func (d Direction) String() string {
	switch d {
	case DirectionOutgoing:
		return "outgoing"
	case DirectionIncoming:
		return "incoming"
	default:
		return "unknown"
	}
}

// Target is one buildable unit declared by a package manifest.
type Target struct {
	Name string

	// Kind classifies the target.
	Kind TargetKind

	// SrcPath is the absolute path of the target's crate root source file.
	SrcPath string
}

// Package is one node of the dependency graph.
type Package struct {
	ID           PackageID
	Name         string
	Version      string
	ManifestPath string
	License      string
	Repository   string
	Description  string
	Targets      []Target
}

// CrateDir returns the directory holding the package's sources, derived
// from the manifest location.
func (p *Package) CrateDir() string {
	return filepath.Dir(p.ManifestPath)
}

// Edge is one directed dependency relation.
type Edge struct {
	From PackageID
	To   PackageID
	Kind DepKind
}

// Endpoint returns the far end of the edge when walking in dir.
func (e Edge) Endpoint(dir Direction) PackageID {
	if dir == DirectionIncoming {
		return e.From
	}
	return e.To
}

// Graph is a resolved dependency graph rooted at the audited package.
type Graph struct {
	root     PackageID
	packages map[PackageID]*Package
	order    []PackageID
	outgoing map[PackageID][]Edge
	incoming map[PackageID][]Edge
}

// New creates an empty graph rooted at root.
func New(root PackageID) *Graph {
	return &Graph{
		root:     root,
		packages: make(map[PackageID]*Package),
		outgoing: make(map[PackageID][]Edge),
		incoming: make(map[PackageID][]Edge),
	}
}

// Root returns the id of the package the audit started from.
func (g *Graph) Root() PackageID {
	return g.root
}

// AddPackage registers a node. Re-adding an id replaces the stored package
// without disturbing its position or edges.
func (g *Graph) AddPackage(p *Package) {
	if _, seen := g.packages[p.ID]; !seen {
		g.order = append(g.order, p.ID)
	}
	g.packages[p.ID] = p
}

// AddEdge records a directed dependency relation. Edge order is insertion
// order on both the outgoing and incoming side.
func (g *Graph) AddEdge(from, to PackageID, kind DepKind) {
	e := Edge{From: from, To: to, Kind: kind}
	g.outgoing[from] = append(g.outgoing[from], e)
	g.incoming[to] = append(g.incoming[to], e)
}

// Package looks up a node by id.
func (g *Graph) Package(id PackageID) (*Package, bool) {
	p, ok := g.packages[id]
	return p, ok
}

// Packages returns all nodes in insertion order.
func (g *Graph) Packages() []*Package {
	out := make([]*Package, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.packages[id])
	}
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.order)
}

// Neighbors returns the edges touching id in the given direction, in the
// order they were added.
func (g *Graph) Neighbors(id PackageID, dir Direction) []Edge {
	if dir == DirectionIncoming {
		return g.incoming[id]
	}
	return g.outgoing[id]
}
