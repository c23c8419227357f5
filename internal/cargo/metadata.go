// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cargo drives the Cargo toolchain: it loads resolved dependency
// graphs from cargo metadata and runs instrumented builds whose rustc
// invocations are observed through a wrapper binary.
package cargo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sievertlabs/dosimeter/internal/graph"
)

// MetadataOptions select the workspace and feature set to resolve.
type MetadataOptions struct {
	// CargoPath is the cargo binary, "cargo" when empty.
	CargoPath string

	// ManifestPath points at the Cargo.toml to audit. Empty means the
	// manifest found from the working directory.
	ManifestPath string

	Features          []string
	AllFeatures       bool
	NoDefaultFeatures bool
}

// LoadGraph runs cargo metadata and decodes the result into a dependency
// graph plus the workspace root directory.
func LoadGraph(ctx context.Context, opts MetadataOptions) (*graph.Graph, string, error) {
	args := []string{"metadata", "--format-version", "1"}
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

	cargoBin := opts.CargoPath
	if cargoBin == "" {
		cargoBin = "cargo"
	}
	cmd := exec.CommandContext(ctx, cargoBin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, "", fmt.Errorf("%w: %v: %s", ErrMetadata, err, tail(stderr.String()))
	}

	return decodeMetadata(stdout.Bytes())
}

// The JSON shapes below follow cargo metadata --format-version 1; only the
// fields this tool reads are declared.

type metadataDoc struct {
	Packages      []metadataPackage `json:"packages"`
	Resolve       *metadataResolve  `json:"resolve"`
	WorkspaceRoot string            `json:"workspace_root"`
}

type metadataPackage struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Version      string           `json:"version"`
	License      string           `json:"license"`
	Repository   string           `json:"repository"`
	Description  string           `json:"description"`
	ManifestPath string           `json:"manifest_path"`
	Targets      []metadataTarget `json:"targets"`
}

type metadataTarget struct {
	Name       string   `json:"name"`
	Kind       []string `json:"kind"`
	CrateTypes []string `json:"crate_types"`
	SrcPath    string   `json:"src_path"`
}

type metadataResolve struct {
	Root  string         `json:"root"`
	Nodes []metadataNode `json:"nodes"`
}

type metadataNode struct {
	ID   string        `json:"id"`
	Deps []metadataDep `json:"deps"`
}

type metadataDep struct {
	Name     string            `json:"name"`
	Pkg      string            `json:"pkg"`
	DepKinds []metadataDepKind `json:"dep_kinds"`
}

type metadataDepKind struct {
	Kind   *string `json:"kind"`
	Target *string `json:"target"`
}

// decodeMetadata builds the graph from raw cargo metadata JSON. Node and
// edge order follow the metadata document, so traversal order is stable
// across runs of the same resolve.
func decodeMetadata(raw []byte) (*graph.Graph, string, error) {
	var doc metadataDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, "", fmt.Errorf("%w: decode: %v", ErrMetadata, err)
	}
	if doc.Resolve == nil {
		return nil, "", fmt.Errorf("%w: metadata carries no resolve graph", ErrMetadata)
	}
	if doc.Resolve.Root == "" {
		return nil, "", ErrNoRootPackage
	}

	g := graph.New(graph.PackageID(doc.Resolve.Root))
	for _, pkg := range doc.Packages {
		g.AddPackage(convertPackage(pkg))
	}
	for _, node := range doc.Resolve.Nodes {
		for _, dep := range node.Deps {
			for _, kind := range depKinds(dep) {
				g.AddEdge(graph.PackageID(node.ID), graph.PackageID(dep.Pkg), kind)
			}
		}
	}
	return g, doc.WorkspaceRoot, nil
}

func convertPackage(pkg metadataPackage) *graph.Package {
	targets := make([]graph.Target, 0, len(pkg.Targets))
	for _, t := range pkg.Targets {
		targets = append(targets, graph.Target{
			Name:    t.Name,
			Kind:    targetKind(t),
			SrcPath: t.SrcPath,
		})
	}
	return &graph.Package{
		ID:           graph.PackageID(pkg.ID),
		Name:         pkg.Name,
		Version:      pkg.Version,
		License:      pkg.License,
		Repository:   pkg.Repository,
		Description:  pkg.Description,
		ManifestPath: pkg.ManifestPath,
		Targets:      targets,
	}
}

// targetKind maps cargo's target kind strings onto the closed enum.
// Unknown kinds map to TargetKindUnknown, which classifies as a non-entry
// role downstream.
func targetKind(t metadataTarget) graph.TargetKind {
	if len(t.Kind) == 0 {
		return graph.TargetKindUnknown
	}
	switch t.Kind[0] {
	case "lib", "rlib", "dylib", "cdylib", "staticlib", "proc-macro":
		return graph.TargetKindLib
	case "bin":
		return graph.TargetKindBin
	case "test":
		return graph.TargetKindTest
	case "bench":
		return graph.TargetKindBench
	case "example":
		for _, ct := range t.CrateTypes {
			if ct == "lib" {
				return graph.TargetKindExampleLib
			}
		}
		return graph.TargetKindExampleBin
	case "custom-build":
		return graph.TargetKindCustomBuild
	default:
		return graph.TargetKindUnknown
	}
}

// depKinds maps one resolved dependency onto edge kinds. A dependency can
// appear in several manifest sections at once and then contributes one
// edge per section. A platform qualifier marks the edge target-specific
// regardless of section.
func depKinds(dep metadataDep) []graph.DepKind {
	if len(dep.DepKinds) == 0 {
		return []graph.DepKind{graph.DepKindNormal}
	}
	kinds := make([]graph.DepKind, 0, len(dep.DepKinds))
	for _, dk := range dep.DepKinds {
		if dk.Target != nil && *dk.Target != "" {
			kinds = append(kinds, graph.DepKindTargetSpecific)
			continue
		}
		switch {
		case dk.Kind == nil || *dk.Kind == "" || *dk.Kind == "normal":
			kinds = append(kinds, graph.DepKindNormal)
		case *dk.Kind == "build":
			kinds = append(kinds, graph.DepKindBuild)
		case *dk.Kind == "dev":
			kinds = append(kinds, graph.DepKindDev)
		default:
			kinds = append(kinds, graph.DepKindTargetSpecific)
		}
	}
	return kinds
}

// tail returns the last few lines of command output for error messages.
func tail(s string) string {
	s = strings.TrimSpace(s)
	lines := strings.Split(s, "\n")
	if len(lines) > 10 {
		lines = lines[len(lines)-10:]
	}
	return strings.Join(lines, "\n")
}
