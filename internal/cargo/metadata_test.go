// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cargo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sievertlabs/dosimeter/internal/graph"
)

const metadataFixture = `{
  "workspace_root": "/ws",
  "packages": [
    {
      "id": "app 0.1.0 (path+file:///ws/app)",
      "name": "app",
      "version": "0.1.0",
      "license": "AGPL-3.0",
      "repository": "https://example.com/app",
      "manifest_path": "/ws/app/Cargo.toml",
      "targets": [
        {"name": "app", "kind": ["lib"], "crate_types": ["lib"], "src_path": "/ws/app/src/lib.rs"},
        {"name": "app", "kind": ["bin"], "crate_types": ["bin"], "src_path": "/ws/app/src/main.rs"},
        {"name": "build-script-build", "kind": ["custom-build"], "crate_types": ["bin"], "src_path": "/ws/app/build.rs"}
      ]
    },
    {
      "id": "serde 1.0.210 (registry+https://github.com/rust-lang/crates.io-index)",
      "name": "serde",
      "version": "1.0.210",
      "license": "MIT OR Apache-2.0",
      "manifest_path": "/home/u/.cargo/registry/serde-1.0.210/Cargo.toml",
      "targets": [
        {"name": "serde", "kind": ["lib"], "crate_types": ["lib"], "src_path": "/home/u/.cargo/registry/serde-1.0.210/src/lib.rs"}
      ]
    },
    {
      "id": "cc 1.0.83 (registry+https://github.com/rust-lang/crates.io-index)",
      "name": "cc",
      "version": "1.0.83",
      "manifest_path": "/home/u/.cargo/registry/cc-1.0.83/Cargo.toml",
      "targets": [
        {"name": "cc", "kind": ["lib"], "crate_types": ["lib"], "src_path": "/home/u/.cargo/registry/cc-1.0.83/src/lib.rs"}
      ]
    }
  ],
  "resolve": {
    "root": "app 0.1.0 (path+file:///ws/app)",
    "nodes": [
      {
        "id": "app 0.1.0 (path+file:///ws/app)",
        "deps": [
          {
            "name": "serde",
            "pkg": "serde 1.0.210 (registry+https://github.com/rust-lang/crates.io-index)",
            "dep_kinds": [{"kind": null, "target": null}]
          },
          {
            "name": "cc",
            "pkg": "cc 1.0.83 (registry+https://github.com/rust-lang/crates.io-index)",
            "dep_kinds": [{"kind": "build", "target": null}]
          }
        ]
      },
      {"id": "serde 1.0.210 (registry+https://github.com/rust-lang/crates.io-index)", "deps": []},
      {"id": "cc 1.0.83 (registry+https://github.com/rust-lang/crates.io-index)", "deps": []}
    ]
  }
}`

func TestDecodeMetadata(t *testing.T) {
	g, root, err := decodeMetadata([]byte(metadataFixture))
	require.NoError(t, err)

	assert.Equal(t, "/ws", root)
	assert.Equal(t, graph.PackageID("app 0.1.0 (path+file:///ws/app)"), g.Root())
	assert.Equal(t, 3, g.Len())

	app, ok := g.Package(g.Root())
	require.True(t, ok)
	assert.Equal(t, "app", app.Name)
	assert.Equal(t, "AGPL-3.0", app.License)
	require.Len(t, app.Targets, 3)
	assert.Equal(t, graph.TargetKindLib, app.Targets[0].Kind)
	assert.Equal(t, graph.TargetKindBin, app.Targets[1].Kind)
	assert.Equal(t, graph.TargetKindCustomBuild, app.Targets[2].Kind)

	edges := g.Neighbors(g.Root(), graph.DirectionOutgoing)
	require.Len(t, edges, 2)
	assert.Equal(t, graph.DepKindNormal, edges[0].Kind)
	assert.Equal(t, graph.DepKindBuild, edges[1].Kind)
}

func TestDecodeMetadataNoResolve(t *testing.T) {
	_, _, err := decodeMetadata([]byte(`{"packages": []}`))
	require.ErrorIs(t, err, ErrMetadata)
}

func TestDecodeMetadataVirtualWorkspace(t *testing.T) {
	_, _, err := decodeMetadata([]byte(`{"packages": [], "resolve": {"root": null, "nodes": []}}`))
	require.ErrorIs(t, err, ErrNoRootPackage)
}

func TestTargetKindMapping(t *testing.T) {
	tests := []struct {
		name   string
		target metadataTarget
		want   graph.TargetKind
	}{
		{name: "lib", target: metadataTarget{Kind: []string{"lib"}}, want: graph.TargetKindLib},
		{name: "proc-macro", target: metadataTarget{Kind: []string{"proc-macro"}}, want: graph.TargetKindLib},
		{name: "bin", target: metadataTarget{Kind: []string{"bin"}}, want: graph.TargetKindBin},
		{name: "test", target: metadataTarget{Kind: []string{"test"}}, want: graph.TargetKindTest},
		{name: "bench", target: metadataTarget{Kind: []string{"bench"}}, want: graph.TargetKindBench},
		{name: "example bin", target: metadataTarget{Kind: []string{"example"}, CrateTypes: []string{"bin"}}, want: graph.TargetKindExampleBin},
		{name: "example lib", target: metadataTarget{Kind: []string{"example"}, CrateTypes: []string{"lib"}}, want: graph.TargetKindExampleLib},
		{name: "custom build", target: metadataTarget{Kind: []string{"custom-build"}}, want: graph.TargetKindCustomBuild},
		{name: "unknown", target: metadataTarget{Kind: []string{"somekind"}}, want: graph.TargetKindUnknown},
		{name: "empty", target: metadataTarget{}, want: graph.TargetKindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, targetKind(tt.target))
		})
	}
}

func TestDepKindsTargetSpecific(t *testing.T) {
	target := "cfg(windows)"
	kind := "normal"
	dep := metadataDep{DepKinds: []metadataDepKind{{Kind: &kind, Target: &target}}}

	assert.Equal(t, []graph.DepKind{graph.DepKindTargetSpecific}, depKinds(dep))
}

func TestDepKindsMultipleSections(t *testing.T) {
	build := "build"
	dep := metadataDep{DepKinds: []metadataDepKind{
		{Kind: nil},
		{Kind: &build},
	}}

	assert.Equal(t, []graph.DepKind{graph.DepKindNormal, graph.DepKindBuild}, depKinds(dep))
}
