// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package rsfile classifies Rust source files by the target that owns them.
package rsfile

import "github.com/sievertlabs/dosimeter/internal/graph"

// Role describes what a source file is to the target that declares it.
type Role int

const (
	// RoleOther covers test, bench, and example roots as well as every
	// non-root source file.
	RoleOther Role = iota

	// RoleLibraryRoot is the crate root of a library target.
	RoleLibraryRoot

	// RoleBinaryRoot is the crate root of an executable target.
	RoleBinaryRoot

	// RoleBuildScriptRoot is the root of a build script target.
	RoleBuildScriptRoot
)

// String returns the string representation of the Role.
func (r Role) String() string {
	switch r {
	case RoleLibraryRoot:
		return "library-root"
	case RoleBinaryRoot:
		return "binary-root"
	case RoleBuildScriptRoot:
		return "build-script-root"
	default:
		return "other"
	}
}

// EntryPoint reports whether files with this role are crate entry points.
// Entry points are where a file-level forbid directive takes effect for the
// whole compilation unit.
func (r Role) EntryPoint() bool {
	return r != RoleOther
}

// Root pairs a source file path with the role its target assigns it.
type Root struct {
	Path string
	Role Role
}

// Classify maps a target kind and its crate root path to a role-tagged
// record. The mapping is total: kinds the tool does not recognize classify
// as Other rather than failing, so new target kinds in the build tool
// degrade gracefully.
func Classify(kind graph.TargetKind, path string) Root {
	switch kind {
	case graph.TargetKindLib:
		return Root{Path: path, Role: RoleLibraryRoot}
	case graph.TargetKindBin:
		return Root{Path: path, Role: RoleBinaryRoot}
	case graph.TargetKindCustomBuild:
		return Root{Path: path, Role: RoleBuildScriptRoot}
	default:
		return Root{Path: path, Role: RoleOther}
	}
}
