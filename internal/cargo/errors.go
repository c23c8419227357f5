// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cargo

import "errors"

var (
	// ErrBuildFailed is returned when the instrumented cargo build itself
	// failed. The audit aborts; a partial capture must never be resolved.
	ErrBuildFailed = errors.New("cargo build failed")

	// ErrMetadata is returned when cargo metadata could not be run or its
	// output could not be decoded.
	ErrMetadata = errors.New("cargo metadata failed")

	// ErrNoRootPackage is returned for virtual workspaces, where no
	// single package roots the dependency graph.
	ErrNoRootPackage = errors.New("workspace has no root package")
)
