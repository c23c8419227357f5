// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package depinfo

import "fmt"

// ParseError reports a dependency-info file that could not be read or
// decoded. The audit aborts on it; a truncated dep-info file means the
// resolved file set would be incomplete.
type ParseError struct {
	// Path is the dep-info file that failed.
	Path string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e ParseError) Error() string {
	return fmt.Sprintf("parse dep-info %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e ParseError) Unwrap() error {
	return e.Err
}

// PathResolutionError reports a dependency path that could not be made
// canonical.
type PathResolutionError struct {
	// Path is the path as the dep-info file spelled it.
	Path string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e PathResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e PathResolutionError) Unwrap() error {
	return e.Err
}

// WalkError reports an output directory that could not be traversed.
type WalkError struct {
	// Dir is the directory the walk started from.
	Dir string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e WalkError) Error() string {
	return fmt.Sprintf("walk %s: %v", e.Dir, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e WalkError) Unwrap() error {
	return e.Err
}
