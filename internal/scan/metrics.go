// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scan

import (
	"github.com/sievertlabs/dosimeter/internal/geiger"
	"github.com/sievertlabs/dosimeter/internal/graph"
)

// Verdict is the aggregated safety reading for one package.
type Verdict int

const (
	// VerdictNoneDetectedButNotForbidden means no unsafe usage was found
	// but the package does not declare it forbidden, so the absence is an
	// observation, not a guarantee. Also the conservative reading for
	// packages with no metrics at all.
	VerdictNoneDetectedButNotForbidden Verdict = iota

	// VerdictForbidsUnsafeEverywhere means every entry-point file of the
	// package declares #![forbid(unsafe_code)], a compiler-enforced
	// guarantee for those compilation units.
	VerdictForbidsUnsafeEverywhere

	// VerdictUnsafeDetected means at least one file of the package showed
	// non-zero unsafe construct counts.
	VerdictUnsafeDetected
)

// String returns the string representation of the Verdict.
func (v Verdict) String() string {
	switch v {
	case VerdictForbidsUnsafeEverywhere:
		return "forbids-unsafe"
	case VerdictUnsafeDetected:
		return "unsafe-detected"
	default:
		return "none-detected"
	}
}

// FileMetrics pairs one file's scan result with its entry-point flag.
type FileMetrics struct {
	Metrics geiger.Metrics

	// EntryPoint marks the file a crate root of a library, binary, or
	// build-script target. Only entry points carry the forbid directive's
	// authority for the whole package.
	EntryPoint bool
}

// PackageMetrics holds the scanned files of one package, keyed by
// canonical path.
type PackageMetrics struct {
	Files map[string]*FileMetrics
}

// Verdict applies the aggregation rule.
//
// Precedence, in order: a package with no metrics or no resolved entry
// points reads NoneDetectedButNotForbidden; a package whose entry points
// all forbid unsafe code reads ForbidsUnsafeEverywhere even when counts
// are non-zero elsewhere, since the directive is compiler-enforced for
// those units; otherwise any non-zero unsafe count anywhere reads
// UnsafeDetected.
func (m *PackageMetrics) Verdict() Verdict {
	if m == nil || len(m.Files) == 0 {
		return VerdictNoneDetectedButNotForbidden
	}

	entryPoints := 0
	allForbid := true
	for _, f := range m.Files {
		if !f.EntryPoint {
			continue
		}
		entryPoints++
		if !f.Metrics.ForbidsUnsafe {
			allForbid = false
		}
	}
	if entryPoints == 0 {
		// Without an entry point there is no compilation unit to judge;
		// stray counts in orphaned files stay inconclusive.
		return VerdictNoneDetectedButNotForbidden
	}
	if allForbid {
		return VerdictForbidsUnsafeEverywhere
	}

	for _, f := range m.Files {
		if f.Metrics.Counters.HasUnsafe() {
			return VerdictUnsafeDetected
		}
	}
	return VerdictNoneDetectedButNotForbidden
}

// Totals returns the union of all file counter blocks.
func (m *PackageMetrics) Totals() geiger.CounterBlock {
	var totals geiger.CounterBlock
	if m == nil {
		return totals
	}
	for _, f := range m.Files {
		totals.Merge(f.Metrics.Counters)
	}
	return totals
}

// Result maps every scanned package to its metrics. Packages that failed
// to scan have no entry, which Verdict reads conservatively.
type Result struct {
	Packages map[graph.PackageID]*PackageMetrics
}

// Verdict returns the verdict for id, applying the no-metrics default for
// unknown packages.
func (r *Result) Verdict(id graph.PackageID) Verdict {
	if r == nil {
		return VerdictNoneDetectedButNotForbidden
	}
	return r.Packages[id].Verdict()
}
