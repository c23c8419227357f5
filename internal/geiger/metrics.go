// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package geiger

// Count tallies occurrences of one construct kind, split by whether the
// occurrence sits in an unsafe context.
type Count struct {
	Safe   uint64 `json:"safe"`
	Unsafe uint64 `json:"unsafe"`
}

// add records one occurrence.
func (c *Count) add(unsafe bool) {
	if unsafe {
		c.Unsafe++
	} else {
		c.Safe++
	}
}

// Total returns safe plus unsafe occurrences.
func (c Count) Total() uint64 {
	return c.Safe + c.Unsafe
}

// CounterBlock groups the per-construct counts of one scanned file.
type CounterBlock struct {
	// Functions counts free functions, unsafe when declared `unsafe fn`.
	Functions Count `json:"functions"`

	// Exprs counts expressions, unsafe when evaluated inside an unsafe
	// block or an unsafe function body.
	Exprs Count `json:"exprs"`

	// ItemImpls counts impl blocks, unsafe for `unsafe impl`.
	ItemImpls Count `json:"item_impls"`

	// ItemTraits counts trait declarations, unsafe for `unsafe trait`.
	ItemTraits Count `json:"item_traits"`

	// Methods counts functions declared inside impl blocks.
	Methods Count `json:"methods"`
}

// HasUnsafe reports whether any construct kind recorded an unsafe
// occurrence.
func (b CounterBlock) HasUnsafe() bool {
	return b.Functions.Unsafe > 0 ||
		b.Exprs.Unsafe > 0 ||
		b.ItemImpls.Unsafe > 0 ||
		b.ItemTraits.Unsafe > 0 ||
		b.Methods.Unsafe > 0
}

// Merge adds other's counts into b. Used when two build targets share a
// crate root and their scans must union instead of double counting.
func (b *CounterBlock) Merge(other CounterBlock) {
	b.Functions.Safe += other.Functions.Safe
	b.Functions.Unsafe += other.Functions.Unsafe
	b.Exprs.Safe += other.Exprs.Safe
	b.Exprs.Unsafe += other.Exprs.Unsafe
	b.ItemImpls.Safe += other.ItemImpls.Safe
	b.ItemImpls.Unsafe += other.ItemImpls.Unsafe
	b.ItemTraits.Safe += other.ItemTraits.Safe
	b.ItemTraits.Unsafe += other.ItemTraits.Unsafe
	b.Methods.Safe += other.Methods.Safe
	b.Methods.Unsafe += other.Methods.Unsafe
}

// Metrics is the scan result for one source file.
type Metrics struct {
	// Counters holds the per-construct tallies.
	Counters CounterBlock `json:"counters"`

	// ForbidsUnsafe reports a file-level #![forbid(unsafe_code)] inner
	// attribute. The compiler enforces the directive for the whole
	// compilation unit rooted at the file.
	ForbidsUnsafe bool `json:"forbids_unsafe"`
}
