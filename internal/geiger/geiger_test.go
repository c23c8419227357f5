// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package geiger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scanSource(t *testing.T, src string, opts ...Option) *Metrics {
	t.Helper()
	s := NewScanner(opts...)
	metrics, err := s.Scan(t.Context(), []byte(src), "test.rs")
	require.NoError(t, err)
	return metrics
}

func TestScanSafeFunction(t *testing.T) {
	metrics := scanSource(t, `
pub fn add(a: i32, b: i32) -> i32 {
    a + b
}
`)

	assert.Equal(t, uint64(1), metrics.Counters.Functions.Safe)
	assert.Equal(t, uint64(0), metrics.Counters.Functions.Unsafe)
	assert.False(t, metrics.Counters.HasUnsafe())
	assert.False(t, metrics.ForbidsUnsafe)
}

func TestScanUnsafeFunction(t *testing.T) {
	metrics := scanSource(t, `
pub unsafe fn danger() {}
`)

	assert.Equal(t, uint64(1), metrics.Counters.Functions.Unsafe)
	assert.True(t, metrics.Counters.HasUnsafe())
}

func TestScanUnsafeBlockExpressions(t *testing.T) {
	metrics := scanSource(t, `
pub fn wrapper(p: *const i32) -> i32 {
    unsafe { *p }
}
`)

	assert.NotZero(t, metrics.Counters.Exprs.Unsafe)
	assert.True(t, metrics.Counters.HasUnsafe())
}

func TestScanUnsafeImplAndTrait(t *testing.T) {
	metrics := scanSource(t, `
pub struct Handle(u64);

unsafe impl Send for Handle {}

pub unsafe trait RawAccess {}
`)

	assert.Equal(t, uint64(1), metrics.Counters.ItemImpls.Unsafe)
	assert.Equal(t, uint64(1), metrics.Counters.ItemTraits.Unsafe)
}

func TestScanMethodsCountedSeparately(t *testing.T) {
	metrics := scanSource(t, `
pub struct Counter(u32);

impl Counter {
    pub fn incr(&mut self) {
        self.0 += 1;
    }

    pub unsafe fn raw(&self) -> *const u32 {
        &self.0
    }
}
`)

	assert.Equal(t, uint64(1), metrics.Counters.ItemImpls.Safe)
	assert.Equal(t, uint64(1), metrics.Counters.Methods.Safe)
	assert.Equal(t, uint64(1), metrics.Counters.Methods.Unsafe)
	assert.Zero(t, metrics.Counters.Functions.Total())
}

func TestScanForbidDirective(t *testing.T) {
	metrics := scanSource(t, `#![forbid(unsafe_code)]

pub fn safe() {}
`)

	assert.True(t, metrics.ForbidsUnsafe)
}

func TestScanForbidDirectiveWithSpaces(t *testing.T) {
	metrics := scanSource(t, `#![ forbid( unsafe_code ) ]

pub fn safe() {}
`)

	assert.True(t, metrics.ForbidsUnsafe)
}

func TestScanOtherInnerAttributeIsNotForbid(t *testing.T) {
	metrics := scanSource(t, `#![allow(dead_code)]

pub fn safe() {}
`)

	assert.False(t, metrics.ForbidsUnsafe)
}

func TestScanExcludesTestsByDefault(t *testing.T) {
	src := `
pub fn shipped() {}

#[cfg(test)]
mod tests {
    pub unsafe fn helper() {}
}

#[test]
fn probe() {
    unsafe {}
}
`

	metrics := scanSource(t, src)
	assert.False(t, metrics.Counters.HasUnsafe())
	assert.Equal(t, uint64(1), metrics.Counters.Functions.Safe)

	metrics = scanSource(t, src, WithIncludeTests(true))
	assert.True(t, metrics.Counters.HasUnsafe())
}

func TestScanFileTooLarge(t *testing.T) {
	s := NewScanner(WithMaxFileSize(8))
	_, err := s.Scan(t.Context(), []byte("pub fn long_enough() {}"), "big.rs")
	require.ErrorIs(t, err, ErrFileTooLarge)
}

func TestScanInvalidUTF8(t *testing.T) {
	s := NewScanner()
	_, err := s.Scan(t.Context(), []byte{0xff, 0xfe, 0xfd}, "bad.rs")
	require.ErrorIs(t, err, ErrInvalidContent)
}

func TestScanFileReadsFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lib.rs")
	require.NoError(t, os.WriteFile(path, []byte("#![forbid(unsafe_code)]\npub fn f() {}\n"), 0o644))

	s := NewScanner()
	metrics, err := s.ScanFile(t.Context(), path)
	require.NoError(t, err)
	assert.True(t, metrics.ForbidsUnsafe)
}

func TestCounterBlockMerge(t *testing.T) {
	a := CounterBlock{Functions: Count{Safe: 1}, Exprs: Count{Unsafe: 2}}
	b := CounterBlock{Functions: Count{Unsafe: 1}, Methods: Count{Safe: 3}}

	a.Merge(b)
	assert.Equal(t, Count{Safe: 1, Unsafe: 1}, a.Functions)
	assert.Equal(t, Count{Unsafe: 2}, a.Exprs)
	assert.Equal(t, Count{Safe: 3}, a.Methods)
	assert.True(t, a.HasUnsafe())
}
