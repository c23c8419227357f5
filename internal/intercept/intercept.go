// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package intercept accumulates compiler invocations observed during an
// instrumented build.
//
// The build driver registers a single Observer with the build pipeline and
// feeds it one CompilerInvocation per compiler run. Invocations arrive from
// concurrently running compiler processes, so the accumulator is guarded by
// one mutex. Access goes through ownership-tracked Handle values: the
// capture can only be drained while exactly one live handle remains, and a
// context poisoned by a panicking invocation refuses all further use. Both
// conditions surface as distinct errors so callers can tell an ownership
// leak from an abandoned lock.
//
// The package knows nothing about any particular build tool; translating
// compiler command lines into CompilerInvocation values is the driver's job.
package intercept

import (
	"fmt"
	"sort"
	"sync"
)

// CompilerInvocation records one observed compiler run. Paths are expected
// to be absolute and symlink-resolved before they reach the accumulator.
type CompilerInvocation struct {
	// SourceRoots are the source files named directly on the compiler
	// command line.
	SourceRoots []string

	// OutDir is the declared artifact output directory, or "" when the
	// invocation did not name one.
	OutDir string
}

// Capture is the drained result of an instrumented build.
type Capture struct {
	// SourceRoots is the deduplicated, sorted set of source files the
	// compiler was invoked on directly.
	SourceRoots []string

	// OutDirs is the deduplicated, sorted set of artifact output
	// directories the build wrote dependency information into.
	OutDirs []string

	// Invocations counts recorded compiler runs, after filtering.
	Invocations int
}

// Observer receives one record per compiler invocation during an
// instrumented build.
type Observer interface {
	Observe(inv CompilerInvocation) error
}

// context is the shared accumulator. It is never exposed directly; all
// access goes through Handle so live references can be counted.
type context struct {
	mu sync.Mutex

	filter func(CompilerInvocation) bool

	sourceRoots map[string]struct{}
	outDirs     map[string]struct{}
	invocations int

	handles  int
	poisoned bool
	drained  bool
}

// Handle is one live reference to a capture context.
//
// Handles are not safe for concurrent use of the same value; share the
// context by calling Share and giving each goroutine its own handle.
type Handle struct {
	ctx      *context
	released bool
}

// Option adjusts a new capture context.
type Option func(*context)

// WithInvocationFilter installs a predicate deciding whether an invocation
// is recorded. The predicate runs under the context lock so its decision is
// atomic with the recording; a panicking predicate therefore poisons the
// context.
func WithInvocationFilter(f func(CompilerInvocation) bool) Option {
	return func(c *context) {
		c.filter = f
	}
}

// NewContext creates an empty capture context and returns its first handle.
func NewContext(opts ...Option) *Handle {
	c := &context{
		sourceRoots: make(map[string]struct{}),
		outDirs:     make(map[string]struct{}),
		handles:     1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return &Handle{ctx: c}
}

// Share creates another live handle to the same context. The caller must
// Release it (or consume it via Drain) for the capture to become drainable
// again.
func (h *Handle) Share() *Handle {
	c := h.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if h.released {
		return &Handle{ctx: c, released: true}
	}
	c.handles++
	return &Handle{ctx: c}
}

// Release retires the handle. Releasing twice is a no-op.
func (h *Handle) Release() {
	c := h.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if h.released {
		return
	}
	h.released = true
	if c.handles > 0 {
		c.handles--
	}
}

// Observe records one compiler invocation.
//
// A panic escaping the locked section, in practice from an invocation
// filter, marks the context poisoned before re-panicking. Every later
// Observe and the final Drain then fail with ErrLockAbandoned.
func (h *Handle) Observe(inv CompilerInvocation) error {
	c := h.ctx
	c.mu.Lock()
	switch {
	case c.drained:
		c.mu.Unlock()
		return ErrContextDrained
	case c.poisoned:
		c.mu.Unlock()
		return ErrLockAbandoned
	case h.released:
		c.mu.Unlock()
		return ErrHandleReleased
	}
	defer func() {
		if r := recover(); r != nil {
			c.poisoned = true
			c.mu.Unlock()
			panic(r)
		}
		c.mu.Unlock()
	}()

	if c.filter != nil && !c.filter(inv) {
		return nil
	}
	for _, p := range inv.SourceRoots {
		c.sourceRoots[p] = struct{}{}
	}
	if inv.OutDir != "" {
		c.outDirs[inv.OutDir] = struct{}{}
	}
	c.invocations++
	return nil
}

// Drain consumes the context and returns everything recorded so far.
//
// Draining requires sole ownership: the calling handle must be the only
// live reference. It fails with ErrContextShared while other handles are
// live, ErrContextDrained when the capture was already consumed, and
// ErrLockAbandoned when a panicking invocation poisoned the context. The
// handle is spent afterwards either way.
func (h *Handle) Drain() (*Capture, error) {
	c := h.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.handles > 1:
		return nil, fmt.Errorf("%w: %d handles live", ErrContextShared, c.handles)
	case c.poisoned:
		return nil, ErrLockAbandoned
	case c.drained:
		return nil, ErrContextDrained
	case h.released:
		return nil, ErrHandleReleased
	}

	c.drained = true
	h.released = true
	c.handles = 0

	return &Capture{
		SourceRoots: sortedKeys(c.sourceRoots),
		OutDirs:     sortedKeys(c.outDirs),
		Invocations: c.invocations,
	}, nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
