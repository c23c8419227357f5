// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package intercept

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrainEmptyContext(t *testing.T) {
	h := NewContext()

	capture, err := h.Drain()
	require.NoError(t, err)
	assert.Empty(t, capture.SourceRoots)
	assert.Empty(t, capture.OutDirs)
	assert.Equal(t, 0, capture.Invocations)
}

func TestObserveAccumulatesAndDedupes(t *testing.T) {
	h := NewContext()

	require.NoError(t, h.Observe(CompilerInvocation{
		SourceRoots: []string{"/ws/b/src/lib.rs", "/ws/a/src/lib.rs"},
		OutDir:      "/ws/target/debug/deps",
	}))
	require.NoError(t, h.Observe(CompilerInvocation{
		SourceRoots: []string{"/ws/a/src/lib.rs"},
		OutDir:      "/ws/target/debug/deps",
	}))
	require.NoError(t, h.Observe(CompilerInvocation{
		SourceRoots: []string{"/ws/a/build.rs"},
	}))

	capture, err := h.Drain()
	require.NoError(t, err)
	assert.Equal(t, []string{"/ws/a/build.rs", "/ws/a/src/lib.rs", "/ws/b/src/lib.rs"}, capture.SourceRoots)
	assert.Equal(t, []string{"/ws/target/debug/deps"}, capture.OutDirs)
	assert.Equal(t, 3, capture.Invocations)
}

func TestInvocationFilterSkipsRecording(t *testing.T) {
	h := NewContext(WithInvocationFilter(func(inv CompilerInvocation) bool {
		return len(inv.SourceRoots) > 0
	}))

	require.NoError(t, h.Observe(CompilerInvocation{}))
	require.NoError(t, h.Observe(CompilerInvocation{SourceRoots: []string{"/ws/a/src/lib.rs"}}))

	capture, err := h.Drain()
	require.NoError(t, err)
	assert.Equal(t, 1, capture.Invocations)
	assert.Equal(t, []string{"/ws/a/src/lib.rs"}, capture.SourceRoots)
}

func TestDrainFailsWhileShared(t *testing.T) {
	h := NewContext()
	shared := h.Share()

	_, err := h.Drain()
	require.ErrorIs(t, err, ErrContextShared)

	shared.Release()
	capture, err := h.Drain()
	require.NoError(t, err)
	assert.Equal(t, 0, capture.Invocations)
}

func TestDrainTwiceFails(t *testing.T) {
	h := NewContext()
	shared := h.Share()

	_, err := shared.Drain()
	require.ErrorIs(t, err, ErrContextShared)

	h.Release()
	_, err = shared.Drain()
	require.NoError(t, err)

	_, err = shared.Drain()
	assert.ErrorIs(t, err, ErrContextDrained)

	err = shared.Observe(CompilerInvocation{SourceRoots: []string{"/ws/late.rs"}})
	assert.ErrorIs(t, err, ErrContextDrained)
}

func TestReleasedHandleRefusesUse(t *testing.T) {
	h := NewContext()
	h.Release()

	err := h.Observe(CompilerInvocation{SourceRoots: []string{"/ws/a/src/lib.rs"}})
	assert.ErrorIs(t, err, ErrHandleReleased)

	_, err = h.Drain()
	assert.ErrorIs(t, err, ErrHandleReleased)
}

func TestPanickingFilterPoisonsContext(t *testing.T) {
	h := NewContext(WithInvocationFilter(func(inv CompilerInvocation) bool {
		if strings.HasSuffix(inv.SourceRoots[0], "boom.rs") {
			panic("filter blew up")
		}
		return true
	}))
	shared := h.Share()

	require.NoError(t, shared.Observe(CompilerInvocation{SourceRoots: []string{"/ws/ok.rs"}}))

	func() {
		defer func() {
			r := recover()
			require.NotNil(t, r, "poisoning panic should propagate to the observer")
		}()
		_ = shared.Observe(CompilerInvocation{SourceRoots: []string{"/ws/boom.rs"}})
	}()
	shared.Release()

	err := h.Observe(CompilerInvocation{SourceRoots: []string{"/ws/later.rs"}})
	assert.ErrorIs(t, err, ErrLockAbandoned)

	_, err = h.Drain()
	assert.ErrorIs(t, err, ErrLockAbandoned)
}

func TestConcurrentObserves(t *testing.T) {
	const workers = 16
	const perWorker = 50

	h := NewContext()
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		shared := h.Share()
		go func(id int, sh *Handle) {
			defer wg.Done()
			defer sh.Release()
			for i := 0; i < perWorker; i++ {
				err := sh.Observe(CompilerInvocation{
					SourceRoots: []string{fmt.Sprintf("/ws/crate%d/src/lib.rs", id)},
					OutDir:      "/ws/target/debug/deps",
				})
				if err != nil {
					t.Errorf("observe: %v", err)
					return
				}
			}
		}(w, shared)
	}
	wg.Wait()

	capture, err := h.Drain()
	require.NoError(t, err)
	assert.Equal(t, workers*perWorker, capture.Invocations)
	assert.Len(t, capture.SourceRoots, workers)
	assert.Equal(t, []string{"/ws/target/debug/deps"}, capture.OutDirs)
}
