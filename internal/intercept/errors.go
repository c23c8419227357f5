// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package intercept

import "errors"

var (
	// ErrContextShared is returned by Drain while more than one live handle
	// references the context. Draining requires sole ownership.
	ErrContextShared = errors.New("capture context still shared")

	// ErrContextDrained is returned when the capture was already consumed.
	ErrContextDrained = errors.New("capture context already drained")

	// ErrLockAbandoned is returned when a panicking invocation left the
	// context in an unknown state. Nothing recovers a poisoned context.
	ErrLockAbandoned = errors.New("capture context lock abandoned")

	// ErrHandleReleased is returned when a released handle is used.
	ErrHandleReleased = errors.New("capture handle already released")
)
