// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package geiger

import "errors"

var (
	// ErrFileTooLarge is returned when input content exceeds the scanner's
	// maximum file size.
	ErrFileTooLarge = errors.New("file exceeds maximum size limit")

	// ErrInvalidContent is returned when input is not valid UTF-8.
	ErrInvalidContent = errors.New("content is not valid UTF-8")
)
