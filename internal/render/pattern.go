// Copyright (C) 2025 Sievert Labs (oss@sievertlabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package render

import (
	"fmt"
	"strings"

	"github.com/sievertlabs/dosimeter/internal/graph"
)

// Pattern formats a package's display text from a template string.
// Recognized markers: {p} name and version, {l} license, {r} repository.
// Everything else is literal text.
type Pattern struct {
	chunks []patternChunk
}

type patternChunk struct {
	literal string
	marker  byte // 0 for literal chunks
}

// DefaultPattern is the display used when no --format flag is given.
const DefaultPattern = "{p}"

// ParsePattern compiles a format string. Unknown markers are a
// configuration error, reported with the offending marker.
func ParsePattern(format string) (*Pattern, error) {
	p := &Pattern{}
	rest := format
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			break
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			break
		}
		marker := rest[open+1 : open+closing]
		switch marker {
		case "p", "l", "r":
			if open > 0 {
				p.chunks = append(p.chunks, patternChunk{literal: rest[:open]})
			}
			p.chunks = append(p.chunks, patternChunk{marker: marker[0]})
			rest = rest[open+closing+1:]
		default:
			return nil, fmt.Errorf("unknown format marker {%s}", marker)
		}
	}
	if rest != "" {
		p.chunks = append(p.chunks, patternChunk{literal: rest})
	}
	return p, nil
}

// Display renders the pattern for one package.
func (p *Pattern) Display(pkg *graph.Package) string {
	var b strings.Builder
	for _, chunk := range p.chunks {
		switch chunk.marker {
		case 'p':
			b.WriteString(pkg.Name)
			if pkg.Version != "" {
				b.WriteByte(' ')
				b.WriteString(pkg.Version)
			}
		case 'l':
			b.WriteString(pkg.License)
		case 'r':
			b.WriteString(pkg.Repository)
		default:
			b.WriteString(chunk.literal)
		}
	}
	return b.String()
}
