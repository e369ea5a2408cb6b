// Copyright 2011 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package nobu

import (
	"runtime"
	"strings"
)

func isPathSeparator(c byte) bool {
	return c == '/' || c == '\\'
}

// CanonicalizePath canonicalizes a path like "foo/../bar.h" into just
// "bar.h". Use CanonicalizePathBits when the caller needs to round-trip
// backslashes for presentation.
func CanonicalizePath(path string) string {
	s, _ := CanonicalizePathBits(path)
	return s
}

// CanonicalizePathBits collapses "." and ".." components, deduplicates
// separators and normalizes them to '/'. The returned bitmask has bits set,
// starting from the lowest, for separators (among the first 64) that were
// backslashes in the input. Two paths name the same node iff their canonical
// forms are byte-equal; the bitmask is presentation-only.
func CanonicalizePathBits(path string) (string, uint64) {
	l := len(path)
	if l == 0 {
		return path, 0
	}

	const maxPathComponents = 60
	var components [maxPathComponents]int
	componentCount := 0

	// Trailing sentinel so the component loop can copy the terminator the
	// same way it copies a separator.
	buf := make([]byte, l+1)
	copy(buf, path)

	dst := 0
	src := 0
	end := l

	if isPathSeparator(buf[0]) {
		// Network paths start with //.
		if l > 1 && isPathSeparator(buf[1]) {
			src = 2
			dst = 2
		} else {
			src = 1
			dst = 1
		}
	}

	for src < end {
		if buf[src] == '.' {
			if src+1 == end || isPathSeparator(buf[src+1]) {
				// '.' component; eliminate.
				src += 2
				continue
			}
			if buf[src+1] == '.' && (src+2 == end || isPathSeparator(buf[src+2])) {
				// '..' component.  Back up if possible.
				if componentCount > 0 {
					dst = components[componentCount-1]
					src += 3
					componentCount--
				} else {
					buf[dst] = buf[src]
					buf[dst+1] = buf[src+1]
					buf[dst+2] = buf[src+2]
					dst += 3
					src += 3
				}
				continue
			}
		}

		if isPathSeparator(buf[src]) {
			src++
			continue
		}

		if componentCount == maxPathComponents {
			fatalf("path has too many components : %s", path)
		}
		components[componentCount] = dst
		componentCount++

		for src != end && !isPathSeparator(buf[src]) {
			buf[dst] = buf[src]
			dst++
			src++
		}
		// Copy the '/' or the trailing sentinel as well.
		buf[dst] = buf[src]
		dst++
		src++
	}

	if dst == 0 {
		return ".", 0
	}

	out := buf[:dst-1]
	var bits uint64
	bitsMask := uint64(1)
	for i := 0; i < len(out); i++ {
		switch out[i] {
		case '\\':
			bits |= bitsMask
			out[i] = '/'
			bitsMask <<= 1
		case '/':
			bitsMask <<= 1
		}
	}
	return string(out), bits
}

// PathDecanonicalized derives the original presentation of path by turning
// back into '\\' every separator whose slashBits bit is set.
func PathDecanonicalized(path string, slashBits uint64) string {
	if slashBits == 0 {
		return path
	}
	out := []byte(path)
	mask := uint64(1)
	for i := 0; i < len(out); i++ {
		if out[i] == '/' {
			if slashBits&mask != 0 {
				out[i] = '\\'
			}
			mask <<= 1
		}
	}
	return string(out)
}

func isKnownShellSafeCharacter(ch byte) bool {
	if 'A' <= ch && ch <= 'Z' {
		return true
	}
	if 'a' <= ch && ch <= 'z' {
		return true
	}
	if '0' <= ch && ch <= '9' {
		return true
	}
	switch ch {
	case '_', '+', '-', '.', '/':
		return true
	default:
		return false
	}
}

func stringNeedsShellEscaping(input string) bool {
	for i := 0; i < len(input); i++ {
		if !isKnownShellSafeCharacter(input[i]) {
			return true
		}
	}
	return false
}

// getShellEscapedString escapes input according to the whims of /bin/sh.
// The string is returned unmodified when it contains no problematic
// characters.
func getShellEscapedString(input string) string {
	if !stringNeedsShellEscaping(input) {
		return input
	}
	var b strings.Builder
	b.Grow(len(input) + 2)
	b.WriteByte('\'')
	for i := 0; i < len(input); i++ {
		if input[i] == '\'' {
			b.WriteString("'\\''")
		} else {
			b.WriteByte(input[i])
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// getWin32EscapedString escapes input for CommandLineToArgvW().
func getWin32EscapedString(input string) string {
	if !strings.ContainsAny(input, " \"") {
		return input
	}
	var b strings.Builder
	b.Grow(len(input) + 2)
	b.WriteByte('"')
	consecutiveBackslashes := 0
	for i := 0; i < len(input); i++ {
		switch input[i] {
		case '\\':
			consecutiveBackslashes++
		case '"':
			for j := 0; j < consecutiveBackslashes+1; j++ {
				b.WriteByte('\\')
			}
			consecutiveBackslashes = 0
		default:
			consecutiveBackslashes = 0
		}
		b.WriteByte(input[i])
	}
	for j := 0; j < consecutiveBackslashes; j++ {
		b.WriteByte('\\')
	}
	b.WriteByte('"')
	return b.String()
}

// escapePathForCommand escapes a path the way the platform shell expects it
// on an evaluated command line.
func escapePathForCommand(path string) string {
	if runtime.GOOS == "windows" {
		return getWin32EscapedString(path)
	}
	return getShellEscapedString(path)
}

// spellcheckString returns the closest match among words, or "" if nothing
// is close enough.
func spellcheckString(text string, words ...string) string {
	const allowReplacements = true
	const maxValidEditDistance = 3

	minDistance := maxValidEditDistance + 1
	result := ""
	for _, word := range words {
		distance := editDistance(word, text, allowReplacements, maxValidEditDistance)
		if distance < minDistance {
			minDistance = distance
			result = word
		}
	}
	return result
}

func islatinalpha(c byte) bool {
	// isalpha() is locale-dependent.
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// stripAnsiEscapeCodes removes all ANSI CSI sequences from in.
func stripAnsiEscapeCodes(in string) string {
	if !strings.ContainsRune(in, '\x1B') {
		return in
	}
	stripped := make([]byte, 0, len(in))
	for i := 0; i < len(in); i++ {
		if in[i] != '\x1B' {
			// Not an escape code.
			stripped = append(stripped, in[i])
			continue
		}

		// Only strip CSIs for now.
		if i+1 >= len(in) {
			break
		}
		if in[i+1] != '[' { // Not a CSI.
			continue
		}
		i += 2

		// Skip everything up to and including the next [a-zA-Z].
		for i < len(in) && !islatinalpha(in[i]) {
			i++
		}
	}
	return string(stripped)
}

// elideMiddle elides str with "..." in the middle when it exceeds width.
func elideMiddle(str string, width int) string {
	switch width {
	case 0:
		return ""
	case 1:
		return "."
	case 2:
		return ".."
	case 3:
		return "..."
	}
	const margin = 3 // Space for "...".
	if len(str) <= width {
		return str
	}
	elideSize := (width - margin) / 2
	return str[:elideSize] + "..." + str[len(str)-elideSize:]
}
