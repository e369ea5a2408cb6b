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

import "fmt"

// DepfileParser parses the dependency information emitted by gcc's -M
// flags: a Makefile fragment of targets and inputs.
type DepfileParser struct {
	outs []string
	ins  []string
}

// Parse parses a dependency file.
//
// content must contain a terminating zero byte and is mutated in place
// while escapes are collapsed.
//
// A note on backslashes in Makefiles, from reading the docs:
// Backslash-newline is the line continuation character.
// Backslash-# escapes a # (otherwise meaningful as a comment start).
// Backslash-% escapes a % (otherwise meaningful as a special).
// Finally, quoting the GNU manual, "Backslashes that are not in danger
// of quoting '%' characters go unmolested."
//
// Rather than implement all of the above, we follow what GCC/Clang
// produce: backslashes escape a space or hash sign. When a space is
// preceded by 2N+1 backslashes, it represents N backslashes followed by
// space. When a space is preceded by 2N backslashes, it represents 2N
// backslashes at the end of a filename. A hash sign is escaped by a single
// backslash. All other backslashes remain unchanged.
//
// If anyone actually has depfiles that rely on the more complicated
// behavior we can adjust this.
func (d *DepfileParser) Parse(content []byte) error {
	// in: current parser input point.
	// end: end of input (including the zero sentinel).
	// parsingTargets: whether we are parsing targets or dependencies.
	in := 0
	end := len(content)
	if end == 0 || content[end-1] != 0 {
		panic("depfile content requires a trailing zero byte")
	}
	haveTarget := false
	parsingTargets := true
	poisonedInput := false
	for in < end {
		haveNewline := false
		// out: current output point (typically same as in, but can fall
		// behind as we de-escape backslashes).
		out := in
		// filename: start of the current parsed filename.
		filename := out
	spans:
		for {
			c := content[in]
			switch {
			case c == 0:
				in++
				break spans

			case c == ' ' || c == '\t':
				in++
				break spans

			case c == '\n':
				in++
				haveNewline = true
				break spans

			case c == '\r':
				in++
				if in < end && content[in] == '\n' {
					in++
				}
				haveNewline = true
				break spans

			case c == '\\':
				j := in
				for content[j] == '\\' {
					j++
				}
				n := j - in
				next := content[j]
				switch {
				case next == '#':
					// A single backslash escapes a hash sign; the other
					// leading backslashes are preserved.
					for k := 0; k < n-1; k++ {
						content[out] = '\\'
						out++
					}
					content[out] = '#'
					out++
					in = j + 1
				case next == ' ' && n%2 == 1:
					// 2N+1 backslashes plus space: N backslashes and an
					// escaped space; the filename continues.
					for k := 0; k < n/2; k++ {
						content[out] = '\\'
						out++
					}
					content[out] = ' '
					out++
					in = j + 1
				case next == ':' && isDepfileDelimiter(content[j+1]):
					// Backslashes, then a colon followed by whitespace or
					// EOF: normal text plus a terminating colon, not an
					// escaped colon (GCC 10 writes "foo\:" this way).
					for k := 0; k < n; k++ {
						content[out] = '\\'
						out++
					}
					content[out] = ':'
					out++
					in = j + 1
					break spans
				case next == ':':
					// De-escape the colon; other leading backslashes are
					// preserved.
					for k := 0; k < n-1; k++ {
						content[out] = '\\'
						out++
					}
					content[out] = ':'
					out++
					in = j + 1
				case next == '\n' && n%2 == 1:
					// Line continuation; acts as a token separator.
					in = j + 1
					for k := 0; k < n-1; k++ {
						content[out] = '\\'
						out++
					}
					break spans
				case next == '\r' && content[j+1] == '\n' && n%2 == 1:
					in = j + 2
					for k := 0; k < n-1; k++ {
						content[out] = '\\'
						out++
					}
					break spans
				case next == '\n' || (next == '\r' && content[j+1] == '\n'):
					// Even run before a newline: the backslashes are
					// literal and the newline ends the line.
					for k := 0; k < n; k++ {
						content[out] = '\\'
						out++
					}
					in = j
				case next == 0:
					for k := 0; k < n; k++ {
						content[out] = '\\'
						out++
					}
					in = j
				default:
					// Backslashes followed by anything else go unmolested.
					for k := 0; k < n; k++ {
						content[out] = '\\'
						out++
					}
					in = j
					if next != ' ' {
						// The run was not an escape; copy the next char too
						// so an odd-length run doesn't retrigger the space
						// rules.
						content[out] = next
						out++
						in++
					}
				}

			case c == '$':
				if content[in+1] == '$' {
					// De-escape dollar character.
					content[out] = '$'
					out++
					in += 2
				} else {
					content[out] = c
					out++
					in++
				}

			default:
				// Ordinary text, including ':'; a trailing colon is
				// stripped below and marks the filename as a target.
				content[out] = c
				out++
				in++
			}
		}

		l := out - filename
		isDependency := !parsingTargets
		if l > 0 && content[filename+l-1] == ':' {
			l-- // Strip off trailing colon.
			parsingTargets = false
			haveTarget = true
		}
		if l > 0 {
			piece := string(content[filename : filename+l])
			// If we've seen this as an input before, skip it.
			if !containsString(d.ins, piece) {
				if isDependency {
					if poisonedInput {
						return fmt.Errorf("inputs may not also have inputs (offset %d)", filename)
					}
					// New input.
					d.ins = append(d.ins, piece)
				} else if !containsString(d.outs, piece) {
					// New, unique output.
					d.outs = append(d.outs, piece)
				}
			} else if !isDependency {
				// A token appearing on the left side that was an input
				// before poisons further inputs.
				poisonedInput = true
			}
		}
		if haveNewline {
			// A newline ends a rule so the next filename will be a new
			// target.
			parsingTargets = true
			poisonedInput = false
		}
	}
	if !haveTarget {
		return fmt.Errorf("expected ':' in depfile (offset %d)", in)
	}
	return nil
}

func isDepfileDelimiter(c byte) bool {
	switch c {
	case 0, ' ', '\t', '\r', '\n':
		return true
	}
	return false
}

func containsString(l []string, s string) bool {
	for _, x := range l {
		if x == s {
			return true
		}
	}
	return false
}
