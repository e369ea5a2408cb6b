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
	"fmt"
	"sort"
	"strings"
)

// CLParser parses the output of Visual Studio's cl.exe, which emits include
// information on stdout in a funny format when building with /showIncludes.
type CLParser struct {
	includes map[string]struct{}
}

func NewCLParser() CLParser {
	return CLParser{includes: map[string]struct{}{}}
}

// The prefix cl.exe uses ahead of each included file, unless overridden with
// the msvc_deps_prefix binding for localized toolchains.
const depsPrefixEnglish = "Note: including file: "

// filterShowIncludes extracts the path from a /showIncludes line, or returns
// "" when the line is something else.
func filterShowIncludes(line, depsPrefix string) string {
	prefix := depsPrefix
	if prefix == "" {
		prefix = depsPrefixEnglish
	}
	if len(line) > len(prefix) && line[:len(prefix)] == prefix {
		return strings.TrimLeft(line[len(prefix):], " ")
	}
	return ""
}

// isSystemInclude reports whether the mentioned include is a system path.
// Filtering these out reduces dependency information considerably.
func isSystemInclude(path string) bool {
	// TODO: this is a heuristic, perhaps there's a better way?
	path = strings.ToLower(path)
	return strings.Contains(path, "program files") ||
		strings.Contains(path, "microsoft visual studio")
}

// filterInputFilename reports whether a line of cl.exe output looks like it
// is printing an input filename. This is a heuristic but it appears to be
// the best we can do.
func filterInputFilename(line string) bool {
	line = strings.ToLower(line)
	// TODO: other extensions, like .asm?
	return strings.HasSuffix(line, ".c") ||
		strings.HasSuffix(line, ".cc") ||
		strings.HasSuffix(line, ".cxx") ||
		strings.HasSuffix(line, ".cpp")
}

// Parse parses the full output of cl.exe, returning the residual text that
// should be relayed to the user with the /showIncludes lines stripped out.
func (c *CLParser) Parse(output, depsPrefix string) (string, error) {
	defer metricRecord("CLParser::Parse")()

	prefix := depsPrefix
	if prefix == "" {
		prefix = depsPrefixEnglish
	}

	var filtered strings.Builder
	start := 0
	lineno := 0
	for start < len(output) {
		lineno++
		end := strings.IndexAny(output[start:], "\r\n")
		if end == -1 {
			end = len(output)
		} else {
			end += start
		}
		line := output[start:end]

		if include := filterShowIncludes(line, depsPrefix); include != "" {
			if !isSystemInclude(include) {
				c.includes[include] = struct{}{}
			}
		} else if filterInputFilename(line) {
			// Drop it.
			// TODO: if verbose, print line here?
		} else if line == strings.TrimRight(prefix, " ") {
			// The prefix with no path after it is malformed output.
			return "", fmt.Errorf("line %d: expected a path after '%s'", lineno, prefix)
		} else {
			filtered.WriteString(line)
			filtered.WriteString("\n")
		}

		start = end
		for start < len(output) && (output[start] == '\r' || output[start] == '\n') {
			start++
		}
	}
	return filtered.String(), nil
}

// Includes returns the parsed include paths in a deterministic order.
func (c *CLParser) Includes() []string {
	out := make([]string, 0, len(c.includes))
	for i := range c.includes {
		out = append(out, i)
	}
	sort.Strings(out)
	return out
}
