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
	"io/fs"
	"testing"
)

// newTestState returns a State with a builtin "cat" rule, the fixture most
// tests build on.
func newTestState(t *testing.T) State {
	t.Helper()
	state := NewState()
	assertParse(t, &state, "rule cat\n  command = cat $in > $out\n")
	return state
}

func assertParse(t *testing.T, state *State, input string) {
	t.Helper()
	assertParseWithOptions(t, state, input, ManifestParserOptions{})
}

func assertParseWithOptions(t *testing.T, state *State, input string, opts ManifestParserOptions) {
	t.Helper()
	parser := NewManifestParser(state, nil, opts)
	if err := parser.ParseTest(input); err != nil {
		t.Fatalf("parse: %s", err)
	}
	verifyGraph(t, state)
}

// verifyGraph checks the graph's internal consistency.
func verifyGraph(t *testing.T, state *State) {
	t.Helper()
	for _, e := range state.Edges {
		if len(e.Outputs) == 0 {
			t.Fatal("edge with no outputs")
		}
		for _, inNode := range e.Inputs {
			found := false
			for _, oe := range inNode.OutEdges {
				if oe == e {
					found = true
				}
			}
			if !found {
				t.Fatalf("%s is not an out-edge of its input %s", e.Rule.Name, inNode.Path)
			}
		}
		for _, outNode := range e.Outputs {
			if outNode.InEdge != e {
				t.Fatalf("%s is not the in-edge of its output %s", e.Rule.Name, outNode.Path)
			}
		}
	}

	// The union of all in- and out-edges of each node should exactly be
	// state.Edges.
	nodeEdges := map[*Edge]struct{}{}
	for _, n := range state.Paths {
		if n.InEdge != nil {
			nodeEdges[n.InEdge] = struct{}{}
		}
		for _, oe := range n.OutEdges {
			nodeEdges[oe] = struct{}{}
		}
	}
	if len(nodeEdges) != len(state.Edges) {
		t.Fatalf("node edge set has %d edges, state has %d", len(nodeEdges), len(state.Edges))
	}
}

// vfsEntry is a single in-memory file.
type vfsEntry struct {
	mtime     TimeStamp
	statError error // If non-nil, Stat fails with it.
	contents  string
}

// VirtualFileSystem is an implementation of DiskInterface that uses an
// in-memory representation of disk state. It also logs file accesses and
// directory creations so tests can verify disk access patterns.
type VirtualFileSystem struct {
	directoriesMade []string
	filesRead       []string
	files           map[string]*vfsEntry
	filesRemoved    map[string]struct{}
	filesCreated    map[string]struct{}

	// A simple fake timestamp for file operations.
	now TimeStamp
}

func NewVirtualFileSystem() VirtualFileSystem {
	return VirtualFileSystem{
		files:        map[string]*vfsEntry{},
		filesRemoved: map[string]struct{}{},
		filesCreated: map[string]struct{}{},
		now:          1,
	}
}

// Tick advances "time"; subsequent file operations will be newer than
// previous ones.
func (v *VirtualFileSystem) Tick() TimeStamp {
	v.now++
	return v.now
}

// Create "creates" a file with contents at the current time.
func (v *VirtualFileSystem) Create(path, contents string) {
	v.files[path] = &vfsEntry{mtime: v.now, contents: contents}
	v.filesCreated[path] = struct{}{}
}

func (v *VirtualFileSystem) Stat(path string) (TimeStamp, error) {
	if e, ok := v.files[path]; ok {
		if e.statError != nil {
			return -1, e.statError
		}
		return e.mtime, nil
	}
	return 0, nil
}

func (v *VirtualFileSystem) WriteFile(path, contents string) error {
	v.Create(path, contents)
	return nil
}

func (v *VirtualFileSystem) MakeDir(path string) error {
	v.directoriesMade = append(v.directoriesMade, path)
	return nil
}

func (v *VirtualFileSystem) ReadFile(path string) ([]byte, error) {
	v.filesRead = append(v.filesRead, path)
	if e, ok := v.files[path]; ok {
		return append([]byte(e.contents), 0), nil
	}
	return nil, fmt.Errorf("%s: %w", path, fs.ErrNotExist)
}

func (v *VirtualFileSystem) RemoveFile(path string) error {
	for _, d := range v.directoriesMade {
		if d == path {
			return fmt.Errorf("remove(%s): is a directory", path)
		}
	}
	if _, ok := v.files[path]; ok {
		delete(v.files, path)
		v.filesRemoved[path] = struct{}{}
		return nil
	}
	return fmt.Errorf("remove(%s): %w", path, fs.ErrNotExist)
}
