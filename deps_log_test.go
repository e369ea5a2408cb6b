// Copyright 2012 Google Inc. All Rights Reserved.
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
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDepsLog_WriteRead(t *testing.T) {
	state1 := NewState()
	path := filepath.Join(t.TempDir(), depsLogFileName)

	log1 := DepsLog{}
	if err := log1.OpenForWrite(path); err != nil {
		t.Fatal(err)
	}

	{
		deps := []*Node{
			state1.GetNode("foo.h", 0),
			state1.GetNode("bar.h", 0),
		}
		if err := log1.RecordDeps(state1.GetNode("out.o", 0), 1, deps); err != nil {
			t.Fatal(err)
		}

		deps = []*Node{
			state1.GetNode("foo.h", 0),
			state1.GetNode("bar2.h", 0),
		}
		if err := log1.RecordDeps(state1.GetNode("out2.o", 0), 2, deps); err != nil {
			t.Fatal(err)
		}

		logDeps := log1.GetDeps(state1.GetNode("out.o", 0))
		if logDeps == nil || logDeps.MTime != 1 || len(logDeps.Nodes) != 2 {
			t.Fatalf("deps = %+v", logDeps)
		}
		if logDeps.Nodes[0].Path != "foo.h" || logDeps.Nodes[1].Path != "bar.h" {
			t.Fatal(logDeps.Nodes)
		}
	}

	if err := log1.Close(); err != nil {
		t.Fatal(err)
	}

	state2 := NewState()
	log2 := DepsLog{}
	status, err := log2.Load(path, &state2)
	if status != LoadSuccess || err != nil {
		t.Fatal(status, err)
	}

	if len(log1.nodes) != len(log2.nodes) {
		t.Fatal(len(log2.nodes))
	}
	for i, n1 := range log1.nodes {
		n2 := log2.nodes[i]
		if n1.ID != n2.ID || n1.Path != n2.Path {
			t.Fatalf("node %d mismatch: %s vs %s", i, n1.Path, n2.Path)
		}
	}

	logDeps := log2.GetDeps(state2.GetNode("out.o", 0))
	if logDeps == nil || logDeps.MTime != 1 || len(logDeps.Nodes) != 2 {
		t.Fatalf("deps = %+v", logDeps)
	}
	if logDeps.Nodes[0].Path != "foo.h" || logDeps.Nodes[1].Path != "bar.h" {
		t.Fatal(logDeps.Nodes)
	}
}

func TestDepsLog_LotsOfDeps(t *testing.T) {
	const numDeps = 100000 // More than 64k, to exercise long records.
	state1 := NewState()
	path := filepath.Join(t.TempDir(), depsLogFileName)

	log1 := DepsLog{}
	if err := log1.OpenForWrite(path); err != nil {
		t.Fatal(err)
	}

	deps := make([]*Node, 0, numDeps)
	for i := 0; i < numDeps; i++ {
		deps = append(deps, state1.GetNode(fmt.Sprintf("file%d.h", i), 0))
	}
	if err := log1.RecordDeps(state1.GetNode("out.o", 0), 1, deps); err != nil {
		t.Fatal(err)
	}
	log1.Close()

	state2 := NewState()
	log2 := DepsLog{}
	if status, err := log2.Load(path, &state2); status != LoadSuccess || err != nil {
		t.Fatal(status, err)
	}
	logDeps := log2.GetDeps(state2.GetNode("out.o", 0))
	if logDeps == nil || len(logDeps.Nodes) != numDeps {
		t.Fatal("deps lost on reload")
	}
}

func TestDepsLog_DoubleEntry(t *testing.T) {
	// Write the same deps record twice; the second, identical record is
	// not written, so the log does not grow.
	state := NewState()
	path := filepath.Join(t.TempDir(), depsLogFileName)

	log := DepsLog{}
	if err := log.OpenForWrite(path); err != nil {
		t.Fatal(err)
	}
	deps := []*Node{state.GetNode("foo.h", 0)}
	if err := log.RecordDeps(state.GetNode("out.o", 0), 1, deps); err != nil {
		t.Fatal(err)
	}
	log.Close()
	size1 := fileSize(t, path)

	log2 := DepsLog{}
	state2 := NewState()
	if _, err := log2.Load(path, &state2); err != nil {
		t.Fatal(err)
	}
	if err := log2.OpenForWrite(path); err != nil {
		t.Fatal(err)
	}
	deps2 := []*Node{state2.GetNode("foo.h", 0)}
	if err := log2.RecordDeps(state2.GetNode("out.o", 0), 1, deps2); err != nil {
		t.Fatal(err)
	}
	log2.Close()

	if size2 := fileSize(t, path); size2 != size1 {
		t.Fatalf("identical deps grew the log: %d -> %d", size1, size2)
	}
}

func fileSize(t *testing.T, path string) int64 {
	t.Helper()
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	return fi.Size()
}

func TestDepsLog_Truncated(t *testing.T) {
	// A log with a trailing partial record is recovered by truncation.
	state := NewState()
	path := filepath.Join(t.TempDir(), depsLogFileName)

	log := DepsLog{}
	if err := log.OpenForWrite(path); err != nil {
		t.Fatal(err)
	}
	deps := []*Node{state.GetNode("foo.h", 0), state.GetNode("bar.h", 0)}
	if err := log.RecordDeps(state.GetNode("out.o", 0), 1, deps); err != nil {
		t.Fatal(err)
	}
	log.Close()
	goodSize := fileSize(t, path)

	// Append a partial record.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o666)
	if err != nil {
		t.Fatal(err)
	}
	f.Write([]byte{42, 0, 0})
	f.Close()

	state2 := NewState()
	log2 := DepsLog{}
	status, err := log2.Load(path, &state2)
	if status != LoadSuccess {
		t.Fatal(status)
	}
	if err == nil || !strings.Contains(err.Error(), "recovering") {
		t.Fatalf("expected recovery warning, got %v", err)
	}
	if got := fileSize(t, path); got != goodSize {
		t.Fatalf("file not truncated back to %d (got %d)", goodSize, got)
	}
	if log2.GetDeps(state2.GetNode("out.o", 0)) == nil {
		t.Fatal("complete record lost")
	}
}

func TestDepsLog_BadSignatureStartsOver(t *testing.T) {
	path := filepath.Join(t.TempDir(), depsLogFileName)
	if err := os.WriteFile(path, []byte("garbage file"), 0o666); err != nil {
		t.Fatal(err)
	}

	state := NewState()
	log := DepsLog{}
	status, err := log.Load(path, &state)
	if status != LoadSuccess {
		t.Fatal(status)
	}
	if err == nil || !strings.Contains(err.Error(), "starting over") {
		t.Fatalf("expected signature warning, got %v", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatal("bad log should have been deleted")
	}
}

func TestDepsLog_Recompact(t *testing.T) {
	// out.o is live (its edge uses deps), other.o no longer is; after
	// recompaction only the live record survives and ids are reassigned.
	state := newTestState(t)
	assertParse(t, &state,
		"rule catdep\n"+
			"  command = cat $in > $out\n"+
			"  deps = gcc\n"+
			"  depfile = $out.d\n"+
			"build out.o: catdep foo.cc\n")
	path := filepath.Join(t.TempDir(), depsLogFileName)

	log := DepsLog{}
	if err := log.OpenForWrite(path); err != nil {
		t.Fatal(err)
	}
	if err := log.RecordDeps(state.GetNode("out.o", 0), 1, []*Node{state.GetNode("foo.h", 0)}); err != nil {
		t.Fatal(err)
	}
	if err := log.RecordDeps(state.GetNode("other.o", 0), 1, []*Node{state.GetNode("bar.h", 0)}); err != nil {
		t.Fatal(err)
	}
	log.Close()
	sizeBefore := fileSize(t, path)

	if err := log.Recompact(path); err != nil {
		t.Fatal(err)
	}
	if log.GetDeps(state.GetNode("out.o", 0)) == nil {
		t.Fatal("live record lost")
	}
	if log.GetDeps(state.GetNode("other.o", 0)) != nil {
		t.Fatal("dead record survived")
	}
	if sizeAfter := fileSize(t, path); sizeAfter >= sizeBefore {
		t.Fatalf("recompaction did not shrink the log: %d -> %d", sizeBefore, sizeAfter)
	}

	// The rewritten log loads cleanly.
	state2 := NewState()
	log2 := DepsLog{}
	if status, err := log2.Load(path, &state2); status != LoadSuccess || err != nil {
		t.Fatal(status, err)
	}
	if deps := log2.GetDeps(state2.GetNode("out.o", 0)); deps == nil || deps.Nodes[0].Path != "foo.h" {
		t.Fatalf("deps = %+v", deps)
	}
}
