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

import "testing"

func TestState_Basic(t *testing.T) {
	state := NewState()

	command := EvalString{
		Parsed: []EvalStringToken{
			{"cat ", false},
			{"in", true},
			{" > ", false},
			{"out", true},
		},
	}
	if got := command.Serialize(); got != "[cat ][$in][ > ][$out]" {
		t.Fatal(got)
	}

	rule := NewRule("cat")
	rule.Bindings["command"] = &command
	state.Bindings.Rules[rule.Name] = rule

	edge := state.addEdge(rule)
	state.addIn(edge, "in1", 0)
	state.addIn(edge, "in2", 0)
	state.addOut(edge, "out", 0)

	if got := edge.EvaluateCommand(false); got != "cat in1 in2 > out" {
		t.Fatal(got)
	}

	if state.GetNode("in1", 0).Dirty {
		t.Fatal("dirty")
	}
	if state.GetNode("in2", 0).Dirty {
		t.Fatal("dirty")
	}
	if state.GetNode("out", 0).Dirty {
		t.Fatal("dirty")
	}
}

func TestState_OneOutputPerNode(t *testing.T) {
	state := newTestState(t)

	edge := state.addEdge(state.Bindings.LookupRule("cat"))
	if !state.addOut(edge, "out", 0) {
		t.Fatal("addOut")
	}
	edge2 := state.addEdge(state.Bindings.LookupRule("cat"))
	if state.addOut(edge2, "out", 0) {
		t.Fatal("expected second in-edge for 'out' to be rejected")
	}
}

func TestState_RootNodes(t *testing.T) {
	state := newTestState(t)
	assertParse(t, &state,
		"build out1: cat in1\n"+
			"build mid1: cat in1\n"+
			"build out2: cat mid1\n"+
			"build out3 out4: cat mid1\n")

	roots, err := state.RootNodes()
	if err != nil {
		t.Fatal(err)
	}
	if len(roots) != 4 {
		t.Fatalf("got %d root nodes", len(roots))
	}
	for _, n := range roots {
		if n.Path[:3] != "out" {
			t.Fatal(n.Path)
		}
	}
}

func TestState_SpellcheckNode(t *testing.T) {
	state := newTestState(t)
	assertParse(t, &state, "build final_output: cat in\n")

	if n := state.SpellcheckNode("final_outpu"); n == nil || n.Path != "final_output" {
		t.Fatal(n)
	}
	if n := state.SpellcheckNode("zzzzzzzzzzzz"); n != nil {
		t.Fatal(n.Path)
	}
}

func TestState_PoolsRegistered(t *testing.T) {
	state := NewState()
	if p := state.Pools[""]; p == nil || p.Depth != 0 {
		t.Fatal("default pool")
	}
	if p := state.Pools["console"]; p == nil || p.Depth != 1 {
		t.Fatal("console pool")
	}
}
