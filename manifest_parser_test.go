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
	"strings"
	"testing"
)

func parseManifestErr(t *testing.T, input string) error {
	t.Helper()
	state := NewState()
	parser := NewManifestParser(&state, nil, ManifestParserOptions{})
	return parser.ParseTest(input)
}

func TestManifestParser_Empty(t *testing.T) {
	state := NewState()
	assertParse(t, &state, "")
}

func TestManifestParser_Rules(t *testing.T) {
	state := NewState()
	assertParse(t, &state,
		"rule cat\n"+
			"  command = cat $in > $out\n"+
			"\n"+
			"rule date\n"+
			"  command = date > $out\n"+
			"\n"+
			"build result: cat in_1.cc in-2.O\n")

	if len(state.Bindings.Rules) != 3 { // + the builtin phony
		t.Fatal(len(state.Bindings.Rules))
	}
	rule := state.Bindings.Rules["cat"]
	if rule == nil || rule.Name != "cat" {
		t.Fatal("missing rule cat")
	}
	if got := rule.Bindings["command"].Serialize(); got != "[cat ][$in][ > ][$out]" {
		t.Fatal(got)
	}
}

func TestManifestParser_IgnoreIndentedComments(t *testing.T) {
	state := NewState()
	assertParse(t, &state,
		"  #indented comment\n"+
			"rule cat\n"+
			"  command = cat $in > $out\n"+
			"  #generator = 1\n"+
			"  restat = 1 # comment\n"+
			"  #comment\n"+
			"build result: cat in_1.cc in-2.O\n"+
			"  #comment\n")

	rule := state.Bindings.Rules["cat"]
	if rule.Bindings["generator"] != nil {
		t.Fatal("commented binding took effect")
	}
	edge := state.LookupNode("result").InEdge
	if !edge.GetBindingBool("restat") {
		t.Fatal("expected restat")
	}
}

func TestManifestParser_Variables(t *testing.T) {
	state := NewState()
	assertParse(t, &state,
		"l = one-letter-test\n"+
			"rule link\n"+
			"  command = ld $l $extra $with_under -o $out $in\n"+
			"\n"+
			"extra = -pthread\n"+
			"with_under = -under\n"+
			"build a: link b c\n"+
			"nested1 = 1\n"+
			"nested2 = $nested1/2\n")

	edge := state.LookupNode("a").InEdge
	if got := edge.EvaluateCommand(false); got != "ld one-letter-test -pthread -under -o a b c" {
		t.Fatal(got)
	}
	if got := state.Bindings.LookupVariable("nested2"); got != "1/2" {
		t.Fatal(got)
	}
}

func TestManifestParser_VariableScope(t *testing.T) {
	state := NewState()
	assertParse(t, &state,
		"foo = bar\n"+
			"rule cmd\n"+
			"  command = cmd $foo $in $out\n"+
			"\n"+
			"build inner: cmd a\n"+
			"  foo = baz\n"+
			"build outer: cmd b\n"+
			"\n") // Extra newline after build line tickles a regression.

	if got := state.LookupNode("inner").InEdge.EvaluateCommand(false); got != "cmd baz a inner" {
		t.Fatal(got)
	}
	if got := state.LookupNode("outer").InEdge.EvaluateCommand(false); got != "cmd bar b outer" {
		t.Fatal(got)
	}
}

func TestManifestParser_Continuation(t *testing.T) {
	state := NewState()
	assertParse(t, &state,
		"rule link\n"+
			"  command = foo bar $\n"+
			"    baz\n"+
			"\n"+
			"build a: link c $\n"+
			" d e f\n")

	rule := state.Bindings.Rules["link"]
	if got := rule.Bindings["command"].Serialize(); got != "[foo bar baz]" {
		t.Fatal(got)
	}
	edge := state.LookupNode("a").InEdge
	if len(edge.Inputs) != 4 {
		t.Fatal(len(edge.Inputs))
	}
}

func TestManifestParser_Backslash(t *testing.T) {
	state := NewState()
	assertParse(t, &state,
		"foo = bar\\baz\n"+
			"foo2 = bar\\ baz\n")
	if got := state.Bindings.LookupVariable("foo"); got != "bar\\baz" {
		t.Fatal(got)
	}
	if got := state.Bindings.LookupVariable("foo2"); got != "bar\\ baz" {
		t.Fatal(got)
	}
}

func TestManifestParser_Comment(t *testing.T) {
	state := NewState()
	assertParse(t, &state,
		"# this is a comment\n"+
			"foo = not # a comment\n")
	if got := state.Bindings.LookupVariable("foo"); got != "not # a comment" {
		t.Fatal(got)
	}
}

func TestManifestParser_Dollars(t *testing.T) {
	state := NewState()
	assertParse(t, &state,
		"rule foo\n"+
			"  command = ${out}bar$$baz$$$\n"+
			"blah\n"+
			"x = $$dollar\n"+
			"build $x: foo y\n")
	if got := state.Bindings.LookupVariable("x"); got != "$dollar" {
		t.Fatal(got)
	}
	if got := state.LookupNode("$dollar").InEdge.EvaluateCommand(false); got != "'$dollar'bar$baz$blah" {
		t.Fatal(got)
	}
}

func TestManifestParser_CanonicalizePaths(t *testing.T) {
	state := NewState()
	assertParse(t, &state,
		"rule cat\n"+
			"  command = cat $in > $out\n"+
			"build ./out.o: cat ./bar/baz/../foo.cc\n")
	if state.LookupNode("out.o") == nil {
		t.Fatal("expected canonical out.o")
	}
	if state.LookupNode("bar/foo.cc") == nil {
		t.Fatal("expected canonical bar/foo.cc")
	}
}

func TestManifestParser_PathVariables(t *testing.T) {
	state := NewState()
	assertParse(t, &state,
		"rule cat\n"+
			"  command = cat $in > $out\n"+
			"dir = out\n"+
			"build $dir/exe: cat src\n")
	if state.LookupNode("out/exe") == nil {
		t.Fatal("expected out/exe")
	}
}

func TestManifestParser_ReservedWords(t *testing.T) {
	state := NewState()
	assertParse(t, &state,
		"rule build\n"+
			"  command = rule run $out\n"+
			"build subninja: build include default foo.cc\n"+
			"default subninja\n")
}

func TestManifestParser_Errors(t *testing.T) {
	data := []struct {
		input string
		want  string
	}{
		{"foobar", "expected '=', got eof"},
		{"x 3", "expected '=', got identifier"},
		{"x = 3", "unexpected EOF"},
		{"x = 3\ny 2", "expected '=', got identifier"},
		{"x = $", "bad $-escape (literal $ must be written as $$)"},
		{"x = $\n $[\n", "bad $-escape"},
		{"x = a$\n b$\n $\n", "unexpected EOF"},
		{"build\n", "expected path"},
		{"build x: y z\n", "unknown build rule 'y'"},
		{"build x:: y z\n", "expected build command name"},
		{"rule cat\n  command = cat ok\nbuild x: cat $\n :\n", "expected newline, got ':'"},
		{"rule cat\n", "expected 'command =' line"},
		{"rule cat\n  command = echo\nrule cat\n  command = echo\n", "duplicate rule 'cat'"},
		{"pool\n", "expected pool name"},
		{"pool foo\n", "expected 'depth =' line"},
		{"pool foo\n  depth = -1\n", "invalid pool depth"},
		{"pool foo\n  bar = 1\n", "unexpected variable 'bar'"},
		{"pool foo\n  depth = 1\npool foo\n", "duplicate pool 'foo'"},
		{"rule cat\n  command = cat $in > $out\nbuild x: cat\n  pool = noexist\n", "unknown pool name 'noexist'"},
		{"default\n", "expected target name"},
		{"default nonexistent\n", "unknown target 'nonexistent'"},
		{"rule r\n  command = r\nbuild b: r\ndefault b:\n", "expected newline, got ':'"},
		{"rule r\n  command = r\n  rspfile = r\n", "rspfile and rspfile_content need to be both specified"},
	}
	for _, l := range data {
		err := parseManifestErr(t, l.input)
		if err == nil {
			t.Errorf("%q: expected error", l.input)
			continue
		}
		if !strings.Contains(err.Error(), l.want) {
			t.Errorf("%q: error %q does not contain %q", l.input, err, l.want)
		}
	}
}

func TestManifestParser_DuplicateEdgeWithMultipleOutputs(t *testing.T) {
	state := NewState()
	// The second build line generates "out1" again; with the default warn
	// action the whole duplicate edge is dropped since it has no remaining
	// outputs.
	assertParse(t, &state,
		"rule cat\n"+
			"  command = cat $in > $out\n"+
			"build out1 out2: cat in1\n"+
			"build out1: cat in2\n"+
			"build final: cat out1\n")
	if len(state.Edges) != 2 {
		t.Fatal(len(state.Edges))
	}
}

func TestManifestParser_DuplicateEdgeWithMultipleOutputsError(t *testing.T) {
	state := NewState()
	parser := NewManifestParser(&state, nil, ManifestParserOptions{ErrOnDupeEdge: true})
	err := parser.ParseTest(
		"rule cat\n" +
			"  command = cat $in > $out\n" +
			"build out1 out2: cat in1\n" +
			"build out1: cat in2\n")
	if err == nil || !strings.Contains(err.Error(), "multiple rules generate out1") {
		t.Fatalf("err = %v", err)
	}
}

func TestManifestParser_NoDeadPointerFromDuplicateEdge(t *testing.T) {
	state := NewState()
	// All of the second edge's outputs are already claimed, so the edge is
	// dropped entirely.
	assertParse(t, &state,
		"rule cat\n"+
			"  command = cat $in > $out\n"+
			"build out: cat in\n"+
			"build out: cat in\n")
	if len(state.Edges) != 1 {
		t.Fatal(len(state.Edges))
	}
}

func TestManifestParser_Include(t *testing.T) {
	fs := NewVirtualFileSystem()
	fs.Create("include.ninja", "var = inner\n")
	state := NewState()
	parser := NewManifestParser(&state, &fs, ManifestParserOptions{Quiet: true})
	if err := parser.ParseTest("var = outer\ninclude include.ninja\n"); err != nil {
		t.Fatal(err)
	}
	// include shares the current scope, so the inner assignment wins.
	if got := state.Bindings.LookupVariable("var"); got != "inner" {
		t.Fatal(got)
	}
}

func TestManifestParser_Subninja(t *testing.T) {
	fs := NewVirtualFileSystem()
	fs.Create("test.ninja",
		"var = inner\n"+
			"build $builddir/inner: varref\n")
	state := NewState()
	parser := NewManifestParser(&state, &fs, ManifestParserOptions{Quiet: true})
	err := parser.ParseTest(
		"builddir = some_dir/\n" +
			"rule varref\n" +
			"  command = varref $var\n" +
			"var = outer\n" +
			"build $builddir/outer: varref\n" +
			"subninja test.ninja\n" +
			"build $builddir/outer2: varref\n")
	if err != nil {
		t.Fatal(err)
	}
	if len(state.Edges) != 3 {
		t.Fatal(len(state.Edges))
	}
	// Get a variable from the outer scope.
	if state.LookupNode("some_dir/inner") == nil {
		t.Fatal("inner edge did not see builddir")
	}
	// Subninja scoping: the inner edge sees the inner var, outer edges see
	// the outer one.
	if got := state.LookupNode("some_dir/inner").InEdge.EvaluateCommand(false); got != "varref inner" {
		t.Fatal(got)
	}
	if got := state.LookupNode("some_dir/outer").InEdge.EvaluateCommand(false); got != "varref outer" {
		t.Fatal(got)
	}
}

func TestManifestParser_MissingSubninja(t *testing.T) {
	state := NewState()
	fs := NewVirtualFileSystem()
	parser := NewManifestParser(&state, &fs, ManifestParserOptions{Quiet: true})
	err := parser.ParseTest("subninja foo.ninja\n")
	if err == nil || !strings.Contains(err.Error(), "loading 'foo.ninja'") {
		t.Fatalf("err = %v", err)
	}
}

func TestManifestParser_OrderOnlyAndImplicit(t *testing.T) {
	state := NewState()
	assertParse(t, &state,
		"rule cat\n  command = cat $in > $out\n"+
			"build foo: cat bar | baz || quux\n")
	edge := state.LookupNode("foo").InEdge
	if len(edge.Inputs) != 3 {
		t.Fatal(len(edge.Inputs))
	}
	if edge.ImplicitDeps != 1 || edge.OrderOnlyDeps != 1 {
		t.Fatal(edge.ImplicitDeps, edge.OrderOnlyDeps)
	}
	if !edge.isImplicit(1) || edge.isOrderOnly(1) {
		t.Fatal("baz should be implicit")
	}
	if !edge.isOrderOnly(2) {
		t.Fatal("quux should be order-only")
	}
	// $in expands only the explicit inputs.
	if got := edge.EvaluateCommand(false); got != "cat bar > foo" {
		t.Fatal(got)
	}
}

func TestManifestParser_ImplicitOutput(t *testing.T) {
	state := NewState()
	assertParse(t, &state,
		"rule cat\n  command = cat $in > $out\n"+
			"build foo | foo.d: cat bar\n")
	edge := state.LookupNode("foo").InEdge
	if len(edge.Outputs) != 2 || edge.ImplicitOuts != 1 {
		t.Fatal(len(edge.Outputs), edge.ImplicitOuts)
	}
	// $out expands only the explicit outputs.
	if got := edge.EvaluateCommand(false); got != "cat bar > foo" {
		t.Fatal(got)
	}
	if state.LookupNode("foo.d").InEdge != edge {
		t.Fatal("implicit output not wired")
	}
}

func TestManifestParser_RequiredVersion(t *testing.T) {
	if err := parseManifestErr(t, "ninja_required_version = 99.0\n"); err == nil {
		t.Fatal("expected a version error")
	}
	state := NewState()
	assertParse(t, &state, "ninja_required_version = 1.0\n")
}
