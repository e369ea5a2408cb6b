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

func newTestLexer(input string) lexer {
	l := lexer{}
	l.Start("input", append([]byte(input), 0))
	return l
}

func TestLexer_ReadVarValue(t *testing.T) {
	lexer := newTestLexer("plain text $var $VaR ${x}\n")
	eval, err := lexer.readEvalString(false)
	if err != nil {
		t.Fatal(err)
	}
	if got := eval.Serialize(); got != "[plain text ][$var][ ][$VaR][ ][$x]" {
		t.Fatal(got)
	}
}

func TestLexer_ReadEvalStringEscapes(t *testing.T) {
	lexer := newTestLexer("$ $$ab c$: $\ncde\n")
	eval, err := lexer.readEvalString(false)
	if err != nil {
		t.Fatal(err)
	}
	if got := eval.Serialize(); got != "[ $ab c: cde]" {
		t.Fatal(got)
	}
}

func TestLexer_ReadIdent(t *testing.T) {
	lexer := newTestLexer("foo baR baz_123 foo-bar")
	for _, want := range []string{"foo", "baR", "baz_123", "foo-bar"} {
		if ident := lexer.readIdent(); ident != want {
			t.Fatalf("readIdent() = %q, want %q", ident, want)
		}
	}
}

func TestLexer_ReadIdentCurlies(t *testing.T) {
	// Verify that readIdent includes dots in the name, but in an expansion
	// $bar.dots stops at the dot.
	lexer := newTestLexer("foo.dots $bar.dots ${bar.dots}\n")
	if ident := lexer.readIdent(); ident != "foo.dots" {
		t.Fatal(ident)
	}
	eval, err := lexer.readEvalString(false)
	if err != nil {
		t.Fatal(err)
	}
	if got := eval.Serialize(); got != "[$bar][.dots ][$bar.dots]" {
		t.Fatal(got)
	}
}

func TestLexer_Error(t *testing.T) {
	lexer := newTestLexer("foo$\nbad $")
	_, err := lexer.readEvalString(false)
	if err == nil {
		t.Fatal("expected error")
	}
	want := "input:2: bad $-escape (literal $ must be written as $$)\nbad $\n    ^ near here"
	if err.Error() != want {
		t.Fatal(err)
	}
}

func TestLexer_CommentEOF(t *testing.T) {
	// Verify we don't run off the end of the string when the EOF is
	// mid-comment.
	lexer := newTestLexer("# foo")
	if token := lexer.ReadToken(); token != ERROR {
		t.Fatal(token)
	}
}

func TestLexer_Tabs(t *testing.T) {
	// Verify we print a useful error on a disallowed character.
	lexer := newTestLexer("   \tfoobar")
	if token := lexer.ReadToken(); token != INDENT {
		t.Fatal(token)
	}
	if token := lexer.ReadToken(); token != ERROR {
		t.Fatal(token)
	}
	if got := lexer.DescribeLastError(); got != "tabs are not allowed, use spaces" {
		t.Fatal(got)
	}
}

func TestLexer_Tokens(t *testing.T) {
	lexer := newTestLexer("build foo: bar | baz || quux\n")
	want := []Token{BUILD, IDENT, COLON, IDENT, PIPE, IDENT, PIPE2, IDENT, NEWLINE, TEOF}
	for _, w := range want {
		if token := lexer.ReadToken(); token != w {
			t.Fatalf("got %s, want %s", token, w)
		}
	}
}

func TestLexer_PeekAndUnread(t *testing.T) {
	lexer := newTestLexer("rule cat\n")
	if lexer.PeekToken(BUILD) {
		t.Fatal("peeked BUILD")
	}
	if !lexer.PeekToken(RULE) {
		t.Fatal("expected RULE")
	}
	if ident := lexer.readIdent(); ident != "cat" {
		t.Fatal(ident)
	}
}

func TestLexer_KeywordVsIdent(t *testing.T) {
	// A keyword followed by more varname characters is an identifier.
	lexer := newTestLexer("buildx build")
	if token := lexer.ReadToken(); token != IDENT {
		t.Fatal(token)
	}
	if token := lexer.ReadToken(); token != BUILD {
		t.Fatal(token)
	}
}
