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
	"strings"
)

// Token is a lexical token of the manifest language.
type Token int32

const (
	ERROR Token = iota
	BUILD
	COLON
	DEFAULT
	EQUALS
	IDENT
	INCLUDE
	INDENT
	NEWLINE
	PIPE
	PIPE2
	POOL
	RULE
	SUBNINJA
	TEOF
)

// String returns a human-readable form of a token, used in error messages.
func (t Token) String() string {
	switch t {
	case ERROR:
		return "lexing error"
	case BUILD:
		return "'build'"
	case COLON:
		return "':'"
	case DEFAULT:
		return "'default'"
	case EQUALS:
		return "'='"
	case IDENT:
		return "identifier"
	case INCLUDE:
		return "'include'"
	case INDENT:
		return "indent"
	case NEWLINE:
		return "newline"
	case PIPE:
		return "'|'"
	case PIPE2:
		return "'||'"
	case POOL:
		return "'pool'"
	case RULE:
		return "'rule'"
	case SUBNINJA:
		return "'subninja'"
	case TEOF:
		return "eof"
	}
	return "" // not reached
}

// errorHint returns a human-readable token hint, used in error messages.
func (t Token) errorHint() string {
	if t == COLON {
		return " ($ also escapes ':')"
	}
	return ""
}

var keywordTokens = map[string]Token{
	"build":    BUILD,
	"pool":     POOL,
	"rule":     RULE,
	"default":  DEFAULT,
	"include":  INCLUDE,
	"subninja": SUBNINJA,
}

// isVarnameChar matches characters of a variable name.
func isVarnameChar(c byte) bool {
	return c == '_' || c == '-' || c == '.' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// isSimpleVarnameChar matches characters of a $name reference (no dot; use
// ${name} for those).
func isSimpleVarnameChar(c byte) bool {
	return c == '_' || c == '-' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// lexerState is the offset of processing a token. It is meant to be saved
// when an error message may be printed after the parsing continued.
type lexerState struct {
	ofs       int
	lastToken int
}

// error constructs an error message with line/column context.
func (l *lexerState) error(message, filename string, input []byte) error {
	// Compute line/column.
	line := 1
	lineStart := 0
	for p := 0; p < l.lastToken && p < len(input); p++ {
		if input[p] == '\n' {
			line++
			lineStart = p + 1
		}
	}
	col := 0
	if l.lastToken != -1 {
		col = l.lastToken - lineStart
	}

	// Add some context to the message.
	c := ""
	const truncateColumn = 72
	if col > 0 && col < truncateColumn {
		truncated := true
		length := 0
		for ; length < truncateColumn; length++ {
			if input[lineStart+length] == 0 || input[lineStart+length] == '\n' {
				truncated = false
				break
			}
		}
		c = string(input[lineStart : lineStart+length])
		if truncated {
			c += "..."
		}
		c += "\n"
		c += strings.Repeat(" ", col)
		c += "^ near here"
	}
	return fmt.Errorf("%s:%d: %s\n%s", filename, line, message, c)
}

// lexer is a hand-written scanner over the manifest grammar.
type lexer struct {
	// Immutable.
	filename string
	input    []byte

	// Mutable.
	lexerState
}

// Error constructs an error message with context.
func (l *lexer) Error(message string) error {
	return l.lexerState.error(message, l.filename, l.input)
}

// Start begins parsing some input. input must end with a zero byte so the
// scanner knows when it's done.
func (l *lexer) Start(filename string, input []byte) {
	if len(input) == 0 || input[len(input)-1] != 0 {
		panic("lexer input requires a trailing zero byte")
	}
	l.filename = filename
	l.input = input
	l.ofs = 0
	l.lastToken = -1
}

// DescribeLastError provides more info when the last token read was an
// ERROR token.
func (l *lexer) DescribeLastError() string {
	if l.lastToken != -1 && l.input[l.lastToken] == '\t' {
		return "tabs are not allowed, use spaces"
	}
	return "lexing error"
}

// UnreadToken rewinds to the last read token.
func (l *lexer) UnreadToken() {
	l.ofs = l.lastToken
}

// ReadToken reads and returns the next token.
func (l *lexer) ReadToken() Token {
	p := l.ofs
	start := p
	var token Token
loop:
	for {
		start = p
		c := l.input[p]
		switch {
		case c == ' ' || c == '#':
			for l.input[p] == ' ' {
				p++
			}
			switch l.input[p] {
			case '#':
				// Comment; skip to and including the newline.
				for l.input[p] != '\n' && l.input[p] != 0 {
					p++
				}
				if l.input[p] == 0 {
					token = ERROR
					break loop
				}
				p++
				continue
			case '\r':
				if l.input[p+1] == '\n' {
					p += 2
					token = NEWLINE
					break loop
				}
				p++
				token = ERROR
				break loop
			case '\n':
				p++
				token = NEWLINE
				break loop
			default:
				token = INDENT
				break loop
			}
		case c == '\r':
			if l.input[p+1] == '\n' {
				p += 2
				token = NEWLINE
			} else {
				p++
				token = ERROR
			}
			break loop
		case c == '\n':
			p++
			token = NEWLINE
			break loop
		case c == '=':
			p++
			token = EQUALS
			break loop
		case c == ':':
			p++
			token = COLON
			break loop
		case c == '|':
			if l.input[p+1] == '|' {
				p += 2
				token = PIPE2
			} else {
				p++
				token = PIPE
			}
			break loop
		case c == 0:
			p++
			token = TEOF
			break loop
		case isVarnameChar(c):
			for isVarnameChar(l.input[p]) {
				p++
			}
			token = IDENT
			if kw, ok := keywordTokens[string(l.input[start:p])]; ok {
				token = kw
			}
			break loop
		default:
			p++
			token = ERROR
			break loop
		}
	}

	l.lastToken = start
	l.ofs = p
	if token != NEWLINE && token != TEOF {
		l.eatWhitespace()
	}
	return token
}

// PeekToken reads the next token and returns true if it is token; otherwise
// the token is unread.
func (l *lexer) PeekToken(token Token) bool {
	t := l.ReadToken()
	if t == token {
		return true
	}
	l.UnreadToken()
	return false
}

// eatWhitespace skips past whitespace (called after each read token/ident
// etc.). $-escaped newlines count as whitespace.
func (l *lexer) eatWhitespace() {
	p := l.ofs
	for {
		switch {
		case l.input[p] == ' ':
			p++
		case l.input[p] == '$' && l.input[p+1] == '\n':
			p += 2
		case l.input[p] == '$' && l.input[p+1] == '\r' && l.input[p+2] == '\n':
			p += 3
		default:
			l.ofs = p
			return
		}
	}
}

// readIdent reads a simple identifier (a rule or variable name). Returns ""
// if a name can't be read.
func (l *lexer) readIdent() string {
	p := l.ofs
	start := p
	for isVarnameChar(l.input[p]) {
		p++
	}
	if p == start {
		l.lastToken = start
		return ""
	}
	out := string(l.input[start:p])
	l.lastToken = start
	l.ofs = p
	l.eatWhitespace()
	return out
}

// readEvalString reads a $-escaped string.
//
// If path is true, read a path (complete with $escapes). If path is false,
// read the value side of a "var = value" line (complete with $escapes).
//
// The returned path may be empty if a delimiter (space, newline) is hit.
func (l *lexer) readEvalString(path bool) (EvalString, error) {
	eval := EvalString{}
	p := l.ofs
	start := p
loop:
	for {
		start = p
		c := l.input[p]
		switch {
		case c == '$':
			next := l.input[p+1]
			switch {
			case next == '$':
				eval.appendText("$")
				p += 2
			case next == ' ':
				eval.appendText(" ")
				p += 2
			case next == ':':
				eval.appendText(":")
				p += 2
			case next == '\n':
				p += 2
				for l.input[p] == ' ' {
					p++
				}
			case next == '\r' && l.input[p+2] == '\n':
				p += 3
				for l.input[p] == ' ' {
					p++
				}
			case next == '{':
				q := p + 2
				for isVarnameChar(l.input[q]) {
					q++
				}
				if q == p+2 || l.input[q] != '}' {
					l.lastToken = start
					return EvalString{}, l.Error("bad $-escape (literal $ must be written as $$)")
				}
				eval.appendVariable(string(l.input[p+2 : q]))
				p = q + 1
			case isSimpleVarnameChar(next):
				q := p + 1
				for isSimpleVarnameChar(l.input[q]) {
					q++
				}
				eval.appendVariable(string(l.input[p+1 : q]))
				p = q
			default:
				l.lastToken = start
				return EvalString{}, l.Error("bad $-escape (literal $ must be written as $$)")
			}
		case c == ' ' || c == ':' || c == '|':
			if path {
				break loop
			}
			eval.appendText(string(c))
			p++
		case c == '\r' && l.input[p+1] == '\n':
			if !path {
				p += 2
			}
			break loop
		case c == '\n':
			if !path {
				p++
			}
			break loop
		case c == 0:
			l.lastToken = start
			return EvalString{}, l.Error("unexpected EOF")
		case c == '\r':
			l.lastToken = start
			return EvalString{}, l.Error(l.DescribeLastError())
		default:
			q := p
			for isPlainEvalChar(l.input[q]) {
				q++
			}
			eval.appendText(string(l.input[p:q]))
			p = q
		}
	}
	l.lastToken = start
	l.ofs = p
	if path {
		l.eatWhitespace()
	}
	// Non-path strings end in newlines, so there's no whitespace to eat.
	return eval, nil
}

// isPlainEvalChar matches text that needs no special handling inside a
// $-escaped string.
func isPlainEvalChar(c byte) bool {
	switch c {
	case 0, '$', ' ', ':', '|', '\r', '\n':
		return false
	}
	return true
}
