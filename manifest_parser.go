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
	"strconv"
)

// ManifestParserOptions adjusts how strictly manifests are interpreted.
type ManifestParserOptions struct {
	// ErrOnDupeEdge makes duplicate edges for one target an error instead
	// of a warning.
	ErrOnDupeEdge bool
	// ErrOnPhonyCycle makes phony edges that reference themselves an error
	// instead of a warning.
	ErrOnPhonyCycle bool
	// Quiet suppresses the warnings; used by tests.
	Quiet bool
}

// ManifestParser parses .ninja manifests into a State.
type ManifestParser struct {
	parser
	env     *BindingEnv
	options ManifestParserOptions
}

func NewManifestParser(state *State, fileReader FileReader, options ManifestParserOptions) *ManifestParser {
	return &ManifestParser{
		parser: parser{
			state:      state,
			fileReader: fileReader,
		},
		env:     state.Bindings,
		options: options,
	}
}

// Load parses the manifest at filename.
func (m *ManifestParser) Load(filename string) error {
	return m.loadFile(filename, m.parse)
}

// ParseTest parses a literal manifest; used by tests.
func (m *ManifestParser) ParseTest(input string) error {
	m.options.Quiet = true
	return m.parse("input", append([]byte(input), 0))
}

// parse parses a file, given its contents as a string.
func (m *ManifestParser) parse(filename string, input []byte) error {
	m.lexer.Start(filename, input)

	for {
		switch token := m.lexer.ReadToken(); token {
		case POOL:
			if err := m.parsePool(); err != nil {
				return err
			}
		case BUILD:
			if err := m.parseEdge(); err != nil {
				return err
			}
		case RULE:
			if err := m.parseRule(); err != nil {
				return err
			}
		case DEFAULT:
			if err := m.parseDefault(); err != nil {
				return err
			}
		case IDENT:
			if err := m.parseIdent(); err != nil {
				return err
			}
		case INCLUDE:
			if err := m.parseFileInclude(false); err != nil {
				return err
			}
		case SUBNINJA:
			if err := m.parseFileInclude(true); err != nil {
				return err
			}
		case ERROR:
			return m.lexer.Error(m.lexer.DescribeLastError())
		case TEOF:
			return nil
		case NEWLINE:
		default:
			return m.lexer.Error("unexpected " + token.String())
		}
	}
}

// parsePool parses a "pool" statement.
func (m *ManifestParser) parsePool() error {
	name := m.lexer.readIdent()
	if name == "" {
		return m.lexer.Error("expected pool name")
	}

	if err := m.expectToken(NEWLINE); err != nil {
		return err
	}

	if m.state.Pools[name] != nil {
		return m.lexer.Error(fmt.Sprintf("duplicate pool '%s'", name))
	}

	depth := -1
	for m.lexer.PeekToken(INDENT) {
		key, value, err := m.parseLet()
		if err != nil {
			return err
		}
		if key != "depth" {
			return m.lexer.Error(fmt.Sprintf("unexpected variable '%s'", key))
		}
		if depth, err = strconv.Atoi(value.Evaluate(m.env)); depth < 0 || err != nil {
			return m.lexer.Error("invalid pool depth")
		}
	}

	if depth < 0 {
		return m.lexer.Error("expected 'depth =' line")
	}

	m.state.Pools[name] = NewPool(name, depth)
	return nil
}

// parseRule parses a "rule" statement.
func (m *ManifestParser) parseRule() error {
	name := m.lexer.readIdent()
	if name == "" {
		return m.lexer.Error("expected rule name")
	}

	if err := m.expectToken(NEWLINE); err != nil {
		return err
	}

	if m.env.Rules[name] != nil {
		return m.lexer.Error(fmt.Sprintf("duplicate rule '%s'", name))
	}

	rule := NewRule(name)
	for m.lexer.PeekToken(INDENT) {
		key, value, err := m.parseLet()
		if err != nil {
			return err
		}
		if !IsReservedBinding(key) {
			// Die on other keyvals for now; revisit if we want to add a
			// scope here.
			return m.lexer.Error(fmt.Sprintf("unexpected variable '%s'", key))
		}
		binding := value
		rule.Bindings[key] = &binding
	}

	b1, ok1 := rule.Bindings["rspfile"]
	b2, ok2 := rule.Bindings["rspfile_content"]
	if ok1 != ok2 || (ok1 && (len(b1.Parsed) == 0) != (len(b2.Parsed) == 0)) {
		return m.lexer.Error("rspfile and rspfile_content need to be both specified")
	}

	if b, ok := rule.Bindings["command"]; !ok || len(b.Parsed) == 0 {
		return m.lexer.Error("expected 'command =' line")
	}
	m.env.Rules[rule.Name] = rule
	return nil
}

// parseDefault parses a "default" statement.
func (m *ManifestParser) parseDefault() error {
	eval, err := m.lexer.readEvalString(true)
	if err != nil {
		return err
	}
	if len(eval.Parsed) == 0 {
		return m.lexer.Error("expected target name")
	}

	for {
		path := eval.Evaluate(m.env)
		if path == "" {
			return m.lexer.Error("empty path")
		}
		if err := m.state.addDefault(CanonicalizePath(path)); err != nil {
			return m.lexer.Error(err.Error())
		}

		eval, err = m.lexer.readEvalString(true)
		if err != nil {
			return err
		}
		if len(eval.Parsed) == 0 {
			break
		}
	}

	return m.expectToken(NEWLINE)
}

// parseIdent parses a "var = value" statement.
func (m *ManifestParser) parseIdent() error {
	m.lexer.UnreadToken()
	name, letValue, err := m.parseLet()
	if err != nil {
		return err
	}
	value := letValue.Evaluate(m.env)
	// Check ninja_required_version immediately so we can exit before
	// encountering any syntactic surprises.
	if name == "ninja_required_version" {
		if err := checkRequiredVersion(value); err != nil {
			return err
		}
	}
	m.env.Bindings[name] = value
	return nil
}

// parseEdge parses a "build" statement that results in an edge, defining
// inputs and outputs.
func (m *ManifestParser) parseEdge() error {
	var outs []EvalString
	for {
		ev, err := m.lexer.readEvalString(true)
		if err != nil {
			return err
		}
		if len(ev.Parsed) == 0 {
			break
		}
		outs = append(outs, ev)
	}

	// Add all implicit outs, counting how many as we go.
	implicitOuts := 0
	if m.lexer.PeekToken(PIPE) {
		for {
			ev, err := m.lexer.readEvalString(true)
			if err != nil {
				return err
			}
			if len(ev.Parsed) == 0 {
				break
			}
			outs = append(outs, ev)
			implicitOuts++
		}
	}

	if len(outs) == 0 {
		return m.lexer.Error("expected path")
	}

	if err := m.expectToken(COLON); err != nil {
		return err
	}

	ruleName := m.lexer.readIdent()
	if ruleName == "" {
		return m.lexer.Error("expected build command name")
	}

	rule := m.env.LookupRule(ruleName)
	if rule == nil {
		return m.lexer.Error(fmt.Sprintf("unknown build rule '%s'", ruleName))
	}

	var ins []EvalString
	for {
		ev, err := m.lexer.readEvalString(true)
		if err != nil {
			return err
		}
		if len(ev.Parsed) == 0 {
			break
		}
		ins = append(ins, ev)
	}

	// Add all implicit deps, counting how many as we go.
	implicit := 0
	if m.lexer.PeekToken(PIPE) {
		for {
			ev, err := m.lexer.readEvalString(true)
			if err != nil {
				return err
			}
			if len(ev.Parsed) == 0 {
				break
			}
			ins = append(ins, ev)
			implicit++
		}
	}

	// Add all order-only deps, counting how many as we go.
	orderOnly := 0
	if m.lexer.PeekToken(PIPE2) {
		for {
			ev, err := m.lexer.readEvalString(true)
			if err != nil {
				return err
			}
			if len(ev.Parsed) == 0 {
				break
			}
			ins = append(ins, ev)
			orderOnly++
		}
	}

	if err := m.expectToken(NEWLINE); err != nil {
		return err
	}

	// Bindings on edges are rare, so allocate per-edge envs only when
	// needed.
	hasIndentToken := m.lexer.PeekToken(INDENT)
	env := m.env
	if hasIndentToken {
		env = NewBindingEnv(m.env)
	}
	for hasIndentToken {
		key, val, err := m.parseLet()
		if err != nil {
			return err
		}
		env.Bindings[key] = val.Evaluate(m.env)
		hasIndentToken = m.lexer.PeekToken(INDENT)
	}

	edge := m.state.addEdge(rule)
	edge.Env = env

	if poolName := edge.GetBinding("pool"); poolName != "" {
		pool := m.state.Pools[poolName]
		if pool == nil {
			return m.lexer.Error(fmt.Sprintf("unknown pool name '%s'", poolName))
		}
		edge.Pool = pool
	}

	edge.Outputs = make([]*Node, 0, len(outs))
	for i := range outs {
		path := outs[i].Evaluate(env)
		if path == "" {
			return m.lexer.Error("empty path")
		}
		path, slashBits := CanonicalizePathBits(path)
		if !m.state.addOut(edge, path, slashBits) {
			if m.options.ErrOnDupeEdge {
				return m.lexer.Error("multiple rules generate " + path)
			}
			if !m.options.Quiet {
				warningf("multiple rules generate %s. builds involving this target will not be correct; continuing anyway", path)
			}
			if len(outs)-i <= implicitOuts {
				implicitOuts--
			}
		}
	}
	if len(edge.Outputs) == 0 {
		// All outputs of the edge are already created by other edges. Don't
		// add this edge. Do this check before input nodes are connected to
		// the edge.
		m.state.Edges = m.state.Edges[:len(m.state.Edges)-1]
		return nil
	}
	edge.ImplicitOuts = int32(implicitOuts)

	edge.Inputs = make([]*Node, 0, len(ins))
	for _, in := range ins {
		path := in.Evaluate(env)
		if path == "" {
			return m.lexer.Error("empty path")
		}
		path, slashBits := CanonicalizePathBits(path)
		m.state.addIn(edge, path, slashBits)
	}
	edge.ImplicitDeps = int32(implicit)
	edge.OrderOnlyDeps = int32(orderOnly)

	// Dynamic deps are recorded against a single output node.
	if edge.GetBinding("deps") != "" && len(edge.Outputs)-int(edge.ImplicitOuts) > 1 {
		return m.lexer.Error("multiple outputs aren't (yet?) supported by depslog; bring this up on the mailing list if it affects you")
	}

	if !m.options.ErrOnPhonyCycle && edge.maybePhonycycleDiagnostic() {
		// CMake 2.8.12.x and 3.0.x incorrectly write phony build statements
		// that reference themselves. The build graph no longer tolerates
		// these, so filter them out to support users of those old CMake
		// versions.
		out := edge.Outputs[0]
		for i, n := range edge.Inputs {
			if n == out {
				copy(edge.Inputs[i:], edge.Inputs[i+1:])
				edge.Inputs = edge.Inputs[:len(edge.Inputs)-1]
				if !m.options.Quiet {
					warningf("phony target '%s' names itself as an input; ignoring [-w phonycycle=warn]", out.Path)
				}
				break
			}
		}
	}
	return nil
}

// parseFileInclude parses "include" and "subninja" lines. A subninja gets
// its own child scope; an include shares the current one.
func (m *ManifestParser) parseFileInclude(newScope bool) error {
	eval, err := m.lexer.readEvalString(true)
	if err != nil {
		return err
	}
	ls := m.lexer.lexerState
	if err := m.expectToken(NEWLINE); err != nil {
		return err
	}

	path := eval.Evaluate(m.env)
	input, err := m.fileReader.ReadFile(path)
	if err != nil {
		return ls.error(fmt.Sprintf("loading '%s': %s", path, err), m.lexer.filename, m.lexer.input)
	}

	env := m.env
	if newScope {
		env = NewBindingEnv(m.env)
	}
	subparser := ManifestParser{
		parser: parser{
			state:      m.state,
			fileReader: m.fileReader,
		},
		env:     env,
		options: m.options,
	}
	// Parse the included file into the current state; errors are not
	// wrapped so they point at the included file.
	return subparser.parse(path, input)
}

func (m *ManifestParser) parseLet() (string, EvalString, error) {
	eval := EvalString{}
	key := m.lexer.readIdent()
	if key == "" {
		return key, eval, m.lexer.Error("expected variable name")
	}
	var err error
	if err = m.expectToken(EQUALS); err == nil {
		eval, err = m.lexer.readEvalString(false)
	}
	return key, eval, err
}
