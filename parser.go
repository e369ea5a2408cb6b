// Copyright 2018 Google Inc. All Rights Reserved.
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

// parser is the base for parsers over lexed manifest-style input.
type parser struct {
	state      *State
	fileReader FileReader
	lexer      lexer
}

// loadFile reads filename through the file reader and hands it to parse.
func (p *parser) loadFile(filename string, parse func(filename string, input []byte) error) error {
	defer metricRecord("manifest parse")()
	contents, err := p.fileReader.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("loading '%s': %w", filename, err)
	}
	return parse(filename, contents)
}

// expectToken produces an error if the next token is not expected. The
// error says "expected foo, got bar".
func (p *parser) expectToken(expected Token) error {
	if token := p.lexer.ReadToken(); token != expected {
		msg := "expected " + expected.String() + ", got " + token.String() + expected.errorHint()
		return p.lexer.Error(msg)
	}
	return nil
}
