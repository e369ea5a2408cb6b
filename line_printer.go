// Copyright 2013 Google Inc. All Rights Reserved.
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
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// LineType is how a line should be printed on a smart terminal.
type LineType int32

const (
	// Full prints the whole line.
	Full LineType = iota
	// Elide shortens the line to the terminal width with "..." in the
	// middle.
	Elide
)

// LinePrinter prints lines of text, possibly overprinting previously
// printed lines if the terminal supports it.
type LinePrinter struct {
	// Whether we can do fancy terminal control codes.
	smartTerminal bool

	// Whether we can use ISO 6429 (ANSI) color sequences.
	supportsColor bool

	// Whether the caret is at the beginning of a blank line.
	haveBlankLine bool

	// Whether the console is locked by a console-pool edge.
	consoleLocked bool

	// Buffered current line while the console is locked.
	lineBuffer string

	// Buffered line type while the console is locked.
	lineType LineType

	// Buffered console output while the console is locked.
	outputBuffer string
}

func NewLinePrinter() LinePrinter {
	p := LinePrinter{haveBlankLine: true}
	p.smartTerminal = isatty.IsTerminal(os.Stdout.Fd()) && os.Getenv("TERM") != "dumb"
	p.supportsColor = p.smartTerminal
	if !p.supportsColor {
		clicolorForce := os.Getenv("CLICOLOR_FORCE")
		p.supportsColor = clicolorForce != "" && clicolorForce != "0"
	}
	return p
}

func (l *LinePrinter) isSmartTerminal() bool {
	return l.smartTerminal
}

func (l *LinePrinter) setSmartTerminal(smart bool) {
	l.smartTerminal = smart
}

// Print overprints the current line. If lineType is Elide, the line is
// elided to the terminal width to avoid wrapping.
func (l *LinePrinter) Print(toPrint string, lineType LineType) {
	if l.consoleLocked {
		l.lineBuffer = toPrint
		l.lineType = lineType
		return
	}

	if l.smartTerminal {
		fmt.Printf("\r") // Print over previous line, if any.
	}

	if l.smartTerminal && lineType == Elide {
		if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
			toPrint = elideMiddle(toPrint, width)
		}
		fmt.Printf("%s\x1B[K", toPrint) // Clear to end of line.
		l.haveBlankLine = false
	} else {
		fmt.Printf("%s\n", toPrint)
	}
}

// printOrBuffer writes data directly, or buffers it while the console is
// locked.
func (l *LinePrinter) printOrBuffer(data string) {
	if l.consoleLocked {
		l.outputBuffer += data
	} else {
		os.Stdout.WriteString(data)
	}
}

// PrintOnNewLine prints a string on a new line, not overprinting the
// previous output.
func (l *LinePrinter) PrintOnNewLine(toPrint string) {
	if l.consoleLocked && l.lineBuffer != "" {
		l.outputBuffer += l.lineBuffer + "\n"
		l.lineBuffer = ""
	}
	if !l.haveBlankLine {
		l.printOrBuffer("\n")
	}
	if toPrint != "" {
		l.printOrBuffer(toPrint)
	}
	l.haveBlankLine = toPrint == "" || strings.HasSuffix(toPrint, "\n")
}

// SetConsoleLocked locks or unlocks the console. Console output buffered
// while locked is replayed on unlock.
func (l *LinePrinter) SetConsoleLocked(locked bool) {
	if locked == l.consoleLocked {
		return
	}

	if locked {
		l.PrintOnNewLine("")
	}

	l.consoleLocked = locked

	if !locked {
		l.PrintOnNewLine(l.outputBuffer)
		if l.lineBuffer != "" {
			l.Print(l.lineBuffer, l.lineType)
		}
		l.outputBuffer = ""
		l.lineBuffer = ""
	}
}
