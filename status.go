// Copyright 2016 Google Inc. All Rights Reserved.
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
	"strconv"
)

// Status tracks the status of a build: completion fraction, printing
// updates.
type Status interface {
	PlanHasTotalEdges(total int)
	BuildEdgeStarted(edge *Edge, startTimeMillis int32)
	BuildEdgeFinished(edge *Edge, endTimeMillis int32, success bool, output string)
	BuildStarted()
	BuildFinished()

	Info(msg string, v ...interface{})
	Warning(msg string, v ...interface{})
	Error(msg string, v ...interface{})
}

// StatusPrinter implements Status, printing the status as human-readable
// strings to stdout.
type StatusPrinter struct {
	config *BuildConfig

	startedEdges  int
	finishedEdges int
	totalEdges    int
	runningEdges  int
	timeMillis    int32

	// Prints progress output.
	printer LinePrinter

	// The custom progress status format to use.
	progressStatusFormat string

	currentRate slidingRateInfo
}

type slidingRateInfo struct {
	rate       float64
	n          int
	times      []float64
	lastUpdate int
}

// updateRate tracks the pace of the last n completed edges.
func (s *slidingRateInfo) updateRate(updateHint int, timeMillis int32) {
	if updateHint == s.lastUpdate {
		return
	}
	s.lastUpdate = updateHint

	if len(s.times) == s.n {
		copy(s.times, s.times[1:])
		s.times = s.times[:len(s.times)-1]
	}
	s.times = append(s.times, float64(timeMillis))
	newest := s.times[len(s.times)-1]
	oldest := s.times[0]
	if newest != oldest {
		s.rate = float64(len(s.times)) / ((newest - oldest) / 1e3)
	}
}

func NewStatusPrinter(config *BuildConfig) StatusPrinter {
	s := StatusPrinter{
		config:  config,
		printer: NewLinePrinter(),
		currentRate: slidingRateInfo{
			rate:       -1,
			n:          config.Parallelism,
			lastUpdate: -1,
		},
	}
	// Don't do anything fancy in verbose mode.
	if s.config.Verbosity != Normal {
		s.printer.setSmartTerminal(false)
	}

	s.progressStatusFormat = os.Getenv("NINJA_STATUS")
	if s.progressStatusFormat == "" {
		s.progressStatusFormat = "[%f/%t] "
	}
	return s
}

func (s *StatusPrinter) PlanHasTotalEdges(total int) {
	s.totalEdges = total
}

func (s *StatusPrinter) BuildEdgeStarted(edge *Edge, startTimeMillis int32) {
	s.startedEdges++
	s.runningEdges++
	s.timeMillis = startTimeMillis
	if edge.useConsole() || s.printer.isSmartTerminal() {
		s.printStatus(edge, startTimeMillis)
	}

	if edge.useConsole() {
		s.printer.SetConsoleLocked(true)
	}
}

func (s *StatusPrinter) BuildEdgeFinished(edge *Edge, endTimeMillis int32, success bool, output string) {
	s.timeMillis = endTimeMillis
	s.finishedEdges++

	if edge.useConsole() {
		s.printer.SetConsoleLocked(false)
	}

	if s.config.Verbosity == Quiet {
		return
	}

	if !edge.useConsole() {
		s.printStatus(edge, endTimeMillis)
	}

	s.runningEdges--

	// Print the command that is spewing before printing its output.
	if !success {
		outputs := ""
		for _, o := range edge.Outputs {
			outputs += o.Path + " "
		}
		if s.printer.supportsColor {
			s.printer.PrintOnNewLine("\x1B[31mFAILED: \x1B[0m" + outputs + "\n")
		} else {
			s.printer.PrintOnNewLine("FAILED: " + outputs + "\n")
		}
		s.printer.PrintOnNewLine(edge.EvaluateCommand(false) + "\n")
	}

	if output != "" {
		// The subprocesses' stdout and stderr go to a pipe, so that the
		// engine can tell whether output is empty. Some tools check
		// isatty(stderr) to decide whether to print colored output; to keep
		// colored output available, users run those tools with flags that
		// force color. To make sure those escape codes don't land in a file
		// when our own output is piped, strip them again when we are not
		// writing to a smart terminal.
		finalOutput := output
		if !s.printer.supportsColor {
			finalOutput = stripAnsiEscapeCodes(output)
		}
		s.printer.PrintOnNewLine(finalOutput)
	}
}

func (s *StatusPrinter) BuildStarted() {
	s.startedEdges = 0
	s.finishedEdges = 0
	s.runningEdges = 0
}

func (s *StatusPrinter) BuildFinished() {
	s.printer.SetConsoleLocked(false)
	s.printer.PrintOnNewLine("")
}

// FormatProgressStatus formats the progress status string by replacing the
// placeholders; see the NINJA_STATUS documentation for the full list.
func (s *StatusPrinter) FormatProgressStatus(progressStatusFormat string, timeMillis int32) string {
	out := ""
	for i := 0; i < len(progressStatusFormat); i++ {
		c := progressStatusFormat[i]
		if c != '%' {
			out += string(c)
			continue
		}
		i++
		if i == len(progressStatusFormat) {
			fatalf("unknown placeholder '%%' in $NINJA_STATUS")
		}
		c = progressStatusFormat[i]
		switch c {
		case '%':
			out += "%"

		// Started edges.
		case 's':
			out += strconv.Itoa(s.startedEdges)

		// Total edges.
		case 't':
			out += strconv.Itoa(s.totalEdges)

		// Running edges.
		case 'r':
			out += strconv.Itoa(s.runningEdges)

		// Unstarted edges.
		case 'u':
			out += strconv.Itoa(s.totalEdges - s.startedEdges)

		// Finished edges.
		case 'f':
			out += strconv.Itoa(s.finishedEdges)

		// Overall finished edges per second.
		case 'o':
			if s.timeMillis == 0 {
				out += "?"
			} else {
				rate := float64(s.finishedEdges) / float64(s.timeMillis) * 1000.
				out += fmt.Sprintf("%.1f", rate)
			}

		// The current rate, average over the last '-j' jobs.
		case 'c':
			s.currentRate.updateRate(s.finishedEdges, s.timeMillis)
			if s.currentRate.rate == -1 {
				out += "?"
			} else {
				out += fmt.Sprintf("%.1f", s.currentRate.rate)
			}

		// Percentage of finished edges.
		case 'p':
			percent := 0
			if s.totalEdges != 0 {
				percent = (100 * s.finishedEdges) / s.totalEdges
			}
			out += fmt.Sprintf("%3d%%", percent)

		// Elapsed time in seconds.
		case 'e':
			out += fmt.Sprintf("%.3f", float64(s.timeMillis)*0.001)

		default:
			fatalf("unknown placeholder '%%%c' in $NINJA_STATUS", c)
		}
	}
	return out
}

func (s *StatusPrinter) printStatus(edge *Edge, timeMillis int32) {
	if s.config.Verbosity == Quiet || s.config.Verbosity == NoStatusUpdate {
		return
	}

	forceFullCommand := s.config.Verbosity == Verbose

	toPrint := edge.GetBinding("description")
	if toPrint == "" || forceFullCommand {
		toPrint = edge.GetBinding("command")
	}

	toPrint = s.FormatProgressStatus(s.progressStatusFormat, timeMillis) + toPrint

	lineType := Elide
	if forceFullCommand {
		lineType = Full
	}
	s.printer.Print(toPrint, lineType)
}

func (s *StatusPrinter) Warning(msg string, v ...interface{}) {
	warningf(msg, v...)
}

func (s *StatusPrinter) Error(msg string, v ...interface{}) {
	errorf(msg, v...)
}

func (s *StatusPrinter) Info(msg string, v ...interface{}) {
	infof(msg, v...)
}
