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

//go:build windows
// +build windows

package nobu

import (
	"os"
	"os/exec"
)

// interruptSignals are the signals that abort the build.
var interruptSignals = []os.Signal{os.Interrupt}

// createCmd builds the exec.Cmd for an evaluated command line; commands go
// through cmd.exe like they would with CreateProcess.
func createCmd(command string, useConsole bool) *exec.Cmd {
	return exec.Command("cmd.exe", "/c", command)
}

// killSubprocess terminates the subprocess.
func killSubprocess(s *Subprocess) {
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
}

// classifyExit maps a Wait error to an ExitStatus. Windows has no signal
// exits; any failure to run cleanly is a plain failure.
func classifyExit(err error) ExitStatus {
	if err == nil {
		return ExitSuccess
	}
	return ExitFailure
}
