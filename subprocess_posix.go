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

//go:build !windows
// +build !windows

package nobu

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// interruptSignals are the signals that abort the build.
var interruptSignals = []os.Signal{os.Interrupt, unix.SIGTERM, unix.SIGHUP}

// createCmd builds the exec.Cmd for an evaluated command line. The commands
// being run use shell syntax (redirections, &&), so they go through the
// default shell.
func createCmd(command string, useConsole bool) *exec.Cmd {
	cmd := exec.Command("/bin/sh", "-c", command)
	// Non-console subprocesses run in their own process group so the whole
	// tree can be killed on abort without touching the console job.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: !useConsole,
	}
	return cmd
}

// killSubprocess delivers SIGTERM to the subprocess's process group.
func killSubprocess(s *Subprocess) {
	if s.cmd.Process == nil {
		return
	}
	if err := unix.Kill(-s.cmd.Process.Pid, unix.SIGTERM); err != nil {
		s.cmd.Process.Kill()
	}
}

// classifyExit maps a Wait error to an ExitStatus.
func classifyExit(err error) ExitStatus {
	if err == nil {
		return ExitSuccess
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if status, ok := ee.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			switch status.Signal() {
			case unix.SIGINT, unix.SIGTERM, unix.SIGHUP:
				return ExitInterrupted
			}
		}
	}
	return ExitFailure
}
