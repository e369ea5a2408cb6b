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

// Package nobu is a small build system with a focus on speed.
//
// It consumes a declarative manifest of build rules and drives the minimal
// set of commands needed to bring the requested targets up to date.
package nobu

import (
	"fmt"
	"os"
)

// fatalf logs a fatal message and exits.
func fatalf(f string, v ...interface{}) {
	fmt.Fprintf(os.Stderr, "nobu: fatal: "+f+"\n", v...)
	os.Exit(1)
}

// errorf logs an error message.
func errorf(f string, v ...interface{}) {
	fmt.Fprintf(os.Stderr, "nobu: error: "+f+"\n", v...)
}

// warningf logs a warning message.
func warningf(f string, v ...interface{}) {
	fmt.Fprintf(os.Stderr, "nobu: warning: "+f+"\n", v...)
}

// infof logs an informational message.
func infof(f string, v ...interface{}) {
	fmt.Fprintf(os.Stdout, "nobu: "+f+"\n", v...)
}
