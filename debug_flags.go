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

package nobu

import (
	"fmt"
	"os"
)

// Process-wide switches set from -d flags. Code outside the builder reads
// them too (the dependency scan through explain, the main program for the
// stat cache), so they live here rather than on BuildConfig.
var (
	explaining   = false
	keepDepfile  = false
	keepRsp      = false
	useStatCache = true
)

// explain prints a reason why the dependency scan considers something out of
// date. Gated behind -d explain.
func explain(f string, v ...interface{}) {
	if explaining {
		fmt.Fprintf(os.Stderr, "nobu explain: "+f+"\n", v...)
	}
}
