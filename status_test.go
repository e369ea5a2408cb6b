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

import "testing"

func TestStatus_FormatElapsed(t *testing.T) {
	cfg := NewBuildConfig()
	status := NewStatusPrinter(&cfg)

	status.BuildStarted()
	// Before any task is done, the elapsed time must be zero.
	if got := status.FormatProgressStatus("[%%/e%e]", 0); got != "[%/e0.000]" {
		t.Fatal(got)
	}
}

func TestStatus_FormatReplacePlaceholder(t *testing.T) {
	cfg := NewBuildConfig()
	status := NewStatusPrinter(&cfg)

	if got := status.FormatProgressStatus("[%%/s%s/t%t/r%r/u%u/f%f]", 0); got != "[%/s0/t0/r0/u0/f0]" {
		t.Fatal(got)
	}
}

func TestStatus_Counters(t *testing.T) {
	cfg := NewBuildConfig()
	cfg.Verbosity = Quiet
	status := NewStatusPrinter(&cfg)
	state := newTestState(t)
	assertParse(t, &state, "build out: cat in\n")
	edge := state.LookupNode("out").InEdge

	status.PlanHasTotalEdges(3)
	status.BuildStarted()
	status.BuildEdgeStarted(edge, 0)
	if got := status.FormatProgressStatus("%s/%t/%r/%u/%f", 0); got != "1/3/1/2/0" {
		t.Fatal(got)
	}
	status.BuildEdgeFinished(edge, 10, true, "")
	if got := status.FormatProgressStatus("%s/%t/%u/%f", 10); got != "1/3/2/1" {
		t.Fatal(got)
	}
	status.BuildFinished()
}

func TestStatus_FormatPercent(t *testing.T) {
	cfg := NewBuildConfig()
	cfg.Verbosity = Quiet
	status := NewStatusPrinter(&cfg)
	state := newTestState(t)
	assertParse(t, &state, "build out: cat in\n")
	edge := state.LookupNode("out").InEdge

	status.PlanHasTotalEdges(2)
	status.BuildStarted()
	status.BuildEdgeStarted(edge, 0)
	status.BuildEdgeFinished(edge, 0, true, "")
	if got := status.FormatProgressStatus("%p", 0); got != " 50%" {
		t.Fatal(got)
	}
}
