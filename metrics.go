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
	"time"
)

// A single metric we're tracking, like "depfile load time".
type metric struct {
	name  string
	count int
	sum   time.Duration
}

// Metrics collects timing stats for -d stats.
type Metrics struct {
	metrics []*metric
	byName  map[string]*metric
}

// gMetrics is nil unless -d stats was passed.
var gMetrics *Metrics

func NewMetrics() *Metrics {
	return &Metrics{byName: map[string]*metric{}}
}

// metricRecord accumulates the duration of a code path into the named
// metric. Use as: defer metricRecord(".ninja parse")().
func metricRecord(name string) func() {
	if gMetrics == nil {
		return func() {}
	}
	m := gMetrics.byName[name]
	if m == nil {
		m = &metric{name: name}
		gMetrics.byName[name] = m
		gMetrics.metrics = append(gMetrics.metrics, m)
	}
	start := time.Now()
	return func() {
		m.count++
		m.sum += time.Since(start)
	}
}

// Report prints a summary report to stdout.
func (m *Metrics) Report() {
	width := len("metric")
	for _, i := range m.metrics {
		if len(i.name) > width {
			width = len(i.name)
		}
	}
	fmt.Printf("%-*s\t%-6s\t%-9s\t%s\n", width, "metric", "count", "avg (us)", "total (ms)")
	for _, i := range m.metrics {
		total := float64(i.sum.Microseconds()) / 1000.
		avg := float64(i.sum.Microseconds()) / float64(i.count)
		fmt.Printf("%-*s\t%-6d\t%-8.1f\t%.1f\n", width, i.name, i.count, avg, total)
	}
}

// GetTimeMillis returns the current time relative to some epoch; only useful
// for measuring elapsed time.
func GetTimeMillis() int64 {
	return time.Now().UnixNano() / int64(time.Millisecond)
}
