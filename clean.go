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
	"errors"
	"fmt"
	"io/fs"
)

// Cleaner removes build artifacts: outputs, depfiles and rspfiles.
type Cleaner struct {
	state             *State
	config            *BuildConfig
	diskInterface     DiskInterface
	removed           map[string]struct{}
	cleaned           map[*Node]struct{}
	cleanedFilesCount int
	status            int
}

func NewCleaner(state *State, config *BuildConfig, diskInterface DiskInterface) *Cleaner {
	return &Cleaner{
		state:         state,
		config:        config,
		diskInterface: diskInterface,
		removed:       map[string]struct{}{},
		cleaned:       map[*Node]struct{}{},
	}
}

func (c *Cleaner) isVerbose() bool {
	return c.config.Verbosity != Quiet &&
		(c.config.Verbosity == Verbose || c.config.DryRun)
}

func (c *Cleaner) fileExists(path string) bool {
	mtime, err := c.diskInterface.Stat(path)
	if err != nil {
		errorf("%s", err)
	}
	// Treat Stat() errors as "file does not exist".
	return mtime > 0
}

func (c *Cleaner) report(path string) {
	c.cleanedFilesCount++
	if c.isVerbose() {
		fmt.Printf("Remove %s\n", path)
	}
}

// remove removes the given path, at most once, honoring dry run.
func (c *Cleaner) remove(path string) {
	if _, ok := c.removed[path]; ok {
		return
	}
	c.removed[path] = struct{}{}
	if c.config.DryRun {
		if c.fileExists(path) {
			c.report(path)
		}
		return
	}
	if err := c.diskInterface.RemoveFile(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			errorf("%s", err)
			c.status = 1
		}
		return
	}
	c.report(path)
}

func (c *Cleaner) removeEdgeFiles(edge *Edge) {
	if depfile := edge.GetUnescapedDepfile(); depfile != "" {
		c.remove(depfile)
	}
	if rspfile := edge.GetUnescapedRspfile(); rspfile != "" {
		c.remove(rspfile)
	}
}

func (c *Cleaner) printHeader() {
	if c.config.Verbosity == Quiet {
		return
	}
	if c.isVerbose() {
		fmt.Printf("Cleaning...\n")
	} else {
		fmt.Printf("Cleaning... ")
	}
}

func (c *Cleaner) printFooter() {
	if c.config.Verbosity == Quiet {
		return
	}
	fmt.Printf("%d files.\n", c.cleanedFilesCount)
}

// CleanAll removes all built files. Generator outputs survive unless
// generator is set.
func (c *Cleaner) CleanAll(generator bool) int {
	c.reset()
	c.printHeader()
	for _, e := range c.state.Edges {
		// Do not try to remove phony targets.
		if e.IsPhony() {
			continue
		}
		// Do not remove generator's files unless generator specified.
		if !generator && e.GetBindingBool("generator") {
			continue
		}
		for _, outNode := range e.Outputs {
			c.remove(outNode.Path)
		}
		c.removeEdgeFiles(e)
	}
	c.printFooter()
	return c.status
}

// CleanDead removes built files no longer produced by the manifest, based
// on the build log entries.
func (c *Cleaner) CleanDead(entries map[string]*LogEntry) int {
	c.reset()
	c.printHeader()
	for _, path := range sortedEntryPaths(entries) {
		n := c.state.LookupNode(path)
		// Detecting stale outputs works as follows:
		//
		// - If it has no Node, it is not in the build graph, or the deps
		//   log anymore, hence is stale.
		//
		// - If it isn't an output or input for any edge, it comes from a
		//   stale entry in the deps log, but is no longer referenced from
		//   the build graph.
		if n == nil || (n.InEdge == nil && len(n.OutEdges) == 0) {
			c.remove(path)
		}
	}
	c.printFooter()
	return c.status
}

func (c *Cleaner) doCleanTarget(target *Node) {
	if e := target.InEdge; e != nil {
		// Do not try to remove phony targets.
		if !e.IsPhony() {
			c.remove(target.Path)
			c.removeEdgeFiles(e)
		}
		for _, next := range e.Inputs {
			if _, ok := c.cleaned[next]; !ok {
				c.doCleanTarget(next)
			}
		}
	}
	c.cleaned[target] = struct{}{}
}

// CleanTargets removes the given targets and anything they transitively
// depend on.
func (c *Cleaner) CleanTargets(targets []string) int {
	c.reset()
	c.printHeader()
	for _, targetName := range targets {
		if targetName == "" {
			errorf("failed to canonicalize '': empty path")
			c.status = 1
			continue
		}
		targetName = CanonicalizePath(targetName)
		if target := c.state.LookupNode(targetName); target != nil {
			if c.isVerbose() {
				fmt.Printf("Target %s\n", targetName)
			}
			c.doCleanTarget(target)
		} else {
			errorf("unknown target '%s'", targetName)
			c.status = 1
		}
	}
	c.printFooter()
	return c.status
}

func (c *Cleaner) doCleanRule(rule *Rule) {
	for _, e := range c.state.Edges {
		if e.Rule.Name == rule.Name {
			for _, outNode := range e.Outputs {
				c.remove(outNode.Path)
			}
			c.removeEdgeFiles(e)
		}
	}
}

// CleanRules removes all files built with the given rules.
func (c *Cleaner) CleanRules(rules []string) int {
	c.reset()
	c.printHeader()
	for _, ruleName := range rules {
		if rule := c.state.Bindings.LookupRule(ruleName); rule != nil {
			if c.isVerbose() {
				fmt.Printf("Rule %s\n", ruleName)
			}
			c.doCleanRule(rule)
		} else {
			errorf("unknown rule '%s'", ruleName)
			c.status = 1
		}
	}
	c.printFooter()
	return c.status
}

func (c *Cleaner) reset() {
	c.status = 0
	c.cleanedFilesCount = 0
	c.removed = map[string]struct{}{}
	c.cleaned = map[*Node]struct{}{}
}
