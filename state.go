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
	"sort"
)

// Pool is a named concurrency bucket for delayed edges.
//
// Pools are scoped to a State. Edges within a State share Pools. A Pool
// keeps a count of the total weight of the currently scheduled edges. When
// the Plan attempts to schedule an Edge that would push the total weight
// over the Pool's depth, the Pool enqueues the Edge instead. Queued edges
// are relinquished in FIFO order as scheduled work completes.
type Pool struct {
	Name string

	// A depth of 0 is infinite.
	Depth int

	// Total of the weights of the edges currently scheduled in the Plan.
	currentUse int

	delayed []*Edge
}

func NewPool(name string, depth int) *Pool {
	return &Pool{Name: name, Depth: depth}
}

// ShouldDelayEdge reports whether the pool might delay an edge.
func (p *Pool) ShouldDelayEdge() bool {
	return p.Depth != 0
}

// EdgeScheduled informs the pool that edge is committed to run and counts
// against its depth.
func (p *Pool) EdgeScheduled(edge *Edge) {
	if p.Depth != 0 {
		p.currentUse += edge.weight()
	}
}

// EdgeFinished informs the pool that edge is no longer runnable and
// relinquishes its resources.
func (p *Pool) EdgeFinished(edge *Edge) {
	if p.Depth != 0 {
		p.currentUse -= edge.weight()
	}
}

// DelayEdge enqueues edge to run once capacity frees up.
func (p *Pool) DelayEdge(edge *Edge) {
	if p.Depth == 0 {
		panic("DelayEdge on the unbounded pool")
	}
	p.delayed = append(p.delayed, edge)
}

// RetrieveReadyEdges moves as many delayed edges as fit into the ready
// queue, in the order they were delayed.
func (p *Pool) RetrieveReadyEdges(readyQueue *[]*Edge) {
	n := 0
	for _, edge := range p.delayed {
		if p.currentUse+edge.weight() > p.Depth {
			break
		}
		*readyQueue = append(*readyQueue, edge)
		p.EdgeScheduled(edge)
		n++
	}
	p.delayed = p.delayed[n:]
}

// Dump prints the Pool and its delayed edges, for debugging.
func (p *Pool) Dump() {
	fmt.Printf("%s (%d/%d) ->\n", p.Name, p.currentUse, p.Depth)
	for _, e := range p.delayed {
		fmt.Printf("\t")
		e.Dump("")
	}
}

// PhonyRule is the reserved rule for phony edges; they produce no process.
var PhonyRule = NewRule("phony")

// State is the global state (file status) for a single run.
type State struct {
	// Mapping of canonical path -> Node.
	Paths map[string]*Node

	// All the pools used in the graph.
	Pools map[string]*Pool

	// All the edges of the graph.
	Edges []*Edge

	Bindings *BindingEnv
	Defaults []*Node
}

func NewState() State {
	s := State{
		Paths:    map[string]*Node{},
		Pools:    map[string]*Pool{},
		Bindings: NewBindingEnv(nil),
	}
	s.Bindings.Rules[PhonyRule.Name] = PhonyRule
	// The default pool and the reserved console pool.
	s.Pools[""] = NewPool("", 0)
	s.Pools["console"] = NewPool("console", 1)
	return s
}

func (s *State) addEdge(rule *Rule) *Edge {
	edge := &Edge{
		Rule: rule,
		Pool: s.Pools[""],
		Env:  s.Bindings,
		ID:   int32(len(s.Edges)),
	}
	s.Edges = append(s.Edges, edge)
	return edge
}

// GetNode returns the node for path, creating it if necessary.
func (s *State) GetNode(path string, slashBits uint64) *Node {
	if node := s.Paths[path]; node != nil {
		return node
	}
	node := &Node{
		Path:      path,
		SlashBits: slashBits,
		MTime:     -1,
		ID:        -1,
	}
	s.Paths[path] = node
	return node
}

// LookupNode returns the node for path, or nil.
func (s *State) LookupNode(path string) *Node {
	return s.Paths[path]
}

// SpellcheckNode returns the node closest in spelling to path, or nil.
func (s *State) SpellcheckNode(path string) *Node {
	const allowReplacements = true
	const maxValidEditDistance = 3

	// Walk the paths sorted so the suggestion is stable.
	paths := make([]string, 0, len(s.Paths))
	for p := range s.Paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	minDistance := maxValidEditDistance + 1
	var result *Node
	for _, p := range paths {
		distance := editDistance(p, path, allowReplacements, maxValidEditDistance)
		if distance < minDistance {
			minDistance = distance
			result = s.Paths[p]
		}
	}
	return result
}

func (s *State) addIn(edge *Edge, path string, slashBits uint64) {
	node := s.GetNode(path, slashBits)
	edge.Inputs = append(edge.Inputs, node)
	node.OutEdges = append(node.OutEdges, edge)
}

func (s *State) addOut(edge *Edge, path string, slashBits uint64) bool {
	node := s.GetNode(path, slashBits)
	if node.InEdge != nil {
		return false
	}
	edge.Outputs = append(edge.Outputs, node)
	node.InEdge = edge
	return true
}

func (s *State) addDefault(path string) error {
	node := s.LookupNode(path)
	if node == nil {
		return fmt.Errorf("unknown target '%s'", path)
	}
	s.Defaults = append(s.Defaults, node)
	return nil
}

// RootNodes returns the root node(s) of the graph (nodes with no output
// edges).
func (s *State) RootNodes() ([]*Node, error) {
	var rootNodes []*Node
	for _, e := range s.Edges {
		for _, out := range e.Outputs {
			if len(out.OutEdges) == 0 {
				rootNodes = append(rootNodes, out)
			}
		}
	}
	if len(s.Edges) != 0 && len(rootNodes) == 0 {
		return nil, errors.New("could not determine root nodes of build graph")
	}
	return rootNodes, nil
}

// DefaultNodes returns the nodes named by default statements, or the root
// nodes when there are none.
func (s *State) DefaultNodes() ([]*Node, error) {
	if len(s.Defaults) == 0 {
		return s.RootNodes()
	}
	return s.Defaults, nil
}

// Reset keeps all nodes and edges but restores them to the state where the
// disk hasn't been examined yet.
func (s *State) Reset() {
	for _, node := range s.Paths {
		node.resetState()
	}
	for _, e := range s.Edges {
		e.OutputsReady = false
		e.DepsLoaded = false
		e.mark = visitNone
	}
}

// Dump prints the nodes and pools, for debugging.
func (s *State) Dump() {
	paths := make([]string, 0, len(s.Paths))
	for p := range s.Paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		node := s.Paths[p]
		state := "unknown"
		if node.statusKnown() {
			state = "clean"
			if node.Dirty {
				state = "dirty"
			}
		}
		fmt.Printf("%s %s [id:%d]\n", node.Path, state, node.ID)
	}
	if len(s.Pools) != 0 {
		fmt.Printf("resource_pools:\n")
		names := make([]string, 0, len(s.Pools))
		for name := range s.Pools {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if name != "" {
				s.Pools[name].Dump()
			}
		}
	}
}
