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
	"strings"
)

// ExistenceStatus tracks whether a Node's file has been examined yet.
type ExistenceStatus int32

const (
	// The file hasn't been examined.
	ExistenceStatusUnknown ExistenceStatus = iota
	// The file doesn't exist. MTime will be the latest mtime of its
	// dependencies.
	ExistenceStatusMissing
	// The path is an actual file. MTime will be the file's mtime.
	ExistenceStatusExists
)

// Node is a node in the dependency graph: a file, whether it's dirty, its
// mtime, and the edges using it.
type Node struct {
	Path string

	// Bits set starting from lowest for backslashes that were normalized to
	// forward slashes by CanonicalizePathBits.
	SlashBits uint64

	// Possible values of MTime:
	//   -1: file hasn't been examined
	//   0:  we looked, and file doesn't exist
	//   >0: actual file's mtime, or the latest mtime of its dependencies if
	//       it doesn't exist
	MTime TimeStamp

	Exists ExistenceStatus

	// Dirty is true when the underlying file is out-of-date.
	// But note that Edge.OutputsReady is also used in judging which edges to
	// build.
	Dirty bool

	// The Edge that produces this Node, or nil when there is no known edge
	// to produce it.
	InEdge *Edge

	// All Edges that use this Node as an input.
	OutEdges []*Edge

	// A dense integer id, assigned and used by DepsLog.
	ID int32
}

// Stat stats the file and records the result.
func (n *Node) Stat(di DiskInterface) error {
	defer metricRecord("node stat")()
	mtime, err := di.Stat(n.Path)
	n.MTime = mtime
	if err != nil {
		return err
	}
	if mtime != 0 {
		n.Exists = ExistenceStatusExists
	} else {
		n.Exists = ExistenceStatusMissing
	}
	return nil
}

// statIfNecessary stats the file only if it hasn't been stat'ed yet.
func (n *Node) statIfNecessary(di DiskInterface) error {
	if n.statusKnown() {
		return nil
	}
	return n.Stat(di)
}

func (n *Node) exists() bool {
	return n.Exists == ExistenceStatusExists
}

func (n *Node) statusKnown() bool {
	return n.Exists != ExistenceStatusUnknown
}

// markMissing marks the Node as already-stat'ed and missing.
func (n *Node) markMissing() {
	if n.MTime == -1 {
		n.MTime = 0
	}
	n.Exists = ExistenceStatusMissing
}

// resetState marks the node as not-yet-stat'ed and not dirty.
func (n *Node) resetState() {
	n.MTime = -1
	n.Exists = ExistenceStatusUnknown
	n.Dirty = false
}

// UpdatePhonyMtime gives a missing phony output the latest mtime of its
// dependencies, so that dependents comparing against it see through it.
func (n *Node) UpdatePhonyMtime(mtime TimeStamp) {
	if !n.exists() {
		if mtime > n.MTime {
			n.MTime = mtime
		}
	}
}

// PathDecanonicalized returns Path with SlashBits applied.
func (n *Node) PathDecanonicalized() string {
	return PathDecanonicalized(n.Path, n.SlashBits)
}

// Dump prints the node and its dependents, for debugging.
func (n *Node) Dump(prefix string) {
	s := "clean"
	if n.Dirty {
		s = "dirty"
	}
	if !n.statusKnown() {
		s = "unknown"
	}
	fmt.Printf("%s <%s %p> mtime: %d (%s), %s, ", prefix, n.Path, n, n.MTime, s, boolString(n.InEdge != nil, "in-edge", "no in-edge"))
	fmt.Printf("out edges:\n")
	for _, e := range n.OutEdges {
		e.Dump(" +- ")
	}
}

func boolString(b bool, t, f string) string {
	if b {
		return t
	}
	return f
}

type visitMark int32

const (
	visitNone visitMark = iota
	visitInStack
	visitDone
)

// Edge is an edge in the dependency graph; it links Nodes using a Rule.
type Edge struct {
	Rule *Rule
	Pool *Pool

	// There are three types of inputs.
	// 1) explicit deps, which show up as $in on the command line;
	// 2) implicit deps, which the target depends on implicitly (e.g. C
	//    headers), and changes in them cause the target to rebuild;
	// 3) order-only deps, which are needed before the target builds but
	//    which don't cause the target to rebuild.
	// These are stored in Inputs in that order, with counts of #2 and #3
	// kept for accessing the subsets.
	Inputs        []*Node
	ImplicitDeps  int32
	OrderOnlyDeps int32

	// There are two types of outputs.
	// 1) explicit outs, which show up as $out on the command line;
	// 2) implicit outs, which the target generates but are not part of $out.
	// Stored in Outputs in that order with a count of #2.
	Outputs      []*Node
	ImplicitOuts int32

	Env *BindingEnv

	// A dense identifier in edge creation order.
	ID int32

	mark         visitMark
	OutputsReady bool
	DepsLoaded   bool
	DepsMissing  bool
}

func (e *Edge) weight() int {
	return 1
}

func (e *Edge) isImplicit(index int) bool {
	return index >= len(e.Inputs)-int(e.OrderOnlyDeps)-int(e.ImplicitDeps) && !e.isOrderOnly(index)
}

func (e *Edge) isOrderOnly(index int) bool {
	return index >= len(e.Inputs)-int(e.OrderOnlyDeps)
}

func (e *Edge) isImplicitOut(index int) bool {
	return index >= len(e.Outputs)-int(e.ImplicitOuts)
}

// IsPhony reports whether the edge uses the reserved phony rule; phony edges
// run no command.
func (e *Edge) IsPhony() bool {
	return e.Rule == PhonyRule
}

// AllInputsReady reports whether every input's producing edge has finished.
func (e *Edge) AllInputsReady() bool {
	for _, i := range e.Inputs {
		if i.InEdge != nil && !i.InEdge.OutputsReady {
			return false
		}
	}
	return true
}

// maybePhonycycleDiagnostic reports whether this edge is the shape CMake
// 2.8.12.x wrote for self-referencing phony statements.
func (e *Edge) maybePhonycycleDiagnostic() bool {
	// CMake-style phony cycles are "build a: phony a", a phony edge with one
	// output and one untyped input.
	return e.IsPhony() && len(e.Outputs) == 1 && e.ImplicitOuts == 0 &&
		e.ImplicitDeps == 0 && e.OrderOnlyDeps == 0
}

type escapeKind int32

const (
	shellEscape escapeKind = iota
	doNotEscape
)

// edgeEnv is an Env for an Edge, providing $in and $out.
type edgeEnv struct {
	lookups     []string
	edge        *Edge
	escapeInOut escapeKind
	recursive   bool
}

func (e *edgeEnv) LookupVariable(v string) string {
	edge := e.edge
	switch v {
	case "in", "in_newline":
		explicit := len(edge.Inputs) - int(edge.ImplicitDeps) - int(edge.OrderOnlyDeps)
		sep := byte(' ')
		if v == "in_newline" {
			sep = '\n'
		}
		return e.makePathList(edge.Inputs[:explicit], sep)
	case "out":
		explicit := len(edge.Outputs) - int(edge.ImplicitOuts)
		return e.makePathList(edge.Outputs[:explicit], ' ')
	}

	// Rule bindings may reference other rule bindings; keep the lookup chain
	// to reject cycles.
	if e.recursive {
		for _, l := range e.lookups {
			if l == v {
				cycle := strings.Join(e.lookups, " -> ") + " -> " + v
				fatalf("cycle in rule variables: %s", cycle)
			}
		}
	}
	eval := edge.Rule.Bindings[v]
	if eval != nil {
		e.lookups = append(e.lookups, v)
	}
	e.recursive = true
	return edge.Env.lookupWithFallback(v, eval, e)
}

// makePathList joins the nodes' presentation paths with sep, shell-escaped
// unless the env was built with doNotEscape.
func (e *edgeEnv) makePathList(paths []*Node, sep byte) string {
	var b strings.Builder
	for i, n := range paths {
		if i != 0 {
			b.WriteByte(sep)
		}
		path := n.PathDecanonicalized()
		if e.escapeInOut == shellEscape {
			path = escapePathForCommand(path)
		}
		b.WriteString(path)
	}
	return b.String()
}

// EvaluateCommand expands the edge's command. If inclRspFile is set, the
// response file content is appended so that command hashes change when it
// does.
func (e *Edge) EvaluateCommand(inclRspFile bool) string {
	command := e.GetBinding("command")
	if inclRspFile {
		if rspfileContent := e.GetBinding("rspfile_content"); rspfileContent != "" {
			command += ";rspfile=" + rspfileContent
		}
	}
	return command
}

// GetBinding returns the shell-escaped value of key for this edge.
func (e *Edge) GetBinding(key string) string {
	env := edgeEnv{edge: e, escapeInOut: shellEscape}
	return env.LookupVariable(key)
}

// GetBindingBool reports whether the binding is set to a non-empty value.
func (e *Edge) GetBindingBool(key string) bool {
	return e.GetBinding(key) != ""
}

// GetUnescapedDepfile returns the depfile path, unescaped because it is not
// passed to a shell.
func (e *Edge) GetUnescapedDepfile() string {
	env := edgeEnv{edge: e, escapeInOut: doNotEscape}
	return env.LookupVariable("depfile")
}

// GetUnescapedRspfile returns the rspfile path, unescaped because it is not
// passed to a shell.
func (e *Edge) GetUnescapedRspfile() string {
	env := edgeEnv{edge: e, escapeInOut: doNotEscape}
	return env.LookupVariable("rspfile")
}

func (e *Edge) useConsole() bool {
	return e.Pool != nil && e.Pool.Name == "console"
}

// Dump prints the edge, for debugging.
func (e *Edge) Dump(prefix string) {
	fmt.Printf("%s[ ", prefix)
	for _, i := range e.Inputs {
		if i != nil {
			fmt.Printf("%s ", i.Path)
		}
	}
	fmt.Printf("--%s-> ", e.Rule.Name)
	for _, o := range e.Outputs {
		fmt.Printf("%s ", o.Path)
	}
	if e.Pool != nil {
		if e.Pool.Name != "" {
			fmt.Printf("(in pool '%s')", e.Pool.Name)
		}
	} else {
		fmt.Printf("(null pool?)")
	}
	fmt.Printf("] %p\n", e)
}

// implicitDepLoader loads implicit dependencies, as referenced via the
// "depfile" attribute or the deps log.
type implicitDepLoader struct {
	state         *State
	diskInterface DiskInterface
	depsLog       *DepsLog
}

// loadDeps loads implicit dependencies for edge. Returns false without an
// error when dependency information is missing and the edge must rebuild to
// regenerate it.
func (l *implicitDepLoader) loadDeps(edge *Edge) (bool, error) {
	depsType := edge.GetBinding("deps")
	if depsType != "" {
		return l.loadDepsFromLog(edge), nil
	}
	if depfile := edge.GetUnescapedDepfile(); depfile != "" {
		return l.loadDepFile(edge, depfile)
	}
	return true, nil
}

// loadDepsFromLog loads implicit dependencies for edge from the deps log.
// Returns false when the information is missing or stale.
func (l *implicitDepLoader) loadDepsFromLog(edge *Edge) bool {
	// NOTE: deps are only supported for single-output edges.
	output := edge.Outputs[0]
	var deps *Deps
	if l.depsLog != nil {
		deps = l.depsLog.GetDeps(output)
	}
	if deps == nil {
		explain("deps for '%s' are missing", output.Path)
		return false
	}

	// Deps are invalid if the output is newer than the deps.
	if output.MTime > deps.MTime {
		explain("stored deps info out of date for '%s' (%d vs %d)", output.Path, deps.MTime, output.MTime)
		return false
	}

	l.insertImplicitDeps(edge, deps.Nodes)
	return true
}

// loadDepFile parses a depfile and fills in the edge's implicit inputs.
// Returns false without an error when the depfile is missing.
func (l *implicitDepLoader) loadDepFile(edge *Edge, path string) (bool, error) {
	defer metricRecord("depfile load")()
	content, err := l.diskInterface.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			explain("depfile '%s' is missing", path)
			return false, nil
		}
		return false, fmt.Errorf("loading '%s': %w", path, err)
	}
	if len(content) == 1 {
		// Just the terminating zero byte: treat an empty depfile like a
		// missing one and rebuild to regenerate it.
		explain("depfile '%s' is empty", path)
		return false, nil
	}

	depfile := DepfileParser{}
	if err := depfile.Parse(content); err != nil {
		return false, fmt.Errorf("%s: %s", path, err)
	}

	if len(depfile.outs) == 0 {
		return false, fmt.Errorf("%s: no outputs declared", path)
	}

	// Check that this depfile matches the edge's output, if able.
	firstOutput := edge.Outputs[0]
	primaryOut := CanonicalizePath(depfile.outs[0])
	if primaryOut != firstOutput.Path {
		explain("expected depfile '%s' to mention '%s', got '%s'", path, firstOutput.Path, primaryOut)
		return false, nil
	}
	// Secondary outs are allowed but they must name the same node.
	for _, o := range depfile.outs[1:] {
		if CanonicalizePath(o) != firstOutput.Path {
			return false, fmt.Errorf("%s: depfile mentions '%s' as an output, but no such output was declared", path, o)
		}
	}

	nodes := make([]*Node, 0, len(depfile.ins))
	for _, i := range depfile.ins {
		nodes = append(nodes, l.state.GetNode(CanonicalizePathBits(i)))
	}
	l.insertImplicitDeps(edge, nodes)
	return true, nil
}

// insertImplicitDeps splices nodes in as implicit inputs, before the
// order-only section, and wires the reverse edges.
func (l *implicitDepLoader) insertImplicitDeps(edge *Edge, nodes []*Node) {
	idx := len(edge.Inputs) - int(edge.OrderOnlyDeps)
	inputs := make([]*Node, 0, len(edge.Inputs)+len(nodes))
	inputs = append(inputs, edge.Inputs[:idx]...)
	inputs = append(inputs, nodes...)
	inputs = append(inputs, edge.Inputs[idx:]...)
	edge.Inputs = inputs
	edge.ImplicitDeps += int32(len(nodes))
	for _, n := range nodes {
		n.OutEdges = append(n.OutEdges, edge)
		l.createPhonyInEdge(n)
	}
}

// createPhonyInEdge gives a dep-loader-discovered node with no producing
// edge a phony one, so that a since-deleted header marks its dependents
// dirty instead of failing admission with "no known rule".
func (l *implicitDepLoader) createPhonyInEdge(node *Node) {
	if node.InEdge != nil {
		return
	}
	phonyEdge := l.state.addEdge(PhonyRule)
	node.InEdge = phonyEdge
	phonyEdge.Outputs = append(phonyEdge.Outputs, node)

	// RecomputeDirty might not be called for phonyEdge if a previous call
	// had already stat'ed the file, so mark the outputs ready explicitly.
	phonyEdge.OutputsReady = true
}

// DependencyScan manages the process of scanning the files in a graph and
// updating the dirty/OutputsReady state of all the nodes and edges.
type DependencyScan struct {
	buildLog      *BuildLog
	diskInterface DiskInterface
	depLoader     implicitDepLoader
}

func NewDependencyScan(state *State, buildLog *BuildLog, depsLog *DepsLog, di DiskInterface) DependencyScan {
	return DependencyScan{
		buildLog:      buildLog,
		diskInterface: di,
		depLoader: implicitDepLoader{
			state:         state,
			diskInterface: di,
			depsLog:       depsLog,
		},
	}
}

func (d *DependencyScan) depsLog() *DepsLog {
	return d.depLoader.depsLog
}

// RecomputeDirty updates the |Dirty| state of the given node by transitively
// inspecting the graph and on-disk state. The scan is idempotent: rerunning
// it after a successful build declares every reachable edge clean.
func (d *DependencyScan) RecomputeDirty(node *Node) error {
	var stack []*Node
	return d.recomputeNodeDirty(node, &stack)
}

func (d *DependencyScan) recomputeNodeDirty(node *Node, stack *[]*Node) error {
	edge := node.InEdge
	if edge == nil {
		// If we already visited this leaf node then we are done.
		if node.statusKnown() {
			return nil
		}
		// This node has no in-edge; it is dirty if it is missing.
		if err := node.Stat(d.diskInterface); err != nil {
			return err
		}
		if !node.exists() {
			explain("%s has no in-edge and is missing", node.Path)
		}
		node.Dirty = !node.exists()
		return nil
	}

	// If we already finished this edge then we are done.
	if edge.mark == visitDone {
		return nil
	}

	// If we encountered this edge earlier in the call stack we have a cycle.
	if err := d.verifyDAG(node, *stack); err != nil {
		return err
	}

	// Mark the edge temporarily while in the call stack.
	edge.mark = visitInStack
	*stack = append(*stack, node)

	dirty := false
	edge.OutputsReady = true
	edge.DepsMissing = false

	// Load output mtimes so we can compare them against the most recent
	// input below.
	for _, o := range edge.Outputs {
		if err := o.statIfNecessary(d.diskInterface); err != nil {
			return err
		}
	}

	if !edge.DepsLoaded {
		// This is our first encounter with this edge.  Load discovered deps.
		edge.DepsLoaded = true
		found, err := d.depLoader.loadDeps(edge)
		if err != nil {
			return err
		}
		if !found {
			// Failed to load dependency info: rebuild to regenerate it.
			// loadDeps() already explained why.
			dirty = true
			edge.DepsMissing = true
		}
	}

	// Visit all inputs; we're dirty if any of the inputs are dirty.
	var mostRecentInput *Node
	for index, in := range edge.Inputs {
		if err := d.recomputeNodeDirty(in, stack); err != nil {
			return err
		}

		// If an input is not ready, neither are our outputs.
		if inEdge := in.InEdge; inEdge != nil {
			if !inEdge.OutputsReady {
				edge.OutputsReady = false
			}
		}

		if !edge.isOrderOnly(index) {
			// If a regular input is dirty (or missing), we're dirty.
			// Otherwise consider mtime.
			if in.Dirty {
				explain("%s is dirty", in.Path)
				dirty = true
			} else {
				if mostRecentInput == nil || in.MTime > mostRecentInput.MTime {
					mostRecentInput = in
				}
			}
		}
	}

	// We may also be dirty due to output state: missing outputs, out of
	// date outputs, etc.  Visit all outputs and determine whether they're
	// dirty.
	if !dirty {
		var err error
		if dirty, err = d.RecomputeOutputsDirty(edge, mostRecentInput); err != nil {
			return err
		}
	}

	// Finally, visit each output and update their dirty state if necessary.
	if dirty {
		for _, o := range edge.Outputs {
			o.Dirty = true
		}
	}

	// If an edge is dirty, its outputs are normally not ready.  (It's
	// possible to be clean but still not be ready in the presence of
	// order-only inputs.)
	// But phony edges with no inputs have nothing to do, so are always
	// ready.
	if dirty && !(edge.IsPhony() && len(edge.Inputs) == 0) {
		edge.OutputsReady = false
	}

	// Mark the edge as finished during this walk now that it will no longer
	// be in the call stack.
	edge.mark = visitDone
	if (*stack)[len(*stack)-1] != node {
		panic("unbalanced dependency scan stack")
	}
	*stack = (*stack)[:len(*stack)-1]
	return nil
}

// verifyDAG fails with a cycle diagnostic when node's producing edge is
// already on the traversal stack.
func (d *DependencyScan) verifyDAG(node *Node, stack []*Node) error {
	edge := node.InEdge

	// If we have no temporary mark on the edge then we do not yet have a
	// cycle.
	if edge.mark != visitInStack {
		return nil
	}

	// We have this edge earlier in the call stack.  Find it.
	start := 0
	for start < len(stack) && stack[start].InEdge != edge {
		start++
	}

	// Make the cycle clear by reporting its start as the node at its end
	// instead of some other output of the starting edge.  For example,
	// running 'nobu b' on
	//   build a b: cat c
	//   build c: cat a
	// should report a -> c -> a instead of b -> c -> a.
	stack[start] = node

	var b strings.Builder
	b.WriteString("dependency cycle: ")
	for _, n := range stack[start:] {
		b.WriteString(n.Path)
		b.WriteString(" -> ")
	}
	b.WriteString(stack[start].Path)

	if start+1 == len(stack) && edge.maybePhonycycleDiagnostic() {
		// The manifest parser would have filtered out the self-referencing
		// input if it were not configured to allow the error.
		b.WriteString(" [-w phonycycle=err]")
	}
	return errors.New(b.String())
}

// RecomputeOutputsDirty recomputes whether any output of the edge is dirty,
// given the most recent input.
func (d *DependencyScan) RecomputeOutputsDirty(edge *Edge, mostRecentInput *Node) (bool, error) {
	command := edge.EvaluateCommand(true)
	for _, o := range edge.Outputs {
		if d.recomputeOutputDirty(edge, mostRecentInput, command, o) {
			return true, nil
		}
	}
	return false, nil
}

// recomputeOutputDirty recomputes whether a given single output should be
// marked dirty.
func (d *DependencyScan) recomputeOutputDirty(edge *Edge, mostRecentInput *Node, command string, output *Node) bool {
	if edge.IsPhony() {
		// Phony edges don't write any output.  Outputs are only dirty if
		// there are no inputs and we're missing the output.
		if len(edge.Inputs) == 0 && !output.exists() {
			explain("output %s of phony edge with no inputs doesn't exist", output.Path)
			return true
		}

		// Update the mtime with the newest input. Dependents can thus call
		// mtime on the fake node and get the latest mtime of the
		// dependencies.
		if mostRecentInput != nil {
			output.UpdatePhonyMtime(mostRecentInput.MTime)
		}

		// Phony edges are clean, nothing to do.
		return false
	}

	// Dirty if we're missing the output.
	if !output.exists() {
		explain("output %s doesn't exist", output.Path)
		return true
	}

	var entry *LogEntry

	// Dirty if the output is older than the input.
	if mostRecentInput != nil && output.MTime < mostRecentInput.MTime {
		outputMtime := output.MTime

		// If this is a restat rule, we may have cleaned the output in a
		// previous run and stored the most recent input mtime in the build
		// log.  Use that mtime instead, so that the file will only be
		// considered dirty if an input was modified since the previous run.
		usedRestat := false
		if edge.GetBindingBool("restat") && d.buildLog != nil {
			if entry = d.buildLog.LookupByOutput(output.Path); entry != nil {
				outputMtime = entry.MTime
				usedRestat = true
			}
		}

		if outputMtime < mostRecentInput.MTime {
			s := ""
			if usedRestat {
				s = "restat of "
			}
			explain("%soutput %s older than most recent input %s (%d vs %d)", s, output.Path, mostRecentInput.Path, outputMtime, mostRecentInput.MTime)
			return true
		}
	}

	if d.buildLog != nil {
		generator := edge.GetBindingBool("generator")
		if entry == nil {
			entry = d.buildLog.LookupByOutput(output.Path)
		}
		if entry != nil {
			if !generator && HashCommand(command) != entry.CommandHash {
				// May also be dirty due to the command changing since the
				// last build.  But if this is a generator rule, the command
				// changing does not make us dirty.
				explain("command line changed for %s", output.Path)
				return true
			}
			if mostRecentInput != nil && entry.MTime < mostRecentInput.MTime {
				// May also be dirty due to the mtime in the log being older
				// than the mtime of the most recent input.  This can occur
				// even when the mtime on disk is newer if a previous run
				// wrote to the output file but exited with an error or was
				// interrupted.
				explain("recorded mtime of %s older than most recent input %s (%d vs %d)", output.Path, mostRecentInput.Path, entry.MTime, mostRecentInput.MTime)
				return true
			}
		}
		if entry == nil && !generator {
			explain("command line not found in log for %s", output.Path)
			return true
		}
	}

	return false
}
