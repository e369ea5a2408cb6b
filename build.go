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

// Want enumerates the plan's intent for an edge.
type Want int32

const (
	// WantNothing means we do not want to build the edge, but we might want
	// to build one of its dependents.
	WantNothing Want = iota
	// WantToStart means we want to build the edge, but have not yet
	// scheduled it.
	WantToStart
	// WantToFinish means we want to build the edge, have scheduled it, and
	// are waiting for it to complete.
	WantToFinish
)

// EdgeResult is how an edge's execution ended.
type EdgeResult int32

const (
	EdgeFailed EdgeResult = iota
	EdgeSucceeded
)

// Plan stores the state of a build plan: what we intend to build, which
// steps we're ready to execute.
type Plan struct {
	// The edges we want to build in this plan. If this map does not contain
	// an entry for an edge, we do not want to build the edge or its
	// dependents. If it does, the Want indicates what we want for the edge.
	want map[*Edge]Want

	// Edges that are ready to run, in scheduling order. Keeping the order
	// deterministic keeps build logs and tests stable.
	ready []*Edge

	// Total number of edges that have commands (not phony).
	commandEdges int

	// Total remaining number of wanted edges.
	wantedEdges int
}

func NewPlan() Plan {
	return Plan{want: map[*Edge]Want{}}
}

// Reset clears the want and ready sets.
func (p *Plan) Reset() {
	p.commandEdges = 0
	p.wantedEdges = 0
	p.want = map[*Edge]Want{}
	p.ready = nil
}

// AddTarget adds a target to the plan, including all its dependencies.
func (p *Plan) AddTarget(target *Node) error {
	return p.addSubTarget(target, nil)
}

func (p *Plan) addSubTarget(node, dependent *Node) error {
	edge := node.InEdge
	if edge == nil { // Leaf node.
		if node.Dirty {
			referenced := ""
			if dependent != nil {
				referenced = ", needed by '" + dependent.Path + "',"
			}
			return fmt.Errorf("'%s'%s missing and no known rule to make it", node.Path, referenced)
		}
		return nil
	}

	if edge.OutputsReady {
		return nil // Don't need to do anything.
	}

	// If an entry in want does not already exist for the edge, create one
	// mapping to WantNothing, indicating that we do not want to build this
	// edge itself.
	want, existed := p.want[edge]
	if !existed {
		p.want[edge] = WantNothing
	}

	// If we do need to build the edge and we haven't already marked it as
	// wanted, mark it now.
	if node.Dirty && want == WantNothing {
		p.want[edge] = WantToStart
		p.edgeWanted(edge)
		if edge.AllInputsReady() {
			p.scheduleWork(edge)
		}
	}

	if existed {
		return nil // We've already processed the inputs.
	}

	for _, i := range edge.Inputs {
		if err := p.addSubTarget(i, node); err != nil {
			return err
		}
	}
	return nil
}

func (p *Plan) edgeWanted(edge *Edge) {
	p.wantedEdges++
	if !edge.IsPhony() {
		p.commandEdges++
	}
}

// FindWork pops a ready edge off the queue of edges to build, or nil if
// there's no work to do.
func (p *Plan) FindWork() *Edge {
	if len(p.ready) == 0 {
		return nil
	}
	edge := p.ready[0]
	p.ready = p.ready[1:]
	return edge
}

// MoreToDo reports whether there's more work to be done.
func (p *Plan) MoreToDo() bool {
	return p.wantedEdges > 0 && p.commandEdges > 0
}

// CommandEdgeCount is the number of edges with commands to run; the
// progress denominator.
func (p *Plan) CommandEdgeCount() int {
	return p.commandEdges
}

// scheduleWork submits a ready edge as a candidate for execution.
//
// The edge may be delayed from running, for example if it's a member of a
// currently-full pool.
func (p *Plan) scheduleWork(edge *Edge) {
	want := p.want[edge]
	if want == WantToFinish {
		// This edge has already been scheduled. We can get here again if an
		// edge and one of its dependencies share an order-only input, or if
		// a node duplicates an out edge. Avoid scheduling the work again.
		return
	}
	if want != WantToStart {
		panic("scheduleWork on an unwanted edge")
	}
	p.want[edge] = WantToFinish

	pool := edge.Pool
	if pool.ShouldDelayEdge() {
		pool.DelayEdge(edge)
		pool.RetrieveReadyEdges(&p.ready)
	} else {
		pool.EdgeScheduled(edge)
		p.ready = append(p.ready, edge)
	}
}

// EdgeFinished marks an edge as done building (whether it succeeded or
// failed) and propagates readiness to dependents on success. On failure the
// want entry stays, so MoreToDo() remains true until the Builder unwinds.
func (p *Plan) EdgeFinished(edge *Edge, result EdgeResult) {
	want, ok := p.want[edge]
	if !ok {
		panic("EdgeFinished on an edge not in the plan")
	}
	directlyWanted := want != WantNothing

	// See if this job frees up any delayed jobs.
	if directlyWanted {
		edge.Pool.EdgeFinished(edge)
	}
	edge.Pool.RetrieveReadyEdges(&p.ready)

	// The rest of this function only applies to successful commands.
	if result != EdgeSucceeded {
		return
	}

	if directlyWanted {
		p.wantedEdges--
	}
	delete(p.want, edge)
	edge.OutputsReady = true

	// Check off any nodes we were waiting for with this edge.
	for _, o := range edge.Outputs {
		p.nodeFinished(o)
	}
}

// nodeFinished updates the plan with the knowledge that the given node is
// up to date.
func (p *Plan) nodeFinished(node *Node) {
	// See if we want any edges from this node.
	for _, oe := range node.OutEdges {
		if _, ok := p.want[oe]; !ok {
			continue
		}
		p.edgeMaybeReady(oe)
	}
}

func (p *Plan) edgeMaybeReady(edge *Edge) {
	if !edge.AllInputsReady() {
		return
	}
	if p.want[edge] != WantNothing {
		p.scheduleWork(edge)
	} else {
		// We do not need to build this edge, but we might need to build one
		// of its dependents.
		p.EdgeFinished(edge, EdgeSucceeded)
	}
}

// CleanNode updates the plan to reflect that node turned out unchanged
// after running a restat edge: wanted downstream edges whose inputs are now
// all clean are recomputed and possibly demoted to WantNothing. This is the
// only place commandEdges can shrink mid-build.
func (p *Plan) CleanNode(scan *DependencyScan, node *Node) error {
	node.Dirty = false

	for _, oe := range node.OutEdges {
		// Don't process edges that we don't actually want.
		want, ok := p.want[oe]
		if !ok || want == WantNothing {
			continue
		}

		// Don't attempt to clean an edge if it failed to load deps.
		if oe.DepsMissing {
			continue
		}

		// If all non-order-only inputs for this edge are now clean, we
		// might have changed the dirty state of the outputs.
		end := len(oe.Inputs) - int(oe.OrderOnlyDeps)
		allClean := true
		for _, i := range oe.Inputs[:end] {
			if i.Dirty {
				allClean = false
				break
			}
		}
		if !allClean {
			continue
		}

		// Recompute the most recent input.
		var mostRecentInput *Node
		for _, i := range oe.Inputs[:end] {
			if mostRecentInput == nil || i.MTime > mostRecentInput.MTime {
				mostRecentInput = i
			}
		}

		// Now, this edge is dirty if any of the outputs are dirty. If the
		// edge isn't dirty, clean the outputs and mark the edge as not
		// wanted.
		outputsDirty, err := scan.RecomputeOutputsDirty(oe, mostRecentInput)
		if err != nil {
			return err
		}
		if !outputsDirty {
			for _, o := range oe.Outputs {
				if err := p.CleanNode(scan, o); err != nil {
					return err
				}
			}

			p.want[oe] = WantNothing
			p.wantedEdges--
			if !oe.IsPhony() {
				p.commandEdges--
			}
		}
	}
	return nil
}

// Dump prints the current state of the plan, for debugging.
func (p *Plan) Dump() {
	fmt.Printf("pending: %d\n", len(p.want))
	for e, w := range p.want {
		if w != WantNothing {
			fmt.Printf("want ")
		}
		e.Dump("")
	}
	fmt.Printf("ready: %d\n", len(p.ready))
}

// Result is the result of waiting for a command.
type Result struct {
	Edge   *Edge
	Status ExitStatus
	Output string
}

func (r *Result) success() bool {
	return r.Status == ExitSuccess
}

// CommandRunner wraps running the build subcommands, so tests can abstract
// out running commands.
type CommandRunner interface {
	CanRunMore() bool
	StartCommand(edge *Edge) error

	// WaitForCommand blocks until a command completes, returning its
	// result, or nil when the wait was interrupted.
	WaitForCommand() *Result

	GetActiveEdges() []*Edge
	Abort()
}

// Verbosity controls how chatty a build is.
type Verbosity int32

const (
	Quiet          Verbosity = iota // No output -- used when testing.
	NoStatusUpdate                  // just regular output but suppress status update
	Normal                          // regular output and status update
	Verbose
)

// BuildConfig carries the options (e.g. verbosity, parallelism) passed to a
// build.
type BuildConfig struct {
	Verbosity       Verbosity
	DryRun          bool
	Parallelism     int
	FailuresAllowed int
	// The maximum load average we must not exceed. A non-positive value
	// means that we do not have any limit.
	MaxLoadAverage float64
}

func NewBuildConfig() BuildConfig {
	return BuildConfig{
		Verbosity:       Normal,
		Parallelism:     1,
		FailuresAllowed: 1,
	}
}

// dryRunCommandRunner is a CommandRunner that doesn't actually run the
// commands.
type dryRunCommandRunner struct {
	finished []*Edge // queue
}

func (d *dryRunCommandRunner) CanRunMore() bool {
	return true
}

func (d *dryRunCommandRunner) StartCommand(edge *Edge) error {
	d.finished = append(d.finished, edge)
	return nil
}

func (d *dryRunCommandRunner) WaitForCommand() *Result {
	if len(d.finished) == 0 {
		return nil
	}
	edge := d.finished[0]
	d.finished = d.finished[1:]
	return &Result{Edge: edge, Status: ExitSuccess}
}

func (d *dryRunCommandRunner) GetActiveEdges() []*Edge {
	return nil
}

func (d *dryRunCommandRunner) Abort() {
}

// realCommandRunner is the CommandRunner that actually runs commands in
// subprocesses.
type realCommandRunner struct {
	config        *BuildConfig
	subprocs      *SubprocessSet
	subprocToEdge map[*Subprocess]*Edge
}

func newRealCommandRunner(config *BuildConfig) *realCommandRunner {
	return &realCommandRunner{
		config:        config,
		subprocs:      NewSubprocessSet(),
		subprocToEdge: map[*Subprocess]*Edge{},
	}
}

func (r *realCommandRunner) GetActiveEdges() []*Edge {
	var edges []*Edge
	for _, e := range r.subprocToEdge {
		edges = append(edges, e)
	}
	return edges
}

func (r *realCommandRunner) Abort() {
	r.subprocs.Clear()
}

func (r *realCommandRunner) CanRunMore() bool {
	subprocNumber := r.subprocs.Running() + r.subprocs.Finished()
	if subprocNumber >= r.config.Parallelism {
		return false
	}
	return r.subprocs.Running() == 0 || r.config.MaxLoadAverage <= 0.0 ||
		getLoadAverage() < r.config.MaxLoadAverage
}

func (r *realCommandRunner) StartCommand(edge *Edge) error {
	command := edge.EvaluateCommand(false)
	subproc, err := r.subprocs.Add(command, edge.useConsole())
	if err != nil {
		return err
	}
	r.subprocToEdge[subproc] = edge
	return nil
}

func (r *realCommandRunner) WaitForCommand() *Result {
	var subproc *Subprocess
	for {
		if subproc = r.subprocs.NextFinished(); subproc != nil {
			break
		}
		if interrupted := r.subprocs.DoWork(); interrupted {
			return nil
		}
	}

	result := &Result{
		Status: subproc.Finish(),
		Output: subproc.GetOutput(),
		Edge:   r.subprocToEdge[subproc],
	}
	delete(r.subprocToEdge, subproc)
	return result
}

// Builder wraps the build process: starting commands, updating status.
type Builder struct {
	state         *State
	config        *BuildConfig
	plan          Plan
	commandRunner CommandRunner
	status        Status

	// Map of running edge to the time the edge started running.
	runningEdges map[*Edge]int32

	// Time the build started.
	startTimeMillis int64

	diskInterface DiskInterface
	scan          DependencyScan
}

func NewBuilder(state *State, config *BuildConfig, buildLog *BuildLog, depsLog *DepsLog, diskInterface DiskInterface, status Status, startTimeMillis int64) *Builder {
	return &Builder{
		state:           state,
		config:          config,
		plan:            NewPlan(),
		status:          status,
		runningEdges:    map[*Edge]int32{},
		startTimeMillis: startTimeMillis,
		diskInterface:   diskInterface,
		scan:            NewDependencyScan(state, buildLog, depsLog, diskInterface),
	}
}

// SetBuildLog replaces the build log consulted by the dependency scan. Used
// by tests.
func (b *Builder) SetBuildLog(log *BuildLog) {
	b.scan.buildLog = log
}

// Cleanup cleans up after interrupted commands by deleting output files
// whose mtime changed.
func (b *Builder) Cleanup() {
	if b.commandRunner == nil {
		return
	}
	activeEdges := b.commandRunner.GetActiveEdges()
	b.commandRunner.Abort()

	for _, e := range activeEdges {
		depfile := e.GetUnescapedDepfile()
		for _, o := range e.Outputs {
			// Only delete this output if it was actually modified. This is
			// important for things like the generator where we don't want
			// to delete the manifest file if we can avoid it. But if the
			// rule uses a depfile, always delete. (Consider the case where
			// we need to rebuild an output because of a modified header
			// file mentioned in a depfile, and the command touches its
			// depfile but is interrupted before it touches its output
			// file.)
			newMtime, err := b.diskInterface.Stat(o.Path)
			if err != nil {
				// Log and ignore Stat() errors.
				b.status.Error("%s", err)
			}
			if depfile != "" || o.MTime != newMtime {
				b.diskInterface.RemoveFile(o.Path)
			}
		}
		if depfile != "" {
			b.diskInterface.RemoveFile(depfile)
		}
	}
}

// AddTargetName adds a target to the build by name, scanning dependencies.
func (b *Builder) AddTargetName(name string) (*Node, error) {
	node := b.state.LookupNode(name)
	if node == nil {
		return nil, fmt.Errorf("unknown target: '%s'", name)
	}
	if err := b.AddTarget(node); err != nil {
		return nil, err
	}
	return node, nil
}

// AddTarget adds a target to the build, scanning dependencies. Adding an
// already up-to-date target is not an error; the plan just has nothing to
// do for it.
func (b *Builder) AddTarget(target *Node) error {
	if err := b.scan.RecomputeDirty(target); err != nil {
		return err
	}

	if inEdge := target.InEdge; inEdge != nil {
		if inEdge.OutputsReady {
			return nil // Nothing to do.
		}
	}

	return b.plan.AddTarget(target)
}

// AlreadyUpToDate reports whether the build targets are already up to date.
func (b *Builder) AlreadyUpToDate() bool {
	return !b.plan.MoreToDo()
}

// Build runs the build. It is an error to call this function when
// AlreadyUpToDate() is true.
//
// The loop first attempts to start as many commands as allowed by the
// command runner, then attempts to reap the next finished command.
func (b *Builder) Build() error {
	if b.AlreadyUpToDate() {
		panic("Build called when already up to date")
	}

	b.status.PlanHasTotalEdges(b.plan.CommandEdgeCount())
	pendingCommands := 0
	failuresAllowed := b.config.FailuresAllowed

	// Set up the command runner if we haven't done so already.
	if b.commandRunner == nil {
		if b.config.DryRun {
			b.commandRunner = &dryRunCommandRunner{}
		} else {
			b.commandRunner = newRealCommandRunner(b.config)
		}
	}

	// We are about to start the build process.
	b.status.BuildStarted()

	for b.plan.MoreToDo() {
		// See if we can start any more commands.
		if failuresAllowed != 0 && b.commandRunner.CanRunMore() {
			if edge := b.plan.FindWork(); edge != nil {
				if edge.GetBindingBool("generator") && b.scan.buildLog != nil {
					b.scan.buildLog.Close()
				}

				if err := b.startEdge(edge); err != nil {
					b.Cleanup()
					b.status.BuildFinished()
					return err
				}

				if edge.IsPhony() {
					b.plan.EdgeFinished(edge, EdgeSucceeded)
				} else {
					pendingCommands++
				}

				// We made some progress; go back to the main loop.
				continue
			}
		}

		// See if we can reap any finished commands.
		if pendingCommands != 0 {
			result := b.commandRunner.WaitForCommand()
			if result == nil || result.Status == ExitInterrupted {
				b.Cleanup()
				b.status.BuildFinished()
				return errors.New("interrupted by user")
			}

			pendingCommands--
			if err := b.finishCommand(result); err != nil {
				b.Cleanup()
				b.status.BuildFinished()
				return err
			}

			if !result.success() {
				if failuresAllowed != 0 {
					failuresAllowed--
				}
			}

			// We made some progress; start the main loop over.
			continue
		}

		// If we get here, we cannot make any more progress.
		b.status.BuildFinished()
		if failuresAllowed == 0 {
			if b.config.FailuresAllowed > 1 {
				return errors.New("subcommands failed")
			}
			return errors.New("subcommand failed")
		}
		if failuresAllowed < b.config.FailuresAllowed {
			return errors.New("cannot make progress due to previous errors")
		}
		return errors.New("stuck [this is a bug]")
	}

	b.status.BuildFinished()
	return nil
}

func (b *Builder) startEdge(edge *Edge) error {
	defer metricRecord("StartEdge")()
	if edge.IsPhony() {
		return nil
	}

	startTimeMillis := int32(GetTimeMillis() - b.startTimeMillis)
	b.runningEdges[edge] = startTimeMillis

	b.status.BuildEdgeStarted(edge, startTimeMillis)

	if !b.config.DryRun {
		// Create directories necessary for outputs.
		for _, o := range edge.Outputs {
			if err := MakeDirs(b.diskInterface, o.Path); err != nil {
				return err
			}
		}

		// Create the response file, if needed.
		if rspfile := edge.GetUnescapedRspfile(); rspfile != "" {
			content := edge.GetBinding("rspfile_content")
			if err := b.diskInterface.WriteFile(rspfile, content); err != nil {
				return err
			}
		}
	}

	if err := b.commandRunner.StartCommand(edge); err != nil {
		return fmt.Errorf("command '%s' failed: %w", edge.EvaluateCommand(false), err)
	}
	return nil
}

// finishCommand updates status and the logs following a command
// termination. An error means the build cannot proceed further.
func (b *Builder) finishCommand(result *Result) error {
	defer metricRecord("FinishCommand")()

	edge := result.Edge

	// First try to extract dependencies from the result, if any. This must
	// happen first as it filters the command output (we want to filter
	// /showIncludes output, even on compile failure) and extraction itself
	// can fail, which makes the command fail from a build perspective.
	var depsNodes []*Node
	depsType := edge.GetBinding("deps")
	depsPrefix := edge.GetBinding("msvc_deps_prefix")
	if depsType != "" {
		var extractErr error
		depsNodes, extractErr = b.extractDeps(result, depsType, depsPrefix)
		if extractErr != nil && result.success() {
			if result.Output != "" {
				result.Output += "\n"
			}
			result.Output += extractErr.Error()
			result.Status = ExitFailure
		}
	}

	startTimeMillis := b.runningEdges[edge]
	endTimeMillis := int32(GetTimeMillis() - b.startTimeMillis)
	delete(b.runningEdges, edge)

	b.status.BuildEdgeFinished(edge, endTimeMillis, result.success(), result.Output)

	// The rest of this function only applies to successful commands.
	if !result.success() {
		b.plan.EdgeFinished(edge, EdgeFailed)
		return nil
	}

	// Restat the edge outputs.
	var outputMtime TimeStamp
	restat := edge.GetBindingBool("restat")
	if !b.config.DryRun {
		nodeCleaned := false

		for _, o := range edge.Outputs {
			newMtime, err := b.diskInterface.Stat(o.Path)
			if err != nil {
				return err
			}
			if newMtime > outputMtime {
				outputMtime = newMtime
			}
			if o.MTime == newMtime && restat {
				// The rule command did not change the output. Propagate the
				// clean state through the build graph. Note that this also
				// applies to nonexistent outputs (mtime == 0).
				if err := b.plan.CleanNode(&b.scan, o); err != nil {
					return err
				}
				nodeCleaned = true
			}
		}

		if nodeCleaned {
			var restatMtime TimeStamp
			// If any output was cleaned, find the most recent mtime of any
			// (existing) non-order-only input or the depfile.
			for _, i := range edge.Inputs[:len(edge.Inputs)-int(edge.OrderOnlyDeps)] {
				inputMtime, err := b.diskInterface.Stat(i.Path)
				if err != nil {
					return err
				}
				if inputMtime > restatMtime {
					restatMtime = inputMtime
				}
			}

			depfile := edge.GetUnescapedDepfile()
			if restatMtime != 0 && depsType == "" && depfile != "" {
				depfileMtime, err := b.diskInterface.Stat(depfile)
				if err != nil {
					return err
				}
				if depfileMtime > restatMtime {
					restatMtime = depfileMtime
				}
			}

			// The total number of edges in the plan may have changed as a
			// result of a restat.
			b.status.PlanHasTotalEdges(b.plan.CommandEdgeCount())

			outputMtime = restatMtime
		}
	}

	b.plan.EdgeFinished(edge, EdgeSucceeded)

	// Delete any left over response file.
	if rspfile := edge.GetUnescapedRspfile(); rspfile != "" && !keepRsp {
		b.diskInterface.RemoveFile(rspfile)
	}

	if b.scan.buildLog != nil {
		if err := b.scan.buildLog.RecordCommand(edge, startTimeMillis, endTimeMillis, outputMtime); err != nil {
			return fmt.Errorf("error writing to build log: %w", err)
		}
	}

	if depsType != "" && !b.config.DryRun {
		if len(edge.Outputs) == 0 {
			panic("an edge with deps should have been rejected by the parser without outputs")
		}
		for _, o := range edge.Outputs {
			depsMtime, err := b.diskInterface.Stat(o.Path)
			if err != nil {
				return err
			}
			if err := b.scan.depsLog().RecordDeps(o, depsMtime, depsNodes); err != nil {
				return fmt.Errorf("error writing to deps log: %w", err)
			}
		}
	}
	return nil
}

func (b *Builder) extractDeps(result *Result, depsType, depsPrefix string) ([]*Node, error) {
	switch depsType {
	case "msvc":
		parser := NewCLParser()
		output, err := parser.Parse(result.Output, depsPrefix)
		if err != nil {
			return nil, err
		}
		result.Output = output
		var depsNodes []*Node
		for _, i := range parser.Includes() {
			// ~0 is assuming that with MSVC-parsed headers, it's ok to
			// always make all backslashes (as some of the slashes will
			// certainly be backslashes anyway).
			depsNodes = append(depsNodes, b.state.GetNode(CanonicalizePath(i), ^uint64(0)))
		}
		return depsNodes, nil

	case "gcc":
		depfile := result.Edge.GetUnescapedDepfile()
		if depfile == "" {
			return nil, errors.New("edge with deps=gcc but no depfile makes no sense")
		}

		// Read the depfile content. Treat a missing depfile as empty.
		content, err := b.diskInterface.ReadFile(depfile)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, nil
			}
			return nil, err
		}
		if len(content) <= 1 {
			return nil, nil
		}

		deps := DepfileParser{}
		if err := deps.Parse(content); err != nil {
			return nil, fmt.Errorf("%s: %s", depfile, err)
		}

		depsNodes := make([]*Node, 0, len(deps.ins))
		for _, i := range deps.ins {
			depsNodes = append(depsNodes, b.state.GetNode(CanonicalizePathBits(i)))
		}

		if !keepDepfile {
			if err := b.diskInterface.RemoveFile(depfile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("deleting depfile: %w", err)
			}
		}
		return depsNodes, nil

	default:
		fatalf("unknown deps type '%s'", depsType)
		return nil, nil // Not reached.
	}
}
