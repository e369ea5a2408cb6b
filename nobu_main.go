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
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

const (
	buildLogFileName = ".nobu_log"
	depsLogFileName  = ".nobu_deps"
)

// Exit codes of the command line tool.
const (
	ExitCodeSuccess     = 0
	ExitCodeFailure     = 1
	ExitCodeBadCmdline  = 2
	ExitCodeInterrupted = 2
)

// options are the command-line options besides the BuildConfig.
type options struct {
	// Build file to load.
	inputFile string

	// Directory to change into before running.
	workingDir string

	// Tool to run rather than building.
	tool *tool

	// Whether duplicate rules for one target should warn or print an error.
	dupeEdgesShouldErr bool

	// Whether phony cycles should warn or print an error.
	phonyCycleShouldErr bool
}

// nobuMain loads up the series of data structures the various tools poke
// into.
type nobuMain struct {
	// Command line used to run the tool.
	command string

	// Build configuration set from flags (e.g. parallelism).
	config *BuildConfig

	// Loaded state (rules, nodes).
	state State

	// Functions for accessing the disk.
	diskInterface RealDiskInterface

	// The build directory, used for storing the build log etc.
	buildDir string

	buildLog BuildLog
	depsLog  DepsLog

	startTimeMillis int64
}

func newNobuMain(command string, config *BuildConfig) nobuMain {
	return nobuMain{
		command:         command,
		config:          config,
		state:           NewState(),
		buildLog:        NewBuildLog(),
		startTimeMillis: GetTimeMillis(),
	}
}

func (n *nobuMain) Close() error {
	err1 := n.depsLog.Close()
	err2 := n.buildLog.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// IsPathDead reports whether a log entry for the path may be discarded:
// the path is no longer produced by any edge and the file is gone. Entries
// for files that still exist are kept for generators that want to use the
// information.
func (n *nobuMain) IsPathDead(s string) bool {
	nd := n.state.LookupNode(s)
	if nd != nil && nd.InEdge != nil {
		return false
	}
	// Just checking nd isn't enough: if an old output is both in the build
	// log and in the deps log, it will have a Node object in state. (It
	// will also have an in edge if one of its inputs is another output
	// that's in the deps log, but a deps edge producing an output that's
	// an input to another deps edge is rare, and two recompactions in a
	// row clear such entries, which is good enough for this corner case.)
	mtime, err := n.diskInterface.Stat(s)
	if err != nil {
		errorf("%s", err) // Log and ignore Stat() errors.
	}
	return mtime == 0
}

type toolFunc func(*nobuMain, *options, []string) int

// when to run a tool.
type when int32

const (
	// Run after parsing the command-line flags and potentially changing the
	// current working directory (as early as possible).
	runAfterFlags when = iota

	// Run after loading the manifest.
	runAfterLoad

	// Run after loading the build/deps logs.
	runAfterLogs
)

// tool is a subtool, accessible via "-t foo".
type tool struct {
	// Short name of the tool.
	name string

	// Description (shown in "-t list").
	desc string

	when when

	// Implementation of the tool.
	tool toolFunc
}

// guessParallelism chooses a default value for the -j (parallelism) flag.
func guessParallelism() int {
	switch processors := runtime.NumCPU(); processors {
	case 0, 1:
		return 2
	case 2:
		return 3
	default:
		return processors + 2
	}
}

// RebuildManifest rebuilds the build manifest if it is an output of the
// graph and dirty. Returns true if it was rebuilt.
func (n *nobuMain) RebuildManifest(inputFile string, status Status) (bool, error) {
	path := inputFile
	if path == "" {
		return false, nil
	}
	node := n.state.LookupNode(CanonicalizePath(path))
	if node == nil {
		return false, nil
	}

	builder := NewBuilder(&n.state, n.config, &n.buildLog, &n.depsLog, &n.diskInterface, status, n.startTimeMillis)
	if err := builder.AddTarget(node); err != nil {
		return false, err
	}

	if builder.AlreadyUpToDate() {
		return false, nil // Not an error, but we didn't rebuild.
	}

	if err := builder.Build(); err != nil {
		return false, err
	}

	// The manifest was only rebuilt if it is now dirty (it may have been
	// cleaned by a restat).
	if !node.Dirty {
		// Reset the state to prevent problems like
		// https://github.com/ninja-build/ninja/issues/874
		n.state.Reset()
		return false, nil
	}

	return true, nil
}

// CollectTarget resolves a command-line path to a Node, handling the
// "foo.c^" syntax and spell correction.
func (n *nobuMain) CollectTarget(cpath string) (*Node, error) {
	path := cpath
	if path == "" {
		return nil, fmt.Errorf("empty path")
	}

	// Special syntax: "foo.cc^" means "the first output of foo.cc".
	firstDependent := false
	if path[len(path)-1] == '^' {
		path = path[:len(path)-1]
		firstDependent = true
	}
	path, slashBits := CanonicalizePathBits(path)

	node := n.state.LookupNode(path)
	if node != nil {
		if firstDependent {
			if len(node.OutEdges) == 0 {
				revDeps := n.depsLog.GetFirstReverseDepsNode(node)
				if revDeps == nil {
					return nil, fmt.Errorf("'%s' has no out edge", path)
				}
				node = revDeps
			} else {
				edge := node.OutEdges[0]
				if len(edge.Outputs) == 0 {
					edge.Dump("")
					fatalf("edge has no outputs")
				}
				node = edge.Outputs[0]
			}
		}
		return node, nil
	}

	msg := "unknown target '" + PathDecanonicalized(path, slashBits) + "'"
	if path == "clean" {
		msg += ", did you mean 'nobu -t clean'?"
	} else if path == "help" {
		msg += ", did you mean 'nobu -h'?"
	} else if suggestion := n.state.SpellcheckNode(path); suggestion != nil {
		msg += ", did you mean '" + suggestion.Path + "'?"
	}
	return nil, fmt.Errorf("%s", msg)
}

// CollectTargetsFromArgs runs CollectTarget for all command-line
// arguments, or the manifest's default targets when there are none.
func (n *nobuMain) CollectTargetsFromArgs(args []string) ([]*Node, error) {
	if len(args) == 0 {
		return n.state.DefaultNodes()
	}

	targets := make([]*Node, 0, len(args))
	for _, arg := range args {
		node, err := n.CollectTarget(arg)
		if err != nil {
			return nil, err
		}
		targets = append(targets, node)
	}
	return targets, nil
}

// The various subcommands, run via "-t XXX".

func toolTargetsListNodes(nodes []*Node, depth, indent int) int {
	for _, n := range nodes {
		for i := 0; i < indent; i++ {
			fmt.Printf("  ")
		}
		target := n.Path
		if n.InEdge != nil {
			fmt.Printf("%s: %s\n", target, n.InEdge.Rule.Name)
			if depth > 1 || depth <= 0 {
				toolTargetsListNodes(n.InEdge.Inputs, depth-1, indent+1)
			}
		} else {
			fmt.Printf("%s\n", target)
		}
	}
	return 0
}

func toolTargetsSourceList(state *State) int {
	for _, e := range state.Edges {
		for _, in := range e.Inputs {
			if in.InEdge == nil {
				fmt.Printf("%s\n", in.Path)
			}
		}
	}
	return 0
}

func toolTargetsListRule(state *State, ruleName string) int {
	rules := map[string]struct{}{}

	// Gather the outputs.
	for _, e := range state.Edges {
		if e.Rule.Name == ruleName {
			for _, outNode := range e.Outputs {
				rules[outNode.Path] = struct{}{}
			}
		}
	}

	names := make([]string, 0, len(rules))
	for n := range rules {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%s\n", name)
	}
	return 0
}

func toolTargetsList(state *State) int {
	for _, e := range state.Edges {
		for _, outNode := range e.Outputs {
			fmt.Printf("%s: %s\n", outNode.Path, e.Rule.Name)
		}
	}
	return 0
}

func toolTargets(n *nobuMain, opts *options, args []string) int {
	depth := 1
	if len(args) >= 1 {
		mode := args[0]
		switch mode {
		case "rule":
			rule := ""
			if len(args) > 1 {
				rule = args[1]
			}
			if rule == "" {
				return toolTargetsSourceList(&n.state)
			}
			return toolTargetsListRule(&n.state, rule)
		case "depth":
			if len(args) > 1 {
				var err error
				if depth, err = strconv.Atoi(args[1]); err != nil {
					errorf("invalid depth: %s", args[1])
					return 1
				}
			}
		case "all":
			return toolTargetsList(&n.state)
		default:
			suggestion := spellcheckString(mode, "rule", "depth", "all")
			if suggestion != "" {
				errorf("unknown target tool mode '%s', did you mean '%s'?", mode, suggestion)
			} else {
				errorf("unknown target tool mode '%s'", mode)
			}
			return 1
		}
	}

	rootNodes, err := n.state.RootNodes()
	if err != nil {
		errorf("%s", err)
		return 1
	}
	return toolTargetsListNodes(rootNodes, depth, 0)
}

func toolDeps(n *nobuMain, opts *options, args []string) int {
	var nodes []*Node
	if len(args) == 0 {
		for _, ni := range n.depsLog.nodes {
			if IsDepsEntryLiveFor(ni) {
				nodes = append(nodes, ni)
			}
		}
	} else {
		var err error
		if nodes, err = n.CollectTargetsFromArgs(args); err != nil {
			errorf("%s", err)
			return 1
		}
	}

	for _, it := range nodes {
		deps := n.depsLog.GetDeps(it)
		if deps == nil {
			fmt.Printf("%s: deps not found\n", it.Path)
			continue
		}

		mtime, err := n.diskInterface.Stat(it.Path)
		if err != nil {
			errorf("%s", err) // Log and ignore Stat() errors.
		}
		s := "VALID"
		if mtime == 0 || mtime > deps.MTime {
			s = "STALE"
		}
		fmt.Printf("%s: #deps %d, deps mtime %d (%s)\n", it.Path, len(deps.Nodes), deps.MTime, s)
		for _, in := range deps.Nodes {
			fmt.Printf("    %s\n", in.Path)
		}
		fmt.Printf("\n")
	}
	return 0
}

func toolRules(n *nobuMain, opts *options, args []string) int {
	printDescription := false
	for i := 0; i < len(args); i++ {
		if args[i] == "-d" {
			args = append(args[:i:i], args[i+1:]...)
			printDescription = true
			break
		}
	}

	rules := n.state.Bindings.Rules
	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Printf("%s", name)
		if printDescription {
			if description := rules[name].Bindings["description"]; description != nil {
				fmt.Printf(": %s", description.Unparse())
			}
		}
		fmt.Printf("\n")
	}
	return 0
}

func printCommands(edge *Edge, seen map[*Edge]struct{}, printAll bool) {
	if edge == nil {
		return
	}
	if _, ok := seen[edge]; ok {
		return
	}
	seen[edge] = struct{}{}

	if printAll {
		for _, in := range edge.Inputs {
			printCommands(in.InEdge, seen, printAll)
		}
	}

	if !edge.IsPhony() {
		fmt.Printf("%s\n", edge.EvaluateCommand(false))
	}
}

func toolCommands(n *nobuMain, opts *options, args []string) int {
	printAll := true
	for i := 0; i < len(args); i++ {
		if args[i] == "-s" {
			args = append(args[:i:i], args[i+1:]...)
			printAll = false
			break
		}
	}

	nodes, err := n.CollectTargetsFromArgs(args)
	if err != nil {
		errorf("%s", err)
		return 1
	}

	seen := map[*Edge]struct{}{}
	for _, in := range nodes {
		printCommands(in.InEdge, seen, printAll)
	}
	return 0
}

func toolClean(n *nobuMain, opts *options, args []string) int {
	generator := false
	cleanRules := false
	for i := 0; i < len(args); {
		switch args[i] {
		case "-g":
			args = append(args[:i:i], args[i+1:]...)
			generator = true
		case "-r":
			args = append(args[:i:i], args[i+1:]...)
			cleanRules = true
		default:
			i++
		}
	}

	if cleanRules && len(args) == 0 {
		errorf("expected a rule to clean")
		return 1
	}

	cleaner := NewCleaner(&n.state, n.config, &n.diskInterface)
	if len(args) >= 1 {
		if cleanRules {
			return cleaner.CleanRules(args)
		}
		return cleaner.CleanTargets(args)
	}
	return cleaner.CleanAll(generator)
}

func toolCleanDead(n *nobuMain, opts *options, args []string) int {
	cleaner := NewCleaner(&n.state, n.config, &n.diskInterface)
	return cleaner.CleanDead(n.buildLog.entries)
}

func toolRecompact(n *nobuMain, opts *options, args []string) int {
	if !n.EnsureBuildDirExists() {
		return 1
	}
	if !n.OpenBuildLog(true) || !n.OpenDepsLog(true) {
		return 1
	}
	return 0
}

func toolRestat(n *nobuMain, opts *options, args []string) int {
	if !n.EnsureBuildDirExists() {
		return 1
	}

	logPath := buildLogFileName
	if n.buildDir != "" {
		logPath = filepath.Join(n.buildDir, logPath)
	}

	status, err := n.buildLog.Load(logPath)
	if status == LoadError {
		errorf("loading build log %s: %s", logPath, err)
		return ExitCodeFailure
	}
	if status == LoadNotFound {
		// Nothing to restat; ignore this.
		return ExitCodeSuccess
	}
	if err != nil {
		// Load() can return a warning via err with LoadSuccess.
		warningf("%s", err)
	}

	if err := n.buildLog.Restat(logPath, &n.diskInterface, args); err != nil {
		errorf("failed recompaction: %s", err)
		return ExitCodeFailure
	}

	if !n.config.DryRun {
		if err := n.buildLog.OpenForWrite(logPath, n); err != nil {
			errorf("opening build log: %s", err)
			return ExitCodeFailure
		}
	}

	return ExitCodeSuccess
}

// chooseTool finds the tool for toolName and returns it, or nil when the
// process should exit.
func chooseTool(toolName string) *tool {
	tools := []*tool{
		{"clean", "clean built files", runAfterLoad, toolClean},
		{"cleandead", "clean built files that are no longer produced by the manifest", runAfterLogs, toolCleanDead},
		{"commands", "list all commands required to rebuild given targets", runAfterLoad, toolCommands},
		{"deps", "show dependencies stored in the deps log", runAfterLogs, toolDeps},
		{"recompact", "recompacts internal data structures", runAfterLoad, toolRecompact},
		{"restat", "restats all outputs in the build log", runAfterFlags, toolRestat},
		{"rules", "list all rules", runAfterLoad, toolRules},
		{"targets", "list targets by their rule or depth in the DAG", runAfterLoad, toolTargets},
	}
	if toolName == "list" {
		fmt.Printf("nobu subtools:\n")
		for _, t := range tools {
			if t.desc != "" {
				fmt.Printf("%11s  %s\n", t.name, t.desc)
			}
		}
		return nil
	}

	for _, t := range tools {
		if t.name == toolName {
			return t
		}
	}

	var words []string
	for _, t := range tools {
		words = append(words, t.name)
	}
	if suggestion := spellcheckString(toolName, words...); suggestion != "" {
		fatalf("unknown tool '%s', did you mean '%s'?", toolName, suggestion)
	} else {
		fatalf("unknown tool '%s'", toolName)
	}
	return nil // Not reached.
}

// debugEnable enables a debugging mode. Returns false if the process
// should exit instead of continuing.
func debugEnable(name string) bool {
	switch name {
	case "list":
		fmt.Printf("debugging modes:\n" +
			"  stats        print operation counts/timing info\n" +
			"  explain      explain what caused a command to execute\n" +
			"  keepdepfile  don't delete depfiles after they're read\n" +
			"  keeprsp      don't delete @response files on success\n" +
			"  nostatcache  don't cache stat() results per run\n" +
			"multiple modes can be enabled via -d FOO -d BAR\n")
		return false
	case "stats":
		gMetrics = NewMetrics()
		return true
	case "explain":
		explaining = true
		return true
	case "keepdepfile":
		keepDepfile = true
		return true
	case "keeprsp":
		keepRsp = true
		return true
	case "nostatcache":
		useStatCache = false
		return true
	default:
		suggestion := spellcheckString(name, "stats", "explain", "keepdepfile", "keeprsp", "nostatcache")
		if suggestion != "" {
			errorf("unknown debug setting '%s', did you mean '%s'?", name, suggestion)
		} else {
			errorf("unknown debug setting '%s'", name)
		}
		return false
	}
}

// warningEnable sets a warning flag. Returns false if the process should
// exit instead of continuing.
func warningEnable(name string, opts *options) bool {
	switch name {
	case "list":
		fmt.Printf("warning flags:\n" +
			"  dupbuild={err,warn}    multiple build lines for one target\n" +
			"  phonycycle={err,warn}  phony build statement references itself\n")
		return false
	case "dupbuild=err":
		opts.dupeEdgesShouldErr = true
		return true
	case "dupbuild=warn":
		opts.dupeEdgesShouldErr = false
		return true
	case "phonycycle=err":
		opts.phonyCycleShouldErr = true
		return true
	case "phonycycle=warn":
		opts.phonyCycleShouldErr = false
		return true
	default:
		suggestion := spellcheckString(name, "dupbuild=err", "dupbuild=warn", "phonycycle=err", "phonycycle=warn")
		if suggestion != "" {
			errorf("unknown warning flag '%s', did you mean '%s'?", name, suggestion)
		} else {
			errorf("unknown warning flag '%s'", name)
		}
		return false
	}
}

// OpenBuildLog opens the build log; with recompactOnly it only runs a
// recompaction and returns.
func (n *nobuMain) OpenBuildLog(recompactOnly bool) bool {
	logPath := buildLogFileName
	if n.buildDir != "" {
		logPath = n.buildDir + "/" + logPath
	}

	status, err := n.buildLog.Load(logPath)
	if status == LoadError {
		errorf("loading build log %s: %s", logPath, err)
		return false
	}
	if err != nil {
		// Load() can return a warning via err with LoadSuccess.
		warningf("%s", err)
	}

	if recompactOnly {
		if status == LoadNotFound {
			return true
		}
		if err := n.buildLog.Recompact(logPath, n); err != nil {
			errorf("failed recompaction: %s", err)
			return false
		}
		return true
	}

	if !n.config.DryRun {
		if err := n.buildLog.OpenForWrite(logPath, n); err != nil {
			errorf("opening build log: %s", err)
			return false
		}
	}

	return true
}

// OpenDepsLog opens the deps log: loads it, then opens it for writing.
func (n *nobuMain) OpenDepsLog(recompactOnly bool) bool {
	path := depsLogFileName
	if n.buildDir != "" {
		path = n.buildDir + "/" + path
	}

	status, err := n.depsLog.Load(path, &n.state)
	if status == LoadError {
		errorf("loading deps log %s: %s", path, err)
		return false
	}
	if err != nil {
		// Load() can return a warning via err with LoadSuccess.
		warningf("%s", err)
	}

	if recompactOnly {
		if status == LoadNotFound {
			return true
		}
		if err := n.depsLog.Recompact(path); err != nil {
			errorf("failed recompaction: %s", err)
			return false
		}
		return true
	}

	if !n.config.DryRun {
		if err := n.depsLog.OpenForWrite(path); err != nil {
			errorf("opening deps log: %s", err)
			return false
		}
	}

	return true
}

// EnsureBuildDirExists creates the build directory if necessary.
func (n *nobuMain) EnsureBuildDirExists() bool {
	n.buildDir = n.state.Bindings.LookupVariable("builddir")
	if n.buildDir != "" && !n.config.DryRun {
		if err := MakeDirs(&n.diskInterface, filepath.Join(n.buildDir, ".")); err != nil {
			errorf("creating build directory %s: %s", n.buildDir, err)
			return false
		}
	}
	return true
}

// RunBuild builds the targets listed on the command line.
func (n *nobuMain) RunBuild(args []string, status Status) int {
	targets, err := n.CollectTargetsFromArgs(args)
	if err != nil {
		status.Error("%s", err)
		return ExitCodeFailure
	}

	n.diskInterface.AllowStatCache(useStatCache)

	builder := NewBuilder(&n.state, n.config, &n.buildLog, &n.depsLog, &n.diskInterface, status, n.startTimeMillis)
	for _, target := range targets {
		if err := builder.AddTarget(target); err != nil {
			status.Error("%s", err)
			return ExitCodeFailure
		}
	}

	// Make sure restat rules do not see stale timestamps.
	n.diskInterface.AllowStatCache(false)

	if builder.AlreadyUpToDate() {
		status.Info("no work to do.")
		return ExitCodeSuccess
	}

	if err := builder.Build(); err != nil {
		status.Info("build stopped: %s.", err)
		if strings.Contains(err.Error(), "interrupted by user") {
			return ExitCodeInterrupted
		}
		return ExitCodeFailure
	}
	return ExitCodeSuccess
}

// readFlags parses the command line into opts and config. Returns an exit
// code, or -1 if the build should continue.
func readFlags(opts *options, config *BuildConfig) (int, []string) {
	fs := pflag.NewFlagSet("nobu", pflag.ContinueOnError)
	fs.SortFlags = false
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: nobu [options] [targets...]\n\n")
		fmt.Fprintf(os.Stderr, "if targets are unspecified, builds the 'default' target (see manual).\n\n")
		fs.PrintDefaults()
	}

	fs.StringVarP(&opts.inputFile, "file", "f", "build.ninja", "specify input build file")
	fs.StringVarP(&opts.workingDir, "chdir", "C", "", "change to DIR before doing anything else")
	fs.IntVarP(&config.Parallelism, "jobs", "j", guessParallelism(), "run N jobs in parallel (0 means infinity)")
	fs.IntVarP(&config.FailuresAllowed, "keep-going", "k", 1, "keep going until N jobs fail (0 means infinity)")
	fs.Float64VarP(&config.MaxLoadAverage, "load-average", "l", 0, "do not start new jobs if the load average is greater than N")
	fs.BoolVarP(&config.DryRun, "dry-run", "n", false, "dry run (don't run commands but act like they succeeded)")
	toolName := fs.StringP("tool", "t", "", "run a subtool (use '-t list' to list subtools)")
	debugModes := fs.StringArrayP("debug", "d", nil, "enable debugging (use '-d list' to list modes)")
	warnings := fs.StringArrayP("warning", "w", nil, "adjust warnings (use '-w list' to list warnings)")
	verbose := fs.BoolP("verbose", "v", false, "show all command lines while building")
	quiet := fs.Bool("quiet", false, "don't show progress status, just command output")
	version := fs.Bool("version", false, fmt.Sprintf("print nobu version (%q)", Version))

	opts.dupeEdgesShouldErr = true

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return ExitCodeSuccess, nil
		}
		return ExitCodeBadCmdline, nil
	}

	if *verbose && *quiet {
		fmt.Fprintf(os.Stderr, "can't use both -v and --quiet\n")
		return ExitCodeBadCmdline, nil
	}
	if *verbose {
		config.Verbosity = Verbose
	}
	if *quiet {
		config.Verbosity = NoStatusUpdate
	}
	if config.Parallelism == 0 {
		// We want to run N jobs in parallel. For N = 0, a parallelism of
		// "infinity" is close enough for most sane builds.
		config.Parallelism = int(^uint(0) >> 1)
	}
	if config.FailuresAllowed == 0 {
		config.FailuresAllowed = int(^uint(0) >> 1)
	}
	for _, w := range *warnings {
		if !warningEnable(w, opts) {
			return ExitCodeFailure, nil
		}
	}
	for _, d := range *debugModes {
		if !debugEnable(d) {
			return ExitCodeFailure, nil
		}
	}
	if *version {
		fmt.Printf("%s\n", Version)
		return ExitCodeSuccess, nil
	}
	if *toolName != "" {
		opts.tool = chooseTool(*toolName)
		if opts.tool == nil {
			return ExitCodeSuccess, nil
		}
	}
	return -1, fs.Args()
}

// DumpMetrics dumps the output requested by '-d stats'.
func (n *nobuMain) DumpMetrics() {
	gMetrics.Report()
	fmt.Printf("\n")
}

// Main is the entry point of the command line tool. Returns the process
// exit code.
func Main() int {
	config := NewBuildConfig()
	opts := options{}

	command := os.Args[0]
	exitCode, args := readFlags(&opts, &config)
	if exitCode >= 0 {
		return exitCode
	}

	status := NewStatusPrinter(&config)
	if opts.workingDir != "" {
		// The formatting of this string, complete with funny quotes, is so
		// Emacs can properly identify that the cwd has changed for
		// subsequent commands. Don't print this when a tool is being used,
		// so that tool output can be piped into a file without this string
		// showing up.
		if opts.tool == nil && config.Verbosity != NoStatusUpdate {
			status.Info("Entering directory `%s'", opts.workingDir)
		}
		if err := os.Chdir(opts.workingDir); err != nil {
			fatalf("chdir to '%s' - %s", opts.workingDir, err)
		}
	}

	if opts.tool != nil && opts.tool.when == runAfterFlags {
		// None of the runAfterFlags tools actually fill a nobuMain, but
		// it's needed by the other tools.
		nobu := newNobuMain(command, &config)
		return opts.tool.tool(&nobu, &opts, args)
	}

	// Limit the number of rebuilds to prevent infinite loops.
	const cycleLimit = 100
	for cycle := 1; cycle <= cycleLimit; cycle++ {
		nobu := newNobuMain(command, &config)

		var parserOpts ManifestParserOptions
		parserOpts.ErrOnDupeEdge = opts.dupeEdgesShouldErr
		parserOpts.ErrOnPhonyCycle = opts.phonyCycleShouldErr
		parser := NewManifestParser(&nobu.state, &nobu.diskInterface, parserOpts)
		if err := parser.Load(opts.inputFile); err != nil {
			status.Error("%s", err)
			return ExitCodeFailure
		}

		if opts.tool != nil && opts.tool.when == runAfterLoad {
			return opts.tool.tool(&nobu, &opts, args)
		}

		if !nobu.EnsureBuildDirExists() {
			return ExitCodeFailure
		}

		if !nobu.OpenBuildLog(false) || !nobu.OpenDepsLog(false) {
			return ExitCodeFailure
		}

		if opts.tool != nil && opts.tool.when == runAfterLogs {
			return opts.tool.tool(&nobu, &opts, args)
		}

		// Attempt to rebuild the manifest before building anything else.
		rebuilt, err := nobu.RebuildManifest(opts.inputFile, &status)
		if err != nil {
			status.Error("rebuilding '%s': %s", opts.inputFile, err)
			return ExitCodeFailure
		}
		if rebuilt {
			// In dry-run mode the regeneration succeeds without changing
			// the manifest forever. Better to return immediately.
			if config.DryRun {
				return ExitCodeSuccess
			}
			// Start the build over with the new manifest.
			nobu.Close()
			continue
		}

		result := nobu.RunBuild(args, &status)
		if err := nobu.Close(); err != nil {
			status.Error("closing logs: %s", err)
			if result == ExitCodeSuccess {
				result = ExitCodeFailure
			}
		}
		if gMetrics != nil {
			nobu.DumpMetrics()
		}
		return result
	}

	status.Error("manifest '%s' still dirty after %d tries", opts.inputFile, cycleLimit)
	return ExitCodeFailure
}
