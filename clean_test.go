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

import "testing"

type cleanTest struct {
	state  State
	config BuildConfig
	fs     VirtualFileSystem
}

func newCleanTest(t *testing.T, manifest string) *cleanTest {
	c := &cleanTest{
		state:  newTestState(t),
		config: NewBuildConfig(),
		fs:     NewVirtualFileSystem(),
	}
	c.config.Verbosity = Quiet
	assertParse(t, &c.state, manifest)
	return c
}

func TestClean_All(t *testing.T) {
	c := newCleanTest(t,
		"build in1: cat src1\n"+
			"build out1: cat in1\n"+
			"build in2: cat src2\n"+
			"build out2: cat in2\n")
	c.fs.Create("in1", "")
	c.fs.Create("out1", "")
	c.fs.Create("in2", "")
	c.fs.Create("out2", "")
	c.fs.Create("src1", "")
	c.fs.Create("src2", "")

	cleaner := NewCleaner(&c.state, &c.config, &c.fs)
	if got := cleaner.CleanAll(false); got != 0 {
		t.Fatal(got)
	}
	if cleaner.cleanedFilesCount != 4 {
		t.Fatal(cleaner.cleanedFilesCount)
	}
	for _, f := range []string{"in1", "out1", "in2", "out2"} {
		if _, ok := c.fs.filesRemoved[f]; !ok {
			t.Fatalf("%s not removed", f)
		}
	}
	// Sources survive.
	if _, ok := c.fs.filesRemoved["src1"]; ok {
		t.Fatal("src1 removed")
	}
}

func TestClean_AllDryRun(t *testing.T) {
	c := newCleanTest(t,
		"build out1: cat src1\n"+
			"build out2: cat src2\n")
	c.fs.Create("out1", "")
	c.fs.Create("out2", "")
	c.config.DryRun = true

	cleaner := NewCleaner(&c.state, &c.config, &c.fs)
	if got := cleaner.CleanAll(false); got != 0 {
		t.Fatal(got)
	}
	if cleaner.cleanedFilesCount != 2 {
		t.Fatal(cleaner.cleanedFilesCount)
	}
	if len(c.fs.filesRemoved) != 0 {
		t.Fatal("dry run removed files")
	}
}

func TestClean_Targets(t *testing.T) {
	c := newCleanTest(t,
		"build mid: cat src\n"+
			"build out: cat mid\n"+
			"build other: cat src\n")
	c.fs.Create("mid", "")
	c.fs.Create("out", "")
	c.fs.Create("other", "")

	cleaner := NewCleaner(&c.state, &c.config, &c.fs)
	if got := cleaner.CleanTargets([]string{"out"}); got != 0 {
		t.Fatal(got)
	}
	// out and its transitive intermediates are gone; "other" is not.
	if _, ok := c.fs.filesRemoved["out"]; !ok {
		t.Fatal("out not removed")
	}
	if _, ok := c.fs.filesRemoved["mid"]; !ok {
		t.Fatal("mid not removed")
	}
	if _, ok := c.fs.filesRemoved["other"]; ok {
		t.Fatal("other removed")
	}
}

func TestClean_Rules(t *testing.T) {
	c := newCleanTest(t,
		"rule cat_e\n"+
			"  command = cat -e $in > $out\n"+
			"build out1: cat_e src\n"+
			"build out2: cat src\n")
	c.fs.Create("out1", "")
	c.fs.Create("out2", "")

	cleaner := NewCleaner(&c.state, &c.config, &c.fs)
	if got := cleaner.CleanRules([]string{"cat_e"}); got != 0 {
		t.Fatal(got)
	}
	if _, ok := c.fs.filesRemoved["out1"]; !ok {
		t.Fatal("out1 not removed")
	}
	if _, ok := c.fs.filesRemoved["out2"]; ok {
		t.Fatal("out2 removed")
	}
}

func TestClean_PhonyLeftAlone(t *testing.T) {
	c := newCleanTest(t,
		"build phony_target: phony t1\n"+
			"build t1: cat src\n")
	c.fs.Create("phony_target", "")
	c.fs.Create("t1", "")

	cleaner := NewCleaner(&c.state, &c.config, &c.fs)
	if got := cleaner.CleanAll(false); got != 0 {
		t.Fatal(got)
	}
	// A file that happens to share a phony target's name is not deleted.
	if _, ok := c.fs.filesRemoved["phony_target"]; ok {
		t.Fatal("phony output removed")
	}
	if _, ok := c.fs.filesRemoved["t1"]; !ok {
		t.Fatal("t1 not removed")
	}
}

func TestClean_GeneratorPreserved(t *testing.T) {
	c := newCleanTest(t,
		"rule regen\n"+
			"  command = regen\n"+
			"  generator = 1\n"+
			"build build.ninja: regen config\n"+
			"build out: cat src\n")
	c.fs.Create("build.ninja", "")
	c.fs.Create("out", "")

	cleaner := NewCleaner(&c.state, &c.config, &c.fs)
	cleaner.CleanAll(false)
	if _, ok := c.fs.filesRemoved["build.ninja"]; ok {
		t.Fatal("generator output removed without -g")
	}

	cleaner = NewCleaner(&c.state, &c.config, &c.fs)
	cleaner.CleanAll(true)
	if _, ok := c.fs.filesRemoved["build.ninja"]; !ok {
		t.Fatal("generator output kept with -g")
	}
}

func TestClean_DepfileAndRspfile(t *testing.T) {
	c := newCleanTest(t,
		"rule cc\n"+
			"  command = cc $in > $out\n"+
			"  depfile = $out.d\n"+
			"  rspfile = $out.rsp\n"+
			"  rspfile_content = $in\n"+
			"build out.o: cc src.c\n")
	c.fs.Create("out.o", "")
	c.fs.Create("out.o.d", "")
	c.fs.Create("out.o.rsp", "")

	cleaner := NewCleaner(&c.state, &c.config, &c.fs)
	if got := cleaner.CleanAll(false); got != 0 {
		t.Fatal(got)
	}
	for _, f := range []string{"out.o", "out.o.d", "out.o.rsp"} {
		if _, ok := c.fs.filesRemoved[f]; !ok {
			t.Fatalf("%s not removed", f)
		}
	}
}

func TestClean_Dead(t *testing.T) {
	c := newCleanTest(t, "build out: cat src\n")
	c.fs.Create("out", "")
	c.fs.Create("stale", "")

	entries := map[string]*LogEntry{
		"out":   {Output: "out"},
		"stale": {Output: "stale"},
	}
	cleaner := NewCleaner(&c.state, &c.config, &c.fs)
	if got := cleaner.CleanDead(entries); got != 0 {
		t.Fatal(got)
	}
	if _, ok := c.fs.filesRemoved["stale"]; !ok {
		t.Fatal("stale output not removed")
	}
	if _, ok := c.fs.filesRemoved["out"]; ok {
		t.Fatal("live output removed")
	}
}
