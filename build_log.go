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
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/google/renameio"
)

// LoadStatus is the result of loading a persistent log.
type LoadStatus int32

const (
	LoadError LoadStatus = iota
	LoadSuccess
	LoadNotFound
)

// BuildLogUser answers questions about the manifest for the BuildLog.
type BuildLogUser interface {
	// IsPathDead reports whether the log can discard the given path during
	// recompaction.
	IsPathDead(path string) bool
}

// LogEntry is one record of the build log: the command hash, timing and
// restat mtime of an output's last successful execution.
type LogEntry struct {
	Output      string
	CommandHash uint64
	StartTime   int32
	EndTime     int32
	MTime       TimeStamp
}

// BuildLog stores a log of every command ran for every build.
//
// It has a few uses:
//
//  1. (hashes of) command lines for existing output files, so we know when
//     we need to rebuild due to the command changing
//  2. timing information, perhaps for generating reports
//  3. restat information
//
// Each run's log appends to the log file. To load, we run through all log
// entries in series, throwing away older runs. Once the number of redundant
// entries exceeds a threshold, we write out a new file and atomically
// replace the existing one with it.
type BuildLog struct {
	entries           map[string]*LogEntry
	logFile           *os.File
	logFilePath       string
	needsRecompaction bool
}

const (
	buildLogFileSignature      = "# nobu log v%d\n"
	buildLogOldestSupportedVersion = 4
	buildLogCurrentVersion         = 5
)

// HashCommand is 64bit MurmurHash2, by Austin Appleby; it keys the build
// log's command records.
func HashCommand(command string) uint64 {
	const seed = uint64(0xDECAFBADDECAFBAD)
	const m = 0xc6a4a7935bd1e995
	const r = 47

	l := len(command)
	h := seed ^ (uint64(l) * m)
	i := 0
	for ; l-i >= 8; i += 8 {
		k := uint64(command[i]) | uint64(command[i+1])<<8 |
			uint64(command[i+2])<<16 | uint64(command[i+3])<<24 |
			uint64(command[i+4])<<32 | uint64(command[i+5])<<40 |
			uint64(command[i+6])<<48 | uint64(command[i+7])<<56
		k *= m
		k ^= k >> r
		k *= m
		h ^= k
		h *= m
	}
	switch l & 7 {
	case 7:
		h ^= uint64(command[i+6]) << 48
		fallthrough
	case 6:
		h ^= uint64(command[i+5]) << 40
		fallthrough
	case 5:
		h ^= uint64(command[i+4]) << 32
		fallthrough
	case 4:
		h ^= uint64(command[i+3]) << 24
		fallthrough
	case 3:
		h ^= uint64(command[i+2]) << 16
		fallthrough
	case 2:
		h ^= uint64(command[i+1]) << 8
		fallthrough
	case 1:
		h ^= uint64(command[i])
		h *= m
	}
	h ^= h >> r
	h *= m
	h ^= h >> r
	return h
}

func NewBuildLog() BuildLog {
	return BuildLog{entries: map[string]*LogEntry{}}
}

// OpenForWrite prepares writing to the log file without actually opening it;
// that happens lazily when/if it's needed.
func (b *BuildLog) OpenForWrite(path string, user BuildLogUser) error {
	if b.needsRecompaction {
		if err := b.Recompact(path, user); err != nil {
			return err
		}
	}
	if b.logFile != nil {
		panic("build log already open")
	}
	b.logFilePath = path
	return nil
}

// RecordCommand records an edge's successful run against each of its
// outputs.
func (b *BuildLog) RecordCommand(edge *Edge, startTime, endTime int32, mtime TimeStamp) error {
	command := edge.EvaluateCommand(true)
	commandHash := HashCommand(command)
	for _, out := range edge.Outputs {
		path := out.Path
		entry := b.entries[path]
		if entry == nil {
			entry = &LogEntry{Output: path}
			b.entries[path] = entry
		}
		entry.CommandHash = commandHash
		entry.StartTime = startTime
		entry.EndTime = endTime
		entry.MTime = mtime

		if err := b.openForWriteIfNeeded(); err != nil {
			return err
		}
		if b.logFile != nil {
			if err := writeBuildLogEntry(b.logFile, entry); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close flushes and closes the log; the file is created even when nothing
// was recorded.
func (b *BuildLog) Close() error {
	err := b.openForWriteIfNeeded()
	if b.logFile != nil {
		if err2 := b.logFile.Close(); err == nil {
			err = err2
		}
	}
	b.logFile = nil
	return err
}

// openForWriteIfNeeded opens the log for appending on first use, writing
// the signature when the file is new.
func (b *BuildLog) openForWriteIfNeeded() error {
	if b.logFile != nil || b.logFilePath == "" {
		return nil
	}
	f, err := os.OpenFile(b.logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o666)
	if err != nil {
		return err
	}
	b.logFile = f
	pos, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	if pos == 0 {
		if _, err := fmt.Fprintf(f, buildLogFileSignature, buildLogCurrentVersion); err != nil {
			return err
		}
	}
	return nil
}

// Load loads the on-disk log. A non-nil error together with LoadSuccess is
// a warning rather than a failure.
func (b *BuildLog) Load(path string) (LoadStatus, error) {
	defer metricRecord("build log load")()
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return LoadNotFound, nil
		}
		return LoadError, err
	}

	logVersion := 0
	uniqueEntryCount := 0
	totalEntryCount := 0

	for len(content) != 0 {
		eol := bytes.IndexByte(content, '\n')
		if eol == -1 {
			// Ignore a trailing truncated line.
			break
		}
		line := string(content[:eol])
		content = content[eol+1:]

		if logVersion == 0 {
			fmt.Sscanf(line, buildLogFileSignature, &logVersion)
			if logVersion < buildLogOldestSupportedVersion {
				os.Remove(path)
				// Don't report this as a failure. An empty build log will
				// cause us to rebuild the outputs anyway.
				return LoadSuccess, errors.New("build log version invalid, perhaps due to being too old; starting over")
			}
			continue
		}

		fields := strings.SplitN(line, "\t", 5)
		if len(fields) != 5 {
			continue
		}
		startTime, _ := strconv.Atoi(fields[0])
		endTime, _ := strconv.Atoi(fields[1])
		restatMtime, _ := strconv.ParseInt(fields[2], 10, 64)
		output := fields[3]

		entry := b.entries[output]
		if entry == nil {
			entry = &LogEntry{Output: output}
			b.entries[output] = entry
			uniqueEntryCount++
		}
		totalEntryCount++

		entry.StartTime = int32(startTime)
		entry.EndTime = int32(endTime)
		entry.MTime = restatMtime
		if logVersion >= 5 {
			entry.CommandHash, _ = strconv.ParseUint(fields[4], 16, 64)
		} else {
			entry.CommandHash = HashCommand(fields[4])
		}
	}

	// Decide whether it's time to rebuild the log:
	// - if we're upgrading versions
	// - if it's getting large
	const minCompactionEntryCount = 100
	const compactionRatio = 3
	if logVersion != 0 && logVersion < buildLogCurrentVersion {
		b.needsRecompaction = true
	} else if totalEntryCount > minCompactionEntryCount && totalEntryCount > uniqueEntryCount*compactionRatio {
		b.needsRecompaction = true
	}

	return LoadSuccess, nil
}

// LookupByOutput looks up a previously-run command by its output path.
func (b *BuildLog) LookupByOutput(path string) *LogEntry {
	return b.entries[path]
}

// writeBuildLogEntry serializes entry into a log file.
func writeBuildLogEntry(w io.Writer, entry *LogEntry) error {
	_, err := fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%x\n",
		entry.StartTime, entry.EndTime, entry.MTime, entry.Output, entry.CommandHash)
	return err
}

// Recompact rewrites the known log entries, throwing away old data, and
// atomically replaces the log via rename.
func (b *BuildLog) Recompact(path string, user BuildLogUser) error {
	defer metricRecord("build log recompact")()

	if err := b.Close(); err != nil {
		return err
	}
	t, err := renameio.TempFile("", path)
	if err != nil {
		return err
	}
	defer t.Cleanup()

	if _, err := fmt.Fprintf(t, buildLogFileSignature, buildLogCurrentVersion); err != nil {
		return err
	}

	var deadOutputs []string
	for _, output := range sortedEntryPaths(b.entries) {
		if user.IsPathDead(output) {
			deadOutputs = append(deadOutputs, output)
			continue
		}
		if err := writeBuildLogEntry(t, b.entries[output]); err != nil {
			return err
		}
	}
	for _, o := range deadOutputs {
		delete(b.entries, o)
	}

	return t.CloseAtomicallyReplace()
}

// Restat re-stats all outputs in the log, or only the given ones, and
// rewrites the log with the updated mtimes.
func (b *BuildLog) Restat(path string, di DiskInterface, outputs []string) error {
	defer metricRecord("build log restat")()

	if err := b.Close(); err != nil {
		return err
	}
	t, err := renameio.TempFile("", path)
	if err != nil {
		return err
	}
	defer t.Cleanup()

	if _, err := fmt.Fprintf(t, buildLogFileSignature, buildLogCurrentVersion); err != nil {
		return err
	}
	for _, output := range sortedEntryPaths(b.entries) {
		entry := b.entries[output]
		skip := len(outputs) > 0 && !containsString(outputs, entry.Output)
		if !skip {
			mtime, err := di.Stat(entry.Output)
			if err != nil {
				return err
			}
			entry.MTime = mtime
		}
		if err := writeBuildLogEntry(t, entry); err != nil {
			return err
		}
	}

	return t.CloseAtomicallyReplace()
}

func sortedEntryPaths(entries map[string]*LogEntry) []string {
	paths := make([]string, 0, len(entries))
	for p := range entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
