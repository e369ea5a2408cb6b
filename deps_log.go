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
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/renameio"
)

// Deps is the dynamic input list recorded for one output, together with the
// output mtime at which it was recorded.
type Deps struct {
	MTime TimeStamp
	Nodes []*Node
}

// DepsLog collects dependency information extracted from command output
// (e.g. header dependencies for C source) at build time and uses it for
// subsequent builds.
//
// The on-disk format is based on two primary design constraints:
//   - it must be written to as a stream (during the build, which may be
//     interrupted);
//   - it can be read all at once on startup.
//
// The file is structured as a version header followed by a sequence of
// records. Each record is either a path string or a dependency list.
// Numbering the path strings in file order gives them dense integer ids.
// A dependency list maps an output id to a list of input ids.
//
// Concretely, a record is:
//   - four bytes record length, high bit indicates record type (but max
//     record sizes are capped at 512kB)
//   - path records contain the string name of the path, followed by up to 3
//     padding bytes to align on 4 byte boundaries, followed by the one's
//     complement of the expected index of the record (to detect concurrent
//     writes of multiple processes to the log).
//   - dependency records are an array of 4-byte integers
//     [output path id, output path mtime (lower 4 bytes), output path mtime
//     (upper 4 bytes), input path id, input path id...]
//     (The mtime is compared against the on-disk output path mtime to
//     verify the stored data is up-to-date.)
//
// If two records reference the same output the latter one in the file wins,
// allowing updates to just be appended to the file. A separate repacking
// step can run occasionally to remove dead records.
type DepsLog struct {
	needsRecompaction bool
	file              *os.File
	filePath          string

	// Maps id -> Node.
	nodes []*Node
	// Maps id -> deps of that id.
	deps []*Deps
}

const (
	depsLogFileSignature  = "# nobudeps\n"
	depsLogCurrentVersion = uint32(4)

	// Record sizes are capped well below the full 32 bits.
	depsLogMaxRecordSize = (1 << 19) - 1
)

// OpenForWrite prepares writing to the log file without actually opening
// it; that happens lazily on the first write.
func (d *DepsLog) OpenForWrite(path string) error {
	if d.needsRecompaction {
		if err := d.Recompact(path); err != nil {
			return err
		}
	}
	if d.file != nil {
		panic("deps log already open")
	}
	d.filePath = path
	return nil
}

// RecordDeps records the dependency list for node, assigning path ids as
// needed. Nothing is written when the log already holds the same data.
func (d *DepsLog) RecordDeps(node *Node, mtime TimeStamp, nodes []*Node) error {
	// Track whether there's any new data to be recorded.
	madeChange := false

	// Assign ids to all nodes that are missing one.
	if node.ID < 0 {
		if err := d.recordID(node); err != nil {
			return err
		}
		madeChange = true
	}
	for _, n := range nodes {
		if n.ID < 0 {
			if err := d.recordID(n); err != nil {
				return err
			}
			madeChange = true
		}
	}

	// See if the new data is different than the existing data, if any.
	if !madeChange {
		deps := d.GetDeps(node)
		if deps == nil || deps.MTime != mtime || len(deps.Nodes) != len(nodes) {
			madeChange = true
		} else {
			for i, n := range nodes {
				if deps.Nodes[i] != n {
					madeChange = true
					break
				}
			}
		}
	}

	// Don't write anything if there's no new info.
	if !madeChange {
		return nil
	}

	// Update on-disk representation.
	size := 4 * (1 + 2 + len(nodes))
	if size > depsLogMaxRecordSize {
		return errors.New("deps record exceeds maximum size")
	}
	if err := d.openForWriteIfNeeded(); err != nil {
		return err
	}
	if d.file != nil {
		buf := make([]byte, 0, 4+size)
		buf = appendUint32(buf, uint32(size)|0x80000000) // Deps record: high bit set.
		buf = appendUint32(buf, uint32(node.ID))
		buf = appendUint32(buf, uint32(mtime&0xffffffff))
		buf = appendUint32(buf, uint32((mtime>>32)&0xffffffff))
		for _, n := range nodes {
			buf = appendUint32(buf, uint32(n.ID))
		}
		if _, err := d.file.Write(buf); err != nil {
			return err
		}
	}

	// Update in-memory representation.
	deps := &Deps{MTime: mtime, Nodes: append([]*Node(nil), nodes...)}
	d.updateDeps(node.ID, deps)
	return nil
}

// Close flushes and closes the log; the file is created even when nothing
// was recorded.
func (d *DepsLog) Close() error {
	err := d.openForWriteIfNeeded()
	if d.file != nil {
		if err2 := d.file.Close(); err == nil {
			err = err2
		}
	}
	d.file = nil
	return err
}

func (d *DepsLog) openForWriteIfNeeded() error {
	if d.file != nil || d.filePath == "" {
		return nil
	}
	f, err := os.OpenFile(d.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o666)
	if err != nil {
		return err
	}
	d.file = f
	pos, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return err
	}
	if pos == 0 {
		if _, err := f.WriteString(depsLogFileSignature); err != nil {
			return err
		}
		if _, err := f.Write(appendUint32(nil, depsLogCurrentVersion)); err != nil {
			return err
		}
	}
	return nil
}

// Load loads the on-disk log into memory, interning paths into state. A
// non-nil error together with LoadSuccess is a warning: either the log had
// an unrecognized signature or version and nothing was loaded, or it was
// recovered by truncating at the first corrupt record.
func (d *DepsLog) Load(path string, state *State) (LoadStatus, error) {
	defer metricRecord("deps log load")()
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return LoadNotFound, nil
		}
		return LoadError, err
	}

	validHeader := false
	offset := len(depsLogFileSignature) + 4
	if len(content) >= offset &&
		string(content[:len(depsLogFileSignature)]) == depsLogFileSignature {
		version := binary.LittleEndian.Uint32(content[len(depsLogFileSignature):offset])
		validHeader = version == depsLogCurrentVersion
	}
	if !validHeader {
		os.Remove(path)
		// Don't report this as a failure. An empty deps log will cause us
		// to rebuild the outputs anyway.
		return LoadSuccess, errors.New("bad deps log signature or version; starting over")
	}

	readFailed := false
	uniqueDepRecordCount := 0
	totalDepRecordCount := 0
	for {
		if offset == len(content) {
			break
		}
		if len(content)-offset < 4 {
			readFailed = true
			break
		}
		size := binary.LittleEndian.Uint32(content[offset : offset+4])
		isDeps := size>>31 != 0
		size = size & 0x7FFFFFFF
		if size > depsLogMaxRecordSize || len(content)-offset-4 < int(size) {
			readFailed = true
			break
		}
		record := content[offset+4 : offset+4+int(size)]

		if isDeps {
			if size%4 != 0 || size < 12 {
				readFailed = true
				break
			}
			outID := int32(binary.LittleEndian.Uint32(record))
			mtime := TimeStamp(uint64(binary.LittleEndian.Uint32(record[8:]))<<32 |
				uint64(binary.LittleEndian.Uint32(record[4:])))
			depsCount := int(size)/4 - 3

			deps := &Deps{MTime: mtime, Nodes: make([]*Node, depsCount)}
			ok := true
			for i := 0; i < depsCount; i++ {
				id := int32(binary.LittleEndian.Uint32(record[12+4*i:]))
				if int(id) >= len(d.nodes) || d.nodes[id] == nil {
					ok = false
					break
				}
				deps.Nodes[i] = d.nodes[id]
			}
			if !ok || int(outID) >= len(d.nodes) || d.nodes[outID] == nil {
				readFailed = true
				break
			}

			totalDepRecordCount++
			if !d.updateDeps(outID, deps) {
				uniqueDepRecordCount++
			}
		} else {
			pathSize := int(size) - 4
			if pathSize <= 0 {
				readFailed = true
				break
			}
			// There can be up to 3 bytes of padding.
			for i := 0; i < 3 && pathSize > 0 && record[pathSize-1] == 0; i++ {
				pathSize--
			}
			subpath := string(record[:pathSize])
			// It is not necessary to pass in a correct slashBits here. It
			// will either be a Node that's in the manifest (in which case it
			// will already have a correct slashBits that GetNode will look
			// up), or it is an implicit dependency from a .d which does not
			// affect the build command (and so need not have its slashes
			// maintained).
			node := state.GetNode(subpath, 0)

			// Check that the expected index matches the actual index. This
			// can only happen if two processes write to the same deps log
			// concurrently. (This uses unary complement to make the checksum
			// look less like a dependency record entry.)
			checksum := binary.LittleEndian.Uint32(record[int(size)-4:])
			expectedID := ^checksum
			id := uint32(len(d.nodes))
			if id != expectedID || node.ID >= 0 {
				readFailed = true
				break
			}
			node.ID = int32(id)
			d.nodes = append(d.nodes, node)
		}
		offset += 4 + int(size)
	}

	if readFailed {
		// An error occurred while loading; try to recover by truncating the
		// file to the last fully-read record.
		if err := os.Truncate(path, int64(offset)); err != nil {
			return LoadError, err
		}
		// The truncate succeeded; the load error is only a warning because
		// the build can proceed.
		return LoadSuccess, errors.New("premature end of file; recovering")
	}

	// Rebuild the log if there are too many dead records.
	const minCompactionEntryCount = 1000
	const compactionRatio = 3
	if totalDepRecordCount > minCompactionEntryCount &&
		totalDepRecordCount > uniqueDepRecordCount*compactionRatio {
		d.needsRecompaction = true
	}

	return LoadSuccess, nil
}

// GetDeps returns the recorded deps for node, or nil.
func (d *DepsLog) GetDeps(node *Node) *Deps {
	// Abort if the node has no id (never referenced in the deps) or if
	// there's no deps recorded for the node.
	if node.ID < 0 || int(node.ID) >= len(d.deps) {
		return nil
	}
	return d.deps[node.ID]
}

// GetFirstReverseDepsNode returns the first output whose recorded deps
// include node, for "path^" target resolution.
func (d *DepsLog) GetFirstReverseDepsNode(node *Node) *Node {
	for id := 0; id < len(d.deps); id++ {
		deps := d.deps[id]
		if deps == nil {
			continue
		}
		for _, n := range deps.Nodes {
			if n == node {
				return d.nodes[id]
			}
		}
	}
	return nil
}

// Recompact rewrites the known log entries, throwing away old data, and
// atomically replaces the log via rename.
func (d *DepsLog) Recompact(path string) error {
	defer metricRecord("deps log recompact")()

	if err := d.Close(); err != nil {
		return err
	}

	t, err := renameio.TempFile("", path)
	if err != nil {
		return err
	}
	defer t.Cleanup()
	if _, err := t.WriteString(depsLogFileSignature); err != nil {
		return err
	}
	if _, err := t.Write(appendUint32(nil, depsLogCurrentVersion)); err != nil {
		return err
	}

	newLog := DepsLog{file: t.File}

	// Clear all known ids so that new ones can be reassigned. The new
	// indices will refer to the ordering in the new log, not in the current
	// one.
	for _, n := range d.nodes {
		n.ID = -1
	}

	// Write out all deps again.
	for oldID := 0; oldID < len(d.deps); oldID++ {
		deps := d.deps[oldID]
		if deps == nil { // If nodes[oldID] is a leaf, it has no deps.
			continue
		}
		if !IsDepsEntryLiveFor(d.nodes[oldID]) {
			continue
		}
		if err := newLog.RecordDeps(d.nodes[oldID], deps.MTime, deps.Nodes); err != nil {
			return err
		}
	}

	// All nodes now have ids that refer to the new log, so steal its data.
	d.deps = newLog.deps
	d.nodes = newLog.nodes

	return t.CloseAtomicallyReplace()
}

// IsDepsEntryLiveFor reports whether the deps entry for a node is still
// reachable from the manifest.
//
// The deps log can contain deps entries for files that were built in the
// past but are no longer part of the manifest. This function is slow, don't
// call it from code that runs on every build.
func IsDepsEntryLiveFor(node *Node) bool {
	// Skip entries that don't have in-edges or whose edges don't have a
	// "deps" attribute. They were in the deps log from previous builds, but
	// the files they were for were removed from the build and their deps
	// entries are no longer needed.
	// (Without the check for "deps", a chain of two or more nodes that each
	// had deps wouldn't be collected in a single recompaction.)
	return node.InEdge != nil && node.InEdge.GetBinding("deps") != ""
}

// updateDeps updates the in-memory representation. Returns true when a
// prior deps record was replaced.
func (d *DepsLog) updateDeps(outID int32, deps *Deps) bool {
	for int(outID) >= len(d.deps) {
		d.deps = append(d.deps, nil)
	}
	replaced := d.deps[outID] != nil
	d.deps[outID] = deps
	return replaced
}

// recordID writes a path record for node, assigning it the next dense id.
func (d *DepsLog) recordID(node *Node) error {
	if node.Path == "" {
		return errors.New("node with empty path")
	}
	pathSize := len(node.Path)
	padding := (4 - pathSize%4) % 4 // Pad path to 4 byte boundary.

	size := pathSize + padding + 4
	if size > depsLogMaxRecordSize {
		return fmt.Errorf("path record for '%s' exceeds maximum size", node.Path)
	}
	if err := d.openForWriteIfNeeded(); err != nil {
		return err
	}
	id := uint32(len(d.nodes))
	if d.file != nil {
		buf := make([]byte, 0, 4+size)
		buf = appendUint32(buf, uint32(size))
		buf = append(buf, node.Path...)
		for i := 0; i < padding; i++ {
			buf = append(buf, 0)
		}
		buf = appendUint32(buf, ^id)
		if _, err := d.file.Write(buf); err != nil {
			return err
		}
	}

	node.ID = int32(id)
	d.nodes = append(d.nodes, node)
	return nil
}

func appendUint32(b []byte, v uint32) []byte {
	var scratch [4]byte
	binary.LittleEndian.PutUint32(scratch[:], v)
	return append(b, scratch[:]...)
}
