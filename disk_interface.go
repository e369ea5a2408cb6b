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
	"io/fs"
	"os"
	"strings"
)

// TimeStamp is a file modification time in nanoseconds.
//
//   -1: the file hasn't been examined (or an error occurred)
//   0:  the file doesn't exist
//   >0: the file's actual mtime
type TimeStamp = int64

// FileReader is the minimum interface needed just to read files.
//
// ReadFile returns the content with a terminating zero byte appended; the
// lexer and the depfile parser rely on the sentinel. A missing file is
// reported with an error matching fs.ErrNotExist.
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

// DiskInterface is the interface for accessing the disk.
//
// Abstract so it can be mocked out for tests. The real implementation is
// RealDiskInterface.
type DiskInterface interface {
	FileReader

	// Stat stats a path, returning its mtime, 0 if the file doesn't exist,
	// or -1 together with an error.
	Stat(path string) (TimeStamp, error)

	// WriteFile creates a file with the given contents.
	WriteFile(path, contents string) error

	// MakeDir creates a directory; nil if it already exists.
	MakeDir(path string) error

	// RemoveFile removes a file. A missing file is reported with an error
	// matching fs.ErrNotExist.
	RemoveFile(path string) error
}

// dirName returns everything up to the final path separator, honoring both
// separator styles like the canonicalizer does.
func dirName(path string) string {
	slashPos := strings.LastIndexAny(path, "/\\")
	if slashPos == -1 {
		return ""
	}
	for slashPos > 0 && isPathSeparator(path[slashPos-1]) {
		slashPos--
	}
	return path[:slashPos]
}

// MakeDirs creates all the parent directories of path, like mkdir -p
// `dirname path`.
func MakeDirs(d DiskInterface, path string) error {
	dir := dirName(path)
	if dir == "" {
		return nil // Reached root; assume it's there.
	}
	mtime, err := d.Stat(dir)
	if err != nil {
		return err
	}
	if mtime > 0 {
		return nil // Exists already; we're done.
	}
	// Directory doesn't exist.  Try creating its parent first.
	if err := MakeDirs(d, dir); err != nil {
		return err
	}
	return d.MakeDir(dir)
}

// RealDiskInterface is the implementation of DiskInterface that actually
// hits the disk.
type RealDiskInterface struct {
	// Whether stat results can be cached for the duration of the run.
	useCache bool

	cache map[string]TimeStamp
}

func NewRealDiskInterface() RealDiskInterface {
	return RealDiskInterface{}
}

// Stat implements DiskInterface. Results are cached within a single build
// run while AllowStatCache(true) is in effect.
func (r *RealDiskInterface) Stat(path string) (TimeStamp, error) {
	defer metricRecord("node stat")()
	if r.useCache {
		if mtime, ok := r.cache[path]; ok {
			return mtime, nil
		}
	}
	mtime, err := statSingleFile(path)
	if err != nil {
		return -1, err
	}
	if r.useCache {
		r.cache[path] = mtime
	}
	return mtime, nil
}

func statSingleFile(path string) (TimeStamp, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return -1, fmt.Errorf("stat(%s): %w", path, err)
	}
	mtime := fi.ModTime().UnixNano()
	// Some users (Flatpak) set mtime to 0; this should be harmless and
	// avoids conflicting with our return value of 0 meaning the file does
	// not exist.
	if mtime == 0 {
		mtime = 1
	}
	return mtime, nil
}

// AllowStatCache toggles whether stat results may be cached. Disabling
// drops the current cache.
func (r *RealDiskInterface) AllowStatCache(allow bool) {
	r.useCache = allow
	if r.useCache {
		if r.cache == nil {
			r.cache = map[string]TimeStamp{}
		}
	} else {
		r.cache = nil
	}
}

// WriteFile implements DiskInterface.
func (r *RealDiskInterface) WriteFile(path, contents string) error {
	if err := os.WriteFile(path, []byte(contents), 0o666); err != nil {
		return fmt.Errorf("WriteFile(%s): %w", path, err)
	}
	return nil
}

// MakeDir implements DiskInterface.
func (r *RealDiskInterface) MakeDir(path string) error {
	if err := os.Mkdir(path, 0o777); err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("mkdir(%s): %w", path, err)
	}
	// A new directory invalidates any cached missing entry.
	if r.useCache {
		delete(r.cache, path)
	}
	return nil
}

// ReadFile implements FileReader.
func (r *RealDiskInterface) ReadFile(path string) ([]byte, error) {
	c, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	// The lexer and depfile parser want a terminating zero byte.
	return append(c, 0), nil
}

// RemoveFile implements DiskInterface.
func (r *RealDiskInterface) RemoveFile(path string) error {
	if r.useCache {
		delete(r.cache, path)
	}
	err := os.Remove(path)
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		return fmt.Errorf("remove(%s): %w", path, fs.ErrNotExist)
	}
	return fmt.Errorf("remove(%s): %w", path, err)
}
