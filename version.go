// Copyright 2013 Google Inc. All Rights Reserved.
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
	"strconv"
	"strings"
)

// Version is the version number of the current release.
//
// The manifest language is ninja's, so ninja_required_version declarations
// in manifests are checked against this number.
const Version = "1.10.2"

// parseVersion splits the major/minor components out of a version string,
// ignoring any trailing non-numeric suffix ("1.10.2.git" parses as 1.10).
func parseVersion(version string) (int, int) {
	parts := strings.SplitN(version, ".", 3)
	major, _ := strconv.Atoi(leadingDigits(parts[0]))
	minor := 0
	if len(parts) > 1 {
		minor, _ = strconv.Atoi(leadingDigits(parts[1]))
	}
	return major, minor
}

func leadingDigits(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return s[:i]
		}
	}
	return s
}

// checkRequiredVersion returns an error if the manifest demands a language
// version newer than this binary implements. A requirement with an older
// major version only warns; an older minor version of the same major is
// accepted without a warning.
func checkRequiredVersion(required string) error {
	binMajor, binMinor := parseVersion(Version)
	fileMajor, fileMinor := parseVersion(required)
	if binMajor > fileMajor {
		warningf("nobu version (%s) greater than ninja_required_version (%s); versions may be incompatible", Version, required)
		return nil
	}
	if binMajor < fileMajor || (binMajor == fileMajor && binMinor < fileMinor) {
		return fmt.Errorf("nobu version (%s) incompatible with build file ninja_required_version version (%s)", Version, required)
	}
	return nil
}
