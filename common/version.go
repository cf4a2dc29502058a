// Copyright 2021-2023
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package common

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
)

// ProgramName is reported by the version command
const ProgramName = "pv-optimizer"

// set at link time by mage; see magefile.go
var (
	commitHash string
	buildDate  string
	vendorInfo string
)

// Version is a SemVer 2.0.0 build version
type Version struct {
	Major  int
	Minor  int
	Patch  int
	Suffix string // blank for release builds
}

// BuildInfo describes the running binary
type BuildInfo struct {
	Program      string   `json:"program"`
	Version      string   `json:"version"`
	OSArch       string   `json:"osArch"`
	GoVersion    string   `json:"goVersion"`
	BuildDate    string   `json:"buildDate"`
	Commit       string   `json:"commit"`
	Vendor       string   `json:"vendor,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}

func (v Version) String() string {
	res := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Suffix == "" {
		return res
	}

	res += "-" + v.Suffix
	if commitHash != "" {
		res += "+" + strings.ToLower(commitHash)
	}
	return res
}

// Info collects the build metadata; dependencies are only listed when withDeps is set
func Info(withDeps bool) BuildInfo {
	info := BuildInfo{
		Program:   ProgramName,
		Version:   "v" + CurrentVersion.String(),
		OSArch:    runtime.GOOS + "/" + runtime.GOARCH,
		GoVersion: runtime.Version(),
		BuildDate: buildDate,
		Commit:    commitHash,
		Vendor:    vendorInfo,
	}
	if info.BuildDate == "" {
		info.BuildDate = "unknown"
	}
	if withDeps {
		info.Dependencies = GetDependencyList()
	}
	return info
}

// String renders the build info the way `pv-optimizer version` prints it
func (info BuildInfo) String() string {
	s := &strings.Builder{}
	fmt.Fprintf(s, "%s %s %s\n\nBuild Date: %s\nCommit: %s\nBuilt with: %s",
		info.Program, info.Version, info.OSArch, info.BuildDate, info.Commit, info.GoVersion)
	if info.Vendor != "" {
		fmt.Fprintf(s, "\nVendor Info: %s", info.Vendor)
	}
	if len(info.Dependencies) > 0 {
		fmt.Fprintf(s, "\n\nDependencies:\n\n%s", strings.Join(info.Dependencies, "\n"))
	}
	return s.String()
}

// GetDependencyList returns a sorted dependency list in the format package="version"
func GetDependencyList() []string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}

	deps := make([]string, 0, len(bi.Deps))
	for _, dep := range bi.Deps {
		deps = append(deps, fmt.Sprintf("%s=%q", dep.Path, dep.Version))
	}
	sort.Strings(deps)

	return deps
}
