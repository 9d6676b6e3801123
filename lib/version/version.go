// Copyright 2026 The Fluxboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package version records the build identity stamped into fluxboard
// binaries at link time:
//
//	go build -ldflags "\
//	  -X github.com/Dasi-Technology/fluxboard-sub000/lib/version.Version=0.2.0 \
//	  -X github.com/Dasi-Technology/fluxboard-sub000/lib/version.GitCommit=$(git rev-parse --short HEAD)"
package version

import "fmt"

// Stamped via -ldflags; a plain `go build` leaves the defaults.
var (
	// Version is the release version, set by hand when tagging.
	Version = "0.1.0-dev"

	// GitCommit is the short SHA the binary was built from.
	GitCommit = "unknown"

	// GitDirty is "true" when the working tree had uncommitted changes.
	GitDirty = "false"

	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)

// Info renders the version line printed by --version.
func Info() string {
	commit := GitCommit
	if GitDirty == "true" {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s, %s)", Version, commit, BuildTime)
}
