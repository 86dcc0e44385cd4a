// Package buildinfo carries the version stamped into the binary.
package buildinfo

import (
	"fmt"
	"time"
)

// Set via -ldflags at build time
var (
	Version    = "dev"
	BuildTime  string // when the binary was compiled
	CommitHash string // short git commit hash
)

// StartTime is recorded when the process starts
var StartTime = time.Now().UTC()

// Info is the build and uptime report served by /health.
type Info struct {
	Version   string    `json:"version"`
	Commit    string    `json:"commit,omitempty"`
	BuildTime string    `json:"build_time,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Current returns the stamped build information.
func Current() Info {
	return Info{Version: Version, Commit: CommitHash, BuildTime: BuildTime, StartedAt: StartTime}
}

// String formats the version for the CLI, e.g. "1.2.0 (abc1234, 2026-01-02T10:00:00Z)".
func (i Info) String() string {
	switch {
	case i.Commit != "" && i.BuildTime != "":
		return fmt.Sprintf("%s (%s, %s)", i.Version, i.Commit, i.BuildTime)
	case i.Commit != "":
		return fmt.Sprintf("%s (%s)", i.Version, i.Commit)
	}
	return i.Version
}
