// Package version exposes build metadata stamped in through ldflags.
package version

import (
	"fmt"
	"runtime/debug"
)

// Build-time variables set by ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns version, commit and build date. Unstamped builds fall back
// to the module version and VCS settings recorded by the Go toolchain.
func Info() (string, string, string) {
	v, commit, date := Version, GitCommit, BuildDate
	if v != "dev" {
		return v, commit, date
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return v, commit, date
	}
	if mv := bi.Main.Version; mv != "" && mv != "(devel)" {
		v = mv
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if commit == "unknown" && s.Value != "" {
				commit = s.Value
			}
		case "vcs.time":
			if date == "unknown" && s.Value != "" {
				date = s.Value
			}
		}
	}
	return v, commit, date
}

// String renders a one-line version banner.
func String() string {
	v, commit, date := Info()
	if len(commit) > 12 {
		commit = commit[:12]
	}
	return fmt.Sprintf("idscan %s (commit %s, built %s)", v, commit, date)
}
