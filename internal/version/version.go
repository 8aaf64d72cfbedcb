// Package version reports build metadata injected with -ldflags.
package version

import (
	"fmt"
	"runtime"
)

// Set with -ldflags "-X github.com/smazurov/gigecam/internal/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info contains version and build metadata.
type Info struct {
	Version   string `json:"version" example:"0.3.0" doc:"Release version"`
	GitCommit string `json:"git_commit" example:"4f2a9c1" doc:"Source commit"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.25.1" doc:"Go toolchain"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"OS and architecture"`
}

// Get returns version and build information.
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// String is the one-line form printed by --version.
func String() string {
	if len(GitCommit) > 7 {
		return fmt.Sprintf("gigecam %s (%s)", Version, GitCommit[:7])
	}
	return fmt.Sprintf("gigecam %s (%s)", Version, GitCommit)
}
