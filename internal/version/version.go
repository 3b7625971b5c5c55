// Package version reports how the fleetscope binary was built. Release builds
// set the variables with -ldflags; other builds fall back to the module and
// VCS data the Go toolchain embeds.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/HerbHall/fleetscope/internal/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// BuildInfo is the JSON form served by the health endpoint.
type BuildInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get merges the ldflags values with embedded build settings.
func Get() BuildInfo {
	bi := BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return bi
	}
	if bi.Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		bi.Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if bi.GitCommit == "unknown" {
				bi.GitCommit = s.Value
			}
		case "vcs.time":
			if bi.BuildDate == "unknown" {
				bi.BuildDate = s.Value
			}
		}
	}
	return bi
}

// Info is the one-line form printed by "fleetscope version".
func Info() string {
	bi := Get()
	return fmt.Sprintf("fleetscope %s (commit: %s, built: %s, %s, %s)",
		bi.Version, bi.GitCommit, bi.BuildDate, bi.GoVersion, bi.Platform)
}

// Short returns the version alone.
func Short() string {
	return Get().Version
}
