// Package version reports the build identity of the srcdoc binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// Set at build time with -ldflags "-X github.com/conneroisu/srcdoc/internal/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string    `json:"version" yaml:"version"`
	GitCommit string    `json:"git_commit" yaml:"git_commit"`
	BuildTime time.Time `json:"build_time,omitempty" yaml:"build_time,omitempty"`
	GoVersion string    `json:"go_version" yaml:"go_version"`
	Platform  string    `json:"platform" yaml:"platform"`
	Dirty     bool      `json:"dirty,omitempty" yaml:"dirty,omitempty"`
}

// GetBuildInfo collects the linker-provided values, falling back to the VCS
// settings the Go toolchain embeds.
func GetBuildInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: parseBuildTime(BuildTime),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}

	embedded, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}

	if info.Version == "dev" && embedded.Main.Version != "" && embedded.Main.Version != "(devel)" {
		info.Version = embedded.Main.Version
	}

	for _, setting := range embedded.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.GitCommit == "unknown" {
				info.GitCommit = setting.Value
			}
		case "vcs.time":
			if info.BuildTime.IsZero() {
				info.BuildTime = parseBuildTime(setting.Value)
			}
		case "vcs.modified":
			info.Dirty = setting.Value == "true"
		}
	}

	return info
}

// Short returns a one-line version such as "v1.2.0 (abc1234)".
func (b BuildInfo) Short() string {
	if len(b.GitCommit) < 7 || b.GitCommit == "unknown" {
		return b.Version
	}

	if b.Version == "dev" {
		return "dev-" + b.GitCommit[:7]
	}

	return fmt.Sprintf("%s (%s)", b.Version, b.GitCommit[:7])
}

// String returns the multi-line form printed by `srcdoc version`.
func (b BuildInfo) String() string {
	lines := []string{"srcdoc " + b.Short()}

	if !b.BuildTime.IsZero() {
		lines = append(lines, "built:    "+b.BuildTime.Format(time.RFC3339))
	}
	lines = append(lines, "go:       "+b.GoVersion, "platform: "+b.Platform)
	if b.Dirty {
		lines = append(lines, "dirty:    true")
	}

	return strings.Join(lines, "\n")
}

// GetShortVersion returns the short version of the running binary.
func GetShortVersion() string {
	return GetBuildInfo().Short()
}

func parseBuildTime(value string) time.Time {
	if value == "" || value == "unknown" {
		return time.Time{}
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}

	return time.Time{}
}
