// Package buildinfo reports version and build metadata. Values come
// from -ldflags when the release build sets them, and otherwise from
// the VCS stamps the Go toolchain embeds.
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

// Set at build time via -ldflags "-X".
var (
	Version   = "dev"
	GitCommit = "unknown"
	GitBranch = "unknown"
	BuildTime = "unknown"
)

var startTime = time.Now()

// Info is a snapshot of build metadata.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	GitBranch string `json:"git_branch"`
	BuildTime string `json:"build_time"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	Uptime    string `json:"uptime,omitempty"`
}

// Current returns the build metadata, without uptime.
func Current() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		GitBranch: GitBranch,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.fillFromVCS(bi.Settings)
	}
	return info
}

// Runtime returns the build metadata with process uptime.
func Runtime() Info {
	info := Current()
	info.Uptime = Uptime().String()
	return info
}

// fillFromVCS replaces fields ldflags left at their defaults.
func (i *Info) fillFromVCS(settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if i.GitCommit == "unknown" && s.Value != "" {
				i.GitCommit = s.Value[:min(len(s.Value), 12)]
			}
		case "vcs.time":
			if i.BuildTime == "unknown" && s.Value != "" {
				i.BuildTime = s.Value
			}
		case "vcs.modified":
			i.Modified = s.Value == "true"
		}
	}
}

// Fields returns the metadata as ordered label and value pairs for
// text output.
func (i Info) Fields() [][2]string {
	fields := [][2]string{
		{"version", i.Version},
		{"git_commit", i.GitCommit},
		{"git_branch", i.GitBranch},
		{"build_time", i.BuildTime},
		{"go_version", i.GoVersion},
		{"os", i.OS},
		{"arch", i.Arch},
	}
	if i.Uptime != "" {
		fields = append(fields, [2]string{"uptime", i.Uptime})
	}
	return fields
}

// Uptime returns the time since process start, to the second.
func Uptime() time.Duration {
	return time.Since(startTime).Truncate(time.Second)
}

// UserAgent returns the User-Agent sent on outbound HTTP requests.
func UserAgent() string {
	return "CineBot/" + Version
}

// String returns a one-line summary for logs and the version command.
func String() string {
	i := Current()
	s := fmt.Sprintf("CineBot %s (%s@%s) built %s", i.Version, i.GitCommit, i.GitBranch, i.BuildTime)
	if i.Modified {
		s += " [modified]"
	}
	return s
}
