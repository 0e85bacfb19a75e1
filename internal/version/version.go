// Package version reports build metadata for the jibby binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/soyeahso/jibby/internal/version.Version=1.0.0".
// Commit and Date fall back to the VCS stamp embedded by the go tool.
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

// Build describes the running binary.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

// Current merges the ldflags values with the embedded build info.
func Current() Build {
	b := Build{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		fillFromSettings(&b, info.Settings)
	}
	if b.Commit == "" {
		b.Commit = "unknown"
	}
	if b.Date == "" {
		b.Date = "unknown"
	}
	return b
}

func fillFromSettings(b *Build, settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == "" {
				b.Commit = s.Value
			}
		case "vcs.time":
			if b.Date == "" {
				b.Date = s.Value
			}
		case "vcs.modified":
			b.Modified = s.Value == "true"
		}
	}
}

// String renders b on one line for `jibby version`.
func (b Build) String() string {
	commit := short(b.Commit)
	if b.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("jibby %s (commit: %s, built: %s, %s, %s)",
		b.Version, commit, b.Date, b.GoVersion, b.Platform)
}

func short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}

// UserAgent is sent on outbound provider requests.
func UserAgent() string {
	return "jibby/" + Version + " (" + runtime.GOOS + ")"
}
