// Package version reports the docrag build.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// Version is set at build time:
//
//	-ldflags "-X github.com/Aman-CERP/docrag/pkg/version.Version=v0.3.0"
var Version = "dev"

// Build metadata, also set via ldflags. When left unset they are filled
// from the VCS stamp the go tool embeds in the binary.
var (
	Commit = "unknown"
	Date   = "unknown"

	GoVersion = runtime.Version()
)

// BuildInfo is structured version information for JSON output.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

var (
	vcsOnce     sync.Once
	vcsModified bool
)

// fillFromVCS copies vcs.revision and vcs.time into Commit and Date when
// ldflags did not set them.
func fillFromVCS() {
	vcsOnce.Do(func() {
		bi, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if Commit == "unknown" && s.Value != "" {
					Commit = s.Value[:min(len(s.Value), 12)]
				}
			case "vcs.time":
				if Date == "unknown" && s.Value != "" {
					Date = s.Value
				}
			case "vcs.modified":
				vcsModified = s.Value == "true"
			}
		}
	})
}

// String returns a formatted version string with all build info.
func String() string {
	fillFromVCS()
	return fmt.Sprintf("docrag %s (commit: %s, built: %s, go: %s)", Version, Commit, Date, GoVersion)
}

// Short returns just the version string.
func Short() string {
	return Version
}

// GetInfo returns structured version information.
func GetInfo() BuildInfo {
	fillFromVCS()
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		Modified:  vcsModified,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}
