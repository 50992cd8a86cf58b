// Package version reports the build's version, commit and date.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Set at build time with -ldflags "-X github.com/mrz1836/warden/internal/version.Version=...".
//
//nolint:gochecknoglobals // ldflags targets
var (
	Version = ""
	Commit  = ""
	Date    = ""
)

const (
	devVersion = "dev"
	unknown    = "unknown"
)

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the build info. Values missing from ldflags fall back to the
// module and VCS data embedded by the Go toolchain.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		fillFromBuild(&info, bi)
	}
	return info.withDefaults()
}

func fillFromBuild(info *Info, bi *debug.BuildInfo) {
	if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Date == "" {
				info.Date = s.Value
			}
		}
	}
}

func (i Info) withDefaults() Info {
	if i.Version == "" {
		i.Version = devVersion
	}
	if i.Commit == "" {
		i.Commit = unknown
	}
	if len(i.Commit) > 12 {
		i.Commit = i.Commit[:12]
	}
	if i.Date == "" {
		i.Date = unknown
	}
	return i
}

// String formats the info as "v1.2.3 (commit: abc1234, built: 2026-01-15)".
func (i Info) String() string {
	i = i.withDefaults()
	return fmt.Sprintf("%s (commit: %s, built: %s)", i.Version, i.Commit, i.Date)
}

// IsDev reports whether this is an unreleased build.
func (i Info) IsDev() bool {
	return i.Version == "" || i.Version == devVersion
}

// UserAgent is the User-Agent sent to remote services.
func UserAgent() string {
	return "warden/" + strings.TrimPrefix(Get().Version, "v")
}
