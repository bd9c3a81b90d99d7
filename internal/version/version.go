package version

import (
	"fmt"
	"runtime/debug"
)

// Set through -ldflags "-X twilight-stack/internal/version.Version=...".
var (
	Version = "dev"
	Commit  = ""
	Date    = "unknown"
)

// Revision returns the commit the binary was built from. It falls back to
// the VCS stamp the Go toolchain embeds when no ldflags value was given.
func Revision() string {
	if Commit != "" {
		return Commit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "none"
	}
	var rev string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev == "" {
		return "none"
	}
	if len(rev) > 7 {
		rev = rev[:7]
	}
	if dirty {
		rev += "-dirty"
	}
	return rev
}

func Full() string {
	return fmt.Sprintf("twilight-streamer %s, commit %s, built at %s", Version, Revision(), Date)
}
