// Package version reports the build's version, set through ldflags:
//
//	go build -ldflags "-X git.home.luguber.info/inful/sitegraph/internal/version.Version=v0.3.0"
package version

import (
	"fmt"
	"runtime/debug"
)

var Version = "unknown"

var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String renders the version line printed by --version. Without ldflags the
// module version recorded by the toolchain is used when there is one.
func String() string {
	v := Version
	if v == "unknown" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
	}
	return fmt.Sprintf("sitegraph %s (commit %s, built %s)", v, GitCommit, BuildTime)
}
