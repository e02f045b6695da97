// Package version reports the build of the catalogbuilder binary.
package version

import "fmt"

// Version is set at build time:
// go build -ldflags "-X github.com/open-filament/catalogbuilder/internal/version.Version=v1.2.0".
var Version = "unknown"

// Build metadata, also set through ldflags.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String renders the version line printed by --version.
func String() string {
	return fmt.Sprintf("catalogbuilder %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
