// Package version carries build metadata stamped through -ldflags.
package version

import "fmt"

var (
	// Version is the semantic version of the watchtower binary.
	Version = "dev"
	// Commit is the git commit hash the binary was built from.
	Commit = "unknown"
	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)

// String renders the stamped build info on a single line, for startup
// logs.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate)
}
