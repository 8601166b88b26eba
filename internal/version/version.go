// Package version holds build information injected at link time.
package version

import "fmt"

// These are set via -ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info returns a human-readable version string.
func Info() string {
	return fmt.Sprintf("piiguard %s (commit %s, built %s)", Version, Commit, Date)
}
