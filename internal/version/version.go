// Package version carries build identification, set via -ldflags at
// release time.
package version

var (
	Version = "dev"
	Commit  = "unknown"
	Built   = ""
)
