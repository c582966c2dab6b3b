// Package version holds build metadata stamped by the release pipeline.
package version

//nolint:revive // Overridden via -ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)
