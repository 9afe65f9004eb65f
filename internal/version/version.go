package version

import "fmt"

// These variables are set at build time via ldflags
var (
	Commit    = "unknown"
	BuildTime = "unknown"
)

// String returns the version string (commit-hash based, no semver)
func String() string {
	return fmt.Sprintf("quill dev (commit: %s, built: %s)", shortCommit(), BuildTime)
}

// Info returns the version string with the schema version the binary targets.
func Info(schemaVersion int) string {
	return fmt.Sprintf("%s schema v%d", String(), schemaVersion)
}

func shortCommit() string {
	if len(Commit) > 7 {
		return Commit[:7]
	}
	return Commit
}
