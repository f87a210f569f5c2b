package version

import "fmt"

var (
	// Version is the semantic version of the binary. Overridden at build time.
	Version = "dev"
	// Commit is the git commit hash. Overridden at build time.
	Commit = "unknown"
	// BuildDate is the build timestamp. Overridden at build time.
	BuildDate = "unknown"
)

// UserAgent renders the outbound HTTP user agent for this build.
func UserAgent(app string) string {
	return fmt.Sprintf("%s/%s", app, Version)
}

// Summary is the multi-line build description printed by `sprout version`.
func Summary(app string) string {
	return fmt.Sprintf("%s %s\ncommit: %s\nbuilt: %s\n", app, Version, Commit, BuildDate)
}
