package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String renders the line printed by the -version flag.
func String() string {
	return fmt.Sprintf("astroreduce %s (%s, built %s)", Version, GitSHA, BuildTime)
}
