package gerbang

// Version information for the gerbang library.
// These values can be overridden at build time using ldflags:
//
//	go build -ldflags "-X github.com/ambiyansyah-risyal/gerbang.Version=v1.2.3"
var (
	// Version is the current version of the library
	Version = "dev"

	// GitCommit is the git commit hash at build time
	GitCommit = "unknown"

	// BuildDate is the date when the binary was built
	BuildDate = "unknown"
)

// GetVersion returns the current version string
func GetVersion() string {
	return Version
}

// GetVersionInfo returns detailed version information
func GetVersionInfo() map[string]string {
	return map[string]string{
		"version":   Version,
		"gitCommit": GitCommit,
		"buildDate": BuildDate,
	}
}
