package version

// Version information for grtags. BuildDate and GitCommit are set at build
// time:
//
//	go build -ldflags "-X github.com/standardbeagle/grtags/internal/version.GitCommit=$(git rev-parse --short HEAD)"
var (
	// Version is the current semantic version of grtags
	Version = "0.1.0"

	BuildDate = "development"
	GitCommit = "unknown"
)

// Info returns version information as a string
func Info() string {
	return Version
}

// FullInfo returns detailed version information
func FullInfo() string {
	return "grtags " + Version + " (commit: " + GitCommit + ", built: " + BuildDate + ")"
}
