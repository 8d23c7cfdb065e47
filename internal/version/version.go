// Package version exposes the build identity stamped into the server
// binary. Release builds override the defaults with -ldflags; a plain
// go build reports "dev".
package version

var (
	// Version is the release tag, or "dev" for local builds.
	Version = "dev"

	// GitCommit is the short hash of the commit the binary was built from.
	GitCommit = "unknown"

	// BuildTime is when the binary was built, RFC3339.
	BuildTime = "unknown"
)

// VersionInfo is the build identity as reported on the health endpoints.
type VersionInfo struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildTime string `json:"build_time"`
}

func Info() VersionInfo {
	return VersionInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
	}
}
