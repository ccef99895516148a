// Package version exposes the build identity stamped into the sync client
// binary, so the console harness and bug reports can state exactly which
// build was talking to the server.
package version

// Stamped at build time, e.g.:
//
//	go build -ldflags "-X github.com/clinicdesk/realtime/internal/version.Version=1.0.0 \
//	                   -X github.com/clinicdesk/realtime/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/clinicdesk/realtime/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	// Version is the semantic version, "dev" for unstamped local builds.
	Version = "dev"

	// Commit is the short git commit hash.
	Commit = "unknown"

	// BuildTime is the UTC build timestamp in ISO 8601.
	BuildTime = "unknown"
)

// String renders the full build identity on one line.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}
