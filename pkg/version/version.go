package version

import "fmt"

// Version, GitCommit, and BuildDate are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/meshbridge/routeragent/pkg/version.Version=v1.0.0 \
//	  -X github.com/meshbridge/routeragent/pkg/version.GitCommit=abc1234 \
//	  -X github.com/meshbridge/routeragent/pkg/version.BuildDate=2026-07-31T00:00:00Z"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns a single-line version string. The agent sends it as the
// firmware_version field of the AUTH frame and in STATUS payloads, and
// both daemons log it at startup.
func Info() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate)
}
