// Package version holds build metadata injected via ldflags:
//
//	-X github.com/kailas-cloud/supportgraph/internal/version.Version=v1.2.0
package version

import "fmt"

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// UserAgent identifies a supportgraph component in outbound HTTP requests.
func UserAgent(component string) string {
	return fmt.Sprintf("supportgraph-%s/%s (%s)", component, Version, Commit)
}
