// ABOUTME: Version and product identification
// ABOUTME: Build metadata is injected with -ldflags at release time
package version

import "fmt"

const (
	Version      = "0.1.0"
	Product      = "streamplayer"
	Manufacturer = "Resonate Protocol"
)

// Set with -ldflags "-X github.com/Resonate-Protocol/streamplayer-go/internal/version.GitCommit=..."
var (
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// String returns a one-line version banner
func String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", Product, Version, GitCommit, BuildDate)
}
