// Package buildinfo holds version information injected at build time via ldflags:
//
//	go build -ldflags "-X github.com/mulltray/mulltray/internal/buildinfo.Version=v0.3.0"
package buildinfo

import "fmt"

var (
	Version    = "dev"
	Codename   = "unknown"
	CommitHash = "unknown"
	BuildDate  = "unknown"
)

// UserAgent identifies this build in logs.
func UserAgent() string {
	return fmt.Sprintf("mulltray/%s (%s)", Version, CommitHash)
}
