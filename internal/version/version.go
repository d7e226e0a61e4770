// Package version holds the daemon's build-time version string.
package version

// Version is overridden at build time via -ldflags
// "-X github.com/hegerj/beakerlib/internal/version.Version=...".
var Version = "dev"
