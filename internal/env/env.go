// Package env holds build-time version metadata, populated via -ldflags
// at release build time (e.g. -X ...env.Version=v0.3.0).
package env

var (
	Version    = "dev"
	CommitHash = "none"
	BuildTime  = "unknown"
)
