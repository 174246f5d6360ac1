// Package version exposes build identification for the /version endpoint.
package version

// Version is the engine release version, bumped on tagged releases.
var Version = "0.0.0"

// GitCommit is injected at build time via ldflags.
var GitCommit = "unknown"

// BuildDate is injected at build time via ldflags.
var BuildDate = "unknown"
