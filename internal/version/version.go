package version

import (
	"fmt"
	"runtime"
)

// Set via ldflags at build time:
//
//	go build -ldflags "-X github.com/soyeahso/mercora/internal/version.Version=1.0.0
//	  -X github.com/soyeahso/mercora/internal/version.Commit=abc123
//	  -X github.com/soyeahso/mercora/internal/version.Date=2026-01-01"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info returns a formatted version string.
func Info() string {
	return fmt.Sprintf("mercora %s (commit: %s, built: %s, %s/%s)",
		Version, short(Commit), Date, runtime.GOOS, runtime.GOARCH)
}

// Build describes the running binary for the health endpoint.
type Build struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Current returns the build stamped into this binary.
func Current() Build {
	return Build{Version: Version, Commit: short(Commit), Date: Date}
}

func short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}
