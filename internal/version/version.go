// Package version exposes build metadata injected via -ldflags.
package version

import (
	"fmt"
	"runtime"
)

// Set at build time:
//
//	go build -ldflags "-X github.com/HerbHall/loginwatch/internal/version.Version=v1.2.0"
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Short returns the bare version string.
func Short() string {
	return Version
}

// Info returns a one-line description of the build.
func Info() string {
	return fmt.Sprintf("loginwatch %s (commit %s, built %s, %s/%s)",
		Version, GitCommit, BuildDate, runtime.GOOS, runtime.GOARCH)
}

// UserAgent is sent with every outbound HTTP request.
func UserAgent() string {
	return "loginwatch/" + Version
}
