// Package version reports the build of the running binary.
package version

import (
	"fmt"
	"runtime"
)

// These variables are set during build time via ldflags:
//
//	-X github.com/goclaw/recall/pkg/version.Version=v1.2.0
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GoVersion = runtime.Version()
)

// Info returns a map with all version information.
func Info() map[string]string {
	return map[string]string{
		"version":   Version,
		"buildTime": BuildTime,
		"gitCommit": GitCommit,
		"goVersion": GoVersion,
		"platform":  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String is the one-line form printed by "recall version".
func String() string {
	return fmt.Sprintf("recall %s (commit %s, built %s, %s %s/%s)",
		Version, GitCommit, BuildTime, GoVersion, runtime.GOOS, runtime.GOARCH)
}
