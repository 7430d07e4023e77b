// Package version provides build information set through -ldflags, e.g.
//
//	go build -ldflags "-X github.com/autosd-vss-mw/vss-lib/pkg/version.Version=v1.0.0"
package version

import (
	"fmt"
	"runtime"
	"strings"
)

// These variables are set during build time via ldflags
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
	}
}

// Banner renders the multi-line -version output of a program.
func Banner(program string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", program)
	fmt.Fprintf(&b, "Version:    %s\n", Version)
	fmt.Fprintf(&b, "Build Time: %s\n", BuildTime)
	fmt.Fprintf(&b, "Git Commit: %s\n", GitCommit)
	fmt.Fprintf(&b, "Go Version: %s\n", GoVersion)
	return b.String()
}
