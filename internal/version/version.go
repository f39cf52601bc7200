// Package version provides build and version information for Haeccstable.
package version

import (
	"fmt"
	"runtime"
)

// Version is the current release version of Haeccstable.
// This can be overridden at build time using:
//
//	go build -ldflags "-X github.com/AaronLay10/Haeccstable/internal/version.Version=x.y.z"
var Version = "0.1.0"

// String formats the version line printed by -version.
func String(program string) string {
	return fmt.Sprintf("%s %s (%s %s/%s)", program, Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
