// rv-cleanup - operator client for the email merge service.
package main

import (
	"os"

	"github.com/rvcleanup/rv-cleanup/internal/cli"
	"github.com/rvcleanup/rv-cleanup/internal/version"
)

// Set by ldflags: -X main.Version=... -X main.BuildTime=...
var (
	Version   = ""
	BuildTime = ""
)

func main() {
	if Version != "" {
		version.Version = Version
	}
	if BuildTime != "" {
		version.BuildTime = BuildTime
	}

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
