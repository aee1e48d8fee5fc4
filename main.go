// Package main is the entry point for the compliancectl CLI
package main

import (
	"os"

	"github.com/BASIL960/FinalYearProject/cmd"
)

// set at build time via ldflags
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	cmd.SetVersion(version)
	cmd.SetBuildInfo(commit, buildTime)
	os.Exit(cmd.Execute())
}
