// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"io"

	"github.com/peterbourgon/ff/v3"
)

// Help strings for command line arguments
var (
	versionHelp   = "Show version."
	buildInfoHelp = "Show version together with Go toolchain and VCS build details."
	verboseHelp   = "Enable verbose logging."
)

type arguments struct {
	buildInfo bool
	verbose   bool
	version   bool

	fs *flag.FlagSet
}

func parseArgs(args []string, stderr io.Writer) (*arguments, error) {
	var a arguments

	fs := flag.NewFlagSet("perf_to_profile", flag.ContinueOnError)
	fs.SetOutput(stderr)

	// Please keep the parameters ordered alphabetically in the source-code.
	fs.BoolVar(&a.buildInfo, "build-info", false, buildInfoHelp)

	fs.BoolVar(&a.version, "v", false, "Shorthand for -version.")
	fs.BoolVar(&a.verbose, "verbose", false, verboseHelp)
	fs.BoolVar(&a.version, "version", false, versionHelp)

	fs.Usage = func() {
		fs.PrintDefaults()
	}

	a.fs = fs

	return &a, ff.Parse(fs, args,
		ff.WithEnvVarPrefix("PERF_TO_PROFILE"),
	)
}
