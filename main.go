// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// perf_to_profile reports the source revision it was built from. The version
// is a compile-time constant stamped by `go generate ./vc`.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/google/perf_data_converter/vc"
)

type exitCode int

const (
	exitSuccess exitCode = 0
	exitFailure exitCode = 1

	// Go 'flag' package calls os.Exit(2) on flag parse errors, if ExitOnError is set
	exitParseError exitCode = 2
)

func main() {
	os.Exit(int(mainWithExitCode(os.Args[1:], os.Stdout, os.Stderr)))
}

func mainWithExitCode(argv []string, stdout, stderr io.Writer) exitCode {
	log.SetOutput(stderr)

	args, err := parseArgs(argv, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitSuccess
		}
		return parseError("Failure to parse arguments: %v", err)
	}

	if args.verbose {
		log.SetLevel(log.DebugLevel)
	}

	switch {
	case args.buildInfo:
		if err = printBuildInfo(stdout); err != nil {
			return failure("Failed to print build info: %v", err)
		}
		return exitSuccess
	case args.version:
		log.Debugf("Reporting compiled-in version")
		if _, err = fmt.Fprintln(stdout, vc.Version); err != nil {
			return failure("Failed to print version: %v", err)
		}
		return exitSuccess
	}

	if args.fs.NArg() > 0 {
		return parseError("Unexpected arguments: %s", strings.Join(args.fs.Args(), " "))
	}
	args.fs.Usage()
	return exitParseError
}

// printBuildInfo prints the stamped version followed by what the Go linker
// recorded about the build. The VCS settings help to identify builds that
// carry the fallback version.
func printBuildInfo(w io.Writer) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "perf_to_profile %s\n", vc.Version)

	if info, ok := debug.ReadBuildInfo(); ok {
		fmt.Fprintf(&sb, "go: %s\n", info.GoVersion)
		for _, s := range info.Settings {
			if strings.HasPrefix(s.Key, "vcs") {
				fmt.Fprintf(&sb, "%s: %s\n", s.Key, s.Value)
			}
		}
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

func parseError(msg string, args ...any) exitCode {
	log.Errorf(msg, args...)
	return exitParseError
}

func failure(msg string, args ...any) exitCode {
	log.Errorf(msg, args...)
	return exitFailure
}
