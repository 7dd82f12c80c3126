// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// genversion stamps the perf_to_profile build with the state of its git
// checkout. It is run through `go generate ./vc` and writes a Go file holding
// a single version constant, so the binary never needs git at runtime.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// envVarPrefix lets builds without a checkout pin flags, e.g.
// GENVERSION_FALLBACK=v0.0.5 for a release tarball.
const envVarPrefix = "GENVERSION"

func main() {
	log.SetReportCaller(false)
	log.SetFormatter(&log.TextFormatter{})
	log.SetOutput(os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), unix.SIGINT, unix.SIGTERM)
	defer cancel()

	root := newRootCmd(os.Stdout)
	if err := root.ParseAndRun(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		cancel()
		log.Fatalf("%v", err)
	}
}
