// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/perf_data_converter/vc"
)

func runMain(t *testing.T, args ...string) (exitCode, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := mainWithExitCode(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVersionFlag(t *testing.T) {
	for _, flagName := range []string{"-version", "--version", "-v"} {
		t.Run(flagName, func(t *testing.T) {
			code, stdout, _ := runMain(t, flagName)
			assert.Equal(t, exitSuccess, code)
			assert.Equal(t, vc.Version+"\n", stdout)
		})
	}
}

func TestVersionFromEnvironment(t *testing.T) {
	t.Setenv("PERF_TO_PROFILE_VERSION", "true")

	code, stdout, _ := runMain(t)
	assert.Equal(t, exitSuccess, code)
	assert.Equal(t, vc.Version+"\n", stdout)
}

func TestBuildInfoFlag(t *testing.T) {
	code, stdout, _ := runMain(t, "-build-info")
	assert.Equal(t, exitSuccess, code)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, "perf_to_profile "+vc.Version, lines[0])
}

func TestUsage(t *testing.T) {
	tests := map[string]struct {
		args []string
		want exitCode
	}{
		"no arguments":     {want: exitParseError},
		"unknown flag":     {args: []string{"-bogus"}, want: exitParseError},
		"positional":       {args: []string{"perf.data"}, want: exitParseError},
		"help":             {args: []string{"-h"}, want: exitSuccess},
		"verbose, no mode": {args: []string{"-verbose"}, want: exitParseError},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			code, stdout, _ := runMain(t, tc.args...)
			assert.Equal(t, tc.want, code)
			assert.Empty(t, stdout)
		})
	}
}
