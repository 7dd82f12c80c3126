// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"go/token"
	"io"
	"path/filepath"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	log "github.com/sirupsen/logrus"
	"golang.org/x/mod/semver"

	"github.com/google/perf_data_converter/internal/gitdescribe"
)

func newRootCmd(stdout io.Writer) *ffcli.Command {
	return &ffcli.Command{
		Name:       "genversion",
		ShortUsage: "genversion <subcommand> [flags]",
		ShortHelp:  "Derive the build version from git and stamp it into Go source",
		Subcommands: []*ffcli.Command{
			newGenerateCmd(),
			newCheckCmd(),
			newPrintCmd(stdout),
		},
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
	}
}

// describeFlags are the flags shared by every subcommand that computes a
// version.
type describeFlags struct {
	dir         string
	match       string
	allTags     bool
	fallback    string
	fallbackTag string
	abbrev      int
	verbose     bool
}

func (f *describeFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.dir, "C", "", "Inspect the repository containing this directory.")
	fs.StringVar(&f.match, "match", gitdescribe.DefaultMatch,
		"Only consider tags matching this glob.")
	fs.BoolVar(&f.allTags, "tags", false, "Let lightweight tags anchor the version.")
	fs.StringVar(&f.fallback, "fallback", gitdescribe.DefaultFallback,
		"Version used when no git metadata is available.")
	fs.StringVar(&f.fallbackTag, "fallback-tag", gitdescribe.DefaultFallbackTag,
		"Tag used when no tag is reachable from HEAD.")
	fs.IntVar(&f.abbrev, "abbrev", gitdescribe.DefaultAbbrevLen,
		"Length of the abbreviated revision.")
	fs.BoolVar(&f.verbose, "v", false, "Enable debug logging.")
}

func (f *describeFlags) validate() error {
	if !semver.IsValid(f.fallbackTag) {
		return fmt.Errorf("fallback tag %q is not a semantic version", f.fallbackTag)
	}
	if !gitdescribe.Valid(f.fallback) {
		return fmt.Errorf("fallback %q is not a valid version", f.fallback)
	}
	if f.abbrev < 4 || f.abbrev > 40 {
		return fmt.Errorf("abbrev must be between 4 and 40, got %d", f.abbrev)
	}
	return nil
}

// describe computes the version of rev in the repository selected by the
// flags. Modifications to the ignored files do not mark the version dirty.
func (f *describeFlags) describe(ctx context.Context, rev string, ignore ...string) (string, error) {
	if f.verbose {
		log.SetLevel(log.DebugLevel)
	}
	if err := f.validate(); err != nil {
		return "", err
	}

	version, err := gitdescribe.Describe(ctx, gitdescribe.Options{
		Dir:         f.dir,
		Match:       f.match,
		AllTags:     f.allTags,
		FallbackTag: f.fallbackTag,
		Fallback:    f.fallback,
		AbbrevLen:   f.abbrev,
		Rev:         rev,
		Ignore:      ignore,
	})
	if err != nil {
		return "", fmt.Errorf("failed to describe repository: %w", err)
	}
	if !gitdescribe.Valid(version) {
		log.Warnf("Version %s does not start with a semantic version tag", version)
	}
	log.Debugf("Computed version %s", version)
	return version, nil
}

// outputFlags select the generated file and the identifiers it declares.
type outputFlags struct {
	output    string
	pkg       string
	constName string
}

func (f *outputFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.output, "o", "version.go", "Path of the generated Go file.")
	fs.StringVar(&f.pkg, "package", "vc", "Package clause of the generated file.")
	fs.StringVar(&f.constName, "const", "Version", "Name of the generated constant.")
}

func (f *outputFlags) validate() error {
	if f.output == "" {
		return errors.New("no output file given")
	}
	// The output is relative to the working directory, not to -C.
	abs, err := filepath.Abs(f.output)
	if err != nil {
		return err
	}
	f.output = abs

	if !token.IsIdentifier(f.pkg) {
		return fmt.Errorf("invalid package name %q", f.pkg)
	}
	if !token.IsIdentifier(f.constName) || !token.IsExported(f.constName) {
		return fmt.Errorf("constant name %q must be an exported identifier", f.constName)
	}
	return nil
}

func newFlagSet(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}

func commandOptions() []ff.Option {
	return []ff.Option{ff.WithEnvVarPrefix(envVarPrefix)}
}

type printCmd struct {
	describeFlags

	stdout io.Writer
}

func newPrintCmd(stdout io.Writer) *ffcli.Command {
	cmd := &printCmd{stdout: stdout}

	fs := newFlagSet("print")
	cmd.describeFlags.register(fs)

	return &ffcli.Command{
		Name:       "print",
		ShortUsage: "genversion print [flags]",
		ShortHelp:  "Print the version of the current checkout",
		FlagSet:    fs,
		Options:    commandOptions(),
		Exec:       cmd.exec,
	}
}

func (cmd *printCmd) exec(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unexpected arguments: %v", args)
	}

	version, err := cmd.describe(ctx, "HEAD")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.stdout, version)
	return err
}
