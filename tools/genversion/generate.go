// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"text/template"

	"github.com/peterbourgon/ff/v3/ffcli"
	log "github.com/sirupsen/logrus"

	"github.com/google/perf_data_converter/internal/gitdescribe"
)

//go:embed version.go.tmpl
var versionTemplate string

var fileTemplate = template.Must(template.New("version").Parse(versionTemplate))

// errStale is returned by check when the generated file does not match the
// repository.
var errStale = errors.New("generated version file is stale")

type generateCmd struct {
	describeFlags
	outputFlags
}

func newGenerateCmd() *ffcli.Command {
	cmd := &generateCmd{}

	fs := newFlagSet("generate")
	cmd.outputFlags.register(fs)
	cmd.describeFlags.register(fs)

	return &ffcli.Command{
		Name:       "generate",
		ShortUsage: "genversion generate -o <file> [flags]",
		ShortHelp:  "Write the version constant into a Go source file",
		FlagSet:    fs,
		Options:    commandOptions(),
		Exec:       cmd.exec,
	}
}

func (cmd *generateCmd) exec(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unexpected arguments: %v", args)
	}
	if err := cmd.outputFlags.validate(); err != nil {
		return err
	}

	// Regenerating a committed file must not make the next run report -dirty.
	version, err := cmd.describe(ctx, "HEAD", cmd.output)
	if err != nil {
		return err
	}

	src, err := render(cmd.pkg, cmd.constName, version)
	if err != nil {
		return err
	}

	changed, err := writeIfChanged(cmd.output, src)
	if err != nil {
		return err
	}
	if changed {
		log.Infof("Stamped %s with version %s", cmd.output, version)
	} else {
		log.Debugf("%s is up to date", cmd.output)
	}
	return nil
}

type checkCmd struct {
	describeFlags
	outputFlags
}

func newCheckCmd() *ffcli.Command {
	cmd := &checkCmd{}

	fs := newFlagSet("check")
	cmd.outputFlags.register(fs)
	cmd.describeFlags.register(fs)

	return &ffcli.Command{
		Name:       "check",
		ShortUsage: "genversion check -o <file> [flags]",
		ShortHelp:  "Fail if the generated version file does not match the checkout",
		FlagSet:    fs,
		Options:    commandOptions(),
		Exec:       cmd.exec,
	}
}

func (cmd *checkCmd) exec(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unexpected arguments: %v", args)
	}
	if err := cmd.outputFlags.validate(); err != nil {
		return err
	}

	have, err := os.ReadFile(cmd.output)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", cmd.output, err)
	}

	version, err := cmd.matches(ctx, "HEAD", have)
	if err == nil || !errors.Is(err, errStale) {
		return err
	}

	// Committing the generated file moves HEAD one commit past the revision
	// it describes. Accept that commit as long as it touches nothing else.
	stamped, serr := gitdescribe.StampedBy(ctx, cmd.dir, cmd.output)
	if serr != nil {
		log.Debugf("Failed to inspect HEAD: %v", serr)
	}
	if !stamped {
		return err
	}
	if version, err = cmd.matches(ctx, "HEAD^", have); err != nil {
		return err
	}
	log.Debugf("%s was committed at version %s", cmd.output, version)
	return nil
}

// matches reports errStale unless have is the file generated for rev.
func (cmd *checkCmd) matches(ctx context.Context, rev string, have []byte) (string, error) {
	version, err := cmd.describe(ctx, rev, cmd.output)
	if err != nil {
		return "", err
	}
	want, err := render(cmd.pkg, cmd.constName, version)
	if err != nil {
		return "", err
	}
	if !bytes.Equal(have, want) {
		return version, fmt.Errorf("%w: %s does not hold version %s, run `go generate`",
			errStale, cmd.output, version)
	}
	log.Debugf("%s matches version %s", cmd.output, version)
	return version, nil
}

// render produces the gofmt'ed source of the generated file.
func render(pkg, constName, version string) ([]byte, error) {
	var buf bytes.Buffer
	err := fileTemplate.Execute(&buf, &struct {
		Package string
		Const   string
		Version string
	}{
		Package: pkg,
		Const:   constName,
		Version: version,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to execute version template: %v", err)
	}

	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to format generated source: %v", err)
	}
	return src, nil
}

// writeIfChanged replaces path with content unless it already holds exactly
// that content. Leaving the file alone keeps its mtime and spares a rebuild.
// The write goes through a temporary file in the same directory, so readers
// never observe a partial file.
func writeIfChanged(path string, content []byte) (bool, error) {
	existing, err := os.ReadFile(path)
	switch {
	case err == nil:
		if bytes.Equal(existing, content) {
			return false, nil
		}
	case !errors.Is(err, os.ErrNotExist):
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return false, fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer func() {
		// No-op once the rename succeeded.
		_ = os.Remove(tmp.Name())
	}()

	if _, err = tmp.Write(content); err != nil {
		_ = tmp.Close()
		return false, fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err = tmp.Close(); err != nil {
		return false, fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return false, fmt.Errorf("failed to chmod %s: %w", tmp.Name(), err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return false, fmt.Errorf("failed to rename %s to %s: %w", tmp.Name(), path, err)
	}
	return true, nil
}
