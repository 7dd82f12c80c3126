// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package gitdescribe // import "github.com/google/perf_data_converter/internal/gitdescribe"

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Options controls how the repository is inspected and which fallbacks apply.
// The zero value is usable.
type Options struct {
	// Dir is any directory inside the work tree. Empty means the current
	// working directory.
	Dir string
	// Match is the glob passed to `git describe --match`. Empty selects
	// DefaultMatch, "*" accepts every tag.
	Match string
	// AllTags lets lightweight tags anchor a version. By default only
	// annotated tags do.
	AllTags bool
	// FallbackTag replaces the tag when none is reachable from HEAD.
	FallbackTag string
	// Fallback is the whole version string used without a repository.
	Fallback string
	// AbbrevLen is the length of the abbreviated revision.
	AbbrevLen int
	// Rev is the commit to describe. Empty means HEAD. The dirty flag always
	// reflects the work tree.
	Rev string
	// Ignore lists tracked files whose modifications do not make the tree
	// dirty, typically the generated version file itself. Relative paths are
	// resolved against Dir.
	Ignore []string
}

func (o Options) withDefaults() Options {
	if o.Match == "" {
		o.Match = DefaultMatch
	}
	if o.FallbackTag == "" {
		o.FallbackTag = DefaultFallbackTag
	}
	if o.Fallback == "" {
		o.Fallback = DefaultFallback
	}
	if o.AbbrevLen <= 0 {
		o.AbbrevLen = DefaultAbbrevLen
	}
	if o.Rev == "" {
		o.Rev = "HEAD"
	}
	return o
}

// Describe returns the version string for the repository containing
// opts.Dir. A missing repository, a missing git binary or a repository
// without commits yield opts.Fallback. Any other failure is returned.
func Describe(ctx context.Context, opts Options) (string, error) {
	opts = opts.withDefaults()

	state, err := Query(ctx, opts)
	switch {
	case errors.Is(err, ErrNoRepository), errors.Is(err, ErrNoCommits):
		log.Warnf("No version control metadata (%v), using %s", err, opts.Fallback)
		return opts.Fallback, nil
	case err != nil:
		return "", err
	}

	if !state.HasTag {
		log.Warnf("No tag matching %q is reachable from %s, using %s",
			opts.Match, state.Revision, opts.FallbackTag)
	}
	return Format(state, opts.AbbrevLen), nil
}

// Query inspects the repository containing opts.Dir. It only runs read-only
// git commands and never takes the index lock.
func Query(ctx context.Context, opts Options) (State, error) {
	opts = opts.withDefaults()
	g := gitRunner{dir: opts.Dir}

	inside, err := g.run(ctx, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		// Unreadable repositories (bad config, unsupported format, unsafe
		// ownership) are errors, not a missing repository.
		if ctx.Err() == nil && (errors.Is(err, exec.ErrNotFound) || isNotRepositoryError(err)) {
			return State{}, fmt.Errorf("%w: %w", ErrNoRepository, err)
		}
		return State{}, err
	}
	if inside != "true" {
		return State{}, fmt.Errorf("%w: %s is not inside a work tree", ErrNoRepository, g.where())
	}

	revision, err := g.run(ctx, "rev-parse", "--verify", "--quiet", opts.Rev+"^{commit}")
	if err != nil {
		// --verify --quiet exits with 1 and no message for an unborn HEAD.
		if ctx.Err() == nil && exitCode(err) == 1 && opts.Rev == "HEAD" {
			return State{}, fmt.Errorf("%w: %w", ErrNoCommits, err)
		}
		return State{}, err
	}

	var state State
	args := []string{"describe", "--long", "--match", opts.Match}
	if opts.AllTags {
		args = append(args, "--tags")
	}
	out, err := g.run(ctx, append(args, revision)...)
	switch {
	case err == nil:
		if state, err = ParseDescribe(out); err != nil {
			return State{}, err
		}
	case isNoTagError(err):
		count, err := g.run(ctx, "rev-list", "--count", revision)
		if err != nil {
			return State{}, err
		}
		if shallow, err := g.run(ctx, "rev-parse", "--is-shallow-repository"); err == nil && shallow == "true" {
			log.Warnf("Shallow clone without a reachable tag: the commit count %s "+
				"only covers fetched history", count)
		}
		n, err := strconv.ParseUint(count, 10, 64)
		if err != nil {
			return State{}, fmt.Errorf("failed to parse commit count %q: %v", count, err)
		}
		state = State{Tag: opts.FallbackTag, CommitsSinceTag: n}
	default:
		return State{}, err
	}
	state.Revision = revision

	if state.Dirty, err = g.isDirty(ctx, opts.Ignore); err != nil {
		return State{}, err
	}

	log.Debugf("Repository state in %s: %+v", g.where(), state)
	return state, nil
}

// gitError carries the stderr of a failed git invocation.
type gitError struct {
	args   []string
	stderr string
	err    error
}

func (e *gitError) Error() string {
	msg := fmt.Sprintf("git %s: %v", strings.Join(e.args, " "), e.err)
	if e.stderr != "" {
		msg += ": " + e.stderr
	}
	return msg
}

func (e *gitError) Unwrap() error {
	return e.err
}

type gitRunner struct {
	dir string
}

func (g gitRunner) where() string {
	if g.dir == "" {
		return "."
	}
	return g.dir
}

// run executes git with args and returns its trimmed stdout.
func (g gitRunner) run(ctx context.Context, args ...string) (string, error) {
	out, err := g.runRaw(ctx, args...)
	return strings.TrimSpace(out), err
}

func (g gitRunner) runRaw(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.dir
	// Stable messages for isNoTagError, and no opportunistic index refresh.
	cmd.Env = append(os.Environ(), "LC_ALL=C", "GIT_OPTIONAL_LOCKS=0")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", &gitError{
			args:   args,
			stderr: strings.TrimSpace(stderr.String()),
			err:    err,
		}
	}
	return stdout.String(), nil
}

// isDirty reports modifications to tracked files other than ignore.
// Untracked files do not count, the same as for `git describe --dirty`.
func (g gitRunner) isDirty(ctx context.Context, ignore []string) (bool, error) {
	status, err := g.runRaw(ctx, "status", "--porcelain", "-z", "--untracked-files=no")
	if err != nil || status == "" {
		return false, err
	}

	skip := make(map[string]bool, len(ignore))
	if len(ignore) > 0 {
		top, err := g.run(ctx, "rev-parse", "--show-toplevel")
		if err != nil {
			return false, err
		}
		for _, path := range ignore {
			rel, err := g.repoRelative(top, path)
			if err != nil {
				return false, err
			}
			skip[rel] = true
		}
	}

	// Entries are "XY <path>", renames and copies are followed by an extra
	// entry holding the source path.
	entries := strings.Split(status, "\x00")
	for i := 0; i < len(entries); i++ {
		entry := entries[i]
		if len(entry) < 4 {
			continue
		}
		if entry[0] == 'R' || entry[0] == 'C' {
			i++
		}
		if !skip[entry[3:]] {
			return true, nil
		}
	}
	return false, nil
}

// repoRelative turns path into the slash separated form git status uses,
// relative to the work tree root top.
func (g gitRunner) repoRelative(top, path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(g.dir, path)
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	// The file may not exist yet, so only its directory is resolved.
	dir, err := filepath.EvalSymlinks(filepath.Dir(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if top, err = filepath.EvalSymlinks(top); err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", top, err)
	}
	rel, err := filepath.Rel(top, filepath.Join(dir, filepath.Base(path)))
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// StampedBy reports whether HEAD is a non-root commit that changes nothing
// but path. That is the commit recording a freshly generated version file,
// whose content describes HEAD's parent.
func StampedBy(ctx context.Context, dir, path string) (bool, error) {
	g := gitRunner{dir: dir}

	if _, err := g.run(ctx, "rev-parse", "--verify", "--quiet", "HEAD^"); err != nil {
		if ctx.Err() == nil && exitCode(err) == 1 {
			return false, nil
		}
		return false, err
	}
	top, err := g.run(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return false, err
	}
	rel, err := g.repoRelative(top, path)
	if err != nil {
		return false, err
	}
	changed, err := g.runRaw(ctx, "diff-tree", "--no-commit-id", "--name-only", "-r", "-z", "HEAD")
	if err != nil {
		return false, err
	}
	files := strings.Split(strings.TrimRight(changed, "\x00"), "\x00")
	return len(files) == 1 && files[0] == rel, nil
}

func isExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}

// exitCode returns the exit status of a failed git run, or -1.
func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// isNotRepositoryError reports whether git failed because the directory is
// not inside any repository.
func isNotRepositoryError(err error) bool {
	var gerr *gitError
	return errors.As(err, &gerr) && isExitError(err) &&
		strings.Contains(gerr.stderr, "not a git repository")
}

// isNoTagError reports whether git describe failed because no tag can
// describe HEAD.
func isNoTagError(err error) bool {
	var gerr *gitError
	if !errors.As(err, &gerr) || !isExitError(err) {
		return false
	}
	for _, msg := range []string{
		"No names found",
		"No annotated tags can describe",
		"No tags can describe",
	} {
		if strings.Contains(gerr.stderr, msg) {
			return true
		}
	}
	return false
}
