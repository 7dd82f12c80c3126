// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package gitdescribe derives a build version string from the state of a git
// checkout. The string has the form
//
//	<tag>[-<commits-since-tag>-g<short-hash>][-dirty]
//
// which is what `git describe --tags --dirty` prints, except that the
// abbreviated hash always has a fixed length and untagged or missing
// repositories map to a deterministic fallback instead of an error.
package gitdescribe // import "github.com/google/perf_data_converter/internal/gitdescribe"

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

const (
	// DefaultFallbackTag stands in for the tag when no tag is reachable from HEAD.
	DefaultFallbackTag = "v0.0.0"
	// DefaultFallback is used when there is no usable repository at all, e.g. when
	// building from a source archive.
	DefaultFallback = DefaultFallbackTag + "-unknown"
	// DefaultAbbrevLen is the length of the abbreviated revision.
	DefaultAbbrevLen = 7
	// DefaultMatch restricts the tags considered as version anchors.
	DefaultMatch = "v*"

	dirtySuffix = "-dirty"
)

var (
	// ErrNoRepository is returned when the directory is not inside a git work
	// tree or no git binary is available.
	ErrNoRepository = errors.New("no git repository")
	// ErrNoCommits is returned for a repository without any commit.
	ErrNoCommits = errors.New("repository has no commits")
	// ErrMalformed is returned when git describe output cannot be parsed.
	ErrMalformed = errors.New("malformed describe output")
)

// State is the repository state a version string is derived from.
type State struct {
	// Tag is the nearest tag reachable from HEAD. When HasTag is false it holds
	// the fallback tag.
	Tag    string
	HasTag bool
	// CommitsSinceTag counts the commits between Tag and HEAD. Without a tag it
	// counts all commits reachable from HEAD.
	CommitsSinceTag uint64
	// Revision is the object id of HEAD, full length or abbreviated.
	Revision string
	// Dirty reports uncommitted modifications to tracked files.
	Dirty bool
}

// Format renders s as <tag>[-<n>-g<hash>][-dirty]. The revision is cut to
// abbrevLen characters; a non-positive abbrevLen selects DefaultAbbrevLen.
// Without a revision the hash is left out and the result is <tag>-<n>,
// never a dangling "-g".
func Format(s State, abbrevLen int) string {
	if abbrevLen <= 0 {
		abbrevLen = DefaultAbbrevLen
	}

	tag := s.Tag
	if tag == "" {
		tag = DefaultFallbackTag
	}

	var sb strings.Builder
	sb.WriteString(tag)
	if s.CommitsSinceTag > 0 {
		rev := s.Revision
		if len(rev) > abbrevLen {
			rev = rev[:abbrevLen]
		}
		sb.WriteByte('-')
		sb.WriteString(strconv.FormatUint(s.CommitsSinceTag, 10))
		if rev != "" {
			sb.WriteString("-g")
			sb.WriteString(rev)
		}
	}
	if s.Dirty {
		sb.WriteString(dirtySuffix)
	}
	return sb.String()
}

// ParseDescribe parses the output of `git describe --long [--dirty]`, i.e.
// <tag>-<n>-g<hash>[-dirty]. Tags may contain '-', so the string is taken
// apart from the right.
func ParseDescribe(out string) (State, error) {
	rest := strings.TrimSpace(out)

	var s State
	if trimmed, ok := strings.CutSuffix(rest, dirtySuffix); ok {
		s.Dirty = true
		rest = trimmed
	}

	tag, count, hash, ok := splitLong(rest)
	if !ok {
		return State{}, fmt.Errorf("%w: %q", ErrMalformed, out)
	}
	n, err := strconv.ParseUint(count, 10, 64)
	if err != nil {
		return State{}, fmt.Errorf("%w: commit count in %q: %v", ErrMalformed, out, err)
	}

	s.Tag = tag
	s.HasTag = true
	s.CommitsSinceTag = n
	s.Revision = hash
	return s, nil
}

// splitLong splits <tag>-<n>-g<hash> into its components.
func splitLong(s string) (tag, count, hash string, ok bool) {
	i := strings.LastIndexByte(s, '-')
	if i < 0 {
		return "", "", "", false
	}
	hash, ok = strings.CutPrefix(s[i+1:], "g")
	if !ok || !isHex(hash) {
		return "", "", "", false
	}

	s = s[:i]
	j := strings.LastIndexByte(s, '-')
	if j <= 0 {
		return "", "", "", false
	}
	count = s[j+1:]
	if count == "" {
		return "", "", "", false
	}
	return s[:j], count, hash, true
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Valid reports whether v looks like a stamped version: a semver tag,
// optionally followed by -<n>-g<hash> and -dirty.
func Valid(v string) bool {
	if s, err := ParseDescribe(v); err == nil {
		return semver.IsValid(s.Tag)
	}
	tag, _ := strings.CutSuffix(v, dirtySuffix)
	return semver.IsValid(tag)
}
