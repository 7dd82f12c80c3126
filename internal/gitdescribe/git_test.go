// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package gitdescribe

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRepo is a throwaway git repository isolated from the user's git config.
type testRepo struct {
	t   *testing.T
	dir string
	n   int
}

func newTestRepo(t *testing.T, initialize bool) *testRepo {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git is not available")
	}

	home := t.TempDir()
	dir := filepath.Join(t.TempDir(), "repo")
	require.NoError(t, os.Mkdir(dir, 0o755))

	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", home)
	t.Setenv("GIT_CONFIG_NOSYSTEM", "1")
	t.Setenv("GIT_CEILING_DIRECTORIES", filepath.Dir(dir))
	t.Setenv("GIT_AUTHOR_NAME", "Test")
	t.Setenv("GIT_AUTHOR_EMAIL", "test@example.com")
	t.Setenv("GIT_COMMITTER_NAME", "Test")
	t.Setenv("GIT_COMMITTER_EMAIL", "test@example.com")

	r := &testRepo{t: t, dir: dir}
	if initialize {
		r.git("init", "-q")
		r.git("config", "commit.gpgsign", "false")
		r.git("config", "tag.gpgsign", "false")
	}
	return r
}

func (r *testRepo) git(args ...string) string {
	r.t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = r.dir
	out, err := cmd.CombinedOutput()
	require.NoError(r.t, err, "git %s: %s", strings.Join(args, " "), out)
	return strings.TrimSpace(string(out))
}

func (r *testRepo) write(name, content string) {
	r.t.Helper()
	require.NoError(r.t, os.WriteFile(filepath.Join(r.dir, name), []byte(content), 0o644))
}

func (r *testRepo) commit() {
	r.t.Helper()
	r.n++
	r.write("file.txt", fmt.Sprintf("change %d\n", r.n))
	r.git("add", "file.txt")
	r.git("commit", "-q", "-m", fmt.Sprintf("commit %d", r.n))
}

func (r *testRepo) head() string {
	r.t.Helper()
	return r.git("rev-parse", "HEAD")
}

func (r *testRepo) describe(opts Options) string {
	r.t.Helper()
	opts.Dir = r.dir
	v, err := Describe(context.Background(), opts)
	require.NoError(r.t, err)
	require.NotEmpty(r.t, v)
	return v
}

func TestDescribeNoRepository(t *testing.T) {
	r := newTestRepo(t, false)

	_, err := Query(context.Background(), Options{Dir: r.dir})
	require.ErrorIs(t, err, ErrNoRepository)

	assert.Equal(t, DefaultFallback, r.describe(Options{}))
	assert.Equal(t, "v1.2.3-tarball", r.describe(Options{Fallback: "v1.2.3-tarball"}))
}

func TestDescribeNoCommits(t *testing.T) {
	r := newTestRepo(t, true)

	_, err := Query(context.Background(), Options{Dir: r.dir})
	require.ErrorIs(t, err, ErrNoCommits)

	assert.Equal(t, DefaultFallback, r.describe(Options{}))
}

func TestDescribeUntagged(t *testing.T) {
	r := newTestRepo(t, true)
	r.commit()
	r.commit()

	want := "v0.0.0-2-g" + r.head()[:DefaultAbbrevLen]
	assert.Equal(t, want, r.describe(Options{}))

	r.write("file.txt", "uncommitted\n")
	assert.Equal(t, want+"-dirty", r.describe(Options{}))
	assert.Equal(t, "v0.1.0-2-g"+r.head()[:DefaultAbbrevLen]+"-dirty",
		r.describe(Options{FallbackTag: "v0.1.0"}))
}

func TestDescribeTagged(t *testing.T) {
	r := newTestRepo(t, true)
	r.commit()
	r.git("tag", "-a", "v0.0.5", "-m", "v0.0.5")

	assert.Equal(t, "v0.0.5", r.describe(Options{}))

	// Untracked files leave the tree clean.
	r.write("untracked.txt", "scratch\n")
	assert.Equal(t, "v0.0.5", r.describe(Options{}))

	r.write("file.txt", "uncommitted change\n")
	assert.Equal(t, "v0.0.5-dirty", r.describe(Options{}))
	r.git("checkout", "-q", "--", "file.txt")

	for i := 0; i < 7; i++ {
		r.commit()
	}
	short := r.head()[:DefaultAbbrevLen]
	assert.Equal(t, "v0.0.5-7-g"+short, r.describe(Options{}))

	r.write("file.txt", "uncommitted change\n")
	assert.Equal(t, "v0.0.5-7-g"+short+"-dirty", r.describe(Options{}))
	assert.Equal(t, "v0.0.5-7-g"+r.head()[:10]+"-dirty", r.describe(Options{AbbrevLen: 10}))

	state, err := Query(context.Background(), Options{Dir: r.dir})
	require.NoError(t, err)
	assert.Equal(t, State{
		Tag:             "v0.0.5",
		HasTag:          true,
		CommitsSinceTag: 7,
		Revision:        r.head(),
		Dirty:           true,
	}, state)
}

func TestDescribeLightweightTags(t *testing.T) {
	r := newTestRepo(t, true)
	r.commit()
	r.git("tag", "-a", "v0.1.0", "-m", "v0.1.0")
	r.commit()
	r.git("tag", "v0.2.0")

	short := r.head()[:DefaultAbbrevLen]
	assert.Equal(t, "v0.1.0-1-g"+short, r.describe(Options{}))
	assert.Equal(t, "v0.2.0", r.describe(Options{AllTags: true}))
}

func TestDescribeMatch(t *testing.T) {
	r := newTestRepo(t, true)
	r.commit()
	r.git("tag", "-a", "release-1", "-m", "release-1")
	r.commit()

	// release-1 does not match the default pattern.
	short := r.head()[:DefaultAbbrevLen]
	assert.Equal(t, "v0.0.0-2-g"+short, r.describe(Options{}))
	assert.Equal(t, "release-1-1-g"+short, r.describe(Options{Match: "*"}))
}

func TestDescribeDeterministic(t *testing.T) {
	r := newTestRepo(t, true)
	r.commit()
	r.git("tag", "-a", "v1.0.0", "-m", "v1.0.0")
	r.commit()
	r.write("file.txt", "uncommitted change\n")

	statusBefore := r.git("status", "--porcelain")
	first := r.describe(Options{})
	assert.Equal(t, first, r.describe(Options{}))
	assert.Equal(t, statusBefore, r.git("status", "--porcelain"))
}

func TestDescribeSubdirectory(t *testing.T) {
	r := newTestRepo(t, true)
	r.commit()
	r.git("tag", "-a", "v2.0.0", "-m", "v2.0.0")

	sub := filepath.Join(r.dir, "vc")
	require.NoError(t, os.Mkdir(sub, 0o755))
	v, err := Describe(context.Background(), Options{Dir: sub})
	require.NoError(t, err)
	assert.Equal(t, "v2.0.0", v)
}

func TestDescribeCanceled(t *testing.T) {
	r := newTestRepo(t, true)
	r.commit()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Describe(ctx, Options{Dir: r.dir})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoRepository)
}

func TestDescribeIgnore(t *testing.T) {
	r := newTestRepo(t, true)
	r.write("version.go", "package vc\n")
	r.git("add", "version.go")
	r.commit()
	r.git("tag", "-a", "v0.0.5", "-m", "v0.0.5")

	r.write("version.go", "package vc\n\nconst Version = \"v0.0.5\"\n")
	assert.Equal(t, "v0.0.5-dirty", r.describe(Options{}))
	assert.Equal(t, "v0.0.5", r.describe(Options{Ignore: []string{"version.go"}}))
	assert.Equal(t, "v0.0.5", r.describe(Options{Ignore: []string{filepath.Join(r.dir, "version.go")}}))

	r.write("file.txt", "uncommitted change\n")
	assert.Equal(t, "v0.0.5-dirty", r.describe(Options{Ignore: []string{"version.go"}}))
}

func TestDescribeMissingGit(t *testing.T) {
	r := newTestRepo(t, true)
	r.commit()
	t.Setenv("PATH", t.TempDir())

	_, err := Query(context.Background(), Options{Dir: r.dir})
	require.ErrorIs(t, err, exec.ErrNotFound)
	require.ErrorIs(t, err, ErrNoRepository)

	assert.Equal(t, DefaultFallback, r.describe(Options{}))
}

func TestDescribeBrokenRepository(t *testing.T) {
	r := newTestRepo(t, true)
	r.commit()
	r.git("tag", "-a", "v0.0.5", "-m", "v0.0.5")

	f, err := os.OpenFile(filepath.Join(r.dir, ".git", "config"), os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("\n[core\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = Query(context.Background(), Options{Dir: r.dir})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoRepository)
	assert.NotErrorIs(t, err, ErrNoCommits)

	v, err := Describe(context.Background(), Options{Dir: r.dir})
	require.Error(t, err)
	assert.Empty(t, v)
}

func TestDescribeUnknownRev(t *testing.T) {
	r := newTestRepo(t, true)
	r.commit()

	// Only an unborn HEAD counts as a repository without commits.
	_, err := Describe(context.Background(), Options{Dir: r.dir, Rev: "HEAD^"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoCommits)
}

func TestDescribeShallowClone(t *testing.T) {
	r := newTestRepo(t, true)
	for i := 0; i < 3; i++ {
		r.commit()
	}
	shallow := filepath.Join(filepath.Dir(r.dir), "shallow")
	r.git("clone", "-q", "--depth", "1", "file://"+r.dir, shallow)

	hook := test.NewGlobal()
	defer hook.Reset()

	v, err := Describe(context.Background(), Options{Dir: shallow})
	require.NoError(t, err)
	assert.Equal(t, "v0.0.0-1-g"+r.head()[:DefaultAbbrevLen], v)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == log.WarnLevel && strings.Contains(e.Message, "Shallow clone") {
			warned = true
		}
	}
	assert.True(t, warned, "shallow clones must be reported")
}

func TestStampedBy(t *testing.T) {
	r := newTestRepo(t, true)
	r.write("version.go", "package vc\n")
	r.git("add", "version.go")
	r.commit()
	r.git("tag", "-a", "v0.0.5", "-m", "v0.0.5")

	// A root commit has no parent to stamp.
	stamped, err := StampedBy(context.Background(), r.dir, "version.go")
	require.NoError(t, err)
	assert.False(t, stamped)

	r.write("version.go", "package vc\n\nconst Version = \"v0.0.5\"\n")
	r.git("commit", "-q", "-am", "stamp version")

	for _, path := range []string{"version.go", filepath.Join(r.dir, "version.go")} {
		stamped, err = StampedBy(context.Background(), r.dir, path)
		require.NoError(t, err)
		assert.True(t, stamped, path)
	}
	stamped, err = StampedBy(context.Background(), r.dir, "file.txt")
	require.NoError(t, err)
	assert.False(t, stamped)

	assert.Equal(t, "v0.0.5", r.describe(Options{Rev: "HEAD^"}))
	assert.Equal(t, "v0.0.5-1-g"+r.head()[:DefaultAbbrevLen], r.describe(Options{}))

	r.commit()
	stamped, err = StampedBy(context.Background(), r.dir, "version.go")
	require.NoError(t, err)
	assert.False(t, stamped)
}
