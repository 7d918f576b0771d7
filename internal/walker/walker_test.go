package walker

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/naka-gawa/contrib-stats/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTree creates the given files (relative, slash separated) under a
// fresh temporary directory.
func writeTree(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range files {
		path := filepath.Join(root, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("x\n"), 0o644))
	}
	return root
}

func collect(t *testing.T, root string, m *Matcher) []string {
	t.Helper()
	var paths []string
	for path, err := range Walk(root, m) {
		require.NoError(t, err)
		paths = append(paths, path)
	}
	return paths
}

func TestWalk_DefaultExcludes(t *testing.T) {
	root := writeTree(t,
		".git/HEAD",
		".git/objects/ab/cdef",
		"LICENSE",
		"Cargo.lock",
		"crates/core/Cargo.lock",
		"docs/logo.png",
		"src/main.rs",
		"testdata/capture.pcap",
		"vendor/LICENSE",
		".gitignore",
	)
	m, err := NewMatcher(DefaultExcludes)
	require.NoError(t, err)

	assert.Equal(t, []string{
		".gitignore",
		"src/main.rs",
		"vendor/LICENSE",
	}, collect(t, root, m))
}

func TestWalk_SkipsSymlinks(t *testing.T) {
	root := writeTree(t, "a.txt", "dir/b.txt")
	if err := os.Symlink(filepath.Join(root, "a.txt"), filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}
	require.NoError(t, os.Symlink(filepath.Join(root, "dir"), filepath.Join(root, "linkdir")))

	assert.Equal(t, []string{"a.txt", "dir/b.txt"}, collect(t, root, nil))
}

func TestWalk_SkipsNestedRepositories(t *testing.T) {
	root := writeTree(t,
		".git/HEAD",
		"main.go",
		"libs/sub/.git",
		"libs/sub/lib.go",
		"libs/vendored/.git/HEAD",
		"libs/vendored/v.go",
		"libs/own.go",
	)
	m, err := NewMatcher(DefaultExcludes)
	require.NoError(t, err)

	assert.Equal(t, []string{"libs/own.go", "main.go"}, collect(t, root, m))
}

func TestWalk_PerRepositoryPatterns(t *testing.T) {
	root := writeTree(t, "gen/api.pb.go", "main.go", "third_party/x/y.c")
	m, err := NewMatcher(DefaultExcludes, []string{`^gen/`, `^third_party/`})
	require.NoError(t, err)

	assert.Equal(t, []string{"main.go"}, collect(t, root, m))
}

func TestWalk_Restartable(t *testing.T) {
	root := writeTree(t, "a", "b/c", "d")
	seq := Walk(root, nil)

	var first, second []string
	for path, err := range seq {
		require.NoError(t, err)
		first = append(first, path)
	}
	for path, err := range seq {
		require.NoError(t, err)
		second = append(second, path)
	}
	assert.Equal(t, []string{"a", "b/c", "d"}, first)
	assert.Equal(t, first, second)
}

func TestWalk_EarlyBreak(t *testing.T) {
	root := writeTree(t, "a", "b", "c")
	var got []string
	for path, err := range Walk(root, nil) {
		require.NoError(t, err)
		got = append(got, path)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestWalk_MissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "missing")

	var errs []error
	for _, err := range Walk(root, nil) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)

	var terr *domain.TraversalError
	require.True(t, errors.As(errs[0], &terr))
	assert.Equal(t, root, terr.Repo)
	assert.True(t, errors.Is(errs[0], os.ErrNotExist))
}

func TestMatcher(t *testing.T) {
	m, err := NewMatcher(DefaultExcludes)
	require.NoError(t, err)

	testCases := []struct {
		path     string
		excluded bool
	}{
		{path: "LICENSE", excluded: true},
		{path: "vendor/LICENSE", excluded: false},
		{path: "LICENSE.md", excluded: false},
		{path: ".git/config", excluded: true},
		{path: "sub/.git/config", excluded: false},
		{path: "Cargo.lock", excluded: true},
		{path: "a/Cargo.lock", excluded: true},
		{path: "aCargo.lock", excluded: false},
		{path: "run.log", excluded: true},
		{path: "logs/run.log.gz", excluded: false},
	}
	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.excluded, m.Match(tc.path))
		})
	}
}

func TestNewMatcher_InvalidPattern(t *testing.T) {
	_, err := NewMatcher([]string{`^ok$`}, []string{`(`})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid exclude pattern")
}
