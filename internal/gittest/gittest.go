// Package gittest builds throwaway git repositories for tests.
package gittest

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

// Repo is a git working tree in a temporary directory.
type Repo struct {
	tb   testing.TB
	Root string
}

// New initializes an empty repository. The test is skipped when git is not
// on PATH.
func New(tb testing.TB) *Repo {
	tb.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		tb.Skip("git not found on PATH")
	}
	r := &Repo{tb: tb, Root: tb.TempDir()}
	r.Git(nil, "init", "-q")
	return r
}

// Git runs git in the repository with user and system configuration
// ignored. env is appended to the environment.
func (r *Repo) Git(env []string, args ...string) {
	r.tb.Helper()
	cmd := exec.Command("git", append([]string{"-c", "commit.gpgsign=false"}, args...)...)
	cmd.Dir = r.Root
	cmd.Env = append(os.Environ(),
		"GIT_CONFIG_NOSYSTEM=1",
		"GIT_CONFIG_GLOBAL="+os.DevNull,
		"HOME="+r.Root,
	)
	cmd.Env = append(cmd.Env, env...)
	if out, err := cmd.CombinedOutput(); err != nil {
		r.tb.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

// Write creates or replaces a file in the working tree without staging it.
func (r *Repo) Write(path, content string) {
	r.tb.Helper()
	full := filepath.Join(r.Root, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		r.tb.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		r.tb.Fatal(err)
	}
}

// Commit writes files and commits every change in the working tree as
// email, authored and committed at when.
func (r *Repo) Commit(email string, when time.Time, files map[string]string) {
	r.tb.Helper()
	for path, content := range files {
		r.Write(path, content)
	}
	date := when.Format("2006-01-02 15:04:05 -0700")
	env := []string{
		"GIT_AUTHOR_NAME=" + email,
		"GIT_AUTHOR_EMAIL=" + email,
		"GIT_AUTHOR_DATE=" + date,
		"GIT_COMMITTER_NAME=" + email,
		"GIT_COMMITTER_EMAIL=" + email,
		"GIT_COMMITTER_DATE=" + date,
	}
	r.Git(env, "add", "-A")
	r.Git(env, "commit", "-q", "-m", "commit by "+email)
}
