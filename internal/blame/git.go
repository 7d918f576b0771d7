package blame

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// Blamer returns the line attribution text of one tracked file.
type Blamer interface {
	Blame(ctx context.Context, root, path string) ([]byte, error)
}

// ErrUntracked is returned by Blame for a path that exists in the working
// tree but not in HEAD, such as an ignored or newly created file.
var ErrUntracked = errors.New("path is not tracked")

// SubprocessError is returned when git blame exits unsuccessfully.
type SubprocessError struct {
	Path     string
	ExitCode int
	Stderr   string
	Err      error
}

func (err *SubprocessError) Error() string {
	if err.Stderr != "" {
		return fmt.Sprintf("git blame %s exited with code %d: %s", err.Path, err.ExitCode, err.Stderr)
	}
	return fmt.Sprintf("git blame %s exited with code %d", err.Path, err.ExitCode)
}

func (err *SubprocessError) Unwrap() error {
	return err.Err
}

// untracked reports whether git refused to blame a path because HEAD does
// not contain it.
func (err *SubprocessError) untracked() bool {
	return err.ExitCode == 128 && strings.Contains(err.Stderr, "no such path")
}

// GitBlamer runs git blame as a subprocess. The working tree is passed to
// every call, so blames of different repositories can run in parallel.
type GitBlamer struct {
	gitPath string
	logger  logrus.FieldLogger
}

// NewGitBlamer creates a GitBlamer that runs the git executable found on PATH.
func NewGitBlamer(logger logrus.FieldLogger) *GitBlamer {
	return &GitBlamer{gitPath: "git", logger: logger}
}

func blameArgs(path string) []string {
	// -e prints "(<email> YYYY-MM-DD HH:MM:SS +ZZZZ n)" before each line.
	// --date=iso keeps that layout when blame.date is configured.
	return []string{"blame", "-e", "--date=iso", "--", path}
}

// Blame runs git blame -e on path, relative to root. A path missing from
// HEAD yields an error wrapping ErrUntracked.
func (b *GitBlamer) Blame(ctx context.Context, root, path string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, b.gitPath, blameArgs(path)...)
	cmd.Dir = root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	b.logger.WithFields(logrus.Fields{"root": root, "path": path}).Debug("running git blame")
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			serr := &SubprocessError{
				Path:     path,
				ExitCode: exitErr.ExitCode(),
				Stderr:   strings.TrimSpace(stderr.String()),
				Err:      err,
			}
			if serr.untracked() {
				return nil, fmt.Errorf("%w: %s", ErrUntracked, path)
			}
			return nil, serr
		}
		return nil, fmt.Errorf("failed to start git blame: %w", err)
	}
	return stdout.Bytes(), nil
}
