// Package walker enumerates the files of a repository working tree.
package walker

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"regexp"

	"github.com/naka-gawa/contrib-stats/internal/domain"
)

// DefaultExcludes are applied to every repository. Patterns match
// repository-relative paths with forward slashes.
var DefaultExcludes = []string{
	`^\.git/`,
	`(^|/)Cargo\.lock$`,
	`\.dat$`,
	`\.log$`,
	`\.pcap$`,
	`\.png$`,
	`^LICENSE$`,
}

// Matcher reports whether a path is excluded.
type Matcher struct {
	patterns []*regexp.Regexp
}

// NewMatcher compiles every pattern of every given list.
func NewMatcher(lists ...[]string) (*Matcher, error) {
	m := &Matcher{}
	for _, list := range lists {
		for _, p := range list {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("invalid exclude pattern %q: %w", p, err)
			}
			m.patterns = append(m.patterns, re)
		}
	}
	return m, nil
}

// Match reports whether path matches any pattern. A nil Matcher matches
// nothing.
func (m *Matcher) Match(path string) bool {
	if m == nil {
		return false
	}
	for _, re := range m.patterns {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// Walk returns the repository-relative paths of the regular files under
// root that are not excluded by m. Directories, symlinks and other
// non-regular entries are skipped, as are nested repositories such as
// submodules.
//
// The sequence walks the tree again every time it is ranged over. Entries
// are visited in lexical order. A filesystem error is yielded as a
// *domain.TraversalError and ends the sequence.
func Walk(root string, m *Matcher) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stopped := false
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && isRepository(path) {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}

			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			if m.Match(rel) {
				return nil
			}

			if !yield(rel, nil) {
				stopped = true
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil && !stopped {
			terr := &domain.TraversalError{Repo: root, Err: err}
			var pe *fs.PathError
			if errors.As(err, &pe) {
				terr.Path = pe.Path
			}
			yield("", terr)
		}
	}
}

// isRepository reports whether dir holds a .git directory or gitlink file.
func isRepository(dir string) bool {
	_, err := os.Lstat(filepath.Join(dir, ".git"))
	return err == nil
}
