package domain

import "fmt"

// TraversalError reports that enumerating a repository's files failed.
// It is fatal to that repository's scan only.
type TraversalError struct {
	Repo string
	Path string
	Err  error
}

func (e *TraversalError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to traverse %s at %s: %v", e.Repo, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to traverse %s: %v", e.Repo, e.Err)
}

func (e *TraversalError) Unwrap() error {
	return e.Err
}

// ExtractionError reports that the blame call failed for a file.
// It is fatal to that repository's scan only.
type ExtractionError struct {
	Repo string
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to blame %s in %s: %v", e.Path, e.Repo, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// ParseWarning describes one blame line that could not be parsed.
// It is never fatal; the line is skipped.
type ParseWarning struct {
	Path   string
	Line   int
	Reason string
}

func (w *ParseWarning) Error() string {
	if w.Path == "" {
		return fmt.Sprintf("line %d: %s", w.Line, w.Reason)
	}
	return fmt.Sprintf("%s:%d: %s", w.Path, w.Line, w.Reason)
}
