package domain

import (
	"fmt"
	"time"
)

// LineCounts maps an author email to the number of lines attributed to it.
type LineCounts map[string]int

// Add adds every count of other to c.
func (c LineCounts) Add(other LineCounts) {
	for email, n := range other {
		c[email] += n
	}
}

// Total returns the sum of all counts.
func (c LineCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// MergeLineCounts returns the elementwise sum of all given counts over the
// union of their keys. The inputs are not modified.
func MergeLineCounts(counts ...LineCounts) LineCounts {
	merged := make(LineCounts)
	for _, c := range counts {
		merged.Add(c)
	}
	return merged
}

// Window is the half-open interval [Since, Asof).
type Window struct {
	Since time.Time `json:"since"`
	Asof  time.Time `json:"asof"`
}

// NewWindow returns the window [since, asof).
func NewWindow(since, asof time.Time) (Window, error) {
	if !since.Before(asof) {
		return Window{}, fmt.Errorf("invalid window: since %s is not before asof %s",
			since.Format(time.RFC3339), asof.Format(time.RFC3339))
	}
	return Window{Since: since, Asof: asof}, nil
}

// Contains reports whether t falls within the window. Instants are compared
// independently of their offsets.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Since) && t.Before(w.Asof)
}

// Days returns the length of the window in whole days, at least one.
func (w Window) Days() int {
	days := int(w.Asof.Sub(w.Since) / (24 * time.Hour))
	if days < 1 {
		return 1
	}
	return days
}

// LastWeek returns the trailing seven days of the window, clipped to it.
func (w Window) LastWeek() Window {
	since := w.Asof.Add(-7 * 24 * time.Hour)
	if since.Before(w.Since) {
		since = w.Since
	}
	return Window{Since: since, Asof: w.Asof}
}
