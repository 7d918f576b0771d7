// Package domain contains the core data structures and domain logic for the application.
package domain

import "time"

// ActivityCounters holds the issue and pull request activity a tracker
// attributes to a single login.
// IssuesCompleted is fractional because credit for a closed issue is split
// evenly between its assignees.
type ActivityCounters struct {
	BugsReported         int     `json:"bugs_reported"`
	IssuesOpened         int     `json:"issues_opened"`
	IssuesCompleted      float64 `json:"issues_completed"`
	MergedRequestsOpened int     `json:"merged_requests_opened"`
	RequestCommentCount  int     `json:"request_comment_count"`
	RecentlyOpened       int     `json:"recently_opened"`
	RecentlyClosed       int     `json:"recently_closed"`
}

// Add accumulates other into c.
func (c *ActivityCounters) Add(other *ActivityCounters) {
	if other == nil {
		return
	}
	c.BugsReported += other.BugsReported
	c.IssuesOpened += other.IssuesOpened
	c.IssuesCompleted += other.IssuesCompleted
	c.MergedRequestsOpened += other.MergedRequestsOpened
	c.RequestCommentCount += other.RequestCommentCount
	c.RecentlyOpened += other.RecentlyOpened
	c.RecentlyClosed += other.RecentlyClosed
}

// IndividualStatistics holds every source of activity merged for one
// canonical person.
// It is the core domain entity of this application.
type IndividualStatistics struct {
	Person               string  `json:"person"`
	BugsReported         int     `json:"bugs_reported"`
	IssuesOpened         int     `json:"issues_opened"`
	IssuesCompleted      float64 `json:"issues_completed"`
	MergedRequestsOpened int     `json:"merged_requests_opened"`
	RequestCommentCount  int     `json:"request_comment_count"`
	LinesContributed     int     `json:"lines_contributed"`
	RecentlyOpened       int     `json:"recently_opened"`
	RecentlyClosed       int     `json:"recently_closed"`
}

// AddActivity merges tracker counters into the statistics.
func (s *IndividualStatistics) AddActivity(c *ActivityCounters) {
	if c == nil {
		return
	}
	s.BugsReported += c.BugsReported
	s.IssuesOpened += c.IssuesOpened
	s.IssuesCompleted += c.IssuesCompleted
	s.MergedRequestsOpened += c.MergedRequestsOpened
	s.RequestCommentCount += c.RequestCommentCount
	s.RecentlyOpened += c.RecentlyOpened
	s.RecentlyClosed += c.RecentlyClosed
}

// UnmappedIdentity is an author email with no canonical person, kept with
// the lines attributed to it.
type UnmappedIdentity struct {
	Identity string `json:"identity"`
	Lines    int    `json:"lines"`
}

// UnmappedActivity is a tracker login with no canonical person.
type UnmappedActivity struct {
	Login    string            `json:"login"`
	Counters *ActivityCounters `json:"counters"`
}

// RepoOutcome records the result of scanning one repository.
type RepoOutcome struct {
	Name  string     `json:"name"`
	Lines int        `json:"lines"`
	Error string     `json:"error,omitempty"`
	Err   error      `json:"-"`
	Count LineCounts `json:"-"`
}

// Rates are per-day figures derived from IndividualStatistics.
type Rates struct {
	Person                     string  `json:"person"`
	IssuesCompletedPerDay      float64 `json:"issues_completed_per_day"`
	IssuesOpenedPerDay         float64 `json:"issues_opened_per_day"`
	BugsReportedPerDay         float64 `json:"bugs_reported_per_day"`
	MergedRequestsOpenedPerDay float64 `json:"merged_requests_opened_per_day"`
	CommentsPerRequest         float64 `json:"comments_per_request"`
	LinesContributedPerDay     float64 `json:"lines_contributed_per_day"`
}

// Summary holds the derived figures of a report.
type Summary struct {
	Days        int     `json:"days"`
	TotalLines  int     `json:"total_lines"`
	MeanLines   float64 `json:"mean_lines"`
	MedianLines float64 `json:"median_lines"`
	Rates       []Rates `json:"rates"`
}

// OpenRequest is an open, non-draft pull request awaiting review.
type OpenRequest struct {
	Repo      string   `json:"repo"`
	Number    int      `json:"number"`
	Title     string   `json:"title"`
	Author    string   `json:"author"`
	Assignees []string `json:"assignees"`
}

// StaleIssue is an assigned open issue that has not been updated in the day
// before asof.
type StaleIssue struct {
	Repo      string    `json:"repo"`
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Assignees []string  `json:"assignees"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Agenda lists the work in progress at the end of the window.
type Agenda struct {
	OpenRequests []OpenRequest `json:"open_requests"`
	StaleIssues  []StaleIssue  `json:"stale_issues"`
}

// Report is the output of a full run, handed to the renderer.
type Report struct {
	Window         Window                  `json:"window"`
	People         []*IndividualStatistics `json:"people"`
	UnmappedEmails []UnmappedIdentity      `json:"unmapped_emails"`
	UnmappedLogins []UnmappedActivity      `json:"unmapped_logins"`
	Repositories   []RepoOutcome           `json:"repositories"`
	Agenda         *Agenda                 `json:"agenda"`
	Summary        *Summary                `json:"summary"`
}
