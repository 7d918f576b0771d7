// Package gateway provides a gateway to the GitHub API,
// abstracting away the underlying REST and GraphQL clients.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/google/go-github/v62/github"
	"github.com/naka-gawa/contrib-stats/internal/domain"
	"github.com/shurcooL/githubv4"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
)

const (
	bugLabel     = "bug"
	blockedLabel = "blocked"

	// staleAfter is how long an assigned issue may go without an update.
	staleAfter = 24 * time.Hour
)

// Fetcher defines the behavior of an issue tracker gateway.
type Fetcher interface {
	// FetchActivity returns the issue and pull request counters of every
	// login active within w.
	FetchActivity(ctx context.Context, w domain.Window) (map[string]*domain.ActivityCounters, error)
	// FetchAgenda returns the open pull requests and stale issues as of asof.
	FetchAgenda(ctx context.Context, asof time.Time) (*domain.Agenda, error)
}

// GitHubGateway is the concrete implementation of the Fetcher interface.
type GitHubGateway struct {
	restClient    *github.Client
	graphqlClient *githubv4.Client
	owner         string
	repos         []string
	logger        logrus.FieldLogger
}

// mergedPRQuery fetches merged pull requests with their comment counts.
type mergedPRQuery struct {
	Search struct {
		PageInfo struct {
			HasNextPage bool
			EndCursor   githubv4.String
		}
		Edges []struct {
			Node struct {
				Typename    string `graphql:"__typename"`
				PullRequest struct {
					Author struct {
						Login string
					}
					CreatedAt githubv4.DateTime
					Comments  struct {
						TotalCount int
					}
				} `graphql:"... on PullRequest"`
			}
		}
	} `graphql:"search(query: $query, type: ISSUE, first: 100, after: $cursor)"`
}

// openPRQuery fetches the open pull requests of one repository.
type openPRQuery struct {
	Repository struct {
		PullRequests struct {
			PageInfo struct {
				HasNextPage bool
				EndCursor   githubv4.String
			}
			Nodes []struct {
				Number    int
				Title     string
				IsDraft   bool
				CreatedAt githubv4.DateTime
				Author    struct {
					Login string
				}
				Assignees struct {
					Nodes []struct {
						Login string
					}
				} `graphql:"assignees(first: 10)"`
			}
		} `graphql:"pullRequests(states: OPEN, first: 100, after: $cursor)"`
	} `graphql:"repository(owner: $owner, name: $name)"`
}

// NewGitHubGateway is a constructor that creates a new instance of GitHubGateway
// for the given repositories of owner.
func NewGitHubGateway(token, owner string, repos []string, logger logrus.FieldLogger) (Fetcher, error) {
	rateLimitWaiter, err := github_ratelimit.NewRateLimitWaiter(nil, github_ratelimit.WithSingleSleepLimit(1*time.Hour, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit waiter: %w", err)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Base:   rateLimitWaiter,
			Source: ts,
		},
	}
	return &GitHubGateway{
		restClient:    github.NewClient(httpClient),
		graphqlClient: githubv4.NewClient(httpClient),
		owner:         owner,
		repos:         repos,
		logger:        logger,
	}, nil
}

func (g *GitHubGateway) FetchActivity(ctx context.Context, w domain.Window) (map[string]*domain.ActivityCounters, error) {
	counters := make(map[string]*domain.ActivityCounters)
	for i, repo := range g.repos {
		g.logger.Infof("[%d/%d] Fetching activity of %s/%s...", i+1, len(g.repos), g.owner, repo)
		if err := g.fetchIssues(ctx, repo, w, counters); err != nil {
			return nil, err
		}
		if err := g.fetchMergedPRs(ctx, repo, w, counters); err != nil {
			return nil, err
		}
	}
	g.logger.Info("Completed fetching tracker activity.")
	return counters, nil
}

func entry(counters map[string]*domain.ActivityCounters, login string) *domain.ActivityCounters {
	if _, ok := counters[login]; !ok {
		counters[login] = &domain.ActivityCounters{}
	}
	return counters[login]
}

func (g *GitHubGateway) fetchIssues(ctx context.Context, repo string, w domain.Window, counters map[string]*domain.ActivityCounters) error {
	// Since filters on the update time, which is never earlier than the
	// creation or close time we count.
	opts := &github.IssueListByRepoOptions{
		State:       "all",
		Since:       w.Since,
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for {
		issues, resp, err := g.restClient.Issues.ListByRepo(ctx, g.owner, repo, opts)
		if err != nil {
			return fmt.Errorf("failed to list issues with REST API: %w", err)
		}
		for _, issue := range issues {
			if issue.IsPullRequest() {
				continue
			}
			tallyIssue(counters, issue, w)
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
		g.logger.Debug("  Fetching next page of issues...")
	}
	return nil
}

// tallyIssue credits an issue's author for opening it and its assignees for
// closing it. Closing credit is split evenly across assignees.
func tallyIssue(counters map[string]*domain.ActivityCounters, issue *github.Issue, w domain.Window) {
	recent := w.LastWeek()

	created := issue.GetCreatedAt().Time
	if author := issue.GetUser().GetLogin(); author != "" && w.Contains(created) {
		c := entry(counters, author)
		if hasLabel(issue, bugLabel) {
			c.BugsReported++
		} else {
			c.IssuesOpened++
		}
		if recent.Contains(created) {
			c.RecentlyOpened++
		}
	}

	if issue.ClosedAt == nil || len(issue.Assignees) == 0 {
		return
	}
	closed := issue.GetClosedAt().Time
	if !w.Contains(closed) {
		return
	}
	share := 1 / float64(len(issue.Assignees))
	for _, assignee := range issue.Assignees {
		login := assignee.GetLogin()
		if login == "" {
			continue
		}
		c := entry(counters, login)
		c.IssuesCompleted += share
		if recent.Contains(closed) {
			c.RecentlyClosed++
		}
	}
}

func hasLabel(issue *github.Issue, name string) bool {
	for _, label := range issue.Labels {
		if label.GetName() == name {
			return true
		}
	}
	return false
}

func (g *GitHubGateway) fetchMergedPRs(ctx context.Context, repo string, w domain.Window, counters map[string]*domain.ActivityCounters) error {
	const searchDateLayout = "2006-01-02"
	query := fmt.Sprintf("repo:%s/%s is:pr is:merged created:%s..%s",
		g.owner, repo, w.Since.UTC().Format(searchDateLayout), w.Asof.UTC().Format(searchDateLayout))
	variables := map[string]interface{}{"query": githubv4.String(query), "cursor": (*githubv4.String)(nil)}

	for {
		var q mergedPRQuery
		if err := g.graphqlClient.Query(ctx, &q, variables); err != nil {
			return fmt.Errorf("failed to execute GraphQL query for merged pull requests: %w", err)
		}
		for _, edge := range q.Search.Edges {
			pr := edge.Node.PullRequest
			// Search dates have day granularity; the window does not.
			if edge.Node.Typename != "PullRequest" || pr.Author.Login == "" || !w.Contains(pr.CreatedAt.Time) {
				continue
			}
			c := entry(counters, pr.Author.Login)
			c.MergedRequestsOpened++
			c.RequestCommentCount += pr.Comments.TotalCount
		}
		if !q.Search.PageInfo.HasNextPage {
			break
		}
		variables["cursor"] = githubv4.NewString(q.Search.PageInfo.EndCursor)
		g.logger.Debug("  Fetching next page of merged pull requests...")
	}
	g.logger.Debugf("Completed fetching merged pull requests for query: %s", query)
	return nil
}

// FetchAgenda lists, for every repository, the pull requests under review
// and the assigned issues nobody has touched in the last day.
func (g *GitHubGateway) FetchAgenda(ctx context.Context, asof time.Time) (*domain.Agenda, error) {
	agenda := &domain.Agenda{
		OpenRequests: make([]domain.OpenRequest, 0),
		StaleIssues:  make([]domain.StaleIssue, 0),
	}
	for _, repo := range g.repos {
		g.logger.Debugf("Fetching agenda of %s/%s...", g.owner, repo)
		prs, err := g.fetchOpenPRs(ctx, repo, asof)
		if err != nil {
			return nil, err
		}
		agenda.OpenRequests = append(agenda.OpenRequests, prs...)

		issues, err := g.fetchStaleIssues(ctx, repo, asof)
		if err != nil {
			return nil, err
		}
		agenda.StaleIssues = append(agenda.StaleIssues, issues...)
	}
	return agenda, nil
}

func (g *GitHubGateway) fetchOpenPRs(ctx context.Context, repo string, asof time.Time) ([]domain.OpenRequest, error) {
	variables := map[string]interface{}{
		"owner":  githubv4.String(g.owner),
		"name":   githubv4.String(repo),
		"cursor": (*githubv4.String)(nil),
	}

	var prs []domain.OpenRequest
	for {
		var q openPRQuery
		if err := g.graphqlClient.Query(ctx, &q, variables); err != nil {
			return nil, fmt.Errorf("failed to execute GraphQL query for open pull requests: %w", err)
		}
		for _, node := range q.Repository.PullRequests.Nodes {
			if node.IsDraft || isWIP(node.Title) || !node.CreatedAt.Before(asof) {
				continue
			}
			assignees := make([]string, 0, len(node.Assignees.Nodes))
			for _, a := range node.Assignees.Nodes {
				assignees = append(assignees, a.Login)
			}
			prs = append(prs, domain.OpenRequest{
				Repo:      repo,
				Number:    node.Number,
				Title:     node.Title,
				Author:    node.Author.Login,
				Assignees: assignees,
			})
		}
		if !q.Repository.PullRequests.PageInfo.HasNextPage {
			break
		}
		variables["cursor"] = githubv4.NewString(q.Repository.PullRequests.PageInfo.EndCursor)
		g.logger.Debug("  Fetching next page of open pull requests...")
	}
	return prs, nil
}

// isWIP reports whether a title marks its pull request as not ready.
func isWIP(title string) bool {
	upper := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(title)), "[")
	if rest, ok := strings.CutPrefix(upper, "WIP"); ok {
		return rest == "" || !unicode.IsLetter(rune(rest[0]))
	}
	return strings.HasPrefix(upper, "DRAFT:")
}

func (g *GitHubGateway) fetchStaleIssues(ctx context.Context, repo string, asof time.Time) ([]domain.StaleIssue, error) {
	opts := &github.IssueListByRepoOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var stale []domain.StaleIssue
	for {
		issues, resp, err := g.restClient.Issues.ListByRepo(ctx, g.owner, repo, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list open issues with REST API: %w", err)
		}
		for _, issue := range issues {
			if s, ok := staleIssue(repo, issue, asof); ok {
				stale = append(stale, s)
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
		g.logger.Debug("  Fetching next page of open issues...")
	}
	return stale, nil
}

// staleIssue reports whether an open issue existing at asof is assigned,
// not blocked, and was last updated at least a day before asof.
func staleIssue(repo string, issue *github.Issue, asof time.Time) (domain.StaleIssue, bool) {
	if issue.IsPullRequest() || !issue.GetCreatedAt().Time.Before(asof) {
		return domain.StaleIssue{}, false
	}
	if issue.GetUpdatedAt().Time.After(asof.Add(-staleAfter)) || hasLabel(issue, blockedLabel) {
		return domain.StaleIssue{}, false
	}
	var assignees []string
	for _, a := range issue.Assignees {
		if login := a.GetLogin(); login != "" {
			assignees = append(assignees, login)
		}
	}
	if len(assignees) == 0 {
		return domain.StaleIssue{}, false
	}
	return domain.StaleIssue{
		Repo:      repo,
		Number:    issue.GetNumber(),
		Title:     issue.GetTitle(),
		Assignees: assignees,
		UpdatedAt: issue.GetUpdatedAt().Time,
	}, true
}
