package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/naka-gawa/contrib-stats/internal/domain"
	"github.com/shurcooL/githubv4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestGateway creates a GitHubGateway that communicates with a mock HTTP server.
func setupTestGateway(t *testing.T, handler http.Handler) (*GitHubGateway, *httptest.Server) {
	server := httptest.NewServer(handler)

	// Setup REST client to point to the mock server.
	restClient := github.NewClient(server.Client())
	baseURL, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	restClient.BaseURL = baseURL

	// Use NewEnterpriseClient to point the GraphQL client to our mock server's URL.
	graphqlClient := githubv4.NewEnterpriseClient(server.URL, server.Client())
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	gateway := &GitHubGateway{
		restClient:    restClient,
		graphqlClient: graphqlClient,
		owner:         "org",
		repos:         []string{"repo"},
		logger:        logger,
	}

	return gateway, server
}

func testWindow() domain.Window {
	return domain.Window{
		Since: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Asof:  time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC),
	}
}

const issuesBody = `[
  {"number": 1, "user": {"login": "alice"}, "labels": [{"name": "bug"}],
   "created_at": "2024-01-02T00:00:00Z", "state": "open"},
  {"number": 2, "user": {"login": "bob"}, "labels": [],
   "created_at": "2023-12-01T00:00:00Z", "closed_at": "2024-01-03T00:00:00Z", "state": "closed",
   "assignees": [{"login": "alice"}, {"login": "carol"}]},
  {"number": 3, "user": {"login": "carol"}, "labels": [{"name": "enhancement"}],
   "created_at": "2024-01-03T12:00:00Z", "state": "open"},
  {"number": 4, "user": {"login": "carol"},
   "created_at": "2024-01-02T00:00:00Z", "pull_request": {"url": "https://example.invalid/pr/4"}},
  {"number": 5, "user": {"login": "dave"},
   "created_at": "2024-01-04T00:00:00Z", "closed_at": "2024-01-04T00:00:00Z", "state": "closed",
   "assignees": [{"login": "dave"}]}
]`

const mergedPRsBody = `{"data":{"search":{"pageInfo":{"hasNextPage":false,"endCursor":""},"edges":[
  {"node":{"__typename":"PullRequest","author":{"login":"alice"},"createdAt":"2024-01-02T00:00:00Z","comments":{"totalCount":3}}},
  {"node":{"__typename":"PullRequest","author":{"login":"alice"},"createdAt":"2024-01-03T00:00:00Z","comments":{"totalCount":1}}},
  {"node":{"__typename":"PullRequest","author":{"login":"erin"},"createdAt":"2023-12-31T23:00:00Z","comments":{"totalCount":9}}}
]}}}`

func TestGitHubGateway_FetchActivity(t *testing.T) {
	testCases := []struct {
		name           string
		handlerFunc    func(t *testing.T) http.HandlerFunc
		expectedMap    map[string]*domain.ActivityCounters
		expectError    bool
		expectedErrMsg string
	}{
		{
			name: "happy path - merges issues and merged pull requests",
			handlerFunc: func(t *testing.T) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					if strings.HasPrefix(r.URL.Path, "/repos/") {
						assert.Equal(t, "/repos/org/repo/issues", r.URL.Path)
						assert.Equal(t, "all", r.URL.Query().Get("state"))
						w.WriteHeader(http.StatusOK)
						fmt.Fprint(w, issuesBody)
						return
					}
					body, err := io.ReadAll(r.Body)
					require.NoError(t, err)
					assert.Contains(t, string(body), "repo:org/repo is:pr is:merged created:2024-01-01..2024-01-04")
					w.WriteHeader(http.StatusOK)
					fmt.Fprint(w, mergedPRsBody)
				}
			},
			expectedMap: map[string]*domain.ActivityCounters{
				"alice": {
					BugsReported:         1,
					RecentlyOpened:       1,
					IssuesCompleted:      0.5,
					RecentlyClosed:       1,
					MergedRequestsOpened: 2,
					RequestCommentCount:  4,
				},
				"carol": {
					IssuesOpened:    1,
					RecentlyOpened:  1,
					IssuesCompleted: 0.5,
					RecentlyClosed:  1,
				},
			},
		},
		{
			name: "error case - REST API returns an error",
			handlerFunc: func(t *testing.T) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusInternalServerError)
					fmt.Fprint(w, `{"message": "Internal Server Error"}`)
				}
			},
			expectError:    true,
			expectedErrMsg: "failed to list issues with REST API",
		},
		{
			name: "error case - GraphQL returns an error",
			handlerFunc: func(t *testing.T) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusOK)
					if strings.HasPrefix(r.URL.Path, "/repos/") {
						fmt.Fprint(w, `[]`)
						return
					}
					fmt.Fprint(w, `{"errors":[{"message":"Something went wrong"}]}`)
				}
			},
			expectError:    true,
			expectedErrMsg: "failed to execute GraphQL query",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gateway, server := setupTestGateway(t, tc.handlerFunc(t))
			defer server.Close()

			resultMap, err := gateway.FetchActivity(context.Background(), testWindow())
			if tc.expectError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tc.expectedErrMsg)
				assert.Nil(t, resultMap)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tc.expectedMap, resultMap)
			}
		})
	}
}

func TestTallyIssue_SplitsCreditAcrossAssignees(t *testing.T) {
	closed := github.Timestamp{Time: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}
	issue := &github.Issue{
		User:      &github.User{Login: github.String("zed")},
		CreatedAt: &github.Timestamp{Time: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)},
		ClosedAt:  &closed,
		Assignees: []*github.User{
			{Login: github.String("a")},
			{Login: github.String("b")},
			{Login: github.String("c")},
		},
	}

	counters := make(map[string]*domain.ActivityCounters)
	tallyIssue(counters, issue, testWindow())

	require.Len(t, counters, 3)
	total := 0.0
	for _, login := range []string{"a", "b", "c"} {
		assert.InDelta(t, 1.0/3, counters[login].IssuesCompleted, 1e-9)
		total += counters[login].IssuesCompleted
	}
	assert.InDelta(t, 1.0, total, 1e-9)
	assert.NotContains(t, counters, "zed")
}

const openIssuesBody = `[
  {"number": 10, "title": "flaky test", "created_at": "2023-12-01T00:00:00Z", "updated_at": "2024-01-02T00:00:00Z",
   "assignees": [{"login": "alice"}, {"login": "bob"}]},
  {"number": 11, "title": "touched today", "created_at": "2023-12-01T00:00:00Z", "updated_at": "2024-01-03T12:00:00Z",
   "assignees": [{"login": "alice"}]},
  {"number": 12, "title": "waiting on vendor", "created_at": "2023-12-01T00:00:00Z", "updated_at": "2023-12-02T00:00:00Z",
   "labels": [{"name": "blocked"}], "assignees": [{"login": "carol"}]},
  {"number": 13, "title": "nobody owns this", "created_at": "2023-12-01T00:00:00Z", "updated_at": "2023-12-02T00:00:00Z"},
  {"number": 14, "title": "a pull request", "created_at": "2023-12-01T00:00:00Z", "updated_at": "2023-12-02T00:00:00Z",
   "assignees": [{"login": "alice"}], "pull_request": {"url": "https://example.invalid/pr/14"}},
  {"number": 15, "title": "opened after asof", "created_at": "2024-01-05T00:00:00Z", "updated_at": "2023-12-02T00:00:00Z",
   "assignees": [{"login": "alice"}]}
]`

const openPRsBody = `{"data":{"repository":{"pullRequests":{"pageInfo":{"hasNextPage":false,"endCursor":""},"nodes":[
  {"number":20,"title":"Add exporter","isDraft":false,"createdAt":"2024-01-02T00:00:00Z","author":{"login":"alice"},"assignees":{"nodes":[{"login":"bob"}]}},
  {"number":21,"title":"WIP: rework parser","isDraft":false,"createdAt":"2024-01-02T00:00:00Z","author":{"login":"alice"},"assignees":{"nodes":[]}},
  {"number":22,"title":"Try something","isDraft":true,"createdAt":"2024-01-02T00:00:00Z","author":{"login":"carol"},"assignees":{"nodes":[]}},
  {"number":23,"title":"Too new","isDraft":false,"createdAt":"2024-01-04T00:00:00Z","author":{"login":"carol"},"assignees":{"nodes":[]}},
  {"number":24,"title":"Fix typo","isDraft":false,"createdAt":"2023-11-02T00:00:00Z","author":{"login":"dave"},"assignees":{"nodes":[]}}
]}}}}`

func TestGitHubGateway_FetchAgenda(t *testing.T) {
	testCases := []struct {
		name           string
		handlerFunc    func(t *testing.T) http.HandlerFunc
		expectedAgenda *domain.Agenda
		expectError    bool
		expectedErrMsg string
	}{
		{
			name: "happy path - lists pull requests under review and stale issues",
			handlerFunc: func(t *testing.T) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					if strings.HasPrefix(r.URL.Path, "/repos/") {
						assert.Equal(t, "/repos/org/repo/issues", r.URL.Path)
						assert.Equal(t, "open", r.URL.Query().Get("state"))
						w.WriteHeader(http.StatusOK)
						fmt.Fprint(w, openIssuesBody)
						return
					}
					body, err := io.ReadAll(r.Body)
					require.NoError(t, err)
					assert.Contains(t, string(body), "pullRequests(states: OPEN")
					w.WriteHeader(http.StatusOK)
					fmt.Fprint(w, openPRsBody)
				}
			},
			expectedAgenda: &domain.Agenda{
				OpenRequests: []domain.OpenRequest{
					{Repo: "repo", Number: 20, Title: "Add exporter", Author: "alice", Assignees: []string{"bob"}},
					{Repo: "repo", Number: 24, Title: "Fix typo", Author: "dave", Assignees: []string{}},
				},
				StaleIssues: []domain.StaleIssue{
					{
						Repo:      "repo",
						Number:    10,
						Title:     "flaky test",
						Assignees: []string{"alice", "bob"},
						UpdatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
					},
				},
			},
		},
		{
			name: "error case - GraphQL returns an error",
			handlerFunc: func(t *testing.T) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusOK)
					fmt.Fprint(w, `{"errors":[{"message":"Something went wrong"}]}`)
				}
			},
			expectError:    true,
			expectedErrMsg: "failed to execute GraphQL query for open pull requests",
		},
		{
			name: "error case - REST API returns an error",
			handlerFunc: func(t *testing.T) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					if strings.HasPrefix(r.URL.Path, "/repos/") {
						w.WriteHeader(http.StatusInternalServerError)
						fmt.Fprint(w, `{"message": "Internal Server Error"}`)
						return
					}
					w.WriteHeader(http.StatusOK)
					fmt.Fprint(w, `{"data":{"repository":{"pullRequests":{"pageInfo":{"hasNextPage":false},"nodes":[]}}}}`)
				}
			},
			expectError:    true,
			expectedErrMsg: "failed to list open issues with REST API",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gateway, server := setupTestGateway(t, tc.handlerFunc(t))
			defer server.Close()

			agenda, err := gateway.FetchAgenda(context.Background(), testWindow().Asof)
			if tc.expectError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tc.expectedErrMsg)
				assert.Nil(t, agenda)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.expectedAgenda.OpenRequests, agenda.OpenRequests)
				require.Len(t, agenda.StaleIssues, len(tc.expectedAgenda.StaleIssues))
				for i, want := range tc.expectedAgenda.StaleIssues {
					got := agenda.StaleIssues[i]
					assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt))
					got.UpdatedAt = want.UpdatedAt
					assert.Equal(t, want, got)
				}
			}
		})
	}
}

func TestIsWIP(t *testing.T) {
	for title, want := range map[string]bool{
		"WIP: parser":     true,
		"[WIP] parser":    true,
		"wip parser":      true,
		"Draft: parser":   true,
		"Wipe caches":     false,
		"WIP":             true,
		"Fix WIP handler": false,
		"Add exporter":    false,
	} {
		assert.Equal(t, want, isWIP(title), title)
	}
}
