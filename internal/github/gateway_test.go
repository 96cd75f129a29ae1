package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRepoURL = "https://github.com/example/proj.git"

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("test-token")
	c.baseURL = srv.URL
	return c
}

func TestSearchIssues_DeduplicatesFirstSeen(t *testing.T) {
	calls := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search/issues", r.URL.Path)
		calls++
		// Every scoped query returns issue #42; only the first one
		// returns #7 as well.
		if calls == 1 {
			fmt.Fprint(w, `{"items":[{"number":42,"title":"crash on load","state":"open"},{"number":7,"title":"docs","state":"closed"}]}`)
			return
		}
		fmt.Fprint(w, `{"items":[{"number":42,"title":"crash on load","state":"open"}]}`)
	}))

	issues, err := c.SearchIssues(context.Background(), testRepoURL, "crash")
	require.NoError(t, err)

	require.Len(t, issues, 2)
	assert.Equal(t, 42, issues[0].Number)
	assert.Equal(t, 7, issues[1].Number)
	assert.Equal(t, 3, calls)
}

func TestSearchIssues_RateLimited(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := c.SearchIssues(context.Background(), testRepoURL, "anything")
	require.Error(t, err)

	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, KindRateLimited, gwErr.Kind)
}

func TestSearchIssues_BadURL(t *testing.T) {
	c := NewClient("")
	_, err := c.SearchIssues(context.Background(), "not-a-repo", "q")

	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, KindNotFound, gwErr.Kind)
}

func TestGetIssueDetails_PlainIssue(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/example/proj/issues/5":
			fmt.Fprint(w, `{"number":5,"title":"bug report","state":"open","body":"it breaks"}`)
		case "/repos/example/proj/issues/5/comments":
			fmt.Fprint(w, `[{"user":{"login":"alice"},"body":"confirmed","created_at":"2026-01-02T03:04:05Z"}]`)
		default:
			t.Fatalf("unexpected request: %s", r.URL.Path)
		}
	}))

	details, err := c.GetIssueDetails(context.Background(), testRepoURL, 5)
	require.NoError(t, err)

	assert.Equal(t, 5, details.Issue.Number)
	assert.False(t, details.Issue.IsPullRequest)
	require.Len(t, details.Comments, 1)
	assert.Equal(t, "alice", details.Comments[0].Author)
	// Plain issues yield an empty, non-nil review list.
	assert.Empty(t, details.Reviews)
}

func TestGetIssueDetails_PullRequestGetsReviews(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/example/proj/issues/9":
			fmt.Fprint(w, `{"number":9,"title":"add feature","state":"open","pull_request":{"url":"https://api.github.com/repos/example/proj/pulls/9"}}`)
		case "/repos/example/proj/issues/9/comments":
			fmt.Fprint(w, `[]`)
		case "/repos/example/proj/pulls/9/reviews":
			fmt.Fprint(w, `[{"user":{"login":"bob"},"state":"APPROVED","body":"lgtm"}]`)
		default:
			t.Fatalf("unexpected request: %s", r.URL.Path)
		}
	}))

	details, err := c.GetIssueDetails(context.Background(), testRepoURL, 9)
	require.NoError(t, err)

	assert.True(t, details.Issue.IsPullRequest)
	require.Len(t, details.Reviews, 1)
	assert.Equal(t, "APPROVED", details.Reviews[0].State)
}

func TestGetIssueDetails_NotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.GetIssueDetails(context.Background(), testRepoURL, 999)
	var gwErr *GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, KindNotFound, gwErr.Kind)
}

func TestGetRepoMetadata_Cached(t *testing.T) {
	calls := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"full_name":"example/proj","description":"a project","stargazers_count":3,"language":"Python","open_issues_count":1}`)
	}))

	first, err := c.GetRepoMetadata(context.Background(), testRepoURL)
	require.NoError(t, err)
	assert.Equal(t, "example/proj", first.FullName)

	second, err := c.GetRepoMetadata(context.Background(), testRepoURL)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)
}
