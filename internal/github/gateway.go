// Package github adapts the GitHub REST API into the issue/PR gateway the
// agent consumes. Remote failures are translated into a GatewayError
// taxonomy instead of leaking raw transport errors.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/joescharf/repochat/internal/git"
)

// ErrorKind categorizes gateway failures.
type ErrorKind string

const (
	KindRateLimited ErrorKind = "rate_limited"
	KindNotFound    ErrorKind = "not_found"
	KindTransport   ErrorKind = "transport"
)

// GatewayError is a caller-visible remote failure with a readable cause.
type GatewayError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("github gateway (%s): %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("github gateway (%s): %s", e.Kind, e.Msg)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// IssueSummary is one search hit; PRs appear here too.
type IssueSummary struct {
	Number        int    `json:"number"`
	Title         string `json:"title"`
	State         string `json:"state"`
	Body          string `json:"body"`
	HTMLURL       string `json:"html_url"`
	IsPullRequest bool   `json:"is_pull_request"`
}

// Comment is one entry in an issue's discussion thread.
type Comment struct {
	Author    string `json:"author"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
}

// Review is one PR review record. Plain issues have none.
type Review struct {
	Author string `json:"author"`
	State  string `json:"state"`
	Body   string `json:"body"`
}

// IssueDetails bundles an issue with its thread and review state.
type IssueDetails struct {
	Issue    IssueSummary `json:"issue"`
	Comments []Comment    `json:"comments"`
	Reviews  []Review     `json:"reviews"`
}

// RepoMetadata is basic repository information, cached per source URL.
type RepoMetadata struct {
	FullName    string `json:"full_name"`
	Description string `json:"description"`
	Stars       int    `json:"stars"`
	Language    string `json:"language"`
	OpenIssues  int    `json:"open_issues"`
}

// Gateway defines the issue/PR query capability.
type Gateway interface {
	SearchIssues(ctx context.Context, sourceURL, query string) ([]IssueSummary, error)
	GetIssueDetails(ctx context.Context, sourceURL string, number int) (*IssueDetails, error)
	GetRepoMetadata(ctx context.Context, sourceURL string) (*RepoMetadata, error)
}

// Metadata cache entries are kept for the process lifetime; beyond this
// many distinct repositories the oldest entry is dropped.
const maxCachedRepos = 64

// Client implements Gateway over the GitHub REST API.
type Client struct {
	baseURL string
	token   string
	httpc   *http.Client

	mu         sync.Mutex
	metaCache  map[string]*RepoMetadata
	cacheOrder []string
}

// NewClient returns a Client. token may be empty for anonymous access.
func NewClient(token string) *Client {
	return &Client{
		baseURL:   "https://api.github.com",
		token:     token,
		httpc:     &http.Client{Timeout: 30 * time.Second},
		metaCache: make(map[string]*RepoMetadata),
	}
}

// SearchIssues runs three differently-scoped searches (unscoped, title,
// body) to improve recall, merges the hits, and deduplicates by issue
// number preserving first-seen order.
func (c *Client) SearchIssues(ctx context.Context, sourceURL, query string) ([]IssueSummary, error) {
	owner, repo, err := git.ExtractOwnerRepo(sourceURL)
	if err != nil {
		return nil, &GatewayError{Kind: KindNotFound, Msg: "unrecognized repository URL", Err: err}
	}

	scopes := []string{"", "in:title", "in:body"}
	seen := make(map[int]bool)
	var merged []IssueSummary

	for _, scope := range scopes {
		q := fmt.Sprintf("repo:%s/%s %s", owner, repo, query)
		if scope != "" {
			q = fmt.Sprintf("repo:%s/%s %s %s", owner, repo, scope, query)
		}

		params := url.Values{}
		params.Set("q", q)
		params.Set("per_page", "10")

		var result struct {
			Items []searchItem `json:"items"`
		}
		if err := c.get(ctx, "/search/issues", params, &result); err != nil {
			return nil, err
		}

		for _, item := range result.Items {
			if seen[item.Number] {
				continue
			}
			seen[item.Number] = true
			merged = append(merged, item.summary())
		}
	}

	return merged, nil
}

// GetIssueDetails fetches an issue, its comment thread, and, for pull
// requests only, its review records.
func (c *Client) GetIssueDetails(ctx context.Context, sourceURL string, number int) (*IssueDetails, error) {
	owner, repo, err := git.ExtractOwnerRepo(sourceURL)
	if err != nil {
		return nil, &GatewayError{Kind: KindNotFound, Msg: "unrecognized repository URL", Err: err}
	}

	var issue searchItem
	path := fmt.Sprintf("/repos/%s/%s/issues/%d", owner, repo, number)
	if err := c.get(ctx, path, nil, &issue); err != nil {
		return nil, err
	}

	var rawComments []struct {
		User      struct{ Login string }
		Body      string
		CreatedAt string `json:"created_at"`
	}
	if err := c.get(ctx, path+"/comments", nil, &rawComments); err != nil {
		return nil, err
	}

	details := &IssueDetails{
		Issue:    issue.summary(),
		Comments: make([]Comment, 0, len(rawComments)),
		Reviews:  []Review{},
	}
	for _, rc := range rawComments {
		details.Comments = append(details.Comments, Comment{
			Author:    rc.User.Login,
			Body:      rc.Body,
			CreatedAt: rc.CreatedAt,
		})
	}

	if issue.PullRequest != nil {
		var rawReviews []struct {
			User  struct{ Login string }
			State string
			Body  string
		}
		reviewPath := fmt.Sprintf("/repos/%s/%s/pulls/%d/reviews", owner, repo, number)
		if err := c.get(ctx, reviewPath, nil, &rawReviews); err != nil {
			return nil, err
		}
		for _, rr := range rawReviews {
			details.Reviews = append(details.Reviews, Review{
				Author: rr.User.Login,
				State:  rr.State,
				Body:   rr.Body,
			})
		}
	}

	return details, nil
}

// GetRepoMetadata fetches repository information, serving repeats from the
// per-URL cache. Entries are never invalidated; stale reads are accepted.
func (c *Client) GetRepoMetadata(ctx context.Context, sourceURL string) (*RepoMetadata, error) {
	c.mu.Lock()
	if meta, ok := c.metaCache[sourceURL]; ok {
		c.mu.Unlock()
		return meta, nil
	}
	c.mu.Unlock()

	owner, repo, err := git.ExtractOwnerRepo(sourceURL)
	if err != nil {
		return nil, &GatewayError{Kind: KindNotFound, Msg: "unrecognized repository URL", Err: err}
	}

	var raw struct {
		FullName        string `json:"full_name"`
		Description     string `json:"description"`
		StargazersCount int    `json:"stargazers_count"`
		Language        string `json:"language"`
		OpenIssuesCount int    `json:"open_issues_count"`
	}
	if err := c.get(ctx, fmt.Sprintf("/repos/%s/%s", owner, repo), nil, &raw); err != nil {
		return nil, err
	}

	meta := &RepoMetadata{
		FullName:    raw.FullName,
		Description: raw.Description,
		Stars:       raw.StargazersCount,
		Language:    raw.Language,
		OpenIssues:  raw.OpenIssuesCount,
	}

	c.mu.Lock()
	if len(c.metaCache) >= maxCachedRepos && len(c.cacheOrder) > 0 {
		oldest := c.cacheOrder[0]
		c.cacheOrder = c.cacheOrder[1:]
		delete(c.metaCache, oldest)
	}
	c.metaCache[sourceURL] = meta
	c.cacheOrder = append(c.cacheOrder, sourceURL)
	c.mu.Unlock()

	return meta, nil
}

// searchItem is the raw REST shape shared by search hits and single issues.
type searchItem struct {
	Number      int    `json:"number"`
	Title       string `json:"title"`
	State       string `json:"state"`
	Body        string `json:"body"`
	HTMLURL     string `json:"html_url"`
	PullRequest *struct {
		URL string `json:"url"`
	} `json:"pull_request"`
}

func (it searchItem) summary() IssueSummary {
	return IssueSummary{
		Number:        it.Number,
		Title:         it.Title,
		State:         it.State,
		Body:          it.Body,
		HTMLURL:       it.HTMLURL,
		IsPullRequest: it.PullRequest != nil,
	}
}

// get performs one authenticated GET and maps HTTP failures onto the
// GatewayError taxonomy.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &GatewayError{Kind: KindTransport, Msg: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &GatewayError{Kind: KindTransport, Msg: "request " + path, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &GatewayError{Kind: KindNotFound, Msg: fmt.Sprintf("%s returned 404", path)}
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return &GatewayError{Kind: KindRateLimited, Msg: "rate limited by GitHub API"}
	case resp.StatusCode >= 400:
		return &GatewayError{Kind: KindTransport, Msg: fmt.Sprintf("%s returned %d", path, resp.StatusCode)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &GatewayError{Kind: KindTransport, Msg: "decode response", Err: err}
	}
	return nil
}
