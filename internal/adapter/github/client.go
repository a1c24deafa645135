package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/probelabs/hindsight/internal/domain"
	"github.com/probelabs/hindsight/internal/port"
)

const (
	// DefaultBaseURL is the public GitHub REST endpoint.
	DefaultBaseURL = "https://api.github.com"

	apiVersion = "2022-11-28"
)

// Client talks to the GitHub REST API. It implements port.RepoHost.
// Every call requires the bearer token; a blank token surfaces
// port.ErrMissingToken so callers can report a configuration error instead
// of a transient one.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient builds a client for baseURL (DefaultBaseURL when empty).
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

var _ port.RepoHost = (*Client)(nil)

// Configured reports whether a token was supplied at construction.
func (c *Client) Configured() bool {
	return c.token != ""
}

// remotePR is the wire shape of a pull request in list/detail responses.
type remotePR struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	HTMLURL string `json:"html_url"`
	State   string `json:"state"`
	User    struct {
		Login string `json:"login"`
	} `json:"user"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
	MergedAt  *time.Time `json:"merged_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (r remotePR) toDomain() domain.RemotePR {
	labels := make([]string, 0, len(r.Labels))
	for _, l := range r.Labels {
		labels = append(labels, l.Name)
	}
	return domain.RemotePR{
		Number:    r.Number,
		Title:     r.Title,
		Body:      r.Body,
		Author:    r.User.Login,
		URL:       r.HTMLURL,
		State:     r.State,
		MergedAt:  r.MergedAt,
		Labels:    labels,
		UpdatedAt: r.UpdatedAt,
	}
}

// ListPullRequests fetches one page of the repo's PR listing in the API's
// default order (all states, most recently created first).
func (c *Client) ListPullRequests(ctx context.Context, owner, repo string, page, perPage int) ([]domain.RemotePR, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls?state=all&per_page=%d&page=%d", owner, repo, perPage, page)
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var raw []remotePR
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode pull request list: %w", err)
	}
	prs := make([]domain.RemotePR, len(raw))
	for i, r := range raw {
		prs[i] = r.toDomain()
	}
	return prs, nil
}

// GetPullRequest fetches a single PR by number.
func (c *Client) GetPullRequest(ctx context.Context, owner, repo string, number int) (*domain.RemotePR, error) {
	body, err := c.get(ctx, fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, number))
	if err != nil {
		return nil, err
	}

	var raw remotePR
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode pull request: %w", err)
	}
	pr := raw.toDomain()
	return &pr, nil
}

// ListPullRequestFiles returns the changed files of a PR, raw patches
// included. GitHub caps this listing at 100 files per page; one page is
// enough diff evidence for embedding, so no follow-up pages are fetched.
func (c *Client) ListPullRequestFiles(ctx context.Context, owner, repo string, number int) ([]domain.RemoteChangedFile, error) {
	body, err := c.get(ctx, fmt.Sprintf("/repos/%s/%s/pulls/%d/files?per_page=100", owner, repo, number))
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Filename  string `json:"filename"`
		Additions int    `json:"additions"`
		Deletions int    `json:"deletions"`
		Status    string `json:"status"`
		Patch     string `json:"patch"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode pull request files: %w", err)
	}

	files := make([]domain.RemoteChangedFile, len(raw))
	for i, f := range raw {
		files[i] = domain.RemoteChangedFile{
			Path:      f.Filename,
			Additions: f.Additions,
			Deletions: f.Deletions,
			Status:    f.Status,
			Patch:     f.Patch,
		}
	}
	return files, nil
}

// SearchIssues runs a keyword search across issues and PRs.
func (c *Client) SearchIssues(ctx context.Context, query string, limit int) ([]domain.SearchHit, error) {
	if limit <= 0 {
		limit = 10
	}
	path := fmt.Sprintf("/search/issues?q=%s&per_page=%d", url.QueryEscape(query), limit)
	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var raw struct {
		Items []struct {
			Number        int    `json:"number"`
			Title         string `json:"title"`
			HTMLURL       string `json:"html_url"`
			State         string `json:"state"`
			RepositoryURL string `json:"repository_url"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode search results: %w", err)
	}

	hits := make([]domain.SearchHit, len(raw.Items))
	for i, item := range raw.Items {
		hits[i] = domain.SearchHit{
			Number: item.Number,
			Title:  item.Title,
			URL:    item.HTMLURL,
			State:  item.State,
			Repo:   repoFromAPIURL(item.RepositoryURL),
		}
	}
	return hits, nil
}

// get performs an authenticated GET and returns the response body.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	if c.token == "" {
		return nil, port.ErrMissingToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("github API error (%d): %s", resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}

// repoFromAPIURL extracts "owner/repo" out of an api.github.com repository
// URL as returned by the search endpoint.
func repoFromAPIURL(apiURL string) string {
	const marker = "/repos/"
	idx := strings.Index(apiURL, marker)
	if idx < 0 {
		return ""
	}
	return apiURL[idx+len(marker):]
}
