package github

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probelabs/hindsight/internal/port"
)

func TestListPullRequestsMapsResponse(t *testing.T) {
	var gotPath, gotAuth, gotVersion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.String()
		gotAuth = r.Header.Get("Authorization")
		gotVersion = r.Header.Get("X-GitHub-Api-Version")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{
				"number": 42,
				"title": "Fix password reset token expiry",
				"body": "Tokens expired too early.",
				"html_url": "https://github.com/acme/app/pull/42",
				"state": "closed",
				"user": {"login": "alice"},
				"labels": [{"name": "bug"}, {"name": "auth"}],
				"merged_at": "2024-03-14T09:00:00Z",
				"updated_at": "2024-03-14T09:05:00Z"
			}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-token")
	prs, err := c.ListPullRequests(context.Background(), "acme", "app", 2, 100)

	require.NoError(t, err)
	assert.Equal(t, "/repos/acme/app/pulls?state=all&per_page=100&page=2", gotPath)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, apiVersion, gotVersion)

	require.Len(t, prs, 1)
	pr := prs[0]
	assert.Equal(t, 42, pr.Number)
	assert.Equal(t, "Fix password reset token expiry", pr.Title)
	assert.Equal(t, "alice", pr.Author)
	assert.Equal(t, []string{"bug", "auth"}, pr.Labels)
	require.NotNil(t, pr.MergedAt)
	assert.Equal(t, "2024-03-14T09:00:00Z", pr.MergedAt.Format("2006-01-02T15:04:05Z"))
}

func TestListPullRequestFilesIncludesPatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/app/pulls/42/files", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"filename": "auth/reset.go", "additions": 4, "deletions": 1, "status": "modified", "patch": "@@ -1 +1,4 @@"},
			{"filename": "auth/reset_test.go", "additions": 20, "deletions": 0, "status": "added", "patch": "@@ -0,0 +1,20 @@"}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-token")
	files, err := c.ListPullRequestFiles(context.Background(), "acme", "app", 42)

	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "auth/reset.go", files[0].Path)
	assert.Equal(t, 4, files[0].Additions)
	assert.Equal(t, "modified", files[0].Status)
	assert.Equal(t, "@@ -1 +1,4 @@", files[0].Patch)
}

func TestSearchIssues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search/issues", r.URL.Path)
		assert.Equal(t, "login bug", r.URL.Query().Get("q"))
		assert.Equal(t, "5", r.URL.Query().Get("per_page"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items": [
			{"number": 7, "title": "Login broken", "html_url": "https://github.com/acme/app/issues/7",
			 "state": "open", "repository_url": "https://api.github.com/repos/acme/app"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-token")
	hits, err := c.SearchIssues(context.Background(), "login bug", 5)

	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 7, hits[0].Number)
	assert.Equal(t, "acme/app", hits[0].Repo)
}

func TestMissingTokenIsConfigurationError(t *testing.T) {
	c := NewClient("http://localhost:0", "")

	assert.False(t, c.Configured())

	_, err := c.ListPullRequests(context.Background(), "acme", "app", 1, 100)
	assert.ErrorIs(t, err, port.ErrMissingToken)

	_, err = c.SearchIssues(context.Background(), "anything", 5)
	assert.ErrorIs(t, err, port.ErrMissingToken)
}

func TestNonOKStatusSurfacesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message": "API rate limit exceeded"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "test-token")
	_, err := c.ListPullRequests(context.Background(), "acme", "app", 1, 100)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "rate limit")
}

func TestRepoFromAPIURL(t *testing.T) {
	assert.Equal(t, "acme/app", repoFromAPIURL("https://api.github.com/repos/acme/app"))
	assert.Empty(t, repoFromAPIURL("https://example.com/not-a-repo"))
}
