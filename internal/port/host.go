package port

import (
	"context"

	"github.com/probelabs/hindsight/internal/domain"
)

// RepoHost abstracts the remote repository API (GitHub or a compatible host).
// All calls require a configured bearer token; implementations surface a
// missing token as ErrMissingToken so callers can distinguish configuration
// errors from transient ones.
type RepoHost interface {
	// Configured reports whether a credential is present. An unconfigured
	// host fails every call with ErrMissingToken, so callers can refuse work
	// up front instead of spawning a job doomed to fail.
	Configured() bool

	// ListPullRequests returns one page of the repo's PR listing, newest
	// activity first, in the host's default order.
	ListPullRequests(ctx context.Context, owner, repo string, page, perPage int) ([]domain.RemotePR, error)

	// GetPullRequest fetches a single PR by number.
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*domain.RemotePR, error)

	// ListPullRequestFiles returns the changed files of a PR, patches included.
	ListPullRequestFiles(ctx context.Context, owner, repo string, number int) ([]domain.RemoteChangedFile, error)

	// SearchIssues runs a keyword search over the host's issues and PRs.
	SearchIssues(ctx context.Context, query string, limit int) ([]domain.SearchHit, error)
}
