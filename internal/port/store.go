package port

import (
	"context"

	"github.com/probelabs/hindsight/internal/domain"
)

// Store is the persistence boundary. Writes are idempotent upserts keyed by
// natural identifiers (PR number + repo URL, commit SHA, ticket key), so
// repeated ingestion of the same payload never duplicates records.
type Store interface {
	// UpsertPullRequest writes a PR record, replacing any existing record
	// with the same (number, repo URL).
	UpsertPullRequest(ctx context.Context, pr *domain.PullRequest) error

	// GetPullRequest looks up a PR by its natural key. Returns ErrPRNotFound
	// when no record exists.
	GetPullRequest(ctx context.Context, number int, repoURL string) (*domain.PullRequest, error)

	// ListPullRequests returns all PR records with their embeddings.
	ListPullRequests(ctx context.Context) ([]domain.PullRequest, error)

	// UpsertCommit writes a commit record keyed by SHA.
	UpsertCommit(ctx context.Context, c *domain.Commit) error

	// ListCommits returns all commit records with their embeddings.
	ListCommits(ctx context.Context) ([]domain.Commit, error)

	// UpsertTicket writes a ticket record keyed by ticket key.
	UpsertTicket(ctx context.Context, t *domain.Ticket) error

	// ListTickets returns all ticket records with their embeddings.
	ListTickets(ctx context.Context) ([]domain.Ticket, error)

	// SaveAnalysis persists a finished analysis as a history record.
	SaveAnalysis(ctx context.Context, a *domain.AnalysisResult) error

	// ListAnalyses returns the most recent analyses, newest first.
	ListAnalyses(ctx context.Context, limit int) ([]domain.AnalysisResult, error)

	// GetProjectContext returns the single project context row, or an empty
	// context when none has been saved yet.
	GetProjectContext(ctx context.Context) (*domain.ProjectContext, error)

	// SaveProjectContext replaces the project context.
	SaveProjectContext(ctx context.Context, pc *domain.ProjectContext) error

	// InsertAuditLog appends one audit record.
	InsertAuditLog(ctx context.Context, entry *domain.AuditLog) error

	// ListAuditLogs returns the most recent audit records, newest first.
	// An empty action means no filter.
	ListAuditLogs(ctx context.Context, limit int, action string) ([]domain.AuditLog, error)
}
