package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/probelabs/hindsight/internal/domain"
	"github.com/probelabs/hindsight/internal/port"
)

// PostgresStore handles all relational database operations. Writes are
// idempotent upserts keyed by natural identifiers, so sync retries and
// duplicate webhook deliveries never create duplicate records.
type PostgresStore struct {
	db *sql.DB
}

var _ port.Store = (*PostgresStore)(nil)

// NewPostgresStore opens a connection and returns a store instance.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// --- Pull Requests ---

const prColumns = `id, number, repo_url, title, body, author, url, state, merged_at,
                   labels, files, diff, COALESCE(embedding::text, ''), updated_at, synced_at`

// UpsertPullRequest inserts or replaces a PR record keyed by (number, repo_url).
func (s *PostgresStore) UpsertPullRequest(ctx context.Context, pr *domain.PullRequest) error {
	labels, err := json.Marshal(sliceOrEmpty(pr.Labels))
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}
	files, err := json.Marshal(filesOrEmpty(pr.Files))
	if err != nil {
		return fmt.Errorf("marshal files: %w", err)
	}

	query := `
		INSERT INTO pull_requests (number, repo_url, title, body, author, url, state, merged_at,
		                           labels, files, diff, embedding, updated_at, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10::jsonb, $11, $12::vector, $13, NOW())
		ON CONFLICT (number, repo_url) DO UPDATE SET
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			author = EXCLUDED.author,
			url = EXCLUDED.url,
			state = EXCLUDED.state,
			merged_at = EXCLUDED.merged_at,
			labels = EXCLUDED.labels,
			files = EXCLUDED.files,
			diff = EXCLUDED.diff,
			embedding = EXCLUDED.embedding,
			updated_at = EXCLUDED.updated_at,
			synced_at = NOW()`

	_, err = s.db.ExecContext(ctx, query,
		pr.Number, pr.RepoURL, pr.Title, pr.Body, pr.Author, pr.URL, pr.State, pr.MergedAt,
		string(labels), string(files), pr.Diff, nullableVector(pr.Embedding), pr.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert pull request #%d: %w", pr.Number, err)
	}
	return nil
}

// GetPullRequest looks up a PR by its natural key.
func (s *PostgresStore) GetPullRequest(ctx context.Context, number int, repoURL string) (*domain.PullRequest, error) {
	query := `SELECT ` + prColumns + ` FROM pull_requests WHERE number = $1 AND repo_url = $2`
	pr, err := scanPullRequest(s.db.QueryRowContext(ctx, query, number, repoURL))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrPRNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pull request #%d: %w", number, err)
	}
	return pr, nil
}

// ListPullRequests returns every PR record with its embedding decoded for
// in-process ranking.
func (s *PostgresStore) ListPullRequests(ctx context.Context) ([]domain.PullRequest, error) {
	query := `SELECT ` + prColumns + ` FROM pull_requests ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list pull requests: %w", err)
	}
	defer rows.Close()

	var prs []domain.PullRequest
	for rows.Next() {
		pr, err := scanPullRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pull request: %w", err)
		}
		prs = append(prs, *pr)
	}
	return prs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPullRequest(row rowScanner) (*domain.PullRequest, error) {
	var pr domain.PullRequest
	var labels, files []byte
	var embedding string
	if err := row.Scan(
		&pr.ID, &pr.Number, &pr.RepoURL, &pr.Title, &pr.Body, &pr.Author, &pr.URL, &pr.State,
		&pr.MergedAt, &labels, &files, &pr.Diff, &embedding, &pr.UpdatedAt, &pr.SyncedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(labels, &pr.Labels); err != nil {
		return nil, fmt.Errorf("decode labels: %w", err)
	}
	if err := json.Unmarshal(files, &pr.Files); err != nil {
		return nil, fmt.Errorf("decode files: %w", err)
	}
	vec, err := vectorFromString(embedding)
	if err != nil {
		return nil, fmt.Errorf("decode embedding: %w", err)
	}
	pr.Embedding = vec
	return &pr, nil
}

// --- Commits ---

// UpsertCommit inserts or replaces a commit record keyed by SHA.
func (s *PostgresStore) UpsertCommit(ctx context.Context, c *domain.Commit) error {
	files, err := json.Marshal(sliceOrEmpty(c.Files))
	if err != nil {
		return fmt.Errorf("marshal files: %w", err)
	}

	query := `
		INSERT INTO commits (sha, repo_url, message, author, url, files, embedding, committed_at, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::vector, $8, NOW())
		ON CONFLICT (sha) DO UPDATE SET
			repo_url = EXCLUDED.repo_url,
			message = EXCLUDED.message,
			author = EXCLUDED.author,
			url = EXCLUDED.url,
			files = EXCLUDED.files,
			embedding = EXCLUDED.embedding,
			committed_at = EXCLUDED.committed_at,
			synced_at = NOW()`

	_, err = s.db.ExecContext(ctx, query,
		c.SHA, c.RepoURL, c.Message, c.Author, c.URL, string(files), nullableVector(c.Embedding), c.CommittedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert commit %s: %w", c.SHA, err)
	}
	return nil
}

// ListCommits returns every commit record with its embedding decoded.
func (s *PostgresStore) ListCommits(ctx context.Context) ([]domain.Commit, error) {
	query := `SELECT id, sha, repo_url, message, author, url, files,
	                 COALESCE(embedding::text, ''), committed_at, synced_at
	          FROM commits ORDER BY committed_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}
	defer rows.Close()

	var commits []domain.Commit
	for rows.Next() {
		var c domain.Commit
		var files []byte
		var embedding string
		if err := rows.Scan(
			&c.ID, &c.SHA, &c.RepoURL, &c.Message, &c.Author, &c.URL, &files,
			&embedding, &c.CommittedAt, &c.SyncedAt,
		); err != nil {
			return nil, fmt.Errorf("scan commit: %w", err)
		}
		if err := json.Unmarshal(files, &c.Files); err != nil {
			return nil, fmt.Errorf("decode files: %w", err)
		}
		vec, err := vectorFromString(embedding)
		if err != nil {
			return nil, fmt.Errorf("decode embedding: %w", err)
		}
		c.Embedding = vec
		commits = append(commits, c)
	}
	return commits, rows.Err()
}

// --- Tickets ---

// UpsertTicket inserts or replaces a ticket record keyed by its tracker key.
func (s *PostgresStore) UpsertTicket(ctx context.Context, t *domain.Ticket) error {
	labels, err := json.Marshal(sliceOrEmpty(t.Labels))
	if err != nil {
		return fmt.Errorf("marshal labels: %w", err)
	}

	query := `
		INSERT INTO tickets (key, title, description, status, priority, labels, url, embedding, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8::vector, NOW())
		ON CONFLICT (key) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			priority = EXCLUDED.priority,
			labels = EXCLUDED.labels,
			url = EXCLUDED.url,
			embedding = EXCLUDED.embedding,
			updated_at = NOW()`

	_, err = s.db.ExecContext(ctx, query,
		t.Key, t.Title, t.Description, t.Status, t.Priority, string(labels), t.URL, nullableVector(t.Embedding),
	)
	if err != nil {
		return fmt.Errorf("upsert ticket %s: %w", t.Key, err)
	}
	return nil
}

// ListTickets returns every ticket record with its embedding decoded.
func (s *PostgresStore) ListTickets(ctx context.Context) ([]domain.Ticket, error) {
	query := `SELECT id, key, title, description, status, priority, labels, url,
	                 COALESCE(embedding::text, ''), created_at, updated_at
	          FROM tickets ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		var t domain.Ticket
		var labels []byte
		var embedding string
		if err := rows.Scan(
			&t.ID, &t.Key, &t.Title, &t.Description, &t.Status, &t.Priority, &labels, &t.URL,
			&embedding, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		if err := json.Unmarshal(labels, &t.Labels); err != nil {
			return nil, fmt.Errorf("decode labels: %w", err)
		}
		vec, err := vectorFromString(embedding)
		if err != nil {
			return nil, fmt.Errorf("decode embedding: %w", err)
		}
		t.Embedding = vec
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// --- Analyses ---

// SaveAnalysis persists a finished analysis as a history record.
func (s *PostgresStore) SaveAnalysis(ctx context.Context, a *domain.AnalysisResult) error {
	relatedPRs, err := json.Marshal(a.RelatedPRs)
	if err != nil {
		return fmt.Errorf("marshal related PRs: %w", err)
	}
	relatedCommits, err := json.Marshal(a.RelatedCommits)
	if err != nil {
		return fmt.Errorf("marshal related commits: %w", err)
	}
	relatedTickets, err := json.Marshal(a.RelatedTickets)
	if err != nil {
		return fmt.Errorf("marshal related tickets: %w", err)
	}
	var fix interface{}
	if a.FixSuggestion != nil {
		raw, err := json.Marshal(a.FixSuggestion)
		if err != nil {
			return fmt.Errorf("marshal fix suggestion: %w", err)
		}
		fix = string(raw)
	}

	query := `
		INSERT INTO analyses (id, bug_description, status, confidence, summary, root_cause,
		                      explanation, fix_suggestion, related_prs, related_commits, related_tickets, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9::jsonb, $10::jsonb, $11::jsonb, $12)`

	_, err = s.db.ExecContext(ctx, query,
		a.ID, a.BugDescription, a.Status, a.Confidence, a.Summary, a.RootCause,
		a.Explanation, fix, string(relatedPRs), string(relatedCommits), string(relatedTickets), a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	return nil
}

// ListAnalyses returns the most recent analyses, newest first.
func (s *PostgresStore) ListAnalyses(ctx context.Context, limit int) ([]domain.AnalysisResult, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, bug_description, status, confidence, summary, root_cause, explanation,
	                 COALESCE(fix_suggestion::text, ''), related_prs, related_commits, related_tickets, created_at
	          FROM analyses ORDER BY created_at DESC LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	var results []domain.AnalysisResult
	for rows.Next() {
		var a domain.AnalysisResult
		var fix string
		var prs, commits, tickets []byte
		if err := rows.Scan(
			&a.ID, &a.BugDescription, &a.Status, &a.Confidence, &a.Summary, &a.RootCause,
			&a.Explanation, &fix, &prs, &commits, &tickets, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		if fix != "" {
			a.FixSuggestion = &domain.FixSuggestion{}
			if err := json.Unmarshal([]byte(fix), a.FixSuggestion); err != nil {
				return nil, fmt.Errorf("decode fix suggestion: %w", err)
			}
		}
		if err := json.Unmarshal(prs, &a.RelatedPRs); err != nil {
			return nil, fmt.Errorf("decode related PRs: %w", err)
		}
		if err := json.Unmarshal(commits, &a.RelatedCommits); err != nil {
			return nil, fmt.Errorf("decode related commits: %w", err)
		}
		if err := json.Unmarshal(tickets, &a.RelatedTickets); err != nil {
			return nil, fmt.Errorf("decode related tickets: %w", err)
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

// --- Project Context ---

const projectContextID = "default"

// GetProjectContext returns the single project context row, or an empty
// context when none has been saved yet.
func (s *PostgresStore) GetProjectContext(ctx context.Context) (*domain.ProjectContext, error) {
	query := `SELECT id, tech_stack, directory_overview, notes, updated_at
	          FROM project_context WHERE id = $1`

	var pc domain.ProjectContext
	err := s.db.QueryRowContext(ctx, query, projectContextID).Scan(
		&pc.ID, &pc.TechStack, &pc.DirectoryOverview, &pc.Notes, &pc.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.ProjectContext{ID: projectContextID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project context: %w", err)
	}
	return &pc, nil
}

// SaveProjectContext replaces the project context.
func (s *PostgresStore) SaveProjectContext(ctx context.Context, pc *domain.ProjectContext) error {
	query := `
		INSERT INTO project_context (id, tech_stack, directory_overview, notes, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (id) DO UPDATE SET
			tech_stack = EXCLUDED.tech_stack,
			directory_overview = EXCLUDED.directory_overview,
			notes = EXCLUDED.notes,
			updated_at = NOW()`

	if _, err := s.db.ExecContext(ctx, query, projectContextID, pc.TechStack, pc.DirectoryOverview, pc.Notes); err != nil {
		return fmt.Errorf("save project context: %w", err)
	}
	return nil
}

// --- Audit Logs ---

// InsertAuditLog appends one audit record.
func (s *PostgresStore) InsertAuditLog(ctx context.Context, entry *domain.AuditLog) error {
	details := entry.Details
	if details == "" || !json.Valid([]byte(details)) {
		wrapped, _ := json.Marshal(map[string]string{"raw": details})
		details = string(wrapped)
	}

	query := `INSERT INTO audit_logs (action, resource, resource_id, details, ip, user_agent)
	          VALUES ($1, $2, $3, $4::jsonb, $5, $6)`
	_, err := s.db.ExecContext(ctx, query,
		entry.Action, entry.Resource, entry.ResourceID, details, entry.IP, entry.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// ListAuditLogs returns recent audit records with an optional action filter.
func (s *PostgresStore) ListAuditLogs(ctx context.Context, limit int, action string) ([]domain.AuditLog, error) {
	query := `SELECT id, action, resource, resource_id, details::text, ip, user_agent, created_at
	          FROM audit_logs`
	args := []interface{}{}
	argIdx := 1

	if action != "" {
		query += fmt.Sprintf(" WHERE action = $%d", argIdx)
		args = append(args, action)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.AuditLog
	for rows.Next() {
		var l domain.AuditLog
		if err := rows.Scan(
			&l.ID, &l.Action, &l.Resource, &l.ResourceID,
			&l.Details, &l.IP, &l.UserAgent, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// --- helpers ---

// nullableVector returns a driver value for an embedding column: the pgvector
// text literal, or NULL when the entity has no embedding.
func nullableVector(vec []float32) interface{} {
	s := vectorToString(vec)
	if s == "" {
		return nil
	}
	return s
}

// sliceOrEmpty keeps JSON columns as [] instead of null.
func sliceOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func filesOrEmpty(f []domain.ChangedFile) []domain.ChangedFile {
	if f == nil {
		return []domain.ChangedFile{}
	}
	return f
}
