package store

import (
	"context"
	"fmt"
)

// schemaDDL creates every table the service reads and writes. Statements are
// idempotent so startup can run them unconditionally; %d is the embedding
// dimension. Natural-key unique constraints back the upsert semantics:
// a PR per (number, repo_url), a commit per sha, a ticket per key.
const schemaDDL = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS pull_requests (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    number INTEGER NOT NULL,
    repo_url TEXT NOT NULL,
    title TEXT NOT NULL DEFAULT '',
    body TEXT NOT NULL DEFAULT '',
    author TEXT NOT NULL DEFAULT '',
    url TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL DEFAULT 'open',
    merged_at TIMESTAMPTZ,
    labels JSONB NOT NULL DEFAULT '[]',
    files JSONB NOT NULL DEFAULT '[]',
    diff TEXT NOT NULL DEFAULT '',
    embedding vector(%d),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    synced_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (number, repo_url)
);

CREATE INDEX IF NOT EXISTS idx_pull_requests_repo ON pull_requests(repo_url);
CREATE INDEX IF NOT EXISTS idx_pull_requests_updated ON pull_requests(updated_at);

CREATE TABLE IF NOT EXISTS commits (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    sha TEXT NOT NULL UNIQUE,
    repo_url TEXT NOT NULL DEFAULT '',
    message TEXT NOT NULL DEFAULT '',
    author TEXT NOT NULL DEFAULT '',
    url TEXT NOT NULL DEFAULT '',
    files JSONB NOT NULL DEFAULT '[]',
    embedding vector(%d),
    committed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    synced_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_commits_repo ON commits(repo_url);

CREATE TABLE IF NOT EXISTS tickets (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    key TEXT NOT NULL UNIQUE,
    title TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT '',
    priority TEXT NOT NULL DEFAULT '',
    labels JSONB NOT NULL DEFAULT '[]',
    url TEXT NOT NULL DEFAULT '',
    embedding vector(%d),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS analyses (
    id UUID PRIMARY KEY,
    bug_description TEXT NOT NULL,
    status TEXT NOT NULL,
    confidence DOUBLE PRECISION NOT NULL,
    summary TEXT NOT NULL DEFAULT '',
    root_cause TEXT NOT NULL DEFAULT '',
    explanation TEXT NOT NULL DEFAULT '',
    fix_suggestion JSONB,
    related_prs JSONB NOT NULL DEFAULT '[]',
    related_commits JSONB NOT NULL DEFAULT '[]',
    related_tickets JSONB NOT NULL DEFAULT '[]',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(created_at);

CREATE TABLE IF NOT EXISTS project_context (
    id TEXT PRIMARY KEY,
    tech_stack TEXT NOT NULL DEFAULT '',
    directory_overview TEXT NOT NULL DEFAULT '',
    notes TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS audit_logs (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    action TEXT NOT NULL,
    resource TEXT NOT NULL DEFAULT '',
    resource_id TEXT NOT NULL DEFAULT '',
    details JSONB NOT NULL DEFAULT '{}',
    ip TEXT NOT NULL DEFAULT '',
    user_agent TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs(created_at);
CREATE INDEX IF NOT EXISTS idx_audit_logs_action ON audit_logs(action);
`

// EnsureSchema creates missing tables and indexes. dimension is the pgvector
// column width and must match the configured embedding dimension.
func (s *PostgresStore) EnsureSchema(ctx context.Context, dimension int) error {
	ddl := fmt.Sprintf(schemaDDL, dimension, dimension, dimension)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
