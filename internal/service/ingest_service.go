package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/probelabs/hindsight/internal/domain"
	"github.com/probelabs/hindsight/internal/embedding"
	"github.com/probelabs/hindsight/internal/port"
)

// MaxDiffChars bounds the combined diff blob persisted with a pull request.
const MaxDiffChars = 8000

// IngestService turns remote artifacts into persisted, embedded records.
// Sync jobs, webhook deliveries and ticket imports all funnel through here,
// so every path produces identical records for the same input.
type IngestService struct {
	store  port.Store
	engine *embedding.Engine
}

// NewIngestService wires the ingestion path to its store and embedding engine.
func NewIngestService(store port.Store, engine *embedding.Engine) *IngestService {
	return &IngestService{store: store, engine: engine}
}

// IngestPR composes the durable record for one remote PR (combined diff,
// searchable text, fresh embedding) and upserts it. Re-ingesting the same
// (number, repo URL) overwrites instead of duplicating.
func (s *IngestService) IngestPR(ctx context.Context, repoURL string, remote domain.RemotePR, files []domain.RemoteChangedFile) error {
	pr := buildPullRequest(repoURL, remote, files)
	pr.Embedding = s.engine.Embed(ctx, prSearchText(pr))

	if err := s.store.UpsertPullRequest(ctx, pr); err != nil {
		return fmt.Errorf("persist pull request #%d: %w", remote.Number, err)
	}
	return nil
}

// IngestCommit embeds and upserts one commit, keyed by SHA.
func (s *IngestService) IngestCommit(ctx context.Context, c *domain.Commit) error {
	c.Embedding = s.engine.Embed(ctx, commitSearchText(c))

	if err := s.store.UpsertCommit(ctx, c); err != nil {
		return fmt.Errorf("persist commit %s: %w", c.ShortSHA(), err)
	}
	return nil
}

// ImportTickets embeds and upserts a batch of tracker tickets, returning how
// many were written. Embeddings are produced in one batch round trip.
func (s *IngestService) ImportTickets(ctx context.Context, tickets []domain.Ticket) (int, error) {
	if len(tickets) == 0 {
		return 0, nil
	}

	texts := make([]string, len(tickets))
	for i := range tickets {
		texts[i] = ticketSearchText(&tickets[i])
	}
	vectors := s.engine.EmbedBatch(ctx, texts)

	for i := range tickets {
		tickets[i].Embedding = vectors[i]
		if err := s.store.UpsertTicket(ctx, &tickets[i]); err != nil {
			return i, fmt.Errorf("persist ticket %s: %w", tickets[i].Key, err)
		}
	}
	return len(tickets), nil
}

// buildPullRequest maps a remote PR plus its changed files onto the durable
// form. A non-nil merge timestamp wins over the host's listed state, since
// hosts report merged PRs as plain "closed".
func buildPullRequest(repoURL string, remote domain.RemotePR, files []domain.RemoteChangedFile) *domain.PullRequest {
	state := remote.State
	if remote.MergedAt != nil {
		state = domain.PRStateMerged
	}

	changed := make([]domain.ChangedFile, len(files))
	for i, f := range files {
		changed[i] = domain.ChangedFile{
			Path:      f.Path,
			Additions: f.Additions,
			Deletions: f.Deletions,
			Status:    f.Status,
		}
	}

	return &domain.PullRequest{
		Number:    remote.Number,
		RepoURL:   repoURL,
		Title:     remote.Title,
		Body:      remote.Body,
		Author:    remote.Author,
		URL:       remote.URL,
		State:     state,
		MergedAt:  remote.MergedAt,
		Labels:    remote.Labels,
		Files:     changed,
		Diff:      combineDiff(files),
		UpdatedAt: remote.UpdatedAt,
	}
}

// combineDiff concatenates per-file patches into one blob, each prefixed with
// its path, bounded to MaxDiffChars.
func combineDiff(files []domain.RemoteChangedFile) string {
	var b strings.Builder
	for _, f := range files {
		if f.Patch == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "--- %s\n%s", f.Path, f.Patch)
		if b.Len() >= MaxDiffChars {
			break
		}
	}
	diff := b.String()
	if len(diff) > MaxDiffChars {
		diff = diff[:MaxDiffChars]
	}
	return diff
}

// prSearchText composes the text a PR's embedding is computed over: title,
// description, labels, touched files and the diff. The embedding engine
// truncates, so length is not bounded here.
func prSearchText(pr *domain.PullRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "PR #%d: %s\n", pr.Number, pr.Title)
	if pr.Body != "" {
		b.WriteString(pr.Body)
		b.WriteString("\n")
	}
	if len(pr.Labels) > 0 {
		fmt.Fprintf(&b, "Labels: %s\n", strings.Join(pr.Labels, ", "))
	}
	if len(pr.Files) > 0 {
		fmt.Fprintf(&b, "Files: %s\n", strings.Join(pr.FilePaths(), ", "))
	}
	if pr.Diff != "" {
		b.WriteString(pr.Diff)
	}
	return b.String()
}

func commitSearchText(c *domain.Commit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Commit %s: %s\n", c.ShortSHA(), c.Message)
	if len(c.Files) > 0 {
		fmt.Fprintf(&b, "Files: %s\n", strings.Join(c.Files, ", "))
	}
	return b.String()
}

func ticketSearchText(t *domain.Ticket) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ticket %s: %s\n", t.Key, t.Title)
	if t.Description != "" {
		b.WriteString(t.Description)
		b.WriteString("\n")
	}
	if len(t.Labels) > 0 {
		fmt.Fprintf(&b, "Labels: %s\n", strings.Join(t.Labels, ", "))
	}
	return b.String()
}
