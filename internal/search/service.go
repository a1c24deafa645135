package search

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/probelabs/hindsight/internal/domain"
	"github.com/probelabs/hindsight/internal/embedding"
	"github.com/probelabs/hindsight/internal/port"
)

// Related bundles the three ranked match lists for one query.
type Related struct {
	PRs     []Match[domain.PullRequest]
	Commits []Match[domain.Commit]
	Tickets []Match[domain.Ticket]
}

// Empty reports whether no source produced a single match.
func (r *Related) Empty() bool {
	return len(r.PRs) == 0 && len(r.Commits) == 0 && len(r.Tickets) == 0
}

// Service runs the three similarity searches behind one query.
type Service struct {
	store  port.Store
	engine *embedding.Engine
}

// NewService wires the search service to its store and embedding engine.
func NewService(store port.Store, engine *embedding.Engine) *Service {
	return &Service{store: store, engine: engine}
}

// FindRelated embeds the query text and ranks PRs, commits and tickets
// against it concurrently. A quantity named in the text ("5 PRs") overrides
// the per-source default limits for this request.
func (s *Service) FindRelated(ctx context.Context, query string) (*Related, error) {
	queryVec := s.engine.Embed(ctx, query)

	prLimit := RequestedLimit(query, DefaultPRLimit)
	commitLimit := RequestedLimit(query, DefaultCommitLimit)
	ticketLimit := RequestedLimit(query, DefaultTicketLimit)

	var related Related
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		prs, err := s.store.ListPullRequests(gctx)
		if err != nil {
			return fmt.Errorf("load pull requests: %w", err)
		}
		related.PRs = Rank(queryVec, prs, func(p domain.PullRequest) []float32 { return p.Embedding }, DefaultThreshold, prLimit)
		return nil
	})
	g.Go(func() error {
		commits, err := s.store.ListCommits(gctx)
		if err != nil {
			return fmt.Errorf("load commits: %w", err)
		}
		related.Commits = Rank(queryVec, commits, func(c domain.Commit) []float32 { return c.Embedding }, DefaultThreshold, commitLimit)
		return nil
	})
	g.Go(func() error {
		tickets, err := s.store.ListTickets(gctx)
		if err != nil {
			return fmt.Errorf("load tickets: %w", err)
		}
		related.Tickets = Rank(queryVec, tickets, func(t domain.Ticket) []float32 { return t.Embedding }, DefaultThreshold, ticketLimit)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &related, nil
}
