package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/probelabs/hindsight/internal/domain"
	"github.com/probelabs/hindsight/internal/jobs"
	"github.com/probelabs/hindsight/internal/port"
)

const (
	// prPageSize is the host listing page size. A page shorter than this is
	// the last one.
	prPageSize = 100

	// filePaceInterval spaces the per-PR changed-files fetches so a large
	// sync stays well inside the host's secondary rate limits.
	filePaceInterval = 200 * time.Millisecond

	// pagePaceInterval spaces the listing page fetches.
	pagePaceInterval = 100 * time.Millisecond
)

// syncOutcome classifies what the sync loop did with one remote PR.
type syncOutcome int

const (
	outcomeCreated syncOutcome = iota
	outcomeUpdated
	outcomeSkipped
)

// SyncService runs background pull-request synchronization jobs. Each job is
// owned by exactly one goroutine spawned from Start; all shared state flows
// through the registry.
type SyncService struct {
	host     port.RepoHost
	store    port.Store
	ingest   *IngestService
	registry *jobs.Registry

	// Pace limiters are fields so tests can swap in rate.Inf.
	filePace *rate.Limiter
	pagePace *rate.Limiter
}

// NewSyncService wires a sync service with production pacing.
func NewSyncService(host port.RepoHost, store port.Store, ingest *IngestService, registry *jobs.Registry) *SyncService {
	return &SyncService{
		host:     host,
		store:    store,
		ingest:   ingest,
		registry: registry,
		filePace: rate.NewLimiter(rate.Every(filePaceInterval), 1),
		pagePace: rate.NewLimiter(rate.Every(pagePaceInterval), 1),
	}
}

// Start registers a job for owner/repo and spawns its background run. The
// returned snapshot is still pending; callers poll the registry or subscribe
// to its events for progress. limit bounds how many PRs the job inspects
// (processed plus skipped); 0 means sync everything.
//
// Returns ErrMissingToken without creating a job when no host credential is
// configured, so a doomed job never appears in listings.
func (s *SyncService) Start(owner, repo string, limit int) (domain.SyncJob, error) {
	if !s.host.Configured() {
		return domain.SyncJob{}, port.ErrMissingToken
	}
	job := s.registry.Create(owner, repo, limit)
	go s.run(job.ID, owner, repo, limit)
	return job, nil
}

// run drives one job from running to a terminal state. It never panics the
// process: any escaping error fails the job and is kept on it.
func (s *SyncService) run(jobID, owner, repo string, limit int) {
	ctx := context.Background()
	s.registry.MarkRunning(jobID)
	slog.Info("sync started", "job_id", jobID, "repo", owner+"/"+repo, "limit", limit)

	var progress domain.SyncProgress
	if err := s.syncRepoPRs(ctx, jobID, owner, repo, limit, &progress); err != nil {
		slog.Error("sync failed", "job_id", jobID, "repo", owner+"/"+repo, "error", err)
		s.registry.Fail(jobID, progress, err.Error())
		return
	}

	slog.Info("sync complete",
		"job_id", jobID,
		"repo", owner+"/"+repo,
		"processed", progress.Processed,
		"updated", progress.Updated,
		"skipped", progress.Skipped,
		"stopped_early", progress.StoppedEarly,
		"errors", len(progress.Errors))
	s.registry.Complete(jobID, progress, summarize(&progress))
}

// syncRepoPRs walks the host's PR listing page by page, newest activity
// first, classifying every PR as created, updated or skipped. Pagination
// stops on the first of: the inspection budget is spent, a whole page was
// skipped (everything older is assumed synced too), or a short page marks
// the end of the listing.
func (s *SyncService) syncRepoPRs(ctx context.Context, jobID, owner, repo string, limit int, progress *domain.SyncProgress) error {
	repoURL := fmt.Sprintf("https://github.com/%s/%s", owner, repo)

	for page := 1; ; page++ {
		if page > 1 {
			if err := s.pagePace.Wait(ctx); err != nil {
				return err
			}
		}
		prs, err := s.host.ListPullRequests(ctx, owner, repo, page, prPageSize)
		if err != nil {
			return fmt.Errorf("list pull requests page %d: %w", page, err)
		}
		if len(prs) == 0 {
			break
		}

		pageSkipped := 0
		budgetSpent := false
		for _, remote := range prs {
			if limit > 0 && progress.Processed+progress.Skipped >= limit {
				budgetSpent = true
				break
			}
			outcome, err := s.syncPR(ctx, owner, repo, repoURL, remote)
			switch {
			case err != nil:
				slog.Warn("pull request sync failed, continuing",
					"job_id", jobID, "pr", remote.Number, "error", err)
				progress.Errors = append(progress.Errors, fmt.Sprintf("PR #%d: %v", remote.Number, err))
			case outcome == outcomeSkipped:
				progress.Skipped++
				pageSkipped++
			case outcome == outcomeUpdated:
				progress.Updated++
			default:
				progress.Processed++
			}
			s.registry.UpdateProgress(jobID, *progress)
		}

		if budgetSpent {
			break
		}
		// A fully skipped page means everything from here on was already
		// synced: the listing keeps recent activity up front, so older pages
		// cannot hold newer changes.
		if pageSkipped == len(prs) {
			progress.StoppedEarly = true
			s.registry.UpdateProgress(jobID, *progress)
			break
		}
		if len(prs) < prPageSize {
			break
		}
	}
	return nil
}

// syncPR decides create/update/skip for one remote PR. Skips are decided
// from the stored record alone and never touch the host again; creates and
// updates fetch the changed files (paced) and reingest.
func (s *SyncService) syncPR(ctx context.Context, owner, repo, repoURL string, remote domain.RemotePR) (syncOutcome, error) {
	existing, err := s.store.GetPullRequest(ctx, remote.Number, repoURL)
	if err != nil && !errors.Is(err, port.ErrPRNotFound) {
		return 0, fmt.Errorf("look up existing record: %w", err)
	}

	if existing != nil && !needsUpdate(existing, remote) {
		return outcomeSkipped, nil
	}

	if err := s.filePace.Wait(ctx); err != nil {
		return 0, err
	}
	files, err := s.host.ListPullRequestFiles(ctx, owner, repo, remote.Number)
	if err != nil {
		return 0, fmt.Errorf("fetch changed files: %w", err)
	}
	if err := s.ingest.IngestPR(ctx, repoURL, remote, files); err != nil {
		return 0, err
	}

	if existing != nil {
		return outcomeUpdated, nil
	}
	return outcomeCreated, nil
}

// needsUpdate reports whether the stored record is stale against the remote
// listing. A merge that landed since the last sync is caught on its own, so
// a PR merged without a fresh updated_at still reingests.
func needsUpdate(existing *domain.PullRequest, remote domain.RemotePR) bool {
	if remote.UpdatedAt.After(existing.UpdatedAt) {
		return true
	}
	if remote.MergedAt != nil && existing.State != domain.PRStateMerged {
		return true
	}
	return false
}

// summarize renders the completion message. "Already up to date" wins over
// the early-stop wording when the job wrote nothing at all.
func summarize(p *domain.SyncProgress) string {
	var msg string
	switch {
	case p.Processed == 0 && p.Updated == 0 && p.Skipped > 0:
		msg = fmt.Sprintf("already up to date: all %d inspected pull requests were previously synced", p.Skipped)
	case p.StoppedEarly:
		msg = fmt.Sprintf("stopped early at a fully synced page: %d new, %d updated, %d skipped", p.Processed, p.Updated, p.Skipped)
	default:
		msg = fmt.Sprintf("synced %d new, %d updated, %d skipped pull requests", p.Processed, p.Updated, p.Skipped)
	}
	if n := len(p.Errors); n > 0 {
		msg += fmt.Sprintf(" (%d errors)", n)
	}
	return msg
}
