package jobs

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/probelabs/hindsight/internal/domain"
)

const (
	// Retention is how long finished jobs stay queryable.
	Retention = time.Hour

	// SweepInterval is how often expired jobs are collected.
	SweepInterval = 10 * time.Minute

	// DefaultRecent is how many jobs ListRecent returns when the caller
	// passes no count.
	DefaultRecent = 10
)

// Registry owns every sync job for the life of the process. Jobs are
// in-memory only; a restart forgets them. Each job's fields are mutated
// solely through the registry by the single goroutine running that job, so
// one lock over the map is all the synchronization needed.
type Registry struct {
	mu     sync.RWMutex
	jobs   map[string]*domain.SyncJob
	events *Broker

	retention time.Duration
	now       func() time.Time
}

// NewRegistry builds a registry that publishes lifecycle events to broker.
func NewRegistry(broker *Broker) *Registry {
	return &Registry{
		jobs:      make(map[string]*domain.SyncJob),
		events:    broker,
		retention: Retention,
		now:       time.Now,
	}
}

// Create registers a pending job and returns its snapshot. The caller is
// expected to hand the id to exactly one background run; jobs are never
// restarted.
func (r *Registry) Create(owner, repo string, limit int) domain.SyncJob {
	job := &domain.SyncJob{
		ID:        uuid.New().String(),
		Owner:     owner,
		Repo:      repo,
		Limit:     limit,
		Status:    domain.JobStatusPending,
		StartedAt: r.now(),
	}
	r.mu.Lock()
	r.jobs[job.ID] = job
	r.mu.Unlock()
	return job.Clone()
}

// Get returns a snapshot of the job, or false when the id is unknown
// (never created, or already swept).
func (r *Registry) Get(id string) (domain.SyncJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.SyncJob{}, false
	}
	return job.Clone(), true
}

// ListActive returns pending and running jobs, most recently started first.
func (r *Registry) ListActive() []domain.SyncJob {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.SyncJob
	for _, job := range r.jobs {
		if !job.Terminal() {
			out = append(out, job.Clone())
		}
	}
	sortByStart(out)
	return out
}

// ListRecent returns up to n jobs of any status, most recently started
// first. n <= 0 means DefaultRecent.
func (r *Registry) ListRecent(n int) []domain.SyncJob {
	if n <= 0 {
		n = DefaultRecent
	}
	r.mu.RLock()
	out := make([]domain.SyncJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, job.Clone())
	}
	r.mu.RUnlock()
	sortByStart(out)
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// MarkRunning moves a pending job to running and announces it.
func (r *Registry) MarkRunning(id string) {
	r.publish(EventStarted, r.update(id, func(job *domain.SyncJob) {
		job.Status = domain.JobStatusRunning
	}))
}

// UpdateProgress replaces the job's counters and announces the new state.
func (r *Registry) UpdateProgress(id string, progress domain.SyncProgress) {
	r.publish(EventProgress, r.update(id, func(job *domain.SyncJob) {
		job.Progress = progress
	}))
}

// Complete finishes a job normally with its final counters and summary.
func (r *Registry) Complete(id string, progress domain.SyncProgress, summary string) {
	r.publish(EventCompleted, r.update(id, func(job *domain.SyncJob) {
		now := r.now()
		job.Status = domain.JobStatusCompleted
		job.Progress = progress
		job.Message = summary
		job.CompletedAt = &now
	}))
}

// Fail terminates a job with the escaping error. The message lands both in
// the job's Message and its progress error list.
func (r *Registry) Fail(id string, progress domain.SyncProgress, errMsg string) {
	r.publish(EventFailed, r.update(id, func(job *domain.SyncJob) {
		now := r.now()
		job.Status = domain.JobStatusFailed
		progress.Errors = append(progress.Errors, errMsg)
		job.Progress = progress
		job.Message = errMsg
		job.CompletedAt = &now
	}))
}

// StartSweeper garbage-collects expired jobs every SweepInterval until ctx
// is cancelled. Run it once from main.
func (r *Registry) StartSweeper(ctx context.Context) {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.sweep(); n > 0 {
				slog.Info("swept expired sync jobs", "count", n)
			}
		}
	}
}

// sweep deletes jobs whose completion is older than the retention window
// and returns how many were removed.
func (r *Registry) sweep() int {
	cutoff := r.now().Add(-r.retention)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, job := range r.jobs {
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}

// update applies fn to the job under the lock and returns a snapshot, or
// nil when the id is unknown.
func (r *Registry) update(id string, fn func(*domain.SyncJob)) *domain.SyncJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil
	}
	fn(job)
	snapshot := job.Clone()
	return &snapshot
}

func (r *Registry) publish(kind EventKind, snapshot *domain.SyncJob) {
	if snapshot == nil || r.events == nil {
		return
	}
	r.events.Publish(kind, *snapshot)
}

func sortByStart(jobs []domain.SyncJob) {
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].StartedAt.After(jobs[j].StartedAt)
	})
}
