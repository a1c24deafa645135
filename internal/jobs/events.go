package jobs

import (
	"sync"

	"github.com/probelabs/hindsight/internal/domain"
)

// EventKind labels a job lifecycle transition.
type EventKind string

const (
	EventStarted   EventKind = "started"
	EventProgress  EventKind = "progress"
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
)

// Event is one broadcast job update. Job is a snapshot taken at publish
// time, safe to read without further locking.
type Event struct {
	Kind EventKind      `json:"kind"`
	Job  domain.SyncJob `json:"job"`
}

// Terminal reports whether this event ends the job's stream.
func (e Event) Terminal() bool {
	return e.Kind == EventCompleted || e.Kind == EventFailed
}

// Broker fans job events out to subscribers keyed by job id. There is no
// replay: a subscriber that attaches after an event fired misses it, and
// callers needing the final state query the registry instead.
type Broker struct {
	mu   sync.RWMutex
	subs map[string][]chan Event
}

// NewBroker returns an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string][]chan Event)}
}

// Subscribe registers a listener for one job id. The channel is buffered;
// slow consumers drop updates rather than stalling the publishing job.
func (b *Broker) Subscribe(jobID string) chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, 16)
	b.subs[jobID] = append(b.subs[jobID], ch)
	return ch
}

// Unsubscribe removes ch from the job's listeners and closes it.
func (b *Broker) Unsubscribe(jobID string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[jobID]
	for i, s := range subs {
		if s == ch {
			b.subs[jobID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[jobID]) == 0 {
		delete(b.subs, jobID)
	}
	close(ch)
}

// Publish broadcasts an event to every listener of the job. Sends never
// block: a full subscriber buffer loses this event.
func (b *Broker) Publish(kind EventKind, job domain.SyncJob) {
	b.mu.RLock()
	subs := b.subs[job.ID]
	b.mu.RUnlock()

	evt := Event{Kind: kind, Job: job}
	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
		}
	}
}
