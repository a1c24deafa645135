package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/probelabs/hindsight/internal/domain"
	"github.com/probelabs/hindsight/internal/port"
)

// fakeStore is an in-memory port.Store covering what the services touch.
// Audit methods come from the embedded interface and panic if reached.
type fakeStore struct {
	port.Store

	mu       sync.Mutex
	prs      map[string]domain.PullRequest
	commits  map[string]domain.Commit
	tickets  map[string]domain.Ticket
	analyses []domain.AnalysisResult
	project  *domain.ProjectContext

	prUpserts int
	listCalls int
	getErr    error
	upsertErr error
	saveErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		prs:     make(map[string]domain.PullRequest),
		commits: make(map[string]domain.Commit),
		tickets: make(map[string]domain.Ticket),
	}
}

func prKey(number int, repoURL string) string {
	return fmt.Sprintf("%d|%s", number, repoURL)
}

func (f *fakeStore) UpsertPullRequest(_ context.Context, pr *domain.PullRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prUpserts++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.prs[prKey(pr.Number, pr.RepoURL)] = *pr
	return nil
}

func (f *fakeStore) GetPullRequest(_ context.Context, number int, repoURL string) (*domain.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	pr, ok := f.prs[prKey(number, repoURL)]
	if !ok {
		return nil, port.ErrPRNotFound
	}
	out := pr
	return &out, nil
}

func (f *fakeStore) ListPullRequests(context.Context) ([]domain.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	out := make([]domain.PullRequest, 0, len(f.prs))
	for _, pr := range f.prs {
		out = append(out, pr)
	}
	return out, nil
}

func (f *fakeStore) UpsertCommit(_ context.Context, c *domain.Commit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.commits[c.SHA] = *c
	return nil
}

func (f *fakeStore) ListCommits(context.Context) ([]domain.Commit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Commit, 0, len(f.commits))
	for _, c := range f.commits {
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeStore) UpsertTicket(_ context.Context, t *domain.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.tickets[t.Key] = *t
	return nil
}

func (f *fakeStore) ListTickets(context.Context) ([]domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Ticket, 0, len(f.tickets))
	for _, t := range f.tickets {
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeStore) SaveAnalysis(_ context.Context, a *domain.AnalysisResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.analyses = append(f.analyses, *a)
	return nil
}

func (f *fakeStore) ListAnalyses(_ context.Context, limit int) ([]domain.AnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]domain.AnalysisResult(nil), f.analyses...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) GetProjectContext(context.Context) (*domain.ProjectContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.project == nil {
		return &domain.ProjectContext{}, nil
	}
	out := *f.project
	return &out, nil
}

func (f *fakeStore) SaveProjectContext(_ context.Context, pc *domain.ProjectContext) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := *pc
	f.project = &out
	return nil
}

func (f *fakeStore) storedPR(number int, repoURL string) (domain.PullRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pr, ok := f.prs[prKey(number, repoURL)]
	return pr, ok
}

func (f *fakeStore) prCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prs)
}

func (f *fakeStore) analysisCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.analyses)
}

func (f *fakeStore) listCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

// fakeHost serves scripted PR listing pages. pages[0] answers page 1 and so
// on; anything past the script is an empty page.
type fakeHost struct {
	mu        sync.Mutex
	pages     [][]domain.RemotePR
	files     map[int][]domain.RemoteChangedFile
	fileErrs  map[int]error
	listErr   error
	noToken   bool
	listCalls int
	fileCalls []int
}

func (f *fakeHost) Configured() bool { return !f.noToken }

func (f *fakeHost) ListPullRequests(_ context.Context, _, _ string, page, _ int) ([]domain.RemotePR, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	if page-1 < len(f.pages) {
		return f.pages[page-1], nil
	}
	return nil, nil
}

func (f *fakeHost) GetPullRequest(_ context.Context, _, _ string, number int) (*domain.RemotePR, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, page := range f.pages {
		for _, pr := range page {
			if pr.Number == number {
				out := pr
				return &out, nil
			}
		}
	}
	return nil, port.ErrPRNotFound
}

func (f *fakeHost) ListPullRequestFiles(_ context.Context, _, _ string, number int) ([]domain.RemoteChangedFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fileCalls = append(f.fileCalls, number)
	if err := f.fileErrs[number]; err != nil {
		return nil, err
	}
	return f.files[number], nil
}

func (f *fakeHost) SearchIssues(context.Context, string, int) ([]domain.SearchHit, error) {
	return nil, nil
}

func (f *fakeHost) fileFetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fileCalls)
}

func (f *fakeHost) listCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

// fakeAI scripts the chat side of port.AIProvider and records what it was
// asked. Embed calls fail so the engine's deterministic path is exercised.
type fakeAI struct {
	mu           sync.Mutex
	model        string
	chatResponse string
	chatErr      error
	streamChunks []string
	streamErr    error

	lastSystem string
	lastUser   string
	lastChunks []string
	chatCalls  int
}

func (f *fakeAI) ModelName() string {
	if f.model == "" {
		return "fake-model"
	}
	return f.model
}

func (f *fakeAI) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("fake provider has no embedder")
}

func (f *fakeAI) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, fmt.Errorf("fake provider has no embedder")
}

func (f *fakeAI) Chat(_ context.Context, systemPrompt, userPrompt string, contextChunks []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatCalls++
	f.lastSystem = systemPrompt
	f.lastUser = userPrompt
	f.lastChunks = append([]string(nil), contextChunks...)
	if f.chatErr != nil {
		return "", f.chatErr
	}
	return f.chatResponse, nil
}

func (f *fakeAI) ChatStream(_ context.Context, systemPrompt, userPrompt string, contextChunks []string) (<-chan string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSystem = systemPrompt
	f.lastUser = userPrompt
	f.lastChunks = append([]string(nil), contextChunks...)
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	ch := make(chan string, len(f.streamChunks))
	for _, chunk := range f.streamChunks {
		ch <- chunk
	}
	close(ch)
	return ch, nil
}

func (f *fakeAI) recordedChunks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lastChunks...)
}
