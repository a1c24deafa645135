package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/probelabs/hindsight/internal/domain"
	"github.com/probelabs/hindsight/internal/port"
)

// jsonRequest builds an HTTP request carrying a JSON body.
func jsonRequest(method, target string, body interface{}) *http.Request {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(method, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// decodeBody reads a JSON response into a generic map.
func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	return out
}

// fakeStore is an in-memory port.Store for handler tests. Methods the tests
// never reach come from the embedded interface and panic if called.
type fakeStore struct {
	port.Store

	prs      map[string]*domain.PullRequest
	commits  map[string]*domain.Commit
	tickets  map[string]*domain.Ticket
	analyses []domain.AnalysisResult
	project  *domain.ProjectContext
	audits   []domain.AuditLog

	listErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		prs:     make(map[string]*domain.PullRequest),
		commits: make(map[string]*domain.Commit),
		tickets: make(map[string]*domain.Ticket),
	}
}

func prKey(number int, repoURL string) string {
	return fmt.Sprintf("%d|%s", number, repoURL)
}

func (f *fakeStore) UpsertPullRequest(_ context.Context, pr *domain.PullRequest) error {
	cp := *pr
	f.prs[prKey(pr.Number, pr.RepoURL)] = &cp
	return nil
}

func (f *fakeStore) GetPullRequest(_ context.Context, number int, repoURL string) (*domain.PullRequest, error) {
	pr, ok := f.prs[prKey(number, repoURL)]
	if !ok {
		return nil, port.ErrPRNotFound
	}
	cp := *pr
	return &cp, nil
}

func (f *fakeStore) ListPullRequests(_ context.Context) ([]domain.PullRequest, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.PullRequest, 0, len(f.prs))
	for _, pr := range f.prs {
		out = append(out, *pr)
	}
	return out, nil
}

func (f *fakeStore) UpsertCommit(_ context.Context, c *domain.Commit) error {
	cp := *c
	f.commits[c.SHA] = &cp
	return nil
}

func (f *fakeStore) ListCommits(_ context.Context) ([]domain.Commit, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.Commit, 0, len(f.commits))
	for _, c := range f.commits {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeStore) UpsertTicket(_ context.Context, t *domain.Ticket) error {
	cp := *t
	f.tickets[t.Key] = &cp
	return nil
}

func (f *fakeStore) ListTickets(_ context.Context) ([]domain.Ticket, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.Ticket, 0, len(f.tickets))
	for _, t := range f.tickets {
		out = append(out, *t)
	}
	return out, nil
}

func (f *fakeStore) SaveAnalysis(_ context.Context, a *domain.AnalysisResult) error {
	f.analyses = append(f.analyses, *a)
	return nil
}

func (f *fakeStore) ListAnalyses(_ context.Context, limit int) ([]domain.AnalysisResult, error) {
	out := f.analyses
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) GetProjectContext(_ context.Context) (*domain.ProjectContext, error) {
	if f.project == nil {
		return &domain.ProjectContext{}, nil
	}
	cp := *f.project
	return &cp, nil
}

func (f *fakeStore) SaveProjectContext(_ context.Context, pc *domain.ProjectContext) error {
	cp := *pc
	f.project = &cp
	return nil
}

func (f *fakeStore) InsertAuditLog(_ context.Context, entry *domain.AuditLog) error {
	f.audits = append(f.audits, *entry)
	return nil
}

func (f *fakeStore) ListAuditLogs(_ context.Context, limit int, action string) ([]domain.AuditLog, error) {
	var out []domain.AuditLog
	for _, l := range f.audits {
		if action != "" && l.Action != action {
			continue
		}
		out = append(out, l)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// fakeHost is a canned port.RepoHost.
type fakeHost struct {
	pages   [][]domain.RemotePR
	files   map[int][]domain.RemoteChangedFile
	hits    []domain.SearchHit
	noToken bool

	fileErr   error
	searchErr error
}

func (f *fakeHost) Configured() bool { return !f.noToken }

func (f *fakeHost) ListPullRequests(_ context.Context, _, _ string, page, _ int) ([]domain.RemotePR, error) {
	if page <= len(f.pages) {
		return f.pages[page-1], nil
	}
	return nil, nil
}

func (f *fakeHost) GetPullRequest(_ context.Context, _, _ string, number int) (*domain.RemotePR, error) {
	for _, page := range f.pages {
		for _, pr := range page {
			if pr.Number == number {
				cp := pr
				return &cp, nil
			}
		}
	}
	return nil, port.ErrPRNotFound
}

func (f *fakeHost) ListPullRequestFiles(_ context.Context, _, _ string, number int) ([]domain.RemoteChangedFile, error) {
	if f.fileErr != nil {
		return nil, f.fileErr
	}
	return f.files[number], nil
}

func (f *fakeHost) SearchIssues(_ context.Context, _ string, limit int) ([]domain.SearchHit, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	hits := f.hits
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// fakeAI cans the model. Embeddings always fail so the engine falls back to
// its deterministic hash vectors.
type fakeAI struct {
	chatResponse string
	chatErr      error
	streamChunks []string
	streamErr    error

	lastSystem string
	lastUser   string
}

func (f *fakeAI) ModelName() string { return "fake-model" }

func (f *fakeAI) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("fake provider has no embedder")
}

func (f *fakeAI) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, fmt.Errorf("fake provider has no embedder")
}

func (f *fakeAI) Chat(_ context.Context, system, user string, _ []string) (string, error) {
	f.lastSystem = system
	f.lastUser = user
	if f.chatErr != nil {
		return "", f.chatErr
	}
	return f.chatResponse, nil
}

func (f *fakeAI) ChatStream(_ context.Context, system, user string, _ []string) (<-chan string, error) {
	f.lastSystem = system
	f.lastUser = user
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
