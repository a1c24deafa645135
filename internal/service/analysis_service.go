package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/probelabs/hindsight/internal/domain"
	"github.com/probelabs/hindsight/internal/port"
	"github.com/probelabs/hindsight/internal/prompt"
	"github.com/probelabs/hindsight/internal/search"
)

// FallbackConfidence is the confidence reported when diagnosis generation
// failed and the templated fallback answer is returned instead.
const FallbackConfidence = 0.3

// AnalysisService diagnoses bug reports against the ingested history:
// retrieve related PRs/commits/tickets, assemble the evidence prompt, run one
// model call, and parse the strict-JSON verdict. Generation failures degrade
// to a templated fallback; they never surface as errors.
type AnalysisService struct {
	ai     port.AIProvider
	store  port.Store
	search *search.Service

	now func() time.Time
}

// NewAnalysisService wires the diagnosis pipeline.
func NewAnalysisService(ai port.AIProvider, store port.Store, searchSvc *search.Service) *AnalysisService {
	return &AnalysisService{ai: ai, store: store, search: searchSvc, now: time.Now}
}

// Analyze runs one full diagnosis. inputType tags what the caller pasted
// ("bug_report", "stack_trace", ...) so the prompt can frame it. The returned
// result always carries the retrieved related items, even when the model
// half of the pipeline failed and the verdict is the fallback.
//
// Only retrieval errors (store unavailable) are returned as errors.
func (s *AnalysisService) Analyze(ctx context.Context, text, inputType string) (*domain.AnalysisResult, error) {
	related, err := s.search.FindRelated(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("retrieve history: %w", err)
	}

	evidence := s.buildEvidence(ctx, related)
	result := s.generate(ctx, text, inputType, evidence, related)

	result.ID = uuid.New().String()
	result.BugDescription = text
	result.CreatedAt = s.now()

	// History is a convenience; losing one record must not fail the analysis.
	if err := s.store.SaveAnalysis(ctx, result); err != nil {
		slog.Error("failed to save analysis history", "error", err)
	}
	return result, nil
}

// AnalyzeStream is Analyze with the model output delivered incrementally for
// UI rendering; the answer is conversational Markdown rather than the strict
// JSON verdict. First turns run retrieval and return the matches alongside
// the stream. Follow-up turns (history non-empty) pass the conversation
// through as context instead of re-running retrieval, so the prompt does not
// accrete a fresh evidence block per turn.
func (s *AnalysisService) AnalyzeStream(ctx context.Context, text, inputType string, history []domain.ChatTurn) (<-chan string, *search.Related, error) {
	if len(history) > 0 {
		chunks := make([]string, 0, len(history))
		for _, turn := range history {
			chunks = append(chunks, fmt.Sprintf("[%s]: %s", turn.Role, turn.Content))
		}
		stream, err := s.ai.ChatStream(ctx, prompt.ConversationSystemPrompt, text, chunks)
		if err != nil {
			slog.Warn("follow-up stream failed, sending fallback text", "error", err)
			return fallbackStream(&search.Related{}), &search.Related{}, nil
		}
		return stream, &search.Related{}, nil
	}

	related, err := s.search.FindRelated(ctx, text)
	if err != nil {
		return nil, nil, fmt.Errorf("retrieve history: %w", err)
	}
	evidence := s.buildEvidence(ctx, related)

	stream, err := s.ai.ChatStream(ctx, prompt.ConversationSystemPrompt, prompt.DiagnosisUserPrompt(text, inputType), []string{evidence})
	if err != nil {
		slog.Warn("stream generation failed, sending fallback text", "error", err)
		return fallbackStream(related), related, nil
	}
	return stream, related, nil
}

// buildEvidence assembles the bounded prompt context: the project profile
// first, then the ranked matches in fixed order.
func (s *AnalysisService) buildEvidence(ctx context.Context, related *search.Related) string {
	var project string
	pc, err := s.store.GetProjectContext(ctx)
	if err != nil {
		slog.Warn("project context unavailable, analyzing without it", "error", err)
	} else {
		project = prompt.ProjectProfile(pc)
	}
	return prompt.BuildContext(project, related.PRs, related.Commits, related.Tickets)
}

// generate runs the model call and parses its verdict. Any failure along the
// way (transport, parse, schema) lands in the fallback path.
func (s *AnalysisService) generate(ctx context.Context, text, inputType, evidence string, related *search.Related) *domain.AnalysisResult {
	raw, err := s.ai.Chat(ctx, prompt.DiagnosisSystemPrompt, prompt.DiagnosisUserPrompt(text, inputType), []string{evidence})
	if err != nil {
		slog.Warn("diagnosis generation failed, returning fallback", "error", err, "model", s.ai.ModelName())
		return fallbackResult(related)
	}

	result, err := parseDiagnosis(raw)
	if err != nil {
		slog.Warn("diagnosis response rejected, returning fallback", "error", err, "model", s.ai.ModelName())
		return fallbackResult(related)
	}

	result.RelatedPRs = relatedPRs(related.PRs)
	result.RelatedCommits = relatedCommits(related.Commits)
	result.RelatedTickets = relatedTickets(related.Tickets)
	return result
}

// diagnosisPayload is the strict shape the model must answer with. Anything
// that does not decode and validate against it triggers the fallback.
type diagnosisPayload struct {
	Status        string                `json:"status"`
	Confidence    float64               `json:"confidence"`
	Summary       string                `json:"summary"`
	RootCause     string                `json:"root_cause"`
	Explanation   string                `json:"explanation"`
	FixSuggestion *domain.FixSuggestion `json:"fix_suggestion"`
}

// parseDiagnosis decodes the model response: direct JSON first, then a JSON
// block dug out of markdown fences or surrounding prose. Status must be one
// of the recognized verdicts; confidence is clamped to [0, 1].
func parseDiagnosis(raw string) (*domain.AnalysisResult, error) {
	var payload diagnosisPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		block := extractJSONBlock(raw)
		if block == "" {
			return nil, fmt.Errorf("no JSON object in response: %w", err)
		}
		if err := json.Unmarshal([]byte(block), &payload); err != nil {
			return nil, fmt.Errorf("decode extracted JSON: %w", err)
		}
	}

	if !domain.ValidAnalysisStatus(payload.Status) {
		return nil, fmt.Errorf("unrecognized status %q", payload.Status)
	}
	if strings.TrimSpace(payload.Summary) == "" {
		return nil, errors.New("summary missing")
	}

	return &domain.AnalysisResult{
		Status:        payload.Status,
		Confidence:    clamp01(payload.Confidence),
		Summary:       payload.Summary,
		RootCause:     payload.RootCause,
		Explanation:   payload.Explanation,
		FixSuggestion: payload.FixSuggestion,
	}, nil
}

// extractJSONBlock pulls a JSON object out of a response that wrapped it in
// markdown fences or prose. Tries a ```json fence, then any fence, then the
// first balanced brace run.
func extractJSONBlock(s string) string {
	if idx := strings.Index(s, "```json"); idx != -1 {
		start := idx + len("```json")
		if end := strings.Index(s[start:], "```"); end != -1 {
			return strings.TrimSpace(s[start : start+end])
		}
	}
	if idx := strings.Index(s, "```"); idx != -1 {
		start := idx + 3
		if nl := strings.Index(s[start:], "\n"); nl != -1 {
			start += nl + 1
		}
		if end := strings.Index(s[start:], "```"); end != -1 {
			return strings.TrimSpace(s[start : start+end])
		}
	}
	if start := strings.Index(s, "{"); start != -1 {
		depth := 0
		for i := start; i < len(s); i++ {
			switch s[i] {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}

// fallbackResult synthesizes the degraded-mode answer used when generation
// or parsing failed. The retrieved matches are republished untouched, so the
// caller still gets the evidence even without a verdict.
func fallbackResult(related *search.Related) *domain.AnalysisResult {
	result := &domain.AnalysisResult{
		Status:         domain.AnalysisStatusUnknown,
		Confidence:     FallbackConfidence,
		RelatedPRs:     relatedPRs(related.PRs),
		RelatedCommits: relatedCommits(related.Commits),
		RelatedTickets: relatedTickets(related.Tickets),
	}

	total := len(result.RelatedPRs) + len(result.RelatedCommits) + len(result.RelatedTickets)
	if total == 0 {
		result.Summary = "I couldn't complete a full diagnosis this time, and nothing in the synced history looks related to this report yet. " +
			"Syncing more repositories or rewording the description usually helps."
		return result
	}

	result.Summary = fmt.Sprintf(
		"I couldn't complete a full diagnosis this time, but the history search turned up %d related item(s) worth a look. Start with %s, the closest match to what you described.",
		total, closestMatch(related))
	return result
}

// fallbackStream wraps the fallback summary as a one-chunk stream so the
// streaming path degrades the same way the blocking one does.
func fallbackStream(related *search.Related) <-chan string {
	ch := make(chan string, 1)
	ch <- fallbackResult(related).Summary
	close(ch)
	return ch
}

// closestMatch names the single best retrieval hit for the fallback text.
// Lists are ranked best-first, so the heads are the candidates.
func closestMatch(related *search.Related) string {
	best := ""
	score := -1.0
	if len(related.PRs) > 0 && related.PRs[0].Similarity > score {
		best = fmt.Sprintf("PR #%d (%q)", related.PRs[0].Item.Number, related.PRs[0].Item.Title)
		score = related.PRs[0].Similarity
	}
	if len(related.Commits) > 0 && related.Commits[0].Similarity > score {
		best = fmt.Sprintf("commit %s (%q)", related.Commits[0].Item.ShortSHA(), related.Commits[0].Item.Message)
		score = related.Commits[0].Similarity
	}
	if len(related.Tickets) > 0 && related.Tickets[0].Similarity > score {
		best = fmt.Sprintf("ticket %s (%q)", related.Tickets[0].Item.Key, related.Tickets[0].Item.Title)
	}
	return best
}

func relatedPRs(matches []search.Match[domain.PullRequest]) []domain.RelatedPR {
	out := make([]domain.RelatedPR, len(matches))
	for i, m := range matches {
		out[i] = domain.RelatedPR{
			Number:         m.Item.Number,
			Title:          m.Item.Title,
			URL:            m.Item.URL,
			Author:         m.Item.Author,
			MergedAt:       m.Item.MergedAt,
			Files:          m.Item.FilePaths(),
			RelevanceScore: m.Similarity,
		}
	}
	return out
}

func relatedCommits(matches []search.Match[domain.Commit]) []domain.RelatedCommit {
	out := make([]domain.RelatedCommit, len(matches))
	for i, m := range matches {
		out[i] = domain.RelatedCommit{
			SHA:            m.Item.SHA,
			Message:        m.Item.Message,
			URL:            m.Item.URL,
			Author:         m.Item.Author,
			Files:          m.Item.Files,
			RelevanceScore: m.Similarity,
		}
	}
	return out
}

func relatedTickets(matches []search.Match[domain.Ticket]) []domain.RelatedTicket {
	out := make([]domain.RelatedTicket, len(matches))
	for i, m := range matches {
		out[i] = domain.RelatedTicket{
			Key:            m.Item.Key,
			Title:          m.Item.Title,
			URL:            m.Item.URL,
			Status:         m.Item.Status,
			RelevanceScore: m.Similarity,
		}
	}
	return out
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
