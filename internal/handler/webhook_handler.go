package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/probelabs/hindsight/internal/domain"
	"github.com/probelabs/hindsight/internal/port"
	"github.com/probelabs/hindsight/internal/service"
)

// WebhookHandler ingests GitHub webhook deliveries so records stay fresh
// between scheduled syncs.
type WebhookHandler struct {
	secret string
	ingest *service.IngestService
	host   port.RepoHost
}

// NewWebhookHandler creates a webhook handler. An empty secret disables
// signature verification; callers are expected to warn about that at startup.
func NewWebhookHandler(secret string, ingest *service.IngestService, host port.RepoHost) *WebhookHandler {
	return &WebhookHandler{secret: secret, ingest: ingest, host: host}
}

// Register sets up webhook routes.
func (h *WebhookHandler) Register(router fiber.Router) {
	router.Post("/webhooks/github", h.HandleGitHub)
}

// HandleGitHub verifies the delivery signature and dispatches by event type.
// pull_request events reingest the PR; push events ingest the commits.
func (h *WebhookHandler) HandleGitHub(c fiber.Ctx) error {
	body := c.Body()
	if err := verifySignature(h.secret, body, c.Get("X-Hub-Signature-256")); err != nil {
		slog.Warn("webhook rejected", "error", err, "delivery", c.Get("X-GitHub-Delivery"))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
	}

	event := c.Get("X-GitHub-Event")
	switch event {
	case "pull_request":
		return h.handlePullRequest(c, body)
	case "push":
		return h.handlePush(c, body)
	case "ping":
		return c.JSON(fiber.Map{"ok": true})
	default:
		return c.JSON(fiber.Map{"ignored": event})
	}
}

// verifySignature checks the HMAC-SHA256 of body against the hub signature
// header using a constant-time compare. An empty secret skips verification;
// every such delivery is logged loudly so a misconfigured deployment is
// visible in the logs, not just silently open.
func verifySignature(secret string, body []byte, header string) error {
	if secret == "" {
		slog.Warn("webhook signature verification SKIPPED: GITHUB_WEBHOOK_SECRET not configured")
		return nil
	}
	if !strings.HasPrefix(header, "sha256=") {
		return port.ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(want), []byte(header)) {
		return port.ErrInvalidSignature
	}
	return nil
}

type prEventPayload struct {
	Action      string `json:"action"`
	PullRequest struct {
		Number    int        `json:"number"`
		Title     string     `json:"title"`
		Body      string     `json:"body"`
		State     string     `json:"state"`
		HTMLURL   string     `json:"html_url"`
		MergedAt  *time.Time `json:"merged_at"`
		UpdatedAt time.Time  `json:"updated_at"`
		User      struct {
			Login string `json:"login"`
		} `json:"user"`
		Labels []struct {
			Name string `json:"name"`
		} `json:"labels"`
	} `json:"pull_request"`
	Repository struct {
		FullName string `json:"full_name"`
		HTMLURL  string `json:"html_url"`
	} `json:"repository"`
}

func (h *WebhookHandler) handlePullRequest(c fiber.Ctx, body []byte) error {
	var payload prEventPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid pull_request payload"})
	}
	owner, repo, ok := splitFullName(payload.Repository.FullName)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing repository.full_name", "field": "repository.full_name"})
	}

	pr := payload.PullRequest
	labels := make([]string, len(pr.Labels))
	for i, l := range pr.Labels {
		labels[i] = l.Name
	}
	remote := domain.RemotePR{
		Number:    pr.Number,
		Title:     pr.Title,
		Body:      pr.Body,
		Author:    pr.User.Login,
		URL:       pr.HTMLURL,
		State:     pr.State,
		MergedAt:  pr.MergedAt,
		Labels:    labels,
		UpdatedAt: pr.UpdatedAt,
	}

	// Best effort: a delivery without a usable token still refreshes the
	// metadata, just without the diff.
	files, err := h.host.ListPullRequestFiles(c.Context(), owner, repo, remote.Number)
	if err != nil {
		slog.Warn("webhook file fetch failed, ingesting metadata only", "pr", remote.Number, "error", err)
		files = nil
	}

	if err := h.ingest.IngestPR(c.Context(), payload.Repository.HTMLURL, remote, files); err != nil {
		slog.Error("webhook PR ingestion failed", "pr", remote.Number, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "ingestion failed"})
	}

	slog.Info("webhook ingested pull request", "pr", remote.Number, "action", payload.Action, "repo", payload.Repository.FullName)
	return c.JSON(fiber.Map{"ingested": "pull_request", "number": remote.Number})
}

type pushEventPayload struct {
	Ref        string `json:"ref"`
	Repository struct {
		FullName string `json:"full_name"`
		HTMLURL  string `json:"html_url"`
	} `json:"repository"`
	Commits []struct {
		ID        string    `json:"id"`
		Message   string    `json:"message"`
		Timestamp time.Time `json:"timestamp"`
		URL       string    `json:"url"`
		Author    struct {
			Name string `json:"name"`
		} `json:"author"`
		Added    []string `json:"added"`
		Removed  []string `json:"removed"`
		Modified []string `json:"modified"`
	} `json:"commits"`
}

func (h *WebhookHandler) handlePush(c fiber.Ctx, body []byte) error {
	var payload pushEventPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid push payload"})
	}

	ingested := 0
	var errs []string
	for _, pc := range payload.Commits {
		files := append(append(append([]string{}, pc.Added...), pc.Modified...), pc.Removed...)
		commit := &domain.Commit{
			SHA:         pc.ID,
			RepoURL:     payload.Repository.HTMLURL,
			Message:     pc.Message,
			Author:      pc.Author.Name,
			URL:         pc.URL,
			Files:       files,
			CommittedAt: pc.Timestamp,
		}
		if err := h.ingest.IngestCommit(c.Context(), commit); err != nil {
			slog.Error("webhook commit ingestion failed", "sha", commit.ShortSHA(), "error", err)
			errs = append(errs, commit.ShortSHA())
			continue
		}
		ingested++
	}

	slog.Info("webhook ingested push", "repo", payload.Repository.FullName, "ref", payload.Ref, "commits", ingested, "failed", len(errs))
	resp := fiber.Map{"ingested": "push", "commits": ingested}
	if len(errs) > 0 {
		resp["failed"] = errs
	}
	return c.JSON(resp)
}

// splitFullName splits "owner/repo" into its parts.
func splitFullName(full string) (owner, repo string, ok bool) {
	owner, repo, found := strings.Cut(full, "/")
	if !found || owner == "" || repo == "" {
		return "", "", false
	}
	return owner, repo, true
}
