package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probelabs/hindsight/internal/domain"
	"github.com/probelabs/hindsight/internal/embedding"
	"github.com/probelabs/hindsight/internal/service"
)

const webhookSecret = "sekrit"

func newWebhookApp(secret string, store *fakeStore, host *fakeHost) *fiber.App {
	app := fiber.New()
	ingest := service.NewIngestService(store, embedding.NewEngine(nil, 32, 8))
	NewWebhookHandler(secret, ingest, host).Register(app.Group("/api/v1"))
	return app
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func webhookRequest(event string, body []byte, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/github", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-GitHub-Delivery", "test-delivery")
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}
	return req
}

func prEventBody(t *testing.T, number int) []byte {
	t.Helper()
	payload := map[string]interface{}{
		"action": "closed",
		"pull_request": map[string]interface{}{
			"number":     number,
			"title":      "Fix cache invalidation on logout",
			"body":       "Clears the session cache when the user logs out.",
			"state":      "closed",
			"html_url":   fmt.Sprintf("https://github.com/acme/app/pull/%d", number),
			"merged_at":  "2025-05-01T10:00:00Z",
			"updated_at": "2025-05-01T10:00:00Z",
			"user":       map[string]interface{}{"login": "dev"},
			"labels":     []map[string]interface{}{{"name": "bug"}},
		},
		"repository": map[string]interface{}{
			"full_name": "acme/app",
			"html_url":  "https://github.com/acme/app",
		},
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return raw
}

func TestWebhookIngestsPullRequestWithValidSignature(t *testing.T) {
	store := newFakeStore()
	host := &fakeHost{files: map[int][]domain.RemoteChangedFile{
		7: {{Path: "internal/session/cache.go", Status: "modified", Patch: "@@ -1 +1 @@\n-old\n+new"}},
	}}
	app := newWebhookApp(webhookSecret, store, host)

	body := prEventBody(t, 7)
	resp, err := app.Test(webhookRequest("pull_request", body, sign(webhookSecret, body)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeBody(t, resp)
	assert.Equal(t, "pull_request", out["ingested"])
	assert.Equal(t, float64(7), out["number"])

	pr, err := store.GetPullRequest(context.Background(), 7, "https://github.com/acme/app")
	require.NoError(t, err)
	assert.Equal(t, "Fix cache invalidation on logout", pr.Title)
	assert.Equal(t, domain.PRStateMerged, pr.State)
	assert.Equal(t, []string{"internal/session/cache.go"}, pr.FilePaths())
	assert.Contains(t, pr.Diff, "session/cache.go")
	assert.Len(t, pr.Embedding, 32)
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	store := newFakeStore()
	app := newWebhookApp(webhookSecret, store, &fakeHost{})

	body := prEventBody(t, 7)
	resp, err := app.Test(webhookRequest("pull_request", body, sign("wrong-secret", body)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, store.prs, "a rejected delivery must not touch the store")
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	store := newFakeStore()
	app := newWebhookApp(webhookSecret, store, &fakeHost{})

	resp, err := app.Test(webhookRequest("pull_request", prEventBody(t, 7), ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, store.prs)
}

func TestWebhookSkipsVerificationWithoutSecret(t *testing.T) {
	store := newFakeStore()
	app := newWebhookApp("", store, &fakeHost{})

	resp, err := app.Test(webhookRequest("pull_request", prEventBody(t, 7), ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, store.prs, 1)
}

func TestWebhookFileFetchFailureIngestsMetadataOnly(t *testing.T) {
	store := newFakeStore()
	host := &fakeHost{fileErr: fmt.Errorf("api down")}
	app := newWebhookApp(webhookSecret, store, host)

	body := prEventBody(t, 7)
	resp, err := app.Test(webhookRequest("pull_request", body, sign(webhookSecret, body)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	pr, err := store.GetPullRequest(context.Background(), 7, "https://github.com/acme/app")
	require.NoError(t, err)
	assert.Empty(t, pr.Diff)
	assert.Empty(t, pr.Files)
	assert.NotEmpty(t, pr.Embedding, "metadata alone is still embeddable")
}

func TestWebhookPushIngestsCommits(t *testing.T) {
	store := newFakeStore()
	app := newWebhookApp(webhookSecret, store, &fakeHost{})

	payload := map[string]interface{}{
		"ref": "refs/heads/main",
		"repository": map[string]interface{}{
			"full_name": "acme/app",
			"html_url":  "https://github.com/acme/app",
		},
		"commits": []map[string]interface{}{
			{
				"id":        "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
				"message":   "Harden session expiry",
				"timestamp": "2025-05-02T09:00:00Z",
				"url":       "https://github.com/acme/app/commit/aaaaaaa",
				"author":    map[string]interface{}{"name": "dev"},
				"added":     []string{"internal/session/expiry.go"},
				"modified":  []string{"internal/session/cache.go"},
			},
			{
				"id":        "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
				"message":   "Remove dead flag",
				"timestamp": "2025-05-02T09:05:00Z",
				"url":       "https://github.com/acme/app/commit/bbbbbbb",
				"author":    map[string]interface{}{"name": "dev"},
				"removed":   []string{"internal/flags/old.go"},
			},
		},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := app.Test(webhookRequest("push", body, sign(webhookSecret, body)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeBody(t, resp)
	assert.Equal(t, "push", out["ingested"])
	assert.Equal(t, float64(2), out["commits"])
	assert.NotContains(t, out, "failed")

	require.Len(t, store.commits, 2)
	first := store.commits["aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"]
	require.NotNil(t, first)
	assert.ElementsMatch(t, []string{"internal/session/expiry.go", "internal/session/cache.go"}, first.Files)
	assert.NotEmpty(t, first.Embedding)
}

func TestWebhookAnswersPing(t *testing.T) {
	app := newWebhookApp(webhookSecret, newFakeStore(), &fakeHost{})

	body := []byte(`{"zen": "Keep it logically awesome."}`)
	resp, err := app.Test(webhookRequest("ping", body, sign(webhookSecret, body)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, decodeBody(t, resp)["ok"])
}

func TestWebhookIgnoresUnknownEvents(t *testing.T) {
	store := newFakeStore()
	app := newWebhookApp(webhookSecret, store, &fakeHost{})

	body := []byte(`{"action": "created"}`)
	resp, err := app.Test(webhookRequest("issue_comment", body, sign(webhookSecret, body)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "issue_comment", decodeBody(t, resp)["ignored"])
	assert.Empty(t, store.prs)
	assert.Empty(t, store.commits)
}

func TestWebhookRejectsMalformedRepositoryName(t *testing.T) {
	app := newWebhookApp(webhookSecret, newFakeStore(), &fakeHost{})

	payload := map[string]interface{}{
		"pull_request": map[string]interface{}{"number": 1, "title": "x"},
		"repository":   map[string]interface{}{"full_name": "no-slash-here"},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := app.Test(webhookRequest("pull_request", body, sign(webhookSecret, body)))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "repository.full_name", decodeBody(t, resp)["field"])
}
