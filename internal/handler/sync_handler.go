package handler

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/probelabs/hindsight/internal/domain"
	"github.com/probelabs/hindsight/internal/jobs"
	"github.com/probelabs/hindsight/internal/port"
	"github.com/probelabs/hindsight/internal/service"
)

// sseTimeout caps how long an idle event stream stays open.
const sseTimeout = 5 * time.Minute

// SyncHandler exposes sync job control and monitoring.
type SyncHandler struct {
	sync     *service.SyncService
	registry *jobs.Registry
	broker   *jobs.Broker
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(syncSvc *service.SyncService, registry *jobs.Registry, broker *jobs.Broker) *SyncHandler {
	return &SyncHandler{sync: syncSvc, registry: registry, broker: broker}
}

// Register sets up sync routes. Static segments go before the :id param so
// "active" is never captured as a job id.
func (h *SyncHandler) Register(router fiber.Router) {
	router.Post("/sync", h.Start)
	group := router.Group("/sync/jobs")
	group.Get("/", h.ListRecent)
	group.Get("/active", h.ListActive)
	group.Get("/:id", h.GetJob)
	group.Get("/:id/events", h.StreamEvents)
}

// Start accepts a sync request and returns 202 immediately; the job runs in
// the background and is tracked through the registry.
func (h *SyncHandler) Start(c fiber.Ctx) error {
	var body struct {
		Owner string `json:"owner"`
		Repo  string `json:"repo"`
		Limit int    `json:"limit"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	body.Owner = strings.TrimSpace(body.Owner)
	body.Repo = strings.TrimSpace(body.Repo)
	if body.Owner == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "owner is required", "field": "owner"})
	}
	if body.Repo == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "repo is required", "field": "repo"})
	}
	if body.Limit < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit must be >= 0", "field": "limit"})
	}

	job, err := h.sync.Start(body.Owner, body.Repo, body.Limit)
	if err != nil {
		if errors.Is(err, port.ErrMissingToken) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "GITHUB_TOKEN not configured"})
		}
		slog.Error("failed to start sync", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to start sync"})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"job_id":  job.ID,
		"status":  job.Status,
		"message": "sync started",
	})
}

// ListRecent returns the latest jobs of any status.
func (h *SyncHandler) ListRecent(c fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "0"))
	list := h.registry.ListRecent(limit)
	return c.JSON(fiber.Map{"jobs": list, "count": len(list)})
}

// ListActive returns pending and running jobs.
func (h *SyncHandler) ListActive(c fiber.Ctx) error {
	list := h.registry.ListActive()
	return c.JSON(fiber.Map{"jobs": list, "count": len(list)})
}

// GetJob returns the current snapshot of one job.
func (h *SyncHandler) GetJob(c fiber.Ctx) error {
	job, ok := h.registry.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "job not found"})
	}
	return c.JSON(job)
}

// StreamEvents streams job updates via Server-Sent Events. The current
// snapshot is always sent first; there is no replay of missed events, so a
// late subscriber catches up from the snapshot alone.
func (h *SyncHandler) StreamEvents(c fiber.Ctx) error {
	id := c.Params("id")
	job, ok := h.registry.Get(id)
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "job not found"})
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	// A terminal job has no future events: send the final state and finish.
	if job.Terminal() {
		kind := jobs.EventCompleted
		if job.Status == domain.JobStatusFailed {
			kind = jobs.EventFailed
		}
		data, _ := json.Marshal(job)
		return c.SendString(fmt.Sprintf("event: %s\ndata: %s\n\n", kind, data))
	}

	ch := h.broker.Subscribe(id)

	return c.SendStreamWriter(func(w *bufio.Writer) {
		defer h.broker.Unsubscribe(id, ch)

		data, _ := json.Marshal(job)
		fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data)
		w.Flush()

		timeout := time.After(sseTimeout)
		for {
			select {
			case evt, open := <-ch:
				if !open {
					return
				}
				data, _ := json.Marshal(evt.Job)
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Kind, data)
				w.Flush()
				if evt.Terminal() {
					return
				}
			case <-timeout:
				slog.Warn("sync event stream timeout", "job_id", id)
				return
			}
		}
	})
}
