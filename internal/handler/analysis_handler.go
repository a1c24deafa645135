package handler

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/probelabs/hindsight/internal/domain"
	"github.com/probelabs/hindsight/internal/port"
	"github.com/probelabs/hindsight/internal/service"
)

// AnalysisHandler handles bug-diagnosis endpoints.
type AnalysisHandler struct {
	analysis *service.AnalysisService
	store    port.Store
}

// NewAnalysisHandler creates a new analysis handler.
func NewAnalysisHandler(analysis *service.AnalysisService, store port.Store) *AnalysisHandler {
	return &AnalysisHandler{analysis: analysis, store: store}
}

// Register sets up analysis routes.
func (h *AnalysisHandler) Register(router fiber.Router) {
	router.Post("/analyze", h.Analyze)
	router.Post("/analyze/stream", h.AnalyzeStream)
	router.Get("/analyses", h.ListAnalyses)
}

type analyzeRequest struct {
	Text      string            `json:"text"`
	InputType string            `json:"input_type"`
	History   []domain.ChatTurn `json:"history,omitempty"`
}

// validate rejects unusable requests before any side effect, naming the
// offending field.
func (r *analyzeRequest) validate() (field, problem string, ok bool) {
	if strings.TrimSpace(r.Text) == "" {
		return "text", "text is required", false
	}
	if r.InputType == "" {
		r.InputType = "bug_report"
	}
	return "", "", true
}

// Analyze runs one blocking diagnosis and returns the full result. Model
// failures are absorbed by the service's fallback, so a 500 here means the
// store itself was unreachable.
func (h *AnalysisHandler) Analyze(c fiber.Ctx) error {
	var body analyzeRequest
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if field, problem, ok := body.validate(); !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": problem, "field": field})
	}

	result, err := h.analysis.Analyze(c.Context(), body.Text, body.InputType)
	if err != nil {
		slog.Error("analysis failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "analysis failed"})
	}
	return c.JSON(result)
}

// AnalyzeStream runs the diagnosis with the model output streamed over SSE:
// one "sources" event with the retrieved matches, "chunk" events as the
// model produces text, then a "done" event.
func (h *AnalysisHandler) AnalyzeStream(c fiber.Ctx) error {
	var body analyzeRequest
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if field, problem, ok := body.validate(); !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": problem, "field": field})
	}

	stream, related, err := h.analysis.AnalyzeStream(c.Context(), body.Text, body.InputType, body.History)
	if err != nil {
		slog.Error("stream analysis failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "analysis failed"})
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	return c.SendStreamWriter(func(w *bufio.Writer) {
		sources, _ := json.Marshal(fiber.Map{
			"prs":     related.PRs,
			"commits": related.Commits,
			"tickets": related.Tickets,
		})
		fmt.Fprintf(w, "event: sources\ndata: %s\n\n", sources)
		w.Flush()

		for chunk := range stream {
			data, _ := json.Marshal(fiber.Map{"content": chunk})
			fmt.Fprintf(w, "event: chunk\ndata: %s\n\n", data)
			w.Flush()
		}

		fmt.Fprint(w, "event: done\ndata: {}\n\n")
		w.Flush()
	})
}

// ListAnalyses returns recent diagnosis history, newest first.
func (h *AnalysisHandler) ListAnalyses(c fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "20"))

	analyses, err := h.store.ListAnalyses(c.Context(), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{
		"analyses": analyses,
		"count":    len(analyses),
	})
}
