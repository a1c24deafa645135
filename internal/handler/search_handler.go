package handler

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/probelabs/hindsight/internal/port"
	"github.com/probelabs/hindsight/internal/search"
)

// SearchHandler exposes the local similarity search and the GitHub keyword
// search passthrough.
type SearchHandler struct {
	search *search.Service
	host   port.RepoHost
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(searchSvc *search.Service, host port.RepoHost) *SearchHandler {
	return &SearchHandler{search: searchSvc, host: host}
}

// Register sets up search routes.
func (h *SearchHandler) Register(router fiber.Router) {
	router.Post("/search", h.SearchHistory)
	router.Get("/github/search", h.SearchGitHub)
}

// SearchHistory ranks the ingested history against a free-text query without
// running a diagnosis.
func (h *SearchHandler) SearchHistory(c fiber.Ctx) error {
	var body struct {
		Query string `json:"query"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if strings.TrimSpace(body.Query) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "query is required", "field": "query"})
	}

	related, err := h.search.FindRelated(c.Context(), body.Query)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{
		"prs":     related.PRs,
		"commits": related.Commits,
		"tickets": related.Tickets,
	})
}

// SearchGitHub forwards a keyword query to the host's issue/PR search.
func (h *SearchHandler) SearchGitHub(c fiber.Ctx) error {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "q is required", "field": "q"})
	}
	limit, _ := strconv.Atoi(c.Query("limit", "10"))

	hits, err := h.host.SearchIssues(c.Context(), q, limit)
	if err != nil {
		if errors.Is(err, port.ErrMissingToken) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "GITHUB_TOKEN not configured"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"results": hits, "count": len(hits)})
}
