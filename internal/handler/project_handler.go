package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/probelabs/hindsight/internal/domain"
	"github.com/probelabs/hindsight/internal/port"
)

// ProjectContextHandler manages the single project profile prepended to
// analysis prompts.
type ProjectContextHandler struct {
	store port.Store
}

// NewProjectContextHandler creates a new project context handler.
func NewProjectContextHandler(store port.Store) *ProjectContextHandler {
	return &ProjectContextHandler{store: store}
}

// Register sets up project context routes.
func (h *ProjectContextHandler) Register(router fiber.Router) {
	router.Get("/project-context", h.Get)
	router.Put("/project-context", h.Put)
}

// Get returns the stored profile; an empty one when never saved.
func (h *ProjectContextHandler) Get(c fiber.Ctx) error {
	pc, err := h.store.GetProjectContext(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(pc)
}

// Put replaces the profile.
func (h *ProjectContextHandler) Put(c fiber.Ctx) error {
	var body domain.ProjectContext
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if err := h.store.SaveProjectContext(c.Context(), &body); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	pc, err := h.store.GetProjectContext(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(pc)
}
