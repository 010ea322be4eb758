package server

import (
	"diary/internal/middleware"
	"diary/internal/models"

	"github.com/gofiber/fiber/v2"
)

// ListEntries handles GET /api/entries
// @Summary List diary entries
// @Description List the caller's entries, newest first
// @Tags entries
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.DiaryEntry
// @Failure 401 {object} models.ErrorResponse
// @Router /entries [get]
func (s *Server) ListEntries(c *fiber.Ctx) error {
	list, err := s.entries.List(c.UserContext(), middleware.CurrentIdentity(c))
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(list)
}

// CreateEntry handles POST /api/entries
// @Summary Create a diary entry
// @Tags entries
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.EntryFields true "Entry"
// @Success 201 {object} models.DiaryEntry
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /entries [post]
func (s *Server) CreateEntry(c *fiber.Ctx) error {
	var req models.EntryFields
	if err := c.BodyParser(&req); err != nil {
		return s.respondError(c, invalidBody())
	}

	entry, err := s.entries.Create(c.UserContext(), middleware.CurrentIdentity(c), req)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(entry)
}

// GetEntry handles GET /api/entries/:id
// @Summary Get a diary entry
// @Tags entries
// @Produce json
// @Security BearerAuth
// @Param id path int true "Entry ID"
// @Success 200 {object} models.DiaryEntry
// @Failure 401 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /entries/{id} [get]
func (s *Server) GetEntry(c *fiber.Ctx) error {
	id, err := parseEntryID(c)
	if err != nil {
		return s.respondError(c, err)
	}

	entry, err := s.entries.Get(c.UserContext(), middleware.CurrentIdentity(c), id)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(entry)
}

// UpdateEntry handles PATCH /api/entries/:id
// @Summary Update a diary entry
// @Description Replace the title and content of an entry the caller owns
// @Tags entries
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Entry ID"
// @Param request body models.EntryFields true "Entry"
// @Success 200 {object} models.DiaryEntry
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /entries/{id} [patch]
func (s *Server) UpdateEntry(c *fiber.Ctx) error {
	id, err := parseEntryID(c)
	if err != nil {
		return s.respondError(c, err)
	}
	who := middleware.CurrentIdentity(c)

	var req models.EntryFields
	if err := c.BodyParser(&req); err != nil {
		// a malformed body must not reveal anything about entries the caller cannot see
		return s.respondError(c, s.entries.RejectUpdate(c.UserContext(), who, id, invalidBody()))
	}

	entry, err := s.entries.Update(c.UserContext(), who, id, req)
	if err != nil {
		return s.respondError(c, err)
	}
	return c.JSON(entry)
}

// DeleteEntry handles DELETE /api/entries/:id
// @Summary Delete a diary entry
// @Tags entries
// @Security BearerAuth
// @Param id path int true "Entry ID"
// @Success 204
// @Failure 401 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /entries/{id} [delete]
func (s *Server) DeleteEntry(c *fiber.Ctx) error {
	id, err := parseEntryID(c)
	if err != nil {
		return s.respondError(c, err)
	}

	if err := s.entries.Delete(c.UserContext(), middleware.CurrentIdentity(c), id); err != nil {
		return s.respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
