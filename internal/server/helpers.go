package server

import (
	"strconv"

	"diary/internal/models"

	"github.com/gofiber/fiber/v2"
)

// parseEntryID reads the :id route parameter. Anything that is not a positive
// integer cannot name an entry, so it is reported as not found.
func parseEntryID(c *fiber.Ctx) (uint, error) {
	raw := c.Params("id")
	id, err := strconv.ParseUint(raw, 10, 0)
	if err != nil || id == 0 {
		return 0, models.NewNotFoundError("Entry", raw)
	}
	return uint(id), nil
}

func invalidBody() error {
	return models.NewValidationError("Invalid request body")
}
