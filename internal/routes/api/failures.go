package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/lk16/puzzler/internal/models"
)

// GetFailures returns the number of timed out input lines and the oldest of them.
func GetFailures(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", models.DefaultFailureLimit)
	if limit <= 0 || limit > models.MaxFailureLimit {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid limit",
		})
	}

	store := failureStore(c)

	count, err := store.FailureCount(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	lines, err := store.Failures(c.Context(), int64(limit))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(models.FailuresResponse{
		Count: count,
		Lines: lines,
	})
}
