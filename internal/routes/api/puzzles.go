package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/lk16/puzzler/internal/models"
	"github.com/lk16/puzzler/internal/repository"
)

// ListPuzzles returns the best puzzles matching the query parameters.
func ListPuzzles(c *fiber.Ctx) error {
	var filter models.PuzzleFilter
	if err := c.QueryParser(&filter); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid query parameters",
		})
	}

	if err := filter.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	puzzles, err := puzzleStore(c).ListPuzzles(c.Context(), filter)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(models.PuzzleListResponse{
		Count:   len(puzzles),
		Puzzles: puzzles,
	})
}

// GetPuzzle returns one puzzle by id.
func GetPuzzle(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid puzzle id",
		})
	}

	puzzle, err := puzzleStore(c).GetPuzzle(c.Context(), id)
	if errors.Is(err, repository.ErrPuzzleNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(puzzle)
}
