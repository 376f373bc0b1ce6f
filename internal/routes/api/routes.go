package api

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/lk16/puzzler/internal/middleware"
	"github.com/lk16/puzzler/internal/models"
)

const (
	PuzzleStoreKey  = "puzzles"
	FailureStoreKey = "failures"
)

// PuzzleStore reads stored puzzles. repository.PuzzleRepository implements it.
type PuzzleStore interface {
	ListPuzzles(ctx context.Context, filter models.PuzzleFilter) ([]models.Puzzle, error)
	GetPuzzle(ctx context.Context, id uuid.UUID) (models.Puzzle, error)
}

// FailureStore reads failed input lines. repository.FailureRepository implements it.
type FailureStore interface {
	Failures(ctx context.Context, limit int64) ([]string, error)
	FailureCount(ctx context.Context) (int64, error)
}

// SetupRoutes sets up the API routes.
func SetupRoutes(app *fiber.App) {
	apiGroup := app.Group("/api")

	// Puzzle routes
	apiGroup.Get("/puzzles", ListPuzzles)
	apiGroup.Get("/puzzles/:id", GetPuzzle)

	// Failure routes
	apiGroup.Get("/failures", middleware.AuthOrToken(), GetFailures)
}

func puzzleStore(c *fiber.Ctx) PuzzleStore {
	return c.Locals(PuzzleStoreKey).(PuzzleStore) //nolint: errcheck
}

func failureStore(c *fiber.Ctx) FailureStore {
	return c.Locals(FailureStoreKey).(FailureStore) //nolint: errcheck
}
