package internal

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/lk16/puzzler/internal/config"
	"github.com/lk16/puzzler/internal/middleware"
	"github.com/lk16/puzzler/internal/repository"
	"github.com/lk16/puzzler/internal/routes"
	"github.com/lk16/puzzler/internal/routes/api"
	"github.com/lk16/puzzler/internal/services"
)

const (
	defaultConcurrency  = 256 * 1024 // Maximum number of concurrent connections per worker
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultIdleTimeout  = 5 * time.Second
	defaultBodyLimit    = 1024 * 1024 // 1MB
)

func SetupApp() (*fiber.App, *config.ServerConfig) {
	// Load configuration
	cfg := config.LoadServerConfig()

	// Initialize services
	services, err := services.InitServices(cfg)
	if err != nil {
		slog.Error("Failed to initialize services", "error", err)
		os.Exit(1)
	}

	// The server never saves puzzles, so the run id is not used.
	puzzles := repository.NewPuzzleRepository(services.Postgres, uuid.Nil)
	failures := repository.NewFailureRepository(services.Redis)

	if err := puzzles.EnsureSchema(context.Background()); err != nil {
		slog.Error("Failed to create database schema", "error", err)
		os.Exit(1)
	}

	return NewApp(cfg, puzzles, failures), cfg
}

// NewApp creates the Fiber app on top of the given stores.
func NewApp(cfg *config.ServerConfig, puzzles api.PuzzleStore, failures api.FailureStore) *fiber.App {
	app := fiber.New(fiber.Config{
		Prefork:      cfg.Prefork,
		Concurrency:  defaultConcurrency,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
		BodyLimit:    defaultBodyLimit,
	})

	// Setup stores and config in Fiber app
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(api.PuzzleStoreKey, puzzles)
		c.Locals(api.FailureStoreKey, failures)
		c.Locals(middleware.ConfigKey, cfg)
		return c.Next()
	})

	// Add logging middleware
	app.Use(middleware.Logging())

	// Setup all routes
	routes.SetupRoutes(app)

	return app
}
