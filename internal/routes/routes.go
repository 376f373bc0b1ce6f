package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/lk16/puzzler/internal/routes/api"
	"github.com/lk16/puzzler/internal/routes/version"
)

func rootHandler(c *fiber.Ctx) error {
	return c.Redirect("/api/puzzles")
}

func SetupRoutes(app *fiber.App) {
	// Serve API routes
	api.SetupRoutes(app)

	// Serve version info
	version.SetupRoutes(app)

	// Serve root page
	app.Get("/", rootHandler)
}
