package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	jsoniter "github.com/json-iterator/go"

	"github.com/spec-kit/issuelog/internal/api/http/handlers"
	"github.com/spec-kit/issuelog/internal/auth"
	"github.com/spec-kit/issuelog/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Runs           *handlers.RunsHandler
	Snapshots      *handlers.SnapshotsHandler
	Metrics        *observability.Metrics
	AuthMiddleware *auth.AuthMiddleware
}

// NewApp builds the fiber application with jsoniter as its JSON codec.
func NewApp(appName string) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               appName,
		DisableStartupMessage: true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})
	app.Use(requestid.New())
	return app
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	app.Get("/runs/latest", cfg.Runs.LatestRun)
	app.Get("/issues/:id/snapshots", cfg.Snapshots.ListSnapshots)

	app.Post("/runs", cfg.AuthMiddleware.Handle, auth.RequireRole(auth.RoleOperator), cfg.Runs.StartRun)
}
