package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-groupwork/internal/config"
	"github.com/noah-isme/gema-groupwork/internal/handler"
	"github.com/noah-isme/gema-groupwork/internal/middleware"
	"github.com/noah-isme/gema-groupwork/internal/observability"
)

// StaffRoles may import, export and delete project definitions.
var StaffRoles = []string{"staff", "instructor", "admin"}

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	StageHandler      *handler.StageHandler
	SubmissionHandler *handler.SubmissionHandler
	AuthoringHandler  *handler.AuthoringHandler
	JWTMiddleware     fiber.Handler
	UploadLimiter     fiber.Handler
	HealthProbes      map[string]handler.HealthProbe
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	project := app.Group("/api/v2/courses/:course/projects/:project", jwtMiddleware)
	if deps.StageHandler != nil {
		deps.StageHandler.Register(project)
	}
	if deps.SubmissionHandler != nil {
		deps.SubmissionHandler.Register(project, deps.UploadLimiter)
	}

	if deps.AuthoringHandler != nil {
		authoring := app.Group("/api/v2/authoring/courses/:course/projects", jwtMiddleware, middleware.RequireRole(StaffRoles...))
		deps.AuthoringHandler.Register(authoring)
	}
}
