package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/helpline/escalation-service/internal/api/http/handlers"
	"github.com/helpline/escalation-service/internal/auth"
	"github.com/helpline/escalation-service/internal/domain"
	"github.com/helpline/escalation-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	HelpRequests   *handlers.HelpRequestsHandler
	Console        *handlers.ConsoleHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	authGroup := app.Group("/auth")
	authGroup.Post("/supervisors/login", cfg.Console.Login)

	api := app.Group("/api/v1")
	api.Post("/help-requests", cfg.HelpRequests.Create)
	api.Post("/questions", cfg.HelpRequests.Ask)
	api.Get("/help-requests/pending", cfg.HelpRequests.Pending)
	api.Get("/help-requests/:id", cfg.HelpRequests.Get)
	api.Get("/customers/:customerId/help-requests", cfg.HelpRequests.ListByCustomer)
	api.Get("/statistics", cfg.Console.Statistics)

	authn := cfg.AuthMiddleware.Handle
	api.Patch("/help-requests/:id/status", authn, auth.RequireRole(), cfg.HelpRequests.UpdateStatus)
	api.Get("/notifications", authn, auth.RequireRole(), cfg.Console.Notifications)
	api.Post("/sweeps", authn, auth.RequireRole(domain.SupervisorRoleAdmin, domain.SupervisorRoleLead), cfg.Console.RunSweep)
}
