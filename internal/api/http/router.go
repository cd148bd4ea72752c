package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/grievance-portal/internal/api/http/handlers"
	"github.com/spec-kit/grievance-portal/internal/auth"
	"github.com/spec-kit/grievance-portal/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Issues         *handlers.IssuesHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	app.Post("/auth/login", cfg.Auth.Login)

	issues := app.Group("/issues", cfg.AuthMiddleware.Handle)
	issues.Post("", cfg.Issues.CreateIssue)
	issues.Get("/:id", cfg.Issues.GetIssue)
	issues.Get("/:id/sla", cfg.Issues.GetSLA)
	issues.Get("/:id/timeline", cfg.Issues.GetTimeline)
	issues.Post("/:id/reopen", cfg.Issues.Reopen)
	issues.Post("/:id/comments", cfg.Issues.AddComment)
	issues.Post("/:id/internal-comments", cfg.Issues.AddInternalComment)

	staffOnly := auth.RequireStaff()
	issues.Post("/:id/status", staffOnly, cfg.Issues.ChangeStatus)
	issues.Post("/:id/assign", staffOnly, cfg.Issues.Assign)
	issues.Post("/:id/escalate", staffOnly, cfg.Issues.Escalate)
	issues.Post("/:id/priority", staffOnly, cfg.Issues.ChangePriority)
	issues.Post("/:id/recategorize", staffOnly, cfg.Issues.Recategorize)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.EmployeeRoleManager, domain.EmployeeRoleAdmin))
	admin.Get("/metrics", cfg.Health.Metrics)
	admin.Post("/sla/sweep", cfg.Issues.SweepBreaches)
}
