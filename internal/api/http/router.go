package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/approval-service/internal/api/http/handlers"
	"github.com/spec-kit/approval-service/internal/auth"
	"github.com/spec-kit/approval-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	Approvals      *handlers.ApprovalsHandler
	Templates      *handlers.TemplatesHandler
	Departments    *handlers.DepartmentsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)
	authGroup.Post("/password/change", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated(), cfg.Users.ChangePassword)

	me := app.Group("/me", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	me.Get("/", cfg.Users.Me)
	me.Get("/notifications", cfg.Users.Notifications)
	me.Post("/notifications/:id/read", cfg.Users.MarkNotificationRead)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/code/:code", cfg.Tickets.GetTicketByCode)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Patch("/:id", cfg.Tickets.UpdateTicket)
	tickets.Post("/:id/cancel", cfg.Tickets.CancelTicket)
	tickets.Get("/:id/history", cfg.Tickets.GetHistory)

	approvals := app.Group("/approvals", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleApprover))
	approvals.Get("/", cfg.Approvals.List)
	approvals.Get("/pending", cfg.Approvals.ListPending)
	approvals.Get("/processed", cfg.Approvals.ListProcessed)
	approvals.Get("/stats", cfg.Approvals.Stats)
	approvals.Get("/ticket/:ticketId", cfg.Approvals.TicketTrail)
	approvals.Get("/:id", cfg.Approvals.Get)
	approvals.Get("/:id/approvers", cfg.Approvals.AvailableApprovers)
	approvals.Post("/:id/approve", cfg.Approvals.Approve)
	approvals.Post("/:id/reject", cfg.Approvals.Reject)
	approvals.Post("/:id/forward", cfg.Approvals.Forward)

	admin := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleAdmin))
	admin.Get("/admin/tickets", cfg.Tickets.ListAllTickets)
	admin.Post("/templates", cfg.Templates.Create)
	admin.Put("/templates/:id", cfg.Templates.Update)
	admin.Post("/templates/:id/deactivate", cfg.Templates.Deactivate)
	admin.Post("/departments", cfg.Departments.Create)
	admin.Put("/departments/:id", cfg.Departments.Update)

	catalog := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	catalog.Get("/templates", cfg.Templates.List)
	catalog.Get("/templates/:id", cfg.Templates.Get)
	catalog.Get("/departments", cfg.Departments.List)
}
