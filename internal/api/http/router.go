package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-rooms/internal/api/http/handlers"
	"github.com/spec-kit/ticket-rooms/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	AuthMiddleware *auth.Middleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/requester", cfg.Auth.RequesterToken)
	authGroup.Post("/staff", cfg.Auth.StaffToken)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/close", cfg.Tickets.CloseTicket)
	tickets.Post("/:id/delete", cfg.Tickets.DeleteTicket)

	app.Post("/setup", cfg.AuthMiddleware.Handle, auth.RequireStaff(), cfg.Tickets.Setup)
}
