package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/ticket-inventory/internal/api/http/handlers"
	"github.com/spec-kit/ticket-inventory/internal/auth"
	"github.com/spec-kit/ticket-inventory/internal/domain"
	"github.com/spec-kit/ticket-inventory/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	TicketTypes    *handlers.TicketTypesHandler
	Tickets        *handlers.TicketsHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))

	organizer := auth.RequireRole(domain.RoleOrganizer, domain.RoleAdmin)
	admin := auth.RequireRole(domain.RoleAdmin)
	gate := auth.RequireRole(domain.RoleStaff, domain.RoleAdmin)

	authn := []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireAuthenticated()}

	eventsGroup := app.Group("/events", authn...)
	eventsGroup.Post("/:eventId/ticket-types", organizer, cfg.TicketTypes.Create)
	eventsGroup.Get("/:eventId/ticket-types", cfg.TicketTypes.ListByEvent)

	types := app.Group("/ticket-types", authn...)
	types.Get("/:id", cfg.TicketTypes.Get)
	types.Patch("/:id", organizer, cfg.TicketTypes.Update)
	types.Post("/:id/cancel", organizer, cfg.TicketTypes.Cancel)
	types.Get("/:id/availability", cfg.TicketTypes.Availability)
	types.Post("/:id/purchase", cfg.TicketTypes.Purchase)
	types.Get("/:id/reconciliation", admin, cfg.TicketTypes.Reconcile)

	app.Get("/me/tickets", append(authn, cfg.Tickets.ListMine)...)

	tickets := app.Group("/tickets", authn...)
	tickets.Get("/:id", cfg.Tickets.Get)
	tickets.Get("/:id/qr", cfg.Tickets.QR)
	tickets.Post("/:id/cancel", cfg.Tickets.Cancel)

	app.Post("/check-in", append(authn, gate, cfg.Tickets.CheckIn)...)
}
