package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-inventory/internal/api/dto"
	"github.com/spec-kit/ticket-inventory/internal/domain"
	"github.com/spec-kit/ticket-inventory/internal/service"
	"github.com/spec-kit/ticket-inventory/internal/ticketqr"
	apperrors "github.com/spec-kit/ticket-inventory/pkg/util/errorutil"
)

// TicketsHandler manages issued-ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
	qr      *ticketqr.Generator
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService, qr *ticketqr.Generator) *TicketsHandler {
	return &TicketsHandler{service: ticketService, qr: qr}
}

// ListMine GET /me/tickets.
func (h *TicketsHandler) ListMine(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	tickets, err := h.service.ListByOwner(c.UserContext(), principal.SubjectID, pageSize, (page-1)*pageSize)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewTicketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /tickets/:id.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	ticket, err := h.visibleTicket(c, domain.RoleStaff, domain.RoleAdmin)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// QR GET /tickets/:id/qr renders the redemption code as a PNG.
func (h *TicketsHandler) QR(c *fiber.Ctx) error {
	ticket, err := h.visibleTicket(c, domain.RoleAdmin)
	if err != nil {
		return err
	}
	if ticket.Status != domain.TicketStatusValid {
		return apperrors.NewValidationError("only valid tickets have a redeemable code", map[string]any{"status": ticket.Status})
	}
	img, err := h.qr.PNG(ticket)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(img)
}

// Cancel POST /tickets/:id/cancel.
func (h *TicketsHandler) Cancel(c *fiber.Ctx) error {
	ticket, err := h.visibleTicket(c, domain.RoleAdmin)
	if err != nil {
		return err
	}
	cancelled, err := h.service.CancelTicket(c.UserContext(), ticket.ID)
	if err != nil {
		return err
	}
	status := ticket.Status
	if cancelled {
		status = domain.TicketStatusCancelled
	}
	return c.JSON(fiber.Map{"data": dto.CancelTicketResponse{Cancelled: cancelled, Status: status}})
}

// CheckIn POST /check-in.
func (h *TicketsHandler) CheckIn(c *fiber.Ctx) error {
	var req dto.CheckInRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	code := req.TicketCode
	if req.QRPayload != "" {
		claims, err := h.qr.Open(req.QRPayload)
		if err != nil {
			if errors.Is(err, ticketqr.ErrInvalidPayload) {
				return apperrors.NewValidationError("qr payload could not be verified", nil)
			}
			return apperrors.NewInternalError(err)
		}
		code = claims.TicketCode
	}
	admitted, err := h.service.CheckIn(c.UserContext(), code)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.CheckInResponse{Admitted: admitted}})
}

// visibleTicket loads the ticket in the path if the caller owns it or holds
// one of the privileged roles. Others get NOT_FOUND so ids cannot be enumerated.
func (h *TicketsHandler) visibleTicket(c *fiber.Ctx, privileged ...domain.Role) (*domain.Ticket, error) {
	principal, err := requirePrincipal(c)
	if err != nil {
		return nil, err
	}
	ticket, err := h.service.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return nil, err
	}
	if ticket.OwnerID != principal.SubjectID && !principal.Has(privileged...) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"id": c.Params("id")})
	}
	return ticket, nil
}

