package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-inventory/internal/api/dto"
	"github.com/spec-kit/ticket-inventory/internal/cache"
	"github.com/spec-kit/ticket-inventory/internal/service"
	apperrors "github.com/spec-kit/ticket-inventory/pkg/util/errorutil"
)

// IdempotencyHeader lets clients retry a purchase without buying twice.
const IdempotencyHeader = "Idempotency-Key"

// TicketTypesHandler manages inventory and purchase endpoints.
type TicketTypesHandler struct {
	types       *service.TicketTypeService
	purchases   *service.PurchaseCoordinator
	idempotency *cache.IdempotencyStore
	logger      *zap.Logger
}

// NewTicketTypesHandler constructs handler. idempotency may be nil.
func NewTicketTypesHandler(types *service.TicketTypeService, purchases *service.PurchaseCoordinator, idempotency *cache.IdempotencyStore, logger *zap.Logger) *TicketTypesHandler {
	return &TicketTypesHandler{types: types, purchases: purchases, idempotency: idempotency, logger: logger}
}

// Create POST /events/:eventId/ticket-types.
func (h *TicketTypesHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateTicketTypeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	tt, err := h.types.CreateTicketType(c.UserContext(), service.CreateTicketTypeInput{
		EventID:     c.Params("eventId"),
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		Currency:    req.Currency,
		ServiceFee:  req.ServiceFee,
		Quantity:    *req.Quantity,
		MaxPerOrder: req.MaxPerOrder,
		SalesStart:  req.SalesStart,
		SalesEnd:    req.SalesEnd,
		MinimumAge:  req.MinimumAge,
		HasSeating:  req.HasSeating,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketTypeResponse(tt)})
}

// ListByEvent GET /events/:eventId/ticket-types.
func (h *TicketTypesHandler) ListByEvent(c *fiber.Ctx) error {
	list, err := h.types.ListByEvent(c.UserContext(), c.Params("eventId"))
	if err != nil {
		return err
	}
	items := make([]dto.TicketTypeResponse, 0, len(list))
	for i := range list {
		items = append(items, dto.NewTicketTypeResponse(&list[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /ticket-types/:id.
func (h *TicketTypesHandler) Get(c *fiber.Ctx) error {
	tt, err := h.types.GetTicketType(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketTypeResponse(tt)})
}

// Update PATCH /ticket-types/:id.
func (h *TicketTypesHandler) Update(c *fiber.Ctx) error {
	var req dto.UpdateTicketTypeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	tt, err := h.types.UpdateTicketType(c.UserContext(), c.Params("id"), service.UpdateTicketTypeInput{
		Name:             req.Name,
		Description:      req.Description,
		Price:            req.Price,
		ServiceFee:       req.ServiceFee,
		ClearServiceFee:  req.ClearServiceFee,
		Quantity:         req.Quantity,
		MaxPerOrder:      req.MaxPerOrder,
		ClearMaxPerOrder: req.ClearMaxPerOrder,
		SalesStart:       req.SalesStart,
		SalesEnd:         req.SalesEnd,
		MinimumAge:       req.MinimumAge,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketTypeResponse(tt)})
}

// Cancel POST /ticket-types/:id/cancel.
func (h *TicketTypesHandler) Cancel(c *fiber.Ctx) error {
	tt, changed, err := h.types.CancelTicketType(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketTypeResponse(tt), "changed": changed})
}

// Availability GET /ticket-types/:id/availability.
func (h *TicketTypesHandler) Availability(c *fiber.Ctx) error {
	availability, err := h.types.Availability(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": availability})
}

// Reconcile GET /ticket-types/:id/reconciliation.
func (h *TicketTypesHandler) Reconcile(c *fiber.Ctx) error {
	report, err := h.types.Reconcile(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

// Purchase POST /ticket-types/:id/purchase. With an Idempotency-Key header a
// repeated request replays the first outcome instead of buying again.
func (h *TicketTypesHandler) Purchase(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.PurchaseRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.UserContext()
	ticketTypeID := c.Params("id")

	var key string
	if clientKey := strings.TrimSpace(c.Get(IdempotencyHeader)); clientKey != "" && h.idempotency != nil {
		key = cache.Key("purchase", principal.SubjectID, ticketTypeID+":"+clientKey)
		stored, err := h.idempotency.Begin(ctx, key)
		if errors.Is(err, cache.ErrRequestInFlight) {
			return apperrors.NewConflict("a request with this idempotency key is still in progress", nil)
		}
		if err != nil {
			return apperrors.NewInternalError(err)
		}
		if stored != nil {
			c.Set("Idempotent-Replayed", "true")
			c.Set(fiber.HeaderContentType, stored.ContentType)
			return c.Status(stored.Status).Send(stored.Body)
		}
	}

	ids, err := h.purchases.Purchase(ctx, ticketTypeID, req.Quantity, principal.SubjectID)
	if err != nil {
		h.finishFailed(c, key, err)
		return err
	}

	resp := dto.PurchaseResponse{TicketTypeID: ticketTypeID, Quantity: len(ids), TicketIDs: ids}
	h.remember(c, key, http.StatusCreated, fiber.Map{"data": resp})
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": resp})
}

// finishFailed keeps outcomes that a retry must not change, such as an
// inconsistency whose seats are already committed, and frees the key otherwise.
func (h *TicketTypesHandler) finishFailed(c *fiber.Ctx, key string, err error) {
	if key == "" {
		return
	}
	de := apperrors.ToDomainError(err)
	if de.Retryable || de.Code == apperrors.CodeInternal {
		if relErr := h.idempotency.Release(c.UserContext(), key); relErr != nil {
			h.logger.Warn("idempotency release failed", zap.Error(relErr))
		}
		return
	}
	h.remember(c, key, de.HTTPStatus, dto.NewErrorBody(de))
}

func (h *TicketTypesHandler) remember(c *fiber.Ctx, key string, status int, body any) {
	if key == "" {
		return
	}
	raw, err := json.Marshal(body)
	if err != nil {
		h.logger.Warn("idempotency encode failed", zap.Error(err))
		return
	}
	stored := cache.StoredResponse{Status: status, ContentType: fiber.MIMEApplicationJSON, Body: raw}
	if err := h.idempotency.Complete(c.UserContext(), key, stored); err != nil {
		h.logger.Warn("idempotency store failed", zap.Error(err))
	}
}
