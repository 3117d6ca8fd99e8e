package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-rooms/internal/api/dto"
	"github.com/spec-kit/ticket-rooms/internal/auth"
	"github.com/spec-kit/ticket-rooms/internal/domain"
	"github.com/spec-kit/ticket-rooms/internal/service"
	apperrors "github.com/spec-kit/ticket-rooms/pkg/util"
)

// TicketsHandler exposes the ticket lifecycle to authenticated actors.
type TicketsHandler struct {
	lifecycle *service.LifecycleService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(lifecycle *service.LifecycleService) *TicketsHandler {
	return &TicketsHandler{lifecycle: lifecycle}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("actor required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.lifecycle.Open(c.UserContext(), actor, service.CreateTicketInput{
		Label:     req.Label,
		IssueText: req.IssueText,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	if _, ok := auth.ActorFromContext(c); !ok {
		return apperrors.NewUnauthorized("actor required")
	}
	ticket, err := h.lifecycle.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// CloseTicket POST /tickets/:id/close.
func (h *TicketsHandler) CloseTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("actor required")
	}
	ticket, err := h.lifecycle.Close(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketResponse(ticket)})
}

// DeleteTicket POST /tickets/:id/delete.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("actor required")
	}
	if err := h.lifecycle.Delete(c.UserContext(), c.Params("id"), actor); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": c.Params("id"), "status": string(domain.TicketStatusDeleted)}})
}

// Setup POST /setup posts the intake announcement.
func (h *TicketsHandler) Setup(c *fiber.Ctx) error {
	if err := h.lifecycle.PostSetupAnnouncement(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"status": "announced"}})
}

func ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:          ticket.ID,
		Label:       ticket.Label,
		ChannelID:   ticket.ChannelID,
		ChannelName: ticket.ChannelName,
		Status:      string(ticket.Status),
		CreatedAt:   ticket.CreatedAt,
		ClosedAt:    ticket.ClosedAt,
		DeletedAt:   ticket.DeletedAt,
	}
}
