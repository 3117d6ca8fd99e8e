package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-rooms/internal/api/dto"
	"github.com/spec-kit/ticket-rooms/internal/auth"
	apperrors "github.com/spec-kit/ticket-rooms/pkg/util"
)

// AuthHandler issues actor identity tokens.
type AuthHandler struct {
	service *auth.Service
}

// NewAuthHandler constructs handler.
func NewAuthHandler(service *auth.Service) *AuthHandler {
	return &AuthHandler{service: service}
}

// RequesterToken POST /auth/requester.
func (h *AuthHandler) RequesterToken(c *fiber.Ctx) error {
	var req dto.RequesterTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	token, expiresAt, err := h.service.IssueRequesterToken(req.DisplayName)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TokenResponse{Token: token, ExpiresAt: expiresAt}})
}

// StaffToken POST /auth/staff.
func (h *AuthHandler) StaffToken(c *fiber.Ctx) error {
	var req dto.StaffTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	token, expiresAt, err := h.service.IssueStaffToken(req.DisplayName, req.AccessKey)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TokenResponse{Token: token, ExpiresAt: expiresAt}})
}
