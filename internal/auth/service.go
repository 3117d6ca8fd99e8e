package auth

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/ticket-rooms/internal/config"
	"github.com/spec-kit/ticket-rooms/internal/domain"
	"github.com/spec-kit/ticket-rooms/pkg/util"
)

// Service issues actor tokens. Requester tokens are handed out freely on a
// display name; staff tokens require the shared staff access key, checked
// against its bcrypt hash from configuration.
type Service struct {
	tokens       *TokenManager
	staffKeyHash string
}

// NewService constructs the auth service.
func NewService(cfg config.AuthConfig) *Service {
	return &Service{
		tokens:       NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		staffKeyHash: cfg.StaffAccessKeyHash,
	}
}

// TokenManager exposes the token manager for middleware wiring.
func (s *Service) TokenManager() *TokenManager {
	return s.tokens
}

// IssueRequesterToken mints a token for a requester identity.
func (s *Service) IssueRequesterToken(displayName string) (string, time.Time, error) {
	if displayName == "" {
		return "", time.Time{}, util.NewValidationError("display name required", nil)
	}
	actor := domain.Actor{
		Kind:        domain.ActorKindRequester,
		ID:          "user-" + uuid.NewString(),
		DisplayName: displayName,
	}
	return s.tokens.GenerateToken(actor)
}

// IssueStaffToken mints a staff token after verifying the access key.
func (s *Service) IssueStaffToken(displayName, accessKey string) (string, time.Time, error) {
	if s.staffKeyHash == "" {
		return "", time.Time{}, util.NewUnauthorized("staff access not configured")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.staffKeyHash), []byte(accessKey)); err != nil {
		return "", time.Time{}, util.NewUnauthorized("invalid staff access key")
	}
	actor := domain.Actor{
		Kind:        domain.ActorKindStaff,
		ID:          "staff-" + uuid.NewString(),
		DisplayName: displayName,
	}
	return s.tokens.GenerateToken(actor)
}
