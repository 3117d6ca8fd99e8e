package dto

import "time"

// CreateTicketRequest is the intake payload.
type CreateTicketRequest struct {
	Label     string `json:"label"`
	IssueText string `json:"issue_text"`
}

// TicketResponse describes a ticket to API consumers.
type TicketResponse struct {
	ID          string     `json:"id"`
	Label       string     `json:"label"`
	ChannelID   string     `json:"channel_id,omitempty"`
	ChannelName string     `json:"channel_name"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// RequesterTokenRequest asks for a requester identity token.
type RequesterTokenRequest struct {
	DisplayName string `json:"display_name"`
}

// StaffTokenRequest asks for a staff token.
type StaffTokenRequest struct {
	DisplayName string `json:"display_name"`
	AccessKey   string `json:"access_key"`
}

// TokenResponse carries an issued token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
