package events

import (
	"time"

	"github.com/spec-kit/ticket-rooms/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated EventType = "ticket_created"
	EventTicketClosed  EventType = "ticket_closed"
	EventTicketDeleted EventType = "ticket_deleted"
)

// Event represents a lifecycle transition emitted by the controller. Every
// event names the actor that drove the transition.
type Event struct {
	ID        string       `json:"id"`
	Type      EventType    `json:"type"`
	TicketID  string       `json:"ticket_id"`
	Actor     domain.Actor `json:"actor"`
	Timestamp time.Time    `json:"timestamp"`
	Payload   interface{}  `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Label       string `json:"label"`
	ChannelID   string `json:"channel_id"`
	ChannelName string `json:"channel_name"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	ChannelID   string `json:"channel_id"`
	ChannelName string `json:"channel_name"`
}

// TicketDeletedPayload payload.
type TicketDeletedPayload struct {
	ChannelName     string `json:"channel_name"`
	TranscriptLines int    `json:"transcript_lines"`
}
