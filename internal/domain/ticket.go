package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen    TicketStatus = "OPEN"
	TicketStatusClosed  TicketStatus = "CLOSED"
	TicketStatusDeleted TicketStatus = "DELETED"
)

// Ticket is the aggregate for support requests. Each ticket exclusively owns
// the chat channel backing it; ChannelID is invalidated when the ticket is
// deleted.
type Ticket struct {
	ID            string
	Label         string
	IssueText     string
	RequesterID   string
	RequesterName string
	ChannelID     string
	ChannelName   string
	Status        TicketStatus
	CreatedAt     time.Time
	ClosedAt      *time.Time
	DeletedAt     *time.Time
}

var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusOpen:    {TicketStatusClosed, TicketStatusDeleted},
	TicketStatusClosed:  {TicketStatusDeleted},
	TicketStatusDeleted: {},
}

// CanTransition reports whether a ticket may move from current to next.
func CanTransition(current, next TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}
