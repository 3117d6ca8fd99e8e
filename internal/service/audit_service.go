package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-rooms/internal/events"
	"github.com/spec-kit/ticket-rooms/internal/platform"
)

// AuditService turns lifecycle events into human-readable lines in the
// durable log channel. One line per transition; the controller publishes
// each transition exactly once.
type AuditService struct {
	dispatcher   events.Dispatcher
	messages     platform.MessageStore
	logChannelID string
	logger       *zap.Logger
}

// NewAuditService creates the service.
func NewAuditService(dispatcher events.Dispatcher, messages platform.MessageStore, logChannelID string, logger *zap.Logger) *AuditService {
	return &AuditService{
		dispatcher:   dispatcher,
		messages:     messages,
		logChannelID: logChannelID,
		logger:       logger,
	}
}

// RegisterHandlers subscribes to lifecycle events.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Subscribe(events.EventTicketCreated, a.handleTicketCreated)
	a.dispatcher.Subscribe(events.EventTicketClosed, a.handleTicketClosed)
	a.dispatcher.Subscribe(events.EventTicketDeleted, a.handleTicketDeleted)
}

func (a *AuditService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return nil
	}
	line := fmt.Sprintf("Ticket %s created by %s: #%s", event.TicketID, actorName(event), payload.ChannelName)
	return a.post(ctx, event, line)
}

func (a *AuditService) handleTicketClosed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketClosedPayload)
	if !ok {
		return nil
	}
	line := fmt.Sprintf("Ticket %s closed by %s: #%s", event.TicketID, actorName(event), payload.ChannelName)
	return a.post(ctx, event, line)
}

func (a *AuditService) handleTicketDeleted(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketDeletedPayload)
	if !ok {
		return nil
	}
	line := fmt.Sprintf("Ticket %s (%s) deleted by %s; transcript archived with %d messages",
		event.TicketID, payload.ChannelName, actorName(event), payload.TranscriptLines)
	return a.post(ctx, event, line)
}

func (a *AuditService) post(ctx context.Context, event events.Event, line string) error {
	if _, err := a.messages.PostMessage(ctx, a.logChannelID, line); err != nil {
		a.logger.Error("audit line post failed",
			zap.String("ticket_id", event.TicketID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
		return err
	}
	return nil
}

func actorName(event events.Event) string {
	if event.Actor.DisplayName != "" {
		return event.Actor.DisplayName
	}
	return event.Actor.ID
}
