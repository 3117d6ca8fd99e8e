package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-rooms/internal/access"
	"github.com/spec-kit/ticket-rooms/internal/allocator"
	"github.com/spec-kit/ticket-rooms/internal/config"
	"github.com/spec-kit/ticket-rooms/internal/domain"
	"github.com/spec-kit/ticket-rooms/internal/events"
	"github.com/spec-kit/ticket-rooms/internal/observability"
	"github.com/spec-kit/ticket-rooms/internal/platform"
	"github.com/spec-kit/ticket-rooms/internal/repository"
	"github.com/spec-kit/ticket-rooms/internal/transcript"
	"github.com/spec-kit/ticket-rooms/pkg/util"
)

// LifecycleService owns the per-ticket state machine and orchestrates
// allocation, access provisioning, transcript capture, and audit emission.
// Operations on a single ticket are serialized by a keyed mutex, so a close
// and a delete racing on the same ticket resolve deterministically: the
// loser observes InvalidTransition.
type LifecycleService struct {
	tickets     repository.TicketRepository
	channels    platform.ChannelStore
	messages    platform.MessageStore
	provisioner *access.Provisioner
	allocator   *allocator.Allocator
	recorder    *transcript.Recorder
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	metrics     *observability.Metrics
	cfg         config.TicketingConfig

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	// createMu serializes the sibling-name scan with channel creation so
	// near-simultaneous creates with the same label resolve distinct names.
	createMu sync.Mutex
}

// LifecycleDependencies bundles collaborators for the lifecycle service.
type LifecycleDependencies struct {
	TicketRepo  repository.TicketRepository
	Channels    platform.ChannelStore
	Messages    platform.MessageStore
	Provisioner *access.Provisioner
	Allocator   *allocator.Allocator
	Recorder    *transcript.Recorder
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Metrics     *observability.Metrics
}

// CreateTicketInput describes a validated intake request.
type CreateTicketInput struct {
	Label     string
	IssueText string
}

// NewLifecycleService constructs the service.
func NewLifecycleService(cfg config.TicketingConfig, deps LifecycleDependencies) *LifecycleService {
	return &LifecycleService{
		tickets:     deps.TicketRepo,
		channels:    deps.Channels,
		messages:    deps.Messages,
		provisioner: deps.Provisioner,
		allocator:   deps.Allocator,
		recorder:    deps.Recorder,
		dispatcher:  deps.Dispatcher,
		logger:      deps.Logger,
		metrics:     deps.Metrics,
		cfg:         cfg,
		locks:       make(map[string]*sync.Mutex),
	}
}

func (s *LifecycleService) ticketLock(ticketID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[ticketID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[ticketID] = lock
	}
	return lock
}

// Open creates a ticket: allocates the id, provisions the channel and its
// permission set, posts the summary, and emits the created audit event.
func (s *LifecycleService) Open(ctx context.Context, actor domain.Actor, input CreateTicketInput) (*domain.Ticket, error) {
	label := strings.TrimSpace(input.Label)
	if label == "" {
		return nil, util.NewValidationError("label required", nil)
	}
	if strings.TrimSpace(input.IssueText) == "" {
		return nil, util.NewValidationError("issue text required", nil)
	}

	exists, err := s.channels.CategoryExists(ctx, s.cfg.CategoryID)
	if err != nil {
		return nil, util.NewInternalError(err)
	}
	if !exists {
		s.metrics.RecordLifecycle("create", "category_not_found")
		return nil, util.NewCategoryNotFound(s.cfg.CategoryID)
	}

	// The id must be secured before any channel resource exists; if the
	// counter store is down we abort with no partial channel left behind.
	id, err := s.allocator.Next(ctx)
	if err != nil {
		s.metrics.RecordLifecycle("create", "storage_unavailable")
		return nil, err
	}

	s.createMu.Lock()
	siblings, err := s.channels.ListChannelNames(ctx, s.cfg.CategoryID)
	if err != nil {
		s.createMu.Unlock()
		return nil, util.NewInternalError(err)
	}
	name := s.allocator.ChannelName(id, label, siblings)

	ref, err := s.channels.CreateChannel(ctx, s.cfg.CategoryID, name)
	s.createMu.Unlock()
	if err != nil {
		return nil, util.NewInternalError(err)
	}

	grant, err := s.provisioner.Grant(ctx, ref.ID, actor.ID)
	if err != nil {
		// Never leave a channel behind with an undefined permission state.
		s.rollbackChannel(ctx, ref.ID)
		return nil, util.NewInternalError(err)
	}
	if grant.StaffRoleMissing {
		s.logger.Warn("ticket created without staff role grant",
			zap.String("ticket_id", id),
			zap.String("role", s.cfg.StaffRoleName))
	}

	ticket := &domain.Ticket{
		ID:            id,
		Label:         label,
		IssueText:     strings.TrimSpace(input.IssueText),
		RequesterID:   actor.ID,
		RequesterName: actor.DisplayName,
		ChannelID:     ref.ID,
		ChannelName:   ref.Name,
		Status:        domain.TicketStatusOpen,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		s.rollbackChannel(ctx, ref.ID)
		return nil, util.NewInternalError(err)
	}

	summary := fmt.Sprintf("Ticket %s for %s\nIssue: %s\nOpened by %s.\n%s please upload any required proof or screenshots here.",
		ticket.ID, ticket.Label, ticket.IssueText, ticket.RequesterName, ticket.RequesterName)
	if _, err := s.messages.PostMessage(ctx, ref.ID, summary); err != nil {
		// The channel and grants are in place; a failed summary post does
		// not invalidate the ticket. The caller may repeat the post.
		s.logger.Warn("ticket summary post failed", zap.String("ticket_id", id), zap.Error(err))
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload: events.TicketCreatedPayload{
			Label:       ticket.Label,
			ChannelID:   ticket.ChannelID,
			ChannelName: ticket.ChannelName,
		},
	})
	s.metrics.RecordLifecycle("create", "ok")
	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("channel", ticket.ChannelName),
		zap.String("requester", actor.ID))
	return ticket, nil
}

// Close locks a ticket: renames the channel with the closed- prefix, revokes
// the requester's write access, posts a notice, and emits the closed audit
// event. Valid only from Open; repeated calls report InvalidTransition and
// repeat no side effects.
func (s *LifecycleService) Close(ctx context.Context, ticketID string, actor domain.Actor) (*domain.Ticket, error) {
	lock := s.ticketLock(ticketID)
	lock.Lock()
	defer lock.Unlock()

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, util.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, util.NewInternalError(err)
	}
	if !domain.CanTransition(ticket.Status, domain.TicketStatusClosed) {
		s.metrics.RecordLifecycle("close", "invalid_transition")
		return nil, util.NewInvalidTransition(ticketID, string(ticket.Status), string(domain.TicketStatusClosed))
	}

	closedName := "closed-" + ticket.ChannelName
	if err := s.channels.RenameChannel(ctx, ticket.ChannelID, closedName); err != nil {
		return nil, util.NewInternalError(err)
	}
	if err := s.provisioner.RevokeWrite(ctx, ticket.ChannelID, ticket.RequesterID); err != nil {
		return nil, util.NewInternalError(err)
	}

	now := time.Now().UTC()
	ticket.Status = domain.TicketStatusClosed
	ticket.ChannelName = closedName
	ticket.ClosedAt = &now
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, util.NewInternalError(err)
	}

	if _, err := s.messages.PostMessage(ctx, ticket.ChannelID, "Ticket closed. Staff can delete it when the conversation is resolved."); err != nil {
		s.logger.Warn("close notice post failed", zap.String("ticket_id", ticketID), zap.Error(err))
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketClosed,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload: events.TicketClosedPayload{
			ChannelID:   ticket.ChannelID,
			ChannelName: ticket.ChannelName,
		},
	})
	s.metrics.RecordLifecycle("close", "ok")
	s.logger.Info("ticket closed", zap.String("ticket_id", ticket.ID), zap.String("actor", actor.ID))
	return ticket, nil
}

// Delete archives and destroys a ticket. The order is fixed: capture the
// transcript, deliver it to the archive channel, emit the deleted audit
// event, then destroy the channel. If capture or delivery fails the whole
// deletion aborts and the channel stays intact; a transcript is never lost
// silently.
func (s *LifecycleService) Delete(ctx context.Context, ticketID string, actor domain.Actor) error {
	lock := s.ticketLock(ticketID)
	lock.Lock()
	defer lock.Unlock()

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if err == repository.ErrNotFound {
			return util.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return util.NewInternalError(err)
	}
	if !domain.CanTransition(ticket.Status, domain.TicketStatusDeleted) {
		s.metrics.RecordLifecycle("delete", "invalid_transition")
		return util.NewInvalidTransition(ticketID, string(ticket.Status), string(domain.TicketStatusDeleted))
	}

	session := s.recorder.Capture(ticket.ChannelID)
	caption := fmt.Sprintf("Transcript for ticket %s (%s)", ticket.ID, ticket.ChannelName)
	lines, err := s.recorder.Deliver(ctx, session, s.cfg.LogChannelID, ticket.ChannelName, caption)
	if err != nil {
		s.metrics.RecordLifecycle("delete", "archival_failure")
		return util.NewArchivalFailure(ticketID, err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketDeleted,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload: events.TicketDeletedPayload{
			ChannelName:     ticket.ChannelName,
			TranscriptLines: lines,
		},
	})

	channelID := ticket.ChannelID
	now := time.Now().UTC()
	ticket.Status = domain.TicketStatusDeleted
	ticket.DeletedAt = &now
	ticket.ChannelID = ""
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return util.NewInternalError(err)
	}

	if err := s.channels.DeleteChannel(ctx, channelID); err != nil {
		// The transcript is archived and the ticket is terminal; the
		// orphaned channel needs operator attention.
		s.logger.Error("channel destruction failed after archival",
			zap.String("ticket_id", ticket.ID),
			zap.String("channel_id", channelID),
			zap.Error(err))
		return util.NewInternalError(err)
	}
	s.provisioner.Release(channelID)

	s.metrics.RecordLifecycle("delete", "ok")
	s.logger.Info("ticket deleted",
		zap.String("ticket_id", ticket.ID),
		zap.String("actor", actor.ID),
		zap.Int("transcript_lines", lines))
	return nil
}

// Get returns a ticket by id.
func (s *LifecycleService) Get(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if err == repository.ErrNotFound {
			return nil, util.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, util.NewInternalError(err)
	}
	return ticket, nil
}

// PostSetupAnnouncement posts the intake announcement into the configured
// intake channel.
func (s *LifecycleService) PostSetupAnnouncement(ctx context.Context) error {
	text := "Need help? Open a support ticket and our team will set up a private channel for you."
	if _, err := s.messages.PostMessage(ctx, s.cfg.IntakeChannelID, text); err != nil {
		return util.NewInternalError(err)
	}
	return nil
}

func (s *LifecycleService) rollbackChannel(ctx context.Context, channelID string) {
	if err := s.channels.DeleteChannel(ctx, channelID); err != nil {
		s.logger.Warn("rollback channel delete failed", zap.String("channel_id", channelID), zap.Error(err))
	}
	s.provisioner.Release(channelID)
}

func (s *LifecycleService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
