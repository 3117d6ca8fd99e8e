package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-rooms/internal/access"
	"github.com/spec-kit/ticket-rooms/internal/allocator"
	"github.com/spec-kit/ticket-rooms/internal/config"
	"github.com/spec-kit/ticket-rooms/internal/domain"
	"github.com/spec-kit/ticket-rooms/internal/events"
	"github.com/spec-kit/ticket-rooms/internal/observability"
	"github.com/spec-kit/ticket-rooms/internal/platform"
	"github.com/spec-kit/ticket-rooms/internal/platform/memory"
	"github.com/spec-kit/ticket-rooms/internal/repository"
	"github.com/spec-kit/ticket-rooms/internal/transcript"
	"github.com/spec-kit/ticket-rooms/pkg/util"
)

type memCounter struct {
	mu    sync.Mutex
	value int64
}

func (c *memCounter) Incr(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value++
	return c.value, nil
}

type failingCounter struct{}

func (failingCounter) Incr(ctx context.Context, key string) (int64, error) {
	return 0, errors.New("counter store down")
}

type testEnv struct {
	provider *memory.Provider
	svc      *LifecycleService
	metrics  *observability.Metrics
	cfg      config.TicketingConfig
}

type envOption func(*config.TicketingConfig)

func withNaming(policy config.NamingPolicy) envOption {
	return func(cfg *config.TicketingConfig) { cfg.Naming = policy }
}

func withLogChannel(id string) envOption {
	return func(cfg *config.TicketingConfig) { cfg.LogChannelID = id }
}

func newTestEnv(t *testing.T, counter allocator.CounterStore, withCategory, withStaffRole bool, opts ...envOption) *testEnv {
	t.Helper()

	cfg := config.TicketingConfig{
		CategoryID:      "tickets",
		LogChannelID:    "logs",
		IntakeChannelID: "intake",
		StaffRoleName:   "Staff",
		Naming:          config.NamingLabel,
		Visibility:      config.VisibilityViewChannel,
		IDWidth:         4,
		CounterKey:      "ticket:sequence",
		HistoryPageSize: 100,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	provider := memory.New()
	if withCategory {
		provider.AddCategory(cfg.CategoryID)
	}
	if withStaffRole {
		provider.AddRole(cfg.StaffRoleName)
	}
	provider.AddChannel("logs", "ticket-logs")
	provider.AddChannel("intake", "open-a-ticket")

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	audit := NewAuditService(dispatcher, provider, cfg.LogChannelID, logger)
	audit.RegisterHandlers()

	svc := NewLifecycleService(cfg, LifecycleDependencies{
		TicketRepo:  repository.NewMemoryTicketRepository(),
		Channels:    provider,
		Messages:    provider,
		Provisioner: access.NewProvisioner(provider, cfg, logger),
		Allocator:   allocator.New(counter, cfg),
		Recorder:    transcript.NewRecorder(provider, cfg.HistoryPageSize),
		Dispatcher:  dispatcher,
		Logger:      logger,
		Metrics:     metrics,
	})
	return &testEnv{provider: provider, svc: svc, metrics: metrics, cfg: cfg}
}

func requester(id, name string) domain.Actor {
	return domain.Actor{Kind: domain.ActorKindRequester, ID: id, DisplayName: name}
}

func staff(id, name string) domain.Actor {
	return domain.Actor{Kind: domain.ActorKindStaff, ID: id, DisplayName: name}
}

func auditLines(env *testEnv) []string {
	msgs := env.provider.Messages("logs")
	lines := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		lines = append(lines, msg.Text)
	}
	return lines
}

func TestOpen_AlphaTeamScenario(t *testing.T) {
	env := newTestEnv(t, &memCounter{}, true, true)
	ctx := context.Background()

	ticket, err := env.svc.Open(ctx, requester("user-1", "Alice"), CreateTicketInput{
		Label:     "Alpha Team",
		IssueText: "Login broken",
	})
	require.NoError(t, err)
	require.Equal(t, "0001", ticket.ID)
	require.Equal(t, "alpha-team", ticket.ChannelName)
	require.Equal(t, domain.TicketStatusOpen, ticket.Status)

	name, exists := env.provider.ChannelByID(ticket.ChannelID)
	require.True(t, exists)
	require.Equal(t, "alpha-team", name)

	everyone, ok := env.provider.OverwriteFor(ticket.ChannelID, platform.Everyone)
	require.True(t, ok)
	require.False(t, *everyone.View, "public principal must be denied")

	req := platform.Principal{Kind: platform.PrincipalMember, ID: "user-1"}
	reqOv, ok := env.provider.OverwriteFor(ticket.ChannelID, req)
	require.True(t, ok)
	require.True(t, *reqOv.View)
	require.True(t, *reqOv.Send)

	staffPrincipal := platform.Principal{Kind: platform.PrincipalRole, ID: "role-Staff"}
	staffOv, ok := env.provider.OverwriteFor(ticket.ChannelID, staffPrincipal)
	require.True(t, ok)
	require.True(t, *staffOv.Send)

	msgs := env.provider.Messages(ticket.ChannelID)
	require.Len(t, msgs, 1)
	require.Contains(t, msgs[0].Text, "Alpha Team")
	require.Contains(t, msgs[0].Text, "Login broken")
	require.Contains(t, msgs[0].Text, "Alice")

	lines := auditLines(env)
	require.Len(t, lines, 1)
	require.Contains(t, lines[0], "Ticket 0001 created by Alice")
}

func TestOpen_SequentialNamingPolicy(t *testing.T) {
	env := newTestEnv(t, &memCounter{}, true, true, withNaming(config.NamingSequential))
	ctx := context.Background()

	ticket, err := env.svc.Open(ctx, requester("user-1", "Alice"), CreateTicketInput{
		Label:     "Alpha Team",
		IssueText: "Login broken",
	})
	require.NoError(t, err)
	require.Equal(t, "0001", ticket.ChannelName)
}

func TestOpen_DuplicateLabelsGetSuffixes(t *testing.T) {
	env := newTestEnv(t, &memCounter{}, true, true)
	ctx := context.Background()

	first, err := env.svc.Open(ctx, requester("user-1", "Alice"), CreateTicketInput{Label: "Alpha Team", IssueText: "a"})
	require.NoError(t, err)
	second, err := env.svc.Open(ctx, requester("user-2", "Bob"), CreateTicketInput{Label: "Alpha Team", IssueText: "b"})
	require.NoError(t, err)

	require.Equal(t, "alpha-team", first.ChannelName)
	require.Equal(t, "alpha-team-2", second.ChannelName)
	require.NotEqual(t, first.ID, second.ID)
}

func TestOpen_ConcurrentCreatesGetDistinctIDs(t *testing.T) {
	env := newTestEnv(t, &memCounter{}, true, true, withNaming(config.NamingSequential))
	ctx := context.Background()

	const workers = 20
	ids := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ticket, err := env.svc.Open(ctx, requester("user-1", "Alice"), CreateTicketInput{
				Label:     "Alpha Team",
				IssueText: "concurrent",
			})
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = ticket.ID
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	seen := make(map[string]bool, workers)
	for _, id := range ids {
		require.False(t, seen[id], "duplicate ticket id %s", id)
		seen[id] = true
	}
}

func TestOpen_ConcurrentDuplicateLabelsResolveDistinctNames(t *testing.T) {
	env := newTestEnv(t, &memCounter{}, true, true)
	ctx := context.Background()

	const workers = 8
	names := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ticket, err := env.svc.Open(ctx, requester("user-1", "Alice"), CreateTicketInput{
				Label:     "Alpha Team",
				IssueText: "race",
			})
			if err != nil {
				errs[i] = err
				return
			}
			names[i] = ticket.ChannelName
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	seen := make(map[string]bool, workers)
	for _, name := range names {
		require.False(t, seen[name], "duplicate channel name %s", name)
		seen[name] = true
	}
}

func TestOpen_CategoryMissing(t *testing.T) {
	env := newTestEnv(t, &memCounter{}, false, true)

	_, err := env.svc.Open(context.Background(), requester("user-1", "Alice"), CreateTicketInput{
		Label:     "Alpha Team",
		IssueText: "Login broken",
	})
	require.Error(t, err)
	require.True(t, util.HasCode(err, "CATEGORY_NOT_FOUND"))
}

func TestOpen_CounterDownLeavesNoChannel(t *testing.T) {
	env := newTestEnv(t, failingCounter{}, true, true)
	ctx := context.Background()

	_, err := env.svc.Open(ctx, requester("user-1", "Alice"), CreateTicketInput{
		Label:     "Alpha Team",
		IssueText: "Login broken",
	})
	require.Error(t, err)
	require.True(t, util.HasCode(err, "STORAGE_UNAVAILABLE"))

	names, err := env.provider.ListChannelNames(ctx, env.cfg.CategoryID)
	require.NoError(t, err)
	require.Empty(t, names, "no partial channel may be left behind")
}

func TestOpen_StaffRoleMissingStillCreates(t *testing.T) {
	env := newTestEnv(t, &memCounter{}, true, false)

	ticket, err := env.svc.Open(context.Background(), requester("user-1", "Alice"), CreateTicketInput{
		Label:     "Alpha Team",
		IssueText: "Login broken",
	})
	require.NoError(t, err)

	req := platform.Principal{Kind: platform.PrincipalMember, ID: "user-1"}
	reqOv, ok := env.provider.OverwriteFor(ticket.ChannelID, req)
	require.True(t, ok)
	require.True(t, *reqOv.Send)
}

func TestClose_RevokesRequesterWriteAndRenames(t *testing.T) {
	env := newTestEnv(t, &memCounter{}, true, true)
	ctx := context.Background()

	ticket, err := env.svc.Open(ctx, requester("user-1", "Alice"), CreateTicketInput{Label: "Alpha Team", IssueText: "x"})
	require.NoError(t, err)

	closed, err := env.svc.Close(ctx, ticket.ID, staff("staff-1", "Bob"))
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusClosed, closed.Status)
	require.Equal(t, "closed-alpha-team", closed.ChannelName)

	name, exists := env.provider.ChannelByID(ticket.ChannelID)
	require.True(t, exists)
	require.Equal(t, "closed-alpha-team", name)

	req := platform.Principal{Kind: platform.PrincipalMember, ID: "user-1"}
	reqOv, ok := env.provider.OverwriteFor(ticket.ChannelID, req)
	require.True(t, ok)
	require.True(t, *reqOv.View)
	require.False(t, *reqOv.Send)

	staffPrincipal := platform.Principal{Kind: platform.PrincipalRole, ID: "role-Staff"}
	staffOv, ok := env.provider.OverwriteFor(ticket.ChannelID, staffPrincipal)
	require.True(t, ok)
	require.True(t, *staffOv.Send)
}

func TestClose_SecondCallIsInvalidAndEmitsNoAudit(t *testing.T) {
	env := newTestEnv(t, &memCounter{}, true, true)
	ctx := context.Background()

	ticket, err := env.svc.Open(ctx, requester("user-1", "Alice"), CreateTicketInput{Label: "Alpha Team", IssueText: "x"})
	require.NoError(t, err)

	_, err = env.svc.Close(ctx, ticket.ID, staff("staff-1", "Bob"))
	require.NoError(t, err)

	_, err = env.svc.Close(ctx, ticket.ID, staff("staff-1", "Bob"))
	require.Error(t, err)
	require.True(t, util.HasCode(err, "INVALID_TRANSITION"))

	closedLines := 0
	for _, line := range auditLines(env) {
		if strings.Contains(line, "closed by") {
			closedLines++
		}
	}
	require.Equal(t, 1, closedLines, "exactly one closed audit event")
	require.Equal(t, int64(1), env.metrics.LifecycleCount("close", "ok"))
	require.Equal(t, int64(1), env.metrics.LifecycleCount("close", "invalid_transition"))
}

func TestDelete_ArchivesTranscriptThenDestroysChannel(t *testing.T) {
	env := newTestEnv(t, &memCounter{}, true, true)
	ctx := context.Background()

	ticket, err := env.svc.Open(ctx, requester("user-1", "Alice"), CreateTicketInput{Label: "Alpha Team", IssueText: "x"})
	require.NoError(t, err)

	_, err = env.provider.PostUserMessage(ticket.ChannelID, "user-1", "Alice", "first")
	require.NoError(t, err)
	_, err = env.provider.PostUserMessage(ticket.ChannelID, "staff-1", "Bob", "second")
	require.NoError(t, err)
	_, err = env.provider.PostUserMessage(ticket.ChannelID, "user-1", "Alice", "third")
	require.NoError(t, err)

	require.NoError(t, env.svc.Delete(ctx, ticket.ID, staff("staff-1", "Bob")))

	_, exists := env.provider.ChannelByID(ticket.ChannelID)
	require.False(t, exists, "channel resource destroyed")

	attachments := env.provider.Attachments("logs")
	require.Len(t, attachments, 1)
	require.Equal(t, "transcript-alpha-team.txt", attachments[0].Filename)
	lines := strings.Split(strings.TrimRight(string(attachments[0].Data), "\n"), "\n")
	require.Len(t, lines, 3, "summary post by the engine is excluded")
	require.Contains(t, lines[0], "Alice: first")
	require.Contains(t, lines[1], "Bob: second")
	require.Contains(t, lines[2], "Alice: third")

	stored, err := env.svc.Get(ctx, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusDeleted, stored.Status)
	require.Empty(t, stored.ChannelID, "channel ref invalidated")

	found := false
	for _, line := range auditLines(env) {
		if strings.Contains(line, "deleted by Bob") {
			found = true
		}
	}
	require.True(t, found, "deleted audit event names the actor")
}

func TestDelete_ValidFromClosed(t *testing.T) {
	env := newTestEnv(t, &memCounter{}, true, true)
	ctx := context.Background()

	ticket, err := env.svc.Open(ctx, requester("user-1", "Alice"), CreateTicketInput{Label: "Alpha Team", IssueText: "x"})
	require.NoError(t, err)
	_, err = env.svc.Close(ctx, ticket.ID, staff("staff-1", "Bob"))
	require.NoError(t, err)

	require.NoError(t, env.svc.Delete(ctx, ticket.ID, staff("staff-1", "Bob")))

	attachments := env.provider.Attachments("logs")
	require.Len(t, attachments, 1)
	require.Equal(t, "transcript-closed-alpha-team.txt", attachments[0].Filename)
}

func TestDelete_ArchivalFailureKeepsChannel(t *testing.T) {
	// Point the archive at a nonexistent channel so delivery fails.
	env := newTestEnv(t, &memCounter{}, true, true, withLogChannel("missing"))
	ctx := context.Background()

	ticket, err := env.svc.Open(ctx, requester("user-1", "Alice"), CreateTicketInput{Label: "Alpha Team", IssueText: "x"})
	require.NoError(t, err)

	err = env.svc.Delete(ctx, ticket.ID, staff("staff-1", "Bob"))
	require.Error(t, err)
	require.True(t, util.HasCode(err, "ARCHIVAL_FAILURE"))

	_, exists := env.provider.ChannelByID(ticket.ChannelID)
	require.True(t, exists, "channel must survive a failed archival")

	stored, err := env.svc.Get(ctx, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TicketStatusOpen, stored.Status, "status unchanged after aborted deletion")
}

func TestClose_AfterDeleteReportsInvalidTransition(t *testing.T) {
	env := newTestEnv(t, &memCounter{}, true, true)
	ctx := context.Background()

	ticket, err := env.svc.Open(ctx, requester("user-1", "Alice"), CreateTicketInput{Label: "Alpha Team", IssueText: "x"})
	require.NoError(t, err)
	require.NoError(t, env.svc.Delete(ctx, ticket.ID, staff("staff-1", "Bob")))

	before := len(auditLines(env))
	_, err = env.svc.Close(ctx, ticket.ID, staff("staff-1", "Bob"))
	require.Error(t, err)
	require.True(t, util.HasCode(err, "INVALID_TRANSITION"))
	require.Len(t, auditLines(env), before, "no audit event for a rejected transition")
}

func TestOpen_ValidationErrors(t *testing.T) {
	env := newTestEnv(t, &memCounter{}, true, true)
	ctx := context.Background()

	_, err := env.svc.Open(ctx, requester("user-1", "Alice"), CreateTicketInput{Label: "   ", IssueText: "x"})
	require.True(t, util.HasCode(err, "VALIDATION_FAILED"))

	_, err = env.svc.Open(ctx, requester("user-1", "Alice"), CreateTicketInput{Label: "Alpha", IssueText: ""})
	require.True(t, util.HasCode(err, "VALIDATION_FAILED"))
}

func TestPostSetupAnnouncement(t *testing.T) {
	env := newTestEnv(t, &memCounter{}, true, true)

	require.NoError(t, env.svc.PostSetupAnnouncement(context.Background()))
	msgs := env.provider.Messages("intake")
	require.Len(t, msgs, 1)
	require.Contains(t, msgs[0].Text, "support ticket")
}
