package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-rooms/internal/config"
	"github.com/spec-kit/ticket-rooms/internal/platform"
	"github.com/spec-kit/ticket-rooms/internal/platform/memory"
)

func testTicketingConfig() config.TicketingConfig {
	return config.TicketingConfig{
		StaffRoleName: "Staff",
		Visibility:    config.VisibilityViewChannel,
	}
}

func setup(t *testing.T, withStaffRole bool) (*memory.Provider, *Provisioner, platform.ChannelRef) {
	t.Helper()
	provider := memory.New()
	provider.AddCategory("tickets")
	if withStaffRole {
		provider.AddRole("Staff")
	}
	ch, err := provider.CreateChannel(context.Background(), "tickets", "alpha-team")
	require.NoError(t, err)
	prov := NewProvisioner(provider, testTicketingConfig(), zap.NewNop())
	return provider, prov, ch
}

func TestGrant_InitialPermissionState(t *testing.T) {
	provider, prov, ch := setup(t, true)
	ctx := context.Background()

	result, err := prov.Grant(ctx, ch.ID, "user-1")
	require.NoError(t, err)
	require.False(t, result.StaffRoleMissing)

	everyone, ok := provider.OverwriteFor(ch.ID, platform.Everyone)
	require.True(t, ok)
	require.NotNil(t, everyone.View)
	require.False(t, *everyone.View)

	staff := platform.Principal{Kind: platform.PrincipalRole, ID: "role-Staff"}
	staffOv, ok := provider.OverwriteFor(ch.ID, staff)
	require.True(t, ok)
	require.True(t, *staffOv.View)
	require.True(t, *staffOv.Send)

	requester := platform.Principal{Kind: platform.PrincipalMember, ID: "user-1"}
	reqOv, ok := provider.OverwriteFor(ch.ID, requester)
	require.True(t, ok)
	require.True(t, *reqOv.View)
	require.True(t, *reqOv.Send)
}

func TestGrant_StaffRoleMissingIsNonFatal(t *testing.T) {
	provider, prov, ch := setup(t, false)
	ctx := context.Background()

	result, err := prov.Grant(ctx, ch.ID, "user-1")
	require.NoError(t, err)
	require.True(t, result.StaffRoleMissing)

	requester := platform.Principal{Kind: platform.PrincipalMember, ID: "user-1"}
	reqOv, ok := provider.OverwriteFor(ch.ID, requester)
	require.True(t, ok)
	require.True(t, *reqOv.Send)

	everyone, ok := provider.OverwriteFor(ch.ID, platform.Everyone)
	require.True(t, ok)
	require.False(t, *everyone.View)
}

func TestRevokeWrite_RequesterLosesSendKeepsView(t *testing.T) {
	provider, prov, ch := setup(t, true)
	ctx := context.Background()

	_, err := prov.Grant(ctx, ch.ID, "user-1")
	require.NoError(t, err)
	require.NoError(t, prov.RevokeWrite(ctx, ch.ID, "user-1"))

	requester := platform.Principal{Kind: platform.PrincipalMember, ID: "user-1"}
	reqOv, ok := provider.OverwriteFor(ch.ID, requester)
	require.True(t, ok)
	require.True(t, *reqOv.View, "requester keeps read access after close")
	require.False(t, *reqOv.Send, "requester loses write access after close")

	staff := platform.Principal{Kind: platform.PrincipalRole, ID: "role-Staff"}
	staffOv, ok := provider.OverwriteFor(ch.ID, staff)
	require.True(t, ok)
	require.True(t, *staffOv.Send, "staff keeps write access after close")

	everyone, ok := provider.OverwriteFor(ch.ID, platform.Everyone)
	require.True(t, ok)
	require.False(t, *everyone.View)
	require.False(t, *everyone.Send)
}
