// Package access computes and applies the permission state of ticket
// channels. Grants for a given channel are applied under a per-channel lock
// so a grant and a revoke can never interleave into a partially applied,
// observable state.
package access

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-rooms/internal/config"
	"github.com/spec-kit/ticket-rooms/internal/platform"
)

// Provisioner applies permission overwrites through the platform port.
type Provisioner struct {
	permissions   platform.PermissionStore
	staffRoleName string
	visibility    config.VisibilityFlag
	logger        *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// GrantResult reports non-fatal outcomes of a grant.
type GrantResult struct {
	// StaffRoleMissing is true when the staff role could not be resolved.
	// The requester and public grants are still applied; ticket creation
	// must not be blocked by a missing staff role.
	StaffRoleMissing bool
}

// NewProvisioner constructs the provisioner.
func NewProvisioner(permissions platform.PermissionStore, cfg config.TicketingConfig, logger *zap.Logger) *Provisioner {
	return &Provisioner{
		permissions:   permissions,
		staffRoleName: cfg.StaffRoleName,
		visibility:    cfg.Visibility,
		logger:        logger,
		locks:         make(map[string]*sync.Mutex),
	}
}

func boolPtr(v bool) *bool { return &v }

// denyVisibility hides a channel from a principal. Overwrite.View carries
// read-access semantics; the configured visibility flag only changes which
// wire flag the platform adapter maps it to.
func (p *Provisioner) denyVisibility() platform.Overwrite {
	return platform.Overwrite{View: boolPtr(false)}
}

func (p *Provisioner) channelLock(channelID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.locks[channelID]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[channelID] = lock
	}
	return lock
}

// Grant applies the initial permission set for a freshly created ticket
// channel: public denied, staff role view+send, requester view+send.
func (p *Provisioner) Grant(ctx context.Context, channelID, requesterID string) (GrantResult, error) {
	lock := p.channelLock(channelID)
	lock.Lock()
	defer lock.Unlock()

	result := GrantResult{}

	if err := p.permissions.SetOverwrite(ctx, channelID, platform.Everyone, p.denyVisibility()); err != nil {
		return result, err
	}

	staff, ok, err := p.permissions.StaffRole(ctx, p.staffRoleName)
	if err != nil {
		return result, err
	}
	if ok {
		grant := platform.Overwrite{View: boolPtr(true), Send: boolPtr(true)}
		if err := p.permissions.SetOverwrite(ctx, channelID, staff, grant); err != nil {
			return result, err
		}
	} else {
		result.StaffRoleMissing = true
		p.logger.Warn("staff role missing; granting requester only",
			zap.String("role", p.staffRoleName),
			zap.String("channel_id", channelID))
	}

	requester := platform.Principal{Kind: platform.PrincipalMember, ID: requesterID}
	grant := platform.Overwrite{View: boolPtr(true), Send: boolPtr(true)}
	if err := p.permissions.SetOverwrite(ctx, channelID, requester, grant); err != nil {
		return result, err
	}

	return result, nil
}

// RevokeWrite removes the requester's send permission while keeping read
// access. Staff keeps full access; the public principal stays denied.
func (p *Provisioner) RevokeWrite(ctx context.Context, channelID, requesterID string) error {
	lock := p.channelLock(channelID)
	lock.Lock()
	defer lock.Unlock()

	if err := p.permissions.SetOverwrite(ctx, channelID, platform.Everyone, platform.Overwrite{Send: boolPtr(false)}); err != nil {
		return err
	}

	requester := platform.Principal{Kind: platform.PrincipalMember, ID: requesterID}
	return p.permissions.SetOverwrite(ctx, channelID, requester, platform.Overwrite{Send: boolPtr(false)})
}

// Release drops the per-channel lock state after a channel is destroyed.
func (p *Provisioner) Release(channelID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.locks, channelID)
}
