// Package platform defines the ports through which the lifecycle engine
// drives the chat platform. The engine never talks to the network; a thin
// adapter implements these interfaces against the real gateway, and the
// in-memory adapter under platform/memory backs tests and local runs.
package platform

import (
	"context"
	"time"
)

// ChannelRef is the ownership handle to a channel resource.
type ChannelRef struct {
	ID   string
	Name string
}

// PrincipalKind enumerates the principal classes permissions apply to.
type PrincipalKind string

const (
	PrincipalEveryone PrincipalKind = "everyone"
	PrincipalRole     PrincipalKind = "role"
	PrincipalMember   PrincipalKind = "member"
)

// Principal is a permission target on a channel.
type Principal struct {
	Kind PrincipalKind
	ID   string
}

// Everyone is the public/default principal.
var Everyone = Principal{Kind: PrincipalEveryone}

// Overwrite is a tri-state permission overwrite: nil leaves the flag
// untouched, true allows, false denies.
type Overwrite struct {
	View *bool
	Send *bool
}

// Message is a single channel message as returned by history retrieval.
type Message struct {
	ID         string
	AuthorID   string
	AuthorName string
	Text       string
	Timestamp  time.Time
}

// ChannelStore manages channel resources inside a category container.
type ChannelStore interface {
	CategoryExists(ctx context.Context, categoryID string) (bool, error)
	ListChannelNames(ctx context.Context, categoryID string) ([]string, error)
	CreateChannel(ctx context.Context, categoryID, name string) (ChannelRef, error)
	RenameChannel(ctx context.Context, channelID, name string) error
	DeleteChannel(ctx context.Context, channelID string) error
}

// PermissionStore applies permission overwrites to channels.
type PermissionStore interface {
	SetOverwrite(ctx context.Context, channelID string, principal Principal, overwrite Overwrite) error
	// StaffRole resolves the staff role principal by name. The second
	// return value is false when the role does not exist.
	StaffRole(ctx context.Context, name string) (Principal, bool, error)
}

// MessageStore posts messages and attachments and reads channel history.
type MessageStore interface {
	PostMessage(ctx context.Context, channelID, text string) (string, error)
	PostAttachment(ctx context.Context, channelID, filename string, data []byte, caption string) error
	// History returns up to limit messages with IDs strictly after afterID,
	// oldest first. An empty afterID starts from the beginning.
	History(ctx context.Context, channelID, afterID string, limit int) ([]Message, error)
	// BotIdentity returns the author ID the engine posts under.
	BotIdentity() string
}

// Stores bundles the three ports for injection.
type Stores struct {
	Channels    ChannelStore
	Permissions PermissionStore
	Messages    MessageStore
}
