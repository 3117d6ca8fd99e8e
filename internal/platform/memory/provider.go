// Package memory provides an in-memory chat platform adapter. It backs the
// package tests and local runs without a gateway connection; every mutation
// is synchronized so concurrent lifecycle operations behave like they would
// against the real platform.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/ticket-rooms/internal/platform"
)

// BotID is the author identity the engine posts under.
const BotID = "bot"

// Attachment records a delivered file for inspection.
type Attachment struct {
	Filename string
	Data     []byte
	Caption  string
}

type channel struct {
	id         string
	name       string
	categoryID string
	messages   []platform.Message
	overwrites map[platform.Principal]platform.Overwrite
}

// Provider implements the platform ports against process memory.
type Provider struct {
	mu          sync.Mutex
	categories  map[string]bool
	channels    map[string]*channel
	roles       map[string]string
	attachments map[string][]Attachment
	nextChannel int
	nextMessage int
	clock       func() time.Time
}

// New constructs an empty provider.
func New() *Provider {
	return &Provider{
		categories:  make(map[string]bool),
		channels:    make(map[string]*channel),
		roles:       make(map[string]string),
		attachments: make(map[string][]Attachment),
		clock:       time.Now,
	}
}

// Stores returns the provider bundled as platform ports.
func (p *Provider) Stores() platform.Stores {
	return platform.Stores{Channels: p, Permissions: p, Messages: p}
}

// AddCategory registers a category container.
func (p *Provider) AddCategory(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.categories[id] = true
}

// AddRole registers a role by name and returns its principal.
func (p *Provider) AddRole(name string) platform.Principal {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := "role-" + name
	p.roles[name] = id
	return platform.Principal{Kind: platform.PrincipalRole, ID: id}
}

// AddChannel creates a standalone channel, e.g. a log or intake channel.
func (p *Provider) AddChannel(id, name string) platform.ChannelRef {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels[id] = &channel{
		id:         id,
		name:       name,
		overwrites: make(map[platform.Principal]platform.Overwrite),
	}
	return platform.ChannelRef{ID: id, Name: name}
}

// CategoryExists implements platform.ChannelStore.
func (p *Provider) CategoryExists(ctx context.Context, categoryID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.categories[categoryID], nil
}

// ListChannelNames implements platform.ChannelStore.
func (p *Provider) ListChannelNames(ctx context.Context, categoryID string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0)
	for _, ch := range p.channels {
		if ch.categoryID == categoryID {
			names = append(names, ch.name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// CreateChannel implements platform.ChannelStore.
func (p *Provider) CreateChannel(ctx context.Context, categoryID, name string) (platform.ChannelRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.categories[categoryID] {
		return platform.ChannelRef{}, fmt.Errorf("category %s does not exist", categoryID)
	}
	p.nextChannel++
	id := fmt.Sprintf("chan-%04d", p.nextChannel)
	p.channels[id] = &channel{
		id:         id,
		name:       name,
		categoryID: categoryID,
		overwrites: make(map[platform.Principal]platform.Overwrite),
	}
	return platform.ChannelRef{ID: id, Name: name}, nil
}

// RenameChannel implements platform.ChannelStore.
func (p *Provider) RenameChannel(ctx context.Context, channelID, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.channels[channelID]
	if !ok {
		return fmt.Errorf("channel %s does not exist", channelID)
	}
	ch.name = name
	return nil
}

// DeleteChannel implements platform.ChannelStore.
func (p *Provider) DeleteChannel(ctx context.Context, channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.channels[channelID]; !ok {
		return fmt.Errorf("channel %s does not exist", channelID)
	}
	delete(p.channels, channelID)
	return nil
}

// SetOverwrite implements platform.PermissionStore. Flags left nil in the
// incoming overwrite keep their previously applied value.
func (p *Provider) SetOverwrite(ctx context.Context, channelID string, principal platform.Principal, overwrite platform.Overwrite) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.channels[channelID]
	if !ok {
		return fmt.Errorf("channel %s does not exist", channelID)
	}
	current := ch.overwrites[principal]
	if overwrite.View != nil {
		current.View = overwrite.View
	}
	if overwrite.Send != nil {
		current.Send = overwrite.Send
	}
	ch.overwrites[principal] = current
	return nil
}

// StaffRole implements platform.PermissionStore.
func (p *Provider) StaffRole(ctx context.Context, name string) (platform.Principal, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.roles[name]
	if !ok {
		return platform.Principal{}, false, nil
	}
	return platform.Principal{Kind: platform.PrincipalRole, ID: id}, true, nil
}

// PostMessage implements platform.MessageStore, posting as the bot identity.
func (p *Provider) PostMessage(ctx context.Context, channelID, text string) (string, error) {
	return p.appendMessage(channelID, BotID, "bot", text)
}

// PostUserMessage appends a message from an arbitrary author, standing in for
// conversation traffic arriving through the gateway.
func (p *Provider) PostUserMessage(channelID, authorID, authorName, text string) (string, error) {
	return p.appendMessage(channelID, authorID, authorName, text)
}

func (p *Provider) appendMessage(channelID, authorID, authorName, text string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.channels[channelID]
	if !ok {
		return "", fmt.Errorf("channel %s does not exist", channelID)
	}
	p.nextMessage++
	msg := platform.Message{
		ID:         fmt.Sprintf("msg-%06d", p.nextMessage),
		AuthorID:   authorID,
		AuthorName: authorName,
		Text:       text,
		Timestamp:  p.clock().UTC(),
	}
	ch.messages = append(ch.messages, msg)
	return msg.ID, nil
}

// PostAttachment implements platform.MessageStore.
func (p *Provider) PostAttachment(ctx context.Context, channelID, filename string, data []byte, caption string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.channels[channelID]; !ok {
		return fmt.Errorf("channel %s does not exist", channelID)
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	p.attachments[channelID] = append(p.attachments[channelID], Attachment{
		Filename: filename,
		Data:     stored,
		Caption:  caption,
	})
	return nil
}

// History implements platform.MessageStore.
func (p *Provider) History(ctx context.Context, channelID, afterID string, limit int) ([]platform.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.channels[channelID]
	if !ok {
		return nil, fmt.Errorf("channel %s does not exist", channelID)
	}
	start := 0
	if afterID != "" {
		for i, msg := range ch.messages {
			if msg.ID == afterID {
				start = i + 1
				break
			}
		}
	}
	end := len(ch.messages)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	page := make([]platform.Message, end-start)
	copy(page, ch.messages[start:end])
	return page, nil
}

// BotIdentity implements platform.MessageStore.
func (p *Provider) BotIdentity() string {
	return BotID
}

// ChannelByID returns a snapshot of a channel's name and whether it exists.
func (p *Provider) ChannelByID(id string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.channels[id]
	if !ok {
		return "", false
	}
	return ch.name, true
}

// OverwriteFor returns the applied overwrite for a principal on a channel.
func (p *Provider) OverwriteFor(channelID string, principal platform.Principal) (platform.Overwrite, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.channels[channelID]
	if !ok {
		return platform.Overwrite{}, false
	}
	ov, ok := ch.overwrites[principal]
	return ov, ok
}

// Attachments returns the files delivered to a channel.
func (p *Provider) Attachments(channelID string) []Attachment {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Attachment, len(p.attachments[channelID]))
	copy(out, p.attachments[channelID])
	return out
}

// Messages returns a snapshot of a channel's messages, oldest first.
func (p *Provider) Messages(channelID string) []platform.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, ok := p.channels[channelID]
	if !ok {
		return nil
	}
	out := make([]platform.Message, len(ch.messages))
	copy(out, ch.messages)
	return out
}

// SetClock overrides the message timestamp source, for tests.
func (p *Provider) SetClock(clock func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clock = clock
}
