// Package allocator produces ticket identifiers and collision-free channel
// names. The numeric counter lives in durable keyed storage and is advanced
// with a single atomic increment, so concurrent creations can never share an
// id. A read-then-write against the store would race; only CounterStore
// implementations with atomic increment semantics are acceptable.
package allocator

import (
	"context"
	"fmt"
	"strings"

	"github.com/spec-kit/ticket-rooms/internal/config"
	"github.com/spec-kit/ticket-rooms/pkg/util"
)

// CounterStore is the durable counter port. Incr must be atomic: it
// increments the keyed value and returns the new value in one step.
type CounterStore interface {
	Incr(ctx context.Context, key string) (int64, error)
}

// Allocator hands out ticket ids and resolves channel names per policy.
type Allocator struct {
	counters CounterStore
	key      string
	width    int
	policy   config.NamingPolicy
}

// New constructs an allocator over the given counter store.
func New(counters CounterStore, cfg config.TicketingConfig) *Allocator {
	width := cfg.IDWidth
	if width <= 0 {
		width = 4
	}
	key := cfg.CounterKey
	if key == "" {
		key = "ticket:sequence"
	}
	return &Allocator{
		counters: counters,
		key:      key,
		width:    width,
		policy:   cfg.Naming,
	}
}

// Next allocates the next ticket id as a fixed-width decimal string. Ids are
// strictly increasing and never reused, even after ticket deletion.
func (a *Allocator) Next(ctx context.Context) (string, error) {
	n, err := a.counters.Incr(ctx, a.key)
	if err != nil {
		return "", util.NewStorageUnavailable(err)
	}
	return fmt.Sprintf("%0*d", a.width, n), nil
}

// ChannelName resolves the channel name for a new ticket given its id, raw
// label, and the names of existing sibling channels.
func (a *Allocator) ChannelName(id, label string, existing []string) string {
	if a.policy == config.NamingSequential {
		return id
	}
	return ResolveName(Sanitize(label), existing)
}

// Sanitize turns a requester-supplied label into a channel name component:
// whitespace runs become single hyphens and the result is lower-cased.
func Sanitize(label string) string {
	return strings.ToLower(strings.Join(strings.Fields(strings.TrimSpace(label)), "-"))
}

// ResolveName appends -2, -3, ... to base until it collides with none of the
// existing sibling names.
func ResolveName(base string, existing []string) string {
	taken := make(map[string]bool, len(existing))
	for _, name := range existing {
		taken[name] = true
	}
	if !taken[base] {
		return base
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", base, n)
		if !taken[candidate] {
			return candidate
		}
	}
}
