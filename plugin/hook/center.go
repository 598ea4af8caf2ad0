// Package hook lets optional extensions observe and veto arena activity.
package hook

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ErrInterrupt signals that a handler wants to stop further processing.
// For BeforeCommandEmit it also suppresses the command.
var ErrInterrupt = errors.New("hook interrupted")

// Fn is a hook handler. Return (data, nil) to continue, (data, ErrInterrupt)
// to stop. Any other error is logged and the chain continues.
type Fn func(ctx context.Context, event string, data any) (any, error)

type entry struct {
	priority int
	fn       Fn
	name     string
}

// Center manages event hook registrations.
type Center struct {
	mu     sync.RWMutex
	hooks  map[string][]*entry
	logger *zap.Logger
}

// NewCenter creates an empty Center.
func NewCenter(logger *zap.Logger) *Center {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Center{hooks: make(map[string][]*entry), logger: logger}
}

// Register adds fn for event. Lower priority runs first; equal priorities
// keep registration order.
func (c *Center) Register(event string, priority int, name string, fn Fn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := append(c.hooks[event], &entry{priority: priority, fn: fn, name: name})
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].priority < entries[j].priority
	})
	c.hooks[event] = entries
}

func without(entries []*entry, name string) []*entry {
	n := 0
	for _, e := range entries {
		if e.name != name {
			entries[n] = e
			n++
		}
	}
	return entries[:n]
}

// Unregister removes all hooks named name from event.
func (c *Center) Unregister(event, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks[event] = without(c.hooks[event], name)
}

// UnregisterAll removes name from every event.
func (c *Center) UnregisterAll(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for event, entries := range c.hooks {
		c.hooks[event] = without(entries, name)
	}
}

// Count returns the number of handlers bound to event.
func (c *Center) Count(event string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.hooks[event])
}

// Trigger runs the handlers for event in priority order, threading data
// through them. It returns ErrInterrupt if a handler stopped the chain.
func (c *Center) Trigger(ctx context.Context, event string, data any) (any, error) {
	c.mu.RLock()
	entries := make([]*entry, len(c.hooks[event]))
	copy(entries, c.hooks[event])
	c.mu.RUnlock()

	for _, e := range entries {
		out, err := e.fn(ctx, event, data)
		if errors.Is(err, ErrInterrupt) {
			return out, err
		}
		if err != nil {
			c.logger.Warn("hook failed",
				zap.String("event", event),
				zap.String("hook", e.name),
				zap.Error(err))
			continue
		}
		data = out
	}
	return data, nil
}

const (
	// BeforeCommandEmit receives a *arena.Emission; handlers may rewrite or veto it.
	BeforeCommandEmit = "before_command_emit"
	AfterCommandEmit  = "after_command_emit"
	OnBattleOpen      = "on_battle_open"
	OnBattleStart     = "on_battle_start"
	OnBattleEnd       = "on_battle_end"
	OnEntityBound     = "on_entity_bound"
	OnDecision        = "on_decision"
)
