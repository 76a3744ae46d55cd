// Package service contains the agent-to-agent protocol components: the
// agent registry, the protocol handler, the message router, and the
// connector facade agents interact with.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/crosstalk-ai/crosstalk/internal/domain/a2a"
	"github.com/crosstalk-ai/crosstalk/internal/port/bus"
)

// Registry is the in-memory directory of known agents and their declared
// capabilities. Entries are replaced on re-registration and never removed;
// an agent stays discoverable until the process ends.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]a2a.AgentEntry
	bus    bus.Bus
	now    func() time.Time // for testing
}

// NewRegistry creates an empty Registry that announces registrations on b.
func NewRegistry(b bus.Bus) *Registry {
	return &Registry{
		agents: make(map[string]a2a.AgentEntry),
		bus:    b,
		now:    time.Now,
	}
}

// RegisterAgent inserts or replaces the entry for id. Capabilities are
// stored as given; a later registration for the same id overwrites the
// prior entry wholesale. Subscribers on the bus are notified of every
// (re)registration.
func (r *Registry) RegisterAgent(ctx context.Context, id, name string, capabilities []a2a.Capability) error {
	if id == "" {
		return fmt.Errorf("agent id cannot be empty")
	}

	entry := a2a.AgentEntry{
		ID:           id,
		Name:         name,
		Capabilities: append([]a2a.Capability(nil), capabilities...),
		Endpoints:    []string{"/a2a/agents/" + id},
		RegisteredAt: r.now(),
	}

	r.mu.Lock()
	r.agents[id] = entry
	r.mu.Unlock()

	r.announce(ctx, id, name)
	return nil
}

// announce publishes the registration notification. Bus failures are logged,
// not propagated: the directory update has already happened.
func (r *Registry) announce(ctx context.Context, id, name string) {
	if r.bus == nil {
		return
	}
	data, err := json.Marshal(bus.AgentRegistered{AgentID: id, Name: name})
	if err != nil {
		slog.Error("marshal registration notice", "agent_id", id, "error", err)
		return
	}
	if err := r.bus.Publish(ctx, bus.SubjectAgentRegistered, data); err != nil {
		slog.Warn("publish registration notice", "agent_id", id, "error", err)
	}
}

// GetAgent returns the entry for id. The second return is false when the
// agent is unknown; GetAgent never fails otherwise.
func (r *Registry) GetAgent(id string) (a2a.AgentEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.agents[id]
	return entry, ok
}

// AllAgents returns a snapshot of every registered entry. Order is not
// guaranteed.
func (r *Registry) AllAgents() []a2a.AgentEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]a2a.AgentEntry, 0, len(r.agents))
	for _, e := range r.agents {
		entries = append(entries, e)
	}
	return entries
}

// FindAgentsByCapability returns every entry whose capability list contains
// a capability with the given id.
func (r *Registry) FindAgentsByCapability(capabilityID string) []a2a.AgentEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var entries []a2a.AgentEntry
	for _, e := range r.agents {
		if e.HasCapability(capabilityID) {
			entries = append(entries, e)
		}
	}
	return entries
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.agents)
}
