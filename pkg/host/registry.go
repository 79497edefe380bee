package host

import (
	"fmt"

	"github.com/fosstrack/fosched/pkg/types"
)

// Registry tracks the configured execution hosts in registration order.
// It is owned by the event loop goroutine and carries no locks.
type Registry struct {
	hosts []*types.Host
	byID  map[string]*types.Host
}

// NewRegistry creates an empty host registry.
func NewRegistry() *Registry {
	return &Registry{
		byID: make(map[string]*types.Host),
	}
}

// Add registers a host. Duplicate ids and non-positive capacities are
// rejected; config loading logs and skips such entries.
func (r *Registry) Add(id, address, agentDir string, maxAgents int) error {
	if id == "" || address == "" {
		return fmt.Errorf("host id and address must be non-empty")
	}
	if maxAgents <= 0 {
		return fmt.Errorf("host %s: max agents must be positive, got %d", id, maxAgents)
	}
	if _, ok := r.byID[id]; ok {
		return fmt.Errorf("host %s already registered", id)
	}
	h := &types.Host{
		ID:        id,
		Address:   address,
		AgentDir:  agentDir,
		MaxAgents: maxAgents,
	}
	r.hosts = append(r.hosts, h)
	r.byID[id] = h
	return nil
}

// Get returns the host with the given id, or nil.
func (r *Registry) Get(id string) *types.Host {
	return r.byID[id]
}

// GetHost returns the first host, in registration order, with at least
// slotsNeeded free capacity, or nil when none qualifies. First-fit
// keeps selection deterministic for tests.
func (r *Registry) GetHost(slotsNeeded int) *types.Host {
	for _, h := range r.hosts {
		if h.FreeSlots() >= slotsNeeded {
			return h
		}
	}
	return nil
}

// ForEach iterates hosts in registration order.
func (r *Registry) ForEach(fn func(*types.Host)) {
	for _, h := range r.hosts {
		fn(h)
	}
}

// Len returns the number of registered hosts.
func (r *Registry) Len() int {
	return len(r.hosts)
}

// Clear drops every host. Called on config reload; agents already
// running on a removed host keep their own accounting in the
// supervisor until they drain. A host re-added under the same id
// starts at zero running agents, so the pre-reload agents can push the
// combined count past the new cap until they finish.
func (r *Registry) Clear() {
	r.hosts = nil
	r.byID = make(map[string]*types.Host)
}
