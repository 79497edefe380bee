package meta

import (
	"fmt"

	"github.com/fosstrack/fosched/pkg/types"
)

// Registry catalogs the known agent types. Entries are immutable once
// added; a config reload clears and repopulates the whole catalog.
type Registry struct {
	agents map[string]*types.MetaAgent
}

// NewRegistry creates an empty meta-agent registry.
func NewRegistry() *Registry {
	return &Registry{
		agents: make(map[string]*types.MetaAgent),
	}
}

// Add registers an agent type. Empty names or commands and duplicate
// names are rejected.
func (r *Registry) Add(name, command string, maxPerHost int, flags types.MetaAgentFlag) error {
	if name == "" || command == "" {
		return fmt.Errorf("meta agent name and command must be non-empty")
	}
	if maxPerHost <= 0 {
		return fmt.Errorf("meta agent %s: max must be positive, got %d", name, maxPerHost)
	}
	if _, ok := r.agents[name]; ok {
		return fmt.Errorf("meta agent %s already registered", name)
	}
	r.agents[name] = &types.MetaAgent{
		Name:       name,
		Command:    command,
		MaxPerHost: maxPerHost,
		Flags:      flags,
	}
	return nil
}

// Get returns the meta agent for a type name, or nil.
func (r *Registry) Get(name string) *types.MetaAgent {
	return r.agents[name]
}

// IsExclusive reports whether the named type carries the EXCLUSIVE
// flag. Unknown types are not exclusive.
func (r *Registry) IsExclusive(name string) bool {
	m := r.agents[name]
	return m != nil && m.IsExclusive()
}

// Len returns the number of registered agent types.
func (r *Registry) Len() int {
	return len(r.agents)
}

// ForEach iterates the registered types in unspecified order.
func (r *Registry) ForEach(fn func(*types.MetaAgent)) {
	for _, m := range r.agents {
		fn(m)
	}
}

// Clear drops every registered type ahead of a reload.
func (r *Registry) Clear() {
	r.agents = make(map[string]*types.MetaAgent)
}
