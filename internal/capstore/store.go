// Package capstore implements the per-plugin capability inventory of
// spec.md §4.C: a mapping (plugin_id, capability_id) → Capability plus the
// reverse index plugin_id → {capability_id}, and the mapper that projects
// policy constraints onto stored capabilities.
package capstore

import (
	"sync"

	"github.com/lion-dev/lion/internal/domain"
	"github.com/lion-dev/lion/internal/domain/capabilities"
)

// Store is a concurrent capability inventory, guarded by a single
// read-write lock per spec.md §5 ("fine-grained concurrent maps guarded
// by per-entry locks so read-heavy hot paths do not contend" — here
// approximated with one RWMutex since the per-plugin map is small and the
// hot path is reads).
type Store struct {
	mu    sync.RWMutex
	byKey map[key]capabilities.Capability
	byPlg map[domain.PluginID][]domain.CapabilityID
}

type key struct {
	plugin domain.PluginID
	cap    domain.CapabilityID
}

// NewStore creates an empty capability store.
func NewStore() *Store {
	return &Store{
		byKey: make(map[key]capabilities.Capability),
		byPlg: make(map[domain.PluginID][]domain.CapabilityID),
	}
}

// Add stores cap under a freshly generated capability ID and returns it.
func (s *Store) Add(plugin domain.PluginID, cap capabilities.Capability) domain.CapabilityID {
	id := domain.NewCapabilityID()
	s.mu.Lock()
	s.byKey[key{plugin, id}] = cap
	s.byPlg[plugin] = append(s.byPlg[plugin], id)
	s.mu.Unlock()
	return id
}

// Get retrieves a single capability.
func (s *Store) Get(plugin domain.PluginID, id domain.CapabilityID) (capabilities.Capability, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byKey[key{plugin, id}]
	return c, ok
}

// List returns every capability held by plugin, in the order they were
// added.
func (s *Store) List(plugin domain.PluginID) []capabilities.Capability {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byPlg[plugin]
	out := make([]capabilities.Capability, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.byKey[key{plugin, id}]; ok {
			out = append(out, c)
		}
	}
	return out
}

// ListIDs returns the capability IDs held by plugin, in the order they
// were added.
func (s *Store) ListIDs(plugin domain.PluginID) []domain.CapabilityID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.CapabilityID(nil), s.byPlg[plugin]...)
}

// Remove deletes one capability from a plugin's inventory.
func (s *Store) Remove(plugin domain.PluginID, id domain.CapabilityID) {
	s.mu.Lock()
	delete(s.byKey, key{plugin, id})
	ids := s.byPlg[plugin]
	for i, existing := range ids {
		if existing == id {
			s.byPlg[plugin] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
}

// RemovePlugin drops every capability belonging to plugin (spec.md §4.F
// remove() "drop all capabilities and metrics").
func (s *Store) RemovePlugin(plugin domain.PluginID) {
	s.mu.Lock()
	for _, id := range s.byPlg[plugin] {
		delete(s.byKey, key{plugin, id})
	}
	delete(s.byPlg, plugin)
	s.mu.Unlock()
}

// Replace overwrites the capability stored at (plugin, id), keeping the
// same ID — used by ApplyPolicyConstraints to narrow in place.
func (s *Store) Replace(plugin domain.PluginID, id domain.CapabilityID, cap capabilities.Capability) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{plugin, id}
	if _, ok := s.byKey[k]; !ok {
		return false
	}
	s.byKey[k] = cap
	return true
}
