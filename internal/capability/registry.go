package capability

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Registry maps capability ids to providers. It is populated once at startup
// and read-only afterwards; All enumerates in a deterministic order so the
// routing prompt is reproducible for a given provider set.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]Provider
	logger *slog.Logger
}

// NewRegistry builds an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{byID: make(map[string]Provider), logger: logger}
}

// Register adds a provider. Nil providers, providers without a capability id,
// and duplicates are rejected; on duplicate ids the first registrant wins.
func (r *Registry) Register(p Provider) bool {
	if p == nil {
		r.logger.Warn("registry: nil provider skipped")
		return false
	}
	id := strings.TrimSpace(p.CapabilityID())
	if id == "" {
		r.logger.Error("registry: provider missing capability id, skipped")
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[id]; exists {
		r.logger.Warn("registry: duplicate capability id, existing kept", "capability", id)
		return false
	}
	r.byID[id] = p
	r.logger.Info("capability provider registered", "capability", id)
	return true
}

// Get returns the provider for a capability id, or nil.
func (r *Registry) Get(capabilityID string) Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[capabilityID]
}

// All returns every provider sorted by capability id.
func (r *Registry) All() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Provider, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.byID[id])
	}
	return out
}

// CapabilityIDs returns the sorted registered ids.
func (r *Registry) CapabilityIDs() []string {
	all := r.All()
	ids := make([]string, 0, len(all))
	for _, p := range all {
		ids = append(ids, p.CapabilityID())
	}
	return ids
}

// Bootstrap registers each provider from a constructor list, isolating
// failures so one broken capability cannot take the others down with it.
func (r *Registry) Bootstrap(builders ...func() (Provider, error)) {
	for i, build := range builders {
		r.bootstrapOne(i, build)
	}
}

func (r *Registry) bootstrapOne(index int, build func() (Provider, error)) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("registry: provider bootstrap panicked, skipped",
				"index", index, "panic", fmt.Sprint(rec))
		}
	}()
	p, err := build()
	if err != nil {
		r.logger.Error("registry: provider bootstrap failed, skipped", "index", index, "error", err)
		return
	}
	r.Register(p)
}
