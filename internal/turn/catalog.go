package turn

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/atlasdesk/switchboard/internal/capability"
)

// CatalogEntry is one capability with its current targets, as shown to the
// routing model.
type CatalogEntry struct {
	CapabilityID string              `json:"capability_id"`
	DisplayName  string              `json:"capability_display"`
	Targets      []capability.Target `json:"targets"`
}

// Catalog is the per-turn snapshot the picker grounds on: every registered
// capability with its live target list, plus a resolver mapping display
// names back to stable target ids. It is rebuilt every call and never cached;
// admins edit targets between turns and freshness wins over performance.
type Catalog struct {
	Entries []CatalogEntry

	// resolver: capability id -> lowercased trimmed display name -> target id
	resolver map[string]map[string]string
}

// BuildCatalog enumerates the registry (already sorted by capability id) and
// fetches each provider's targets. A provider whose target fetch fails is
// included with no targets; one broken provider must not break routing for
// the rest.
func BuildCatalog(ctx context.Context, reg *capability.Registry, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Catalog{resolver: make(map[string]map[string]string)}

	for _, p := range reg.All() {
		entry := CatalogEntry{
			CapabilityID: p.CapabilityID(),
			DisplayName:  p.DisplayName(),
		}
		if lister, ok := p.(capability.TargetLister); ok {
			targets, err := safeTargets(ctx, lister)
			if err != nil {
				logger.Error("catalog: target fetch failed", "capability", entry.CapabilityID, "error", err)
			} else {
				entry.Targets = targets
			}
		}

		nameMap := make(map[string]string, len(entry.Targets))
		for _, t := range entry.Targets {
			key := strings.ToLower(strings.TrimSpace(t.DisplayName))
			if key != "" && t.ID != "" {
				nameMap[key] = t.ID
			}
		}
		c.resolver[entry.CapabilityID] = nameMap
		c.Entries = append(c.Entries, entry)
	}
	return c
}

func safeTargets(ctx context.Context, lister capability.TargetLister) (targets []capability.Target, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("target fetch panicked: %v", rec)
		}
	}()
	return lister.PickerTargets(ctx)
}

// Resolve maps model-chosen display names to target ids for a capability.
// Matching is case-insensitive and trimmed but otherwise exact; unknown names
// resolve to nothing. At most one id is returned: turns act on a single
// target even when the model names several.
func (c *Catalog) Resolve(capabilityID string, names []string) []string {
	if capabilityID == "" || len(names) == 0 {
		return nil
	}
	nameMap := c.resolver[capabilityID]
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if id, ok := nameMap[key]; ok {
			return []string{id}
		}
	}
	return nil
}

// CapabilitiesBlock renders the capability list for the routing prompt.
func (c *Catalog) CapabilitiesBlock() string {
	if len(c.Entries) == 0 {
		return "- (none)"
	}
	var b strings.Builder
	for i, e := range c.Entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s — %q", e.CapabilityID, e.DisplayName)
	}
	return b.String()
}

// TargetsBlock renders the per-capability target lists for the routing prompt.
func (c *Catalog) TargetsBlock() string {
	if len(c.Entries) == 0 {
		return "(none)"
	}
	var blocks []string
	for _, e := range c.Entries {
		if len(e.Targets) == 0 {
			blocks = append(blocks, fmt.Sprintf("Capability: %s — (no specs)", e.CapabilityID))
			continue
		}
		lines := []string{fmt.Sprintf("Capability: %s — specs by display name:", e.CapabilityID)}
		for _, t := range e.Targets {
			lines = append(lines, "- "+t.DisplayName)
		}
		blocks = append(blocks, strings.Join(lines, "\n"))
	}
	return strings.Join(blocks, "\n")
}
