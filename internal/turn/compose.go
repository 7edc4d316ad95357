package turn

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/atlasdesk/switchboard/internal/capability"
	"github.com/atlasdesk/switchboard/internal/llm"
	"github.com/atlasdesk/switchboard/internal/prompts"
	"github.com/atlasdesk/switchboard/pkg/models"
)

// Tool descriptions embed a display label as: Create a ticket of type 'X'.
var toolLabelRx = regexp.MustCompile(`(?i)type '([^']+)'`)

const bannerClosing = "If a request is outside the tools available in THIS turn, " +
	"ask a short clarifying question and route correctly in the next turn. " +
	"Do not invent tools; do not call tools that are not provided."

// summarizeToolsForSystem renders a short human-readable list of the tools
// offered this turn, pulling a display label out of the description when one
// is embedded there.
func summarizeToolsForSystem(tools []capability.ToolSpec) string {
	if len(tools) == 0 {
		return "- (No tools available this turn)"
	}
	lines := make([]string, 0, len(tools))
	for _, t := range tools {
		name := t.Name
		if name == "" {
			name = "unknown"
		}
		if m := toolLabelRx.FindStringSubmatch(t.Description); m != nil {
			lines = append(lines, fmt.Sprintf("- %s — %q", name, m[1]))
		} else {
			lines = append(lines, "- "+name)
		}
	}
	return strings.Join(lines, "\n")
}

// capabilitiesBanner aggregates every registered provider's one-liner into the
// shared reference banner that closes with the no-invented-tools rule.
func capabilitiesBanner(ctx context.Context, reg *capability.Registry) string {
	var chunks []string
	for _, p := range reg.All() {
		if c := strings.TrimSpace(safeBannerChunk(ctx, p)); c != "" {
			chunks = append(chunks, c)
		}
	}
	if len(chunks) == 0 {
		return ""
	}
	return "System capabilities: " + strings.Join(chunks, "; ") + ". " + bannerClosing
}

func safeBannerChunk(ctx context.Context, p capability.Provider) (chunk string) {
	defer func() {
		if recover() != nil {
			chunk = ""
		}
	}()
	return p.BannerChunk(ctx)
}

// ComposeSystemMessage builds the single system message the actor sees, in a
// fixed order: this turn's tools on top so the model grounds on them first,
// then the business header with the core rules, then the chosen provider's
// addendum, then the capabilities banner as bottom reference. When no tools
// are offered, the picker's disambiguation question is appended so the model
// can steer the user back on course.
func ComposeSystemMessage(ctx context.Context, reg *capability.Registry, store *prompts.Store,
	tools []capability.ToolSpec, providerAddendum, fallbackQuestion string) string {

	parts := []string{"## Tools available this turn\n" + summarizeToolsForSystem(tools)}

	if store != nil {
		if header := strings.TrimSpace(store.ActorHeader()); header != "" {
			parts = append(parts, header)
		}
	}
	if addendum := strings.TrimSpace(providerAddendum); addendum != "" {
		parts = append(parts, addendum)
	}
	if banner := capabilitiesBanner(ctx, reg); banner != "" {
		parts = append(parts, "## Capabilities reference\n"+banner)
	}

	msg := strings.TrimSpace(strings.Join(parts, "\n\n"))
	if len(tools) == 0 && fallbackQuestion != "" {
		msg += "\n\nSuggested disambiguation question: " + fallbackQuestion
	}
	return msg
}

// actorMessages builds the actor's view of the conversation: the composed
// system message followed by the history with every stored system row dropped.
// Breadcrumbs and stale banners are picker-side context only.
func actorMessages(systemMsg string, history []models.Message) []llm.Message {
	msgs := make([]llm.Message, 0, len(history)+1)
	msgs = append(msgs, llm.Message{Role: "system", Content: systemMsg})
	for _, m := range history {
		if m.Content == "" || m.Role == models.RoleSystem {
			continue
		}
		role := string(m.Role)
		switch m.Role {
		case models.RoleUser, models.RoleAssistant, models.RoleTool:
		default:
			role = string(models.RoleUser)
		}
		msgs = append(msgs, llm.Message{Role: role, Content: m.Content})
	}
	return msgs
}

// pickerHistory filters the stored history down to what the routing pass may
// see: raw conversation plus tool breadcrumbs. Other system rows would bias
// the classification and are dropped.
func pickerHistory(history []models.Message) []models.Message {
	out := make([]models.Message, 0, len(history))
	for _, m := range history {
		if m.Content == "" {
			continue
		}
		if m.Role == models.RoleSystem && !m.IsBreadcrumb() {
			continue
		}
		out = append(out, m)
	}
	return out
}
