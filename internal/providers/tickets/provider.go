package tickets

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/atlasdesk/switchboard/internal/capability"
	"github.com/atlasdesk/switchboard/internal/observability"
	"github.com/atlasdesk/switchboard/pkg/models"
)

const (
	// CapabilityID is the registry key for ticket creation.
	CapabilityID = "tickets.create"

	// ToolNamespace prefixes the per-type create tools.
	ToolNamespace = "create_ticket__"

	// DiscoveryToolName lists all ticket types when no target is resolved.
	DiscoveryToolName = "tickets__list_types"

	bannerTTL          = 30 * time.Second
	bannerMaxTypeNames = 20
)

var (
	positiveKeywords = []string{"tạo phiếu", "tạo vé", "đính kèm", "gửi ảnh", "gửi file", "mẫu đơn", "thông tin bắt buộc"}
	negativeKeywords = []string{"tra cứu", "tìm", "giá", "bao nhiêu", "ở đâu", "policy", "tài liệu", "hướng dẫn"}
	flowMarkers      = []string{"vui lòng cung cấp", "hãy cung cấp", "thiếu", "còn thiếu", "gửi ảnh", "tải lên"}
	endMarkers       = []string{"xong", "hoàn tất", "hoàn thành", "đã tạo vé", "đã tạo phiếu"}
)

// Provider exposes dynamic ticket creation as a capability: one create tool
// per resolved ticket type, a discovery tool otherwise.
type Provider struct {
	store   Store
	service *Service
	logger  *observability.Logger

	bannerMu      sync.Mutex
	bannerText    string
	bannerExpires time.Time
}

// NewProvider wires the tickets capability.
func NewProvider(store Store, service *Service, logger *observability.Logger) *Provider {
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &Provider{store: store, service: service, logger: logger}
}

func (p *Provider) CapabilityID() string  { return CapabilityID }
func (p *Provider) DisplayName() string   { return "Tạo phiếu" }
func (p *Provider) ToolNamespace() string { return ToolNamespace }

func (p *Provider) ActorAddendum() string { return "" }

// BannerChunk summarizes the live ticket types: a count plus exemplar names,
// refreshed every 30 seconds so admin edits show up without a restart.
func (p *Provider) BannerChunk(ctx context.Context) string {
	p.bannerMu.Lock()
	defer p.bannerMu.Unlock()
	if p.bannerText != "" && time.Now().Before(p.bannerExpires) {
		return p.bannerText
	}

	types, err := p.store.ListTypes(ctx)
	if err != nil {
		p.logger.Warn(ctx, "banner type listing failed", "error", err)
		return p.bannerText
	}

	text := "tickets.create (support tickets)"
	if len(types) > 0 {
		names := make([]string, 0, bannerMaxTypeNames)
		for _, t := range types {
			if len(names) == bannerMaxTypeNames {
				break
			}
			names = append(names, fmt.Sprintf("%q", t.DisplayName))
		}
		examples := strings.Join(names, ", ")
		if len(types) > bannerMaxTypeNames {
			examples += ", …"
		}
		text = fmt.Sprintf("tickets.create (support tickets, %d types: %s)", len(types), examples)
	}

	p.bannerText = text
	p.bannerExpires = time.Now().Add(bannerTTL)
	return text
}

// PickerTargets lists every ticket type as a routable target.
func (p *Provider) PickerTargets(ctx context.Context) ([]capability.Target, error) {
	types, err := p.store.ListTypes(ctx)
	if err != nil {
		return nil, err
	}
	targets := make([]capability.Target, 0, len(types))
	for _, t := range types {
		name := strings.TrimSpace(t.DisplayName)
		if name == "" {
			name = t.ID
		}
		targets = append(targets, capability.Target{ID: t.ID, DisplayName: name})
	}
	return targets, nil
}

// ToolsSpec returns one create tool per resolved type; with no resolved
// target it returns the discovery tool so the actor can ground an answer to
// "what tickets do you support".
func (p *Provider) ToolsSpec(ctx context.Context, tc capability.TurnContext) ([]capability.ToolSpec, error) {
	if len(tc.TargetIDs) == 0 {
		return []capability.ToolSpec{{
			Name: DiscoveryToolName,
			Description: "List all available ticket types. " +
				"Use this when the user asks what tickets are supported or asks to list ticket types.",
			Parameters: map[string]any{
				"type":                 "object",
				"properties":           map[string]any{},
				"additionalProperties": false,
			},
		}}, nil
	}

	types, err := p.store.GetTypes(ctx, tc.TargetIDs)
	if err != nil {
		return nil, fmt.Errorf("load ticket types: %w", err)
	}
	tools := make([]capability.ToolSpec, 0, len(types))
	for i := range types {
		t := &types[i]
		params := BuildToolParams(t)
		if _, err := CompileToolParams(t.ID, params); err != nil {
			p.logger.Error(ctx, "ticket type spec does not compile, tool withheld",
				"type", t.ID, "error", err)
			continue
		}
		display := t.DisplayName
		if display == "" {
			display = t.ID
		}
		tools = append(tools, capability.ToolSpec{
			Name: capability.EncodeToolName(ToolNamespace, t.ID),
			Description: fmt.Sprintf(
				"Create ticket for type '%s'. Ask the user for any missing required field (including files) before calling.",
				display),
			Parameters: params,
		})
	}
	return tools, nil
}

// HandleToolCall executes the discovery tool or a namespaced create tool.
func (p *Provider) HandleToolCall(ctx context.Context, sessionID, name string, args map[string]any) capability.ToolResult {
	if name == DiscoveryToolName {
		types, err := p.store.ListTypes(ctx)
		if err != nil {
			p.logger.Error(ctx, "type listing failed", "error", err)
			return capability.Fail("LIST_FAILED", "could not list ticket types")
		}
		rows := make([]map[string]any, 0, len(types))
		for _, t := range types {
			display := t.DisplayName
			if display == "" {
				display = t.ID
			}
			rows = append(rows, map[string]any{"id": t.ID, "display_name": display})
		}
		return capability.OK(map[string]any{"types": rows, "count": len(rows)})
	}

	typeID, ok := capability.DecodeToolName(ToolNamespace, name)
	if !ok {
		return capability.Fail("UNKNOWN_TOOL", fmt.Sprintf("no such tool %q", name))
	}
	return p.service.Create(ctx, sessionID, typeID, args)
}

// PickerHint reports keyword affinity plus flow continuation: markers of an
// unfinished form in the recent tail prefer this capability until a create
// breadcrumb shows the flow completed.
func (p *Provider) PickerHint(history []models.Message) capability.Hint {
	tail := foldedTail(history, 4)

	inProgress := containsAnyFolded(tail, flowMarkers)
	ended := false
	start := len(history) - 10
	if start < 0 {
		start = 0
	}
	for _, m := range history[start:] {
		if strings.Contains(m.Content, models.BreadcrumbPrefix+"create_ticket") {
			ended = true
			break
		}
	}

	continuation := capability.ContinuationNeutral
	if inProgress && !ended {
		continuation = capability.ContinuationPrefer
	}

	bump := 0.0
	if containsAnyFolded(tail, positiveKeywords) && !containsAnyFolded(tail, negativeKeywords) {
		bump = 0.2
	}

	return capability.Hint{
		CapabilityID: CapabilityID,
		ScoreBump:    bump,
		KeywordsAny:  positiveKeywords,
		NegativeAny:  negativeKeywords,
		Continuation: continuation,
		InProgress:   inProgress && !ended,
		EndMarkers:   endMarkers,
	}
}

func foldedTail(history []models.Message, n int) string {
	start := len(history) - n
	if start < 0 {
		start = 0
	}
	var parts []string
	for _, m := range history[start:] {
		if m.Content != "" {
			parts = append(parts, m.Content)
		}
	}
	return capability.Fold(strings.Join(parts, " "))
}

func containsAnyFolded(tail string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(tail, capability.Fold(kw)) {
			return true
		}
	}
	return false
}
