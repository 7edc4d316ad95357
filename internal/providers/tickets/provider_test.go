package tickets

import (
	"context"
	"strings"
	"testing"

	"github.com/atlasdesk/switchboard/internal/capability"
	"github.com/atlasdesk/switchboard/pkg/models"
)

func newTestProvider(t *testing.T) (*Provider, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	typ := outageType()
	if err := store.UpsertType(context.Background(), &typ); err != nil {
		t.Fatalf("seed type: %v", err)
	}
	return NewProvider(store, NewService(store, nil, nil), nil), store
}

func TestToolsSpecDiscoveryWithoutTargets(t *testing.T) {
	p, _ := newTestProvider(t)
	tools, err := p.ToolsSpec(context.Background(), capability.TurnContext{SessionID: "s"})
	if err != nil {
		t.Fatalf("ToolsSpec: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != DiscoveryToolName {
		t.Fatalf("tools = %+v, want only the discovery tool", tools)
	}
}

func TestToolsSpecPerTypeCreateTool(t *testing.T) {
	p, _ := newTestProvider(t)
	tools, err := p.ToolsSpec(context.Background(), capability.TurnContext{
		SessionID: "s",
		TargetIDs: []string{"internet_outage"},
	})
	if err != nil {
		t.Fatalf("ToolsSpec: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "create_ticket__internet_outage" {
		t.Fatalf("tools = %+v", tools)
	}
	if !strings.Contains(tools[0].Description, "'Báo sự cố internet'") {
		t.Fatalf("description = %q", tools[0].Description)
	}
	if tools[0].Parameters["type"] != "object" {
		t.Fatalf("parameters = %v", tools[0].Parameters)
	}
}

func TestHandleToolCallDiscovery(t *testing.T) {
	p, _ := newTestProvider(t)
	res := p.HandleToolCall(context.Background(), "s", DiscoveryToolName, nil)
	if !res.OK {
		t.Fatalf("discovery failed: %+v", res.Err)
	}
	if res.Payload["count"] != 1 {
		t.Fatalf("count = %v", res.Payload["count"])
	}
	rows := res.Payload["types"].([]map[string]any)
	if rows[0]["id"] != "internet_outage" || rows[0]["display_name"] != "Báo sự cố internet" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestHandleToolCallUnknownTool(t *testing.T) {
	p, _ := newTestProvider(t)
	res := p.HandleToolCall(context.Background(), "s", "weird__tool", nil)
	if res.OK || res.Err.Code != "UNKNOWN_TOOL" {
		t.Fatalf("got %+v", res)
	}
}

func TestHandleToolCallCreatesTicket(t *testing.T) {
	p, store := newTestProvider(t)
	res := p.HandleToolCall(context.Background(), "sess-1", "create_ticket__internet_outage", map[string]any{
		"address":       "12 Lý Thường Kiệt, Hà Nội",
		"contact_phone": "0901234567",
	})
	if !res.OK {
		t.Fatalf("create failed: %+v", res.Err)
	}
	if _, ok := store.Ticket(res.Payload["ticket_id"].(string)); !ok {
		t.Fatalf("ticket not persisted")
	}
}

func TestBannerChunkListsTypes(t *testing.T) {
	p, _ := newTestProvider(t)
	banner := p.BannerChunk(context.Background())
	if !strings.Contains(banner, "1 types") || !strings.Contains(banner, `"Báo sự cố internet"`) {
		t.Fatalf("banner = %q", banner)
	}
}

func TestPickerHintKeywordBump(t *testing.T) {
	p, _ := newTestProvider(t)
	h := p.PickerHint([]models.Message{
		{Role: models.RoleUser, Content: "tôi muốn tạo phiếu báo hỏng"},
	})
	if h.CapabilityID != CapabilityID || h.ScoreBump != 0.2 {
		t.Fatalf("hint = %+v", h)
	}
}

func TestPickerHintFlowContinuation(t *testing.T) {
	p, _ := newTestProvider(t)
	h := p.PickerHint([]models.Message{
		{Role: models.RoleAssistant, Content: "Vui lòng cung cấp số điện thoại liên hệ."},
		{Role: models.RoleUser, Content: "0901234567"},
	})
	if !h.InProgress || h.Continuation != capability.ContinuationPrefer {
		t.Fatalf("hint = %+v", h)
	}
}

func TestPickerHintFlowEndedByBreadcrumb(t *testing.T) {
	p, _ := newTestProvider(t)
	h := p.PickerHint([]models.Message{
		{Role: models.RoleAssistant, Content: "Vui lòng cung cấp số điện thoại."},
		{Role: models.RoleUser, Content: "0901234567"},
		{Role: models.RoleSystem, Content: "TOOL:create_ticket short_id=AB12CD type=internet_outage"},
	})
	if h.InProgress || h.Continuation == capability.ContinuationPrefer {
		t.Fatalf("ended flow still preferred: %+v", h)
	}
}
