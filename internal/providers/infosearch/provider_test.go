package infosearch

import (
	"context"
	"errors"
	"testing"

	"github.com/atlasdesk/switchboard/internal/capability"
	"github.com/atlasdesk/switchboard/internal/kb"
	"github.com/atlasdesk/switchboard/pkg/models"
)

type stubSearcher struct {
	gotQuery string
	answer   *kb.Answer
	err      error
}

func (s *stubSearcher) Answer(ctx context.Context, query string) (*kb.Answer, error) {
	s.gotQuery = query
	return s.answer, s.err
}

func TestForcedToolIsOffered(t *testing.T) {
	p := NewProvider(&stubSearcher{}, nil)

	if p.ForceToolName() != AnswerToolName {
		t.Fatalf("forced tool = %q", p.ForceToolName())
	}
	tools, err := p.ToolsSpec(context.Background(), capability.TurnContext{})
	if err != nil {
		t.Fatalf("tools spec: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != AnswerToolName {
		t.Fatalf("tools = %+v", tools)
	}

	props, ok := tools[0].Parameters["properties"].(map[string]any)
	if !ok {
		t.Fatalf("parameters = %+v", tools[0].Parameters)
	}
	if _, ok := props["query"]; !ok {
		t.Fatalf("query property missing: %+v", props)
	}
}

func TestHandleToolCallSuccess(t *testing.T) {
	searcher := &stubSearcher{answer: &kb.Answer{
		ReplyMarkdown: "Giờ làm việc: 08:00-21:00 (theo *FAQ nội bộ*).",
		VectorStoreID: "vs_123",
	}}
	p := NewProvider(searcher, nil)

	res := p.HandleToolCall(context.Background(), "sess-1", AnswerToolName,
		map[string]any{"query": "mấy giờ mở cửa?"})
	if !res.OK {
		t.Fatalf("result = %+v", res)
	}
	if searcher.gotQuery != "mấy giờ mở cửa?" {
		t.Fatalf("query = %q", searcher.gotQuery)
	}
	if res.Payload["vector_store_id"] != "vs_123" {
		t.Fatalf("payload = %+v", res.Payload)
	}
}

func TestHandleToolCallCodedFailure(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code string
	}{
		{"no store", &kb.SearchError{Code: kb.CodeNoVectorStore, Hint: "configure a vector store"}, kb.CodeNoVectorStore},
		{"empty query", &kb.SearchError{Code: kb.CodeEmptyQuery}, kb.CodeEmptyQuery},
		{"plain error", errors.New("network down"), kb.CodeSearchFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := NewProvider(&stubSearcher{err: tc.err}, nil)
			res := p.HandleToolCall(context.Background(), "sess-1", AnswerToolName,
				map[string]any{"query": "chính sách hoàn tiền?"})
			if res.OK || res.Err == nil || res.Err.Code != tc.code {
				t.Fatalf("result = %+v, want code %s", res, tc.code)
			}
		})
	}
}

func TestHandleToolCallUnknownTool(t *testing.T) {
	p := NewProvider(&stubSearcher{}, nil)
	res := p.HandleToolCall(context.Background(), "sess-1", "info_search__nope", nil)
	if res.OK || res.Err.Code != "UNKNOWN_TOOL" {
		t.Fatalf("result = %+v", res)
	}
}

func TestPickerHintKeywords(t *testing.T) {
	p := NewProvider(&stubSearcher{}, nil)

	hint := p.PickerHint([]models.Message{
		{Role: models.RoleUser, Content: "cho tôi tra cứu quy định bảo hành"},
	})
	if hint.ScoreBump != 0.85 {
		t.Fatalf("bump = %v, want 0.85", hint.ScoreBump)
	}

	// Ticket wording suppresses the bump even with a search keyword present.
	hint = p.PickerHint([]models.Message{
		{Role: models.RoleUser, Content: "tìm giúp tôi cách tạo phiếu"},
	})
	if hint.ScoreBump != 0 {
		t.Fatalf("bump = %v, want 0", hint.ScoreBump)
	}
}
