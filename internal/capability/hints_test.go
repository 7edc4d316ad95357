package capability

import (
	"testing"

	"github.com/atlasdesk/switchboard/pkg/models"
)

func userMsg(content string) models.Message {
	return models.Message{Role: models.RoleUser, Content: content}
}

func TestSuggestCapabilityPicksHighestScore(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(&stubProvider{
		id:   "tickets.create",
		hint: Hint{ScoreBump: 0.2, KeywordsAny: []string{"tạo phiếu"}},
	})
	reg.Register(&stubProvider{
		id:   "info.search",
		hint: Hint{ScoreBump: 0.1},
	})

	s := SuggestCapability(reg, []models.Message{userMsg("tôi muốn tao phieu mới")}, nil)
	if s.CapabilityID != "tickets.create" {
		t.Fatalf("suggested %q, want tickets.create", s.CapabilityID)
	}
	// Bump plus keyword match.
	if s.Score < 0.44 || s.Score > 0.46 {
		t.Fatalf("score = %v, want 0.45", s.Score)
	}
}

func TestSuggestCapabilityNegativeKeywordLowers(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(&stubProvider{
		id:   "info.search",
		hint: Hint{ScoreBump: 0.3, NegativeAny: []string{"tạo phiếu"}},
	})

	s := SuggestCapability(reg, []models.Message{userMsg("tạo phiếu giúp tôi")}, nil)
	if s.CapabilityID != "" {
		t.Fatalf("expected no suggestion, got %q (score %v)", s.CapabilityID, s.Score)
	}
}

func TestSuggestCapabilityInProgressFlow(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(&stubProvider{
		id:   "tickets.create",
		hint: Hint{InProgress: true, Continuation: ContinuationPrefer},
	})

	s := SuggestCapability(reg, []models.Message{userMsg("0901234567")}, nil)
	if s.CapabilityID != "tickets.create" {
		t.Fatalf("in-progress flow not preferred, got %q", s.CapabilityID)
	}
	if s.Score < 0.79 || s.Score > 0.81 {
		t.Fatalf("score = %v, want 0.8", s.Score)
	}
}

func TestSuggestCapabilityZeroScoreIsEmpty(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(&stubProvider{id: "tickets.create"})

	s := SuggestCapability(reg, []models.Message{userMsg("xin chào")}, nil)
	if s.CapabilityID != "" {
		t.Fatalf("zero-score hint still suggested %q", s.CapabilityID)
	}
	if len(s.Scored) != 1 {
		t.Fatalf("scored list missing, got %d entries", len(s.Scored))
	}
}

func TestSuggestCapabilitySurvivesPanickingHint(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(&stubProvider{id: "broken.cap", panics: true})
	reg.Register(&stubProvider{
		id:   "tickets.create",
		hint: Hint{ScoreBump: 0.2},
	})

	s := SuggestCapability(reg, []models.Message{userMsg("anything")}, nil)
	if s.CapabilityID != "tickets.create" {
		t.Fatalf("panicking sibling broke scoring, got %q", s.CapabilityID)
	}
}
