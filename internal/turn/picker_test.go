package turn

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/atlasdesk/switchboard/internal/capability"
	"github.com/atlasdesk/switchboard/pkg/models"
)

func ticketRegistry() (*capability.Registry, *scriptProvider) {
	p := &scriptProvider{
		id:      "tickets.create",
		display: "Tạo phiếu",
		ns:      "create_ticket__",
		targets: []capability.Target{
			{ID: "internet_outage", DisplayName: "Báo sự cố internet"},
			{ID: "billing_dispute", DisplayName: "Khiếu nại cước"},
		},
	}
	reg := capability.NewRegistry(nil)
	reg.Register(p)
	return reg, p
}

func TestPickResolvesDisplayName(t *testing.T) {
	reg, _ := ticketRegistry()
	client := &fakeClient{replies: []fakeReply{
		textReply(`{"capability":"tickets.create","target_names":["báo sự cố internet"],"confidence":0.9,"reason":"outage"}`),
	}}
	picker := newTestPicker(reg, client)

	history := []models.Message{{Role: models.RoleUser, Content: "mạng nhà tôi bị rớt"}}
	pick, _, err := picker.Pick(context.Background(), history)
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if pick.Capability != "tickets.create" {
		t.Fatalf("capability = %q", pick.Capability)
	}
	if len(pick.TargetIDs) != 1 || pick.TargetIDs[0] != "internet_outage" {
		t.Fatalf("target ids = %v", pick.TargetIDs)
	}
	if pick.Confidence != 0.9 {
		t.Fatalf("confidence = %v", pick.Confidence)
	}
}

func TestPickTruncatesToOneTargetName(t *testing.T) {
	reg, _ := ticketRegistry()
	client := &fakeClient{replies: []fakeReply{
		textReply(`{"capability":"tickets.create","target_names":["Khiếu nại cước","Báo sự cố internet"]}`),
	}}
	picker := newTestPicker(reg, client)

	pick, _, err := picker.Pick(context.Background(), []models.Message{
		{Role: models.RoleUser, Content: "tôi muốn khiếu nại cước"},
	})
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if len(pick.TargetIDs) != 1 || pick.TargetIDs[0] != "billing_dispute" {
		t.Fatalf("target ids = %v, want only the first name resolved", pick.TargetIDs)
	}
	// Capability present without explicit confidence defaults high.
	if pick.Confidence != 1.0 {
		t.Fatalf("confidence = %v", pick.Confidence)
	}
}

func TestPickListIntentClearsTargets(t *testing.T) {
	reg, _ := ticketRegistry()
	client := &fakeClient{replies: []fakeReply{
		textReply(`{"capability":"tickets.create","target_names":["Báo sự cố internet"]}`),
	}}
	picker := newTestPicker(reg, client)

	pick, _, err := picker.Pick(context.Background(), []models.Message{
		{Role: models.RoleUser, Content: "liệt kê các loại phiếu hỗ trợ"},
	})
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if pick.Capability != "tickets.create" {
		t.Fatalf("capability = %q", pick.Capability)
	}
	if len(pick.TargetIDs) != 0 {
		t.Fatalf("listing question routed at a target: %v", pick.TargetIDs)
	}
}

func TestPickMalformedReplyIsNeutral(t *testing.T) {
	reg, _ := ticketRegistry()
	client := &fakeClient{replies: []fakeReply{
		textReply("Sorry, I cannot answer in JSON."),
	}}
	picker := newTestPicker(reg, client)

	pick, _, err := picker.Pick(context.Background(), nil)
	if err != nil {
		t.Fatalf("Pick: %v", err)
	}
	if pick.Capability != "" || pick.Confidence != 0 {
		t.Fatalf("malformed reply not neutral: %+v", pick)
	}
	if pick.FallbackQuestion == "" {
		t.Fatalf("neutral pick missing fallback question")
	}
}

func TestPickTransportErrorPropagates(t *testing.T) {
	reg, _ := ticketRegistry()
	wantErr := errors.New("connection refused")
	client := &fakeClient{replies: []fakeReply{{err: wantErr}}}
	picker := newTestPicker(reg, client)

	_, _, err := picker.Pick(context.Background(), nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want transport error", err)
	}
}

func TestBuildPromptContainsCatalog(t *testing.T) {
	reg, _ := ticketRegistry()
	picker := newTestPicker(reg, &fakeClient{})

	built := picker.BuildPrompt(context.Background(), []models.Message{
		{Role: models.RoleUser, Content: "xin chào"},
	})
	for _, want := range []string{
		`- tickets.create — "Tạo phiếu"`,
		"- Báo sự cố internet",
		"USER: xin chào",
	} {
		if !strings.Contains(built.Prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, built.Prompt)
		}
	}
}

func TestTranscriptCoercesUnknownRoles(t *testing.T) {
	got := transcript([]models.Message{
		{Role: "weird", Content: "hello"},
		{Role: models.RoleAssistant, Content: ""},
		{Role: models.RoleAssistant, Content: "hi"},
	})
	want := "USER: hello\nASSISTANT: hi"
	if got != want {
		t.Fatalf("transcript = %q, want %q", got, want)
	}
}
