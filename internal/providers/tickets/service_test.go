package tickets

import (
	"context"
	"strings"
	"testing"

	"github.com/atlasdesk/switchboard/pkg/models"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

type statStub struct {
	files []models.Artifact
}

func (s statStub) Stat(ctx context.Context, ids []string) ([]models.Artifact, error) {
	var out []models.Artifact
	for _, id := range ids {
		for _, f := range s.files {
			if f.ID == id {
				out = append(out, f)
			}
		}
	}
	return out, nil
}

func outageType() models.TicketType {
	return models.TicketType{
		ID:          "internet_outage",
		DisplayName: "Báo sự cố internet",
		Fields: []models.FieldSpec{
			{Key: "address", Type: models.FieldString, Required: true, MinLength: intPtr(5), MaxLength: intPtr(100)},
			{Key: "contact_phone", Type: models.FieldPhone, Required: true, Pattern: `0\d{9}`},
			{Key: "symptom", Type: models.FieldEnum, Enum: []string{"no_connection", "slow"}},
			{Key: "downtime_hours", Type: models.FieldNumber, Minimum: floatPtr(0), Maximum: floatPtr(72)},
			{
				Key: "router_photo", Type: models.FieldFile, MaxCount: intPtr(2),
				Accept:     models.FileAccept{Mime: []string{"image/*"}, Ext: []string{"jpg", "png"}},
				PerFileMax: 5,
			},
		},
	}
}

func newTestService(t *testing.T, artifacts ArtifactStat) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	typ := outageType()
	if err := store.UpsertType(context.Background(), &typ); err != nil {
		t.Fatalf("seed type: %v", err)
	}
	return NewService(store, artifacts, nil), store
}

func validFields() map[string]any {
	return map[string]any{
		"address":       "12 Lý Thường Kiệt, Hà Nội",
		"contact_phone": "0901234567",
	}
}

func failCode(t *testing.T, svc *Service, fields map[string]any, wantCode string) {
	t.Helper()
	res := svc.Create(context.Background(), "sess-1", "internet_outage", fields)
	if res.OK {
		t.Fatalf("expected %s, got success", wantCode)
	}
	if res.Err.Code != wantCode {
		t.Fatalf("code = %s, want %s (err: %+v)", res.Err.Code, wantCode, res.Err)
	}
}

func TestCreateUnknownType(t *testing.T) {
	svc, _ := newTestService(t, nil)
	res := svc.Create(context.Background(), "sess-1", "nope", nil)
	if res.OK || res.Err.Code != "TYPE_NOT_FOUND" {
		t.Fatalf("got %+v", res)
	}
}

func TestCreateMissingFields(t *testing.T) {
	svc, _ := newTestService(t, nil)
	res := svc.Create(context.Background(), "sess-1", "internet_outage", map[string]any{"address": "12 Lý Thường Kiệt"})
	if res.OK || res.Err.Code != "MISSING_FIELDS" {
		t.Fatalf("got %+v", res)
	}
	if len(res.Err.Fields) != 1 || res.Err.Fields[0] != "contact_phone" {
		t.Fatalf("missing fields = %v", res.Err.Fields)
	}
}

func TestCreateFieldValidation(t *testing.T) {
	svc, _ := newTestService(t, nil)

	f := validFields()
	f["extra"] = "x"
	failCode(t, svc, f, "UNKNOWN_FIELD")

	f = validFields()
	f["symptom"] = "on_fire"
	failCode(t, svc, f, "INVALID_ENUM")

	f = validFields()
	f["downtime_hours"] = "three"
	failCode(t, svc, f, "INVALID_NUMBER")

	f = validFields()
	f["downtime_hours"] = 100.0
	failCode(t, svc, f, "INVALID_RANGE")

	f = validFields()
	f["address"] = "ngắn"
	failCode(t, svc, f, "STRING_TOO_SHORT")

	f = validFields()
	f["address"] = strings.Repeat("a", 101)
	failCode(t, svc, f, "STRING_TOO_LONG")

	f = validFields()
	f["contact_phone"] = "12345"
	failCode(t, svc, f, "PATTERN_MISMATCH")
}

func TestCreatePatternIsAnchored(t *testing.T) {
	svc, _ := newTestService(t, nil)
	f := validFields()
	// A valid phone embedded in extra text must not match.
	f["contact_phone"] = "call me at 0901234567 please"
	failCode(t, svc, f, "PATTERN_MISMATCH")
}

func TestCreateFileValidation(t *testing.T) {
	stat := statStub{files: []models.Artifact{
		{ID: "f1", SessionID: "sess-1", Name: "router.jpg", Mime: "image/jpeg", Size: 1 << 20},
		{ID: "f2", SessionID: "other-session", Name: "router.jpg", Mime: "image/jpeg", Size: 1 << 20},
		{ID: "f3", SessionID: "sess-1", Name: "notes.pdf", Mime: "application/pdf", Size: 1 << 20},
		{ID: "f4", SessionID: "sess-1", Name: "big.png", Mime: "image/png", Size: 6 << 20},
	}}
	svc, _ := newTestService(t, stat)

	f := validFields()
	f["router_photo"] = "not-an-array"
	failCode(t, svc, f, "INVALID_FILE")

	f = validFields()
	f["router_photo"] = []any{"f1", "f1", "f1"}
	failCode(t, svc, f, "INVALID_FILE") // over max_count

	f = validFields()
	f["router_photo"] = []any{"missing-id"}
	failCode(t, svc, f, "INVALID_FILE")

	f = validFields()
	f["router_photo"] = []any{"f2"}
	failCode(t, svc, f, "INVALID_FILE") // other session's upload

	f = validFields()
	f["router_photo"] = []any{"f3"}
	failCode(t, svc, f, "INVALID_FILE") // pdf against image/*

	f = validFields()
	f["router_photo"] = []any{"f4"}
	failCode(t, svc, f, "INVALID_FILE") // over per-file limit

	f = validFields()
	f["router_photo"] = []any{"f1"}
	res := svc.Create(context.Background(), "sess-1", "internet_outage", f)
	if !res.OK {
		t.Fatalf("valid attachment rejected: %+v", res.Err)
	}
}

func TestCreateSuccess(t *testing.T) {
	svc, store := newTestService(t, nil)
	res := svc.Create(context.Background(), "sess-1", "internet_outage", validFields())
	if !res.OK {
		t.Fatalf("create failed: %+v", res.Err)
	}

	shortID, _ := res.Payload["short_id"].(string)
	if len(shortID) != 6 {
		t.Fatalf("short id = %q", shortID)
	}
	for _, r := range shortID {
		if !strings.ContainsRune(shortIDAlphabet, r) {
			t.Fatalf("short id %q outside alphabet", shortID)
		}
	}
	if res.Payload["status"] != "open" || res.Payload["type"] != "internet_outage" {
		t.Fatalf("payload = %v", res.Payload)
	}

	ticketID, _ := res.Payload["ticket_id"].(string)
	stored, ok := store.Ticket(ticketID)
	if !ok {
		t.Fatalf("ticket %q not persisted", ticketID)
	}
	if stored.SessionID != "sess-1" || stored.ShortID != shortID {
		t.Fatalf("stored ticket = %+v", stored)
	}
}
