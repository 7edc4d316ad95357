package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/atlasdesk/switchboard/internal/artifacts"
	"github.com/atlasdesk/switchboard/internal/auth"
	"github.com/atlasdesk/switchboard/internal/capability"
	"github.com/atlasdesk/switchboard/internal/config"
	"github.com/atlasdesk/switchboard/internal/llm"
	"github.com/atlasdesk/switchboard/internal/observability"
	"github.com/atlasdesk/switchboard/internal/providers/tickets"
	"github.com/atlasdesk/switchboard/internal/sessions"
	"github.com/atlasdesk/switchboard/internal/turn"
	"github.com/atlasdesk/switchboard/pkg/models"
)

type fakeLLM struct {
	replies []*llm.Completion
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.Completion, error) {
	if len(f.replies) == 0 {
		return &llm.Completion{Text: "{}"}, nil
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply, nil
}

type testEnv struct {
	server *Server
	store  sessions.Store
	llm    *fakeLLM
	jwt    *auth.JWTService
}

func newTestEnv(t *testing.T, secret string) *testEnv {
	t.Helper()
	logger := observability.NewLogger(observability.LogConfig{Output: io.Discard})
	store := sessions.NewMemoryStore()
	client := &fakeLLM{}

	reg := capability.NewRegistry(logger.Slog())
	picker := turn.NewPicker(reg, client, "picker-model", nil, logger, nil, nil)
	controller, err := turn.NewController(turn.ControllerOptions{
		Registry:   reg,
		Picker:     picker,
		Store:      store,
		Client:     client,
		ActorModel: "actor-model",
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("controller: %v", err)
	}

	blob, err := artifacts.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}
	repo := artifacts.NewRepository(blob, 64)
	t.Cleanup(func() { repo.Close() })

	ticketStore := tickets.NewMemoryStore()

	jwtSvc := auth.NewJWTService(secret, time.Hour)
	server := NewServer(Options{
		Config:     config.ServerConfig{},
		Controller: controller,
		Picker:     picker,
		Store:      store,
		Tickets:    ticketStore,
		Artifacts:  repo,
		JWT:        jwtSvc,
		Logger:     logger,
	})
	return &testEnv{server: server, store: store, llm: client, jwt: jwtSvc}
}

func (e *testEnv) do(t *testing.T, method, target, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, "")
	rec := env.do(t, http.MethodGet, "/healthz", "", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGuestAuthAndSessionCreate(t *testing.T) {
	env := newTestEnv(t, "test-secret")

	rec := env.do(t, http.MethodPost, "/v1/auth/guest", "", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("guest auth status = %d", rec.Code)
	}
	var body struct {
		UserID string `json:"user_id"`
		Token  string `json:"token"`
	}
	decodeBody(t, rec, &body)
	if body.Token == "" || !strings.HasPrefix(body.UserID, "guest_") {
		t.Fatalf("guest body = %+v", body)
	}

	rec = env.do(t, http.MethodPost, "/v1/sessions", body.Token, nil, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session status = %d: %s", rec.Code, rec.Body)
	}
	var session models.Session
	decodeBody(t, rec, &session)
	if session.UserID != body.UserID {
		t.Fatalf("session bound to %q, want %q", session.UserID, body.UserID)
	}
}

func TestAuthRejectsMissingToken(t *testing.T) {
	env := newTestEnv(t, "test-secret")
	rec := env.do(t, http.MethodPost, "/v1/sessions", "", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAuthAcceptsQueryToken(t *testing.T) {
	env := newTestEnv(t, "test-secret")
	_, token, err := env.jwt.IssueGuest()
	if err != nil {
		t.Fatalf("issue guest: %v", err)
	}
	rec := env.do(t, http.MethodPost, "/v1/sessions?token="+token, "", nil, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAuthDisabledPassesAnonymously(t *testing.T) {
	env := newTestEnv(t, "")
	rec := env.do(t, http.MethodPost, "/v1/sessions", "", nil, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGuestAuthDisabled(t *testing.T) {
	env := newTestEnv(t, "")
	rec := env.do(t, http.MethodPost, "/v1/auth/guest", "", nil, "")
	if rec.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d, want 501", rec.Code)
	}
}

func TestHistoryHidesSystemRows(t *testing.T) {
	env := newTestEnv(t, "")
	ctx := context.Background()
	session, _ := env.store.CreateSession(ctx, "")
	for _, m := range []models.Message{
		{SessionID: session.ID, Role: models.RoleUser, Content: "xin chào"},
		{SessionID: session.ID, Role: models.RoleSystem, Content: "TOOL:create_ticket short_id=AB12CD type=internet_outage"},
		{SessionID: session.ID, Role: models.RoleAssistant, Content: "chào bạn"},
	} {
		msg := m
		env.store.AppendMessage(ctx, &msg)
	}

	rec := env.do(t, http.MethodGet, "/v1/sessions/"+session.ID+"/messages", "", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Messages []models.Message `json:"messages"`
	}
	decodeBody(t, rec, &body)
	if len(body.Messages) != 2 {
		t.Fatalf("messages = %+v", body.Messages)
	}
	for _, m := range body.Messages {
		if m.Role == models.RoleSystem {
			t.Fatalf("system row leaked: %+v", m)
		}
	}
}

func TestHistoryUnknownSession(t *testing.T) {
	env := newTestEnv(t, "")
	rec := env.do(t, http.MethodGet, "/v1/sessions/nope/messages", "", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSessionOwnershipEnforced(t *testing.T) {
	env := newTestEnv(t, "test-secret")
	session, _ := env.store.CreateSession(context.Background(), "someone-else")

	_, token, err := env.jwt.IssueGuest()
	if err != nil {
		t.Fatalf("issue guest: %v", err)
	}
	rec := env.do(t, http.MethodGet, "/v1/sessions/"+session.ID+"/messages", token, nil, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestSendMessageRunsTurn(t *testing.T) {
	env := newTestEnv(t, "")
	session, _ := env.store.CreateSession(context.Background(), "")
	env.llm.replies = []*llm.Completion{
		{Text: `{"capability": null, "target_names": [], "confidence": 0, "reason": "greeting", "fallback_question": ""}`},
		{Text: "Chào bạn, mình giúp được gì?"},
	}

	rec := env.do(t, http.MethodPost, "/v1/sessions/"+session.ID+"/messages", "",
		strings.NewReader(`{"content": "xin chào"}`), "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var result models.TurnResult
	decodeBody(t, rec, &result)
	if result.Text != "Chào bạn, mình giúp được gì?" || result.SessionID != session.ID {
		t.Fatalf("result = %+v", result)
	}
}

func TestSendMessageRequiresContent(t *testing.T) {
	env := newTestEnv(t, "")
	session, _ := env.store.CreateSession(context.Background(), "")
	rec := env.do(t, http.MethodPost, "/v1/sessions/"+session.ID+"/messages", "",
		strings.NewReader(`{"content": "  "}`), "application/json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func multipartUpload(t *testing.T, field, filename string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	fw.Write(payload)
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestUploadStoresArtifact(t *testing.T) {
	env := newTestEnv(t, "")
	session, _ := env.store.CreateSession(context.Background(), "")
	body, contentType := multipartUpload(t, "file", "router.jpg", []byte("jpeg bytes"))

	rec := env.do(t, http.MethodPost, "/v1/uploads?session_id="+session.ID, "", body, contentType)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var artifact models.Artifact
	decodeBody(t, rec, &artifact)
	if artifact.ID == "" || artifact.SessionID != session.ID {
		t.Fatalf("artifact = %+v", artifact)
	}
}

func TestUploadTooLarge(t *testing.T) {
	env := newTestEnv(t, "")
	session, _ := env.store.CreateSession(context.Background(), "")
	body, contentType := multipartUpload(t, "file", "big.bin", make([]byte, 65))

	rec := env.do(t, http.MethodPost, "/v1/uploads?session_id="+session.ID, "", body, contentType)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

func TestUploadMissingFile(t *testing.T) {
	env := newTestEnv(t, "")
	session, _ := env.store.CreateSession(context.Background(), "")
	body, contentType := multipartUpload(t, "wrong_field", "a.txt", []byte("x"))

	rec := env.do(t, http.MethodPost, "/v1/uploads?session_id="+session.ID, "", body, contentType)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTicketTypesListing(t *testing.T) {
	env := newTestEnv(t, "")
	rec := env.do(t, http.MethodGet, "/v1/ticket-types", "", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Count int `json:"count"`
	}
	decodeBody(t, rec, &body)
	if body.Count != 0 {
		t.Fatalf("count = %d", body.Count)
	}
}

func TestDebugPick(t *testing.T) {
	env := newTestEnv(t, "")
	session, _ := env.store.CreateSession(context.Background(), "")
	msg := models.Message{SessionID: session.ID, Role: models.RoleUser, Content: "xin chào"}
	env.store.AppendMessage(context.Background(), &msg)
	env.llm.replies = []*llm.Completion{
		{Text: `{"capability": null, "target_names": [], "confidence": 0, "reason": "greeting", "fallback_question": ""}`},
	}

	rec := env.do(t, http.MethodPost, "/v1/debug/pick", "",
		strings.NewReader(`{"session_id": "`+session.ID+`"}`), "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var body struct {
		Prompt string          `json:"prompt"`
		Pick   json.RawMessage `json:"pick"`
	}
	decodeBody(t, rec, &body)
	if !strings.Contains(body.Prompt, "USER: xin chào") {
		t.Fatalf("prompt missing transcript:\n%s", body.Prompt)
	}
	if len(body.Pick) == 0 {
		t.Fatalf("pick missing: %s", rec.Body)
	}
}
