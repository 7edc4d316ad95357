package sessions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/atlasdesk/switchboard/pkg/models"
)

func TestMemoryStoreSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	session, err := store.CreateSession(ctx, "user-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := store.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != "user-1" {
		t.Fatalf("user id = %q", got.UserID)
	}

	if _, err := store.GetSession(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown session err = %v", err)
	}
	if err := store.TouchSession(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("touch unknown err = %v", err)
	}
}

func TestMemoryStoreHistoryOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	session, _ := store.CreateSession(ctx, "")

	base := time.Now().UTC()
	for i, content := range []string{"first", "second", "third"} {
		msg := &models.Message{
			SessionID: session.ID,
			Role:      models.RoleUser,
			Content:   content,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := store.AppendMessage(ctx, msg); err != nil {
			t.Fatalf("append: %v", err)
		}
		if msg.ID == "" {
			t.Fatalf("message id not assigned")
		}
	}

	history, err := store.History(ctx, session.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 || history[0].Content != "first" || history[2].Content != "third" {
		t.Fatalf("history = %+v", history)
	}
}

func TestMemoryStoreAppendToUnknownSession(t *testing.T) {
	store := NewMemoryStore()
	err := store.AppendMessage(context.Background(), &models.Message{SessionID: "nope", Role: models.RoleUser, Content: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestMemoryStoreIdleListingAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	stale, _ := store.CreateSession(ctx, "")
	store.mu.Lock()
	store.sessions[stale.ID].LastActiveAt = time.Now().Add(-48 * time.Hour)
	store.mu.Unlock()

	fresh, _ := store.CreateSession(ctx, "")

	ids, err := store.ListIdleSessions(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("list idle: %v", err)
	}
	if len(ids) != 1 || ids[0] != stale.ID {
		t.Fatalf("idle ids = %v", ids)
	}

	if err := store.DeleteSession(ctx, stale.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetSession(ctx, stale.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted session still present")
	}
	if _, err := store.GetSession(ctx, fresh.ID); err != nil {
		t.Fatalf("unrelated session lost: %v", err)
	}
}
