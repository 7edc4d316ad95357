package sessions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/atlasdesk/switchboard/pkg/models"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return NewPostgresStoreWithDB(db), mock
}

func TestPostgresGetSession(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, user_id, created_at, last_active_at FROM sessions`).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "created_at", "last_active_at"}).
			AddRow("sess-1", "user-1", now, now))

	session, err := store.GetSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if session.ID != "sess-1" || session.UserID != "user-1" {
		t.Fatalf("session = %+v", session)
	}
}

func TestPostgresGetSessionNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT id, user_id, created_at, last_active_at FROM sessions`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "created_at", "last_active_at"}))

	if _, err := store.GetSession(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPostgresTouchSessionNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE sessions SET last_active_at`).
		WithArgs(sqlmock.AnyArg(), "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.TouchSession(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPostgresAppendMessageAssignsID(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO messages`).
		WithArgs(sqlmock.AnyArg(), "sess-1", "user", "hello", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	msg := &models.Message{SessionID: "sess-1", Role: models.RoleUser, Content: "hello"}
	if err := store.AppendMessage(context.Background(), msg); err != nil {
		t.Fatalf("append: %v", err)
	}
	if msg.ID == "" || msg.CreatedAt.IsZero() {
		t.Fatalf("id/timestamp not assigned: %+v", msg)
	}
}

func TestPostgresHistory(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, session_id, role, content, created_at`).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "role", "content", "created_at"}).
			AddRow("m1", "sess-1", "user", "hi", now).
			AddRow("m2", "sess-1", "assistant", "hello", now.Add(time.Second)))

	history, err := store.History(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 || history[1].Role != models.RoleAssistant {
		t.Fatalf("history = %+v", history)
	}
}

func TestPostgresListIdleSessions(t *testing.T) {
	store, mock := newMockStore(t)
	cutoff := time.Now().Add(-24 * time.Hour)
	mock.ExpectQuery(`SELECT id FROM sessions WHERE last_active_at`).
		WithArgs(cutoff.UTC()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("old-1").AddRow("old-2"))

	ids, err := store.ListIdleSessions(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("list idle: %v", err)
	}
	if len(ids) != 2 || ids[0] != "old-1" {
		t.Fatalf("ids = %v", ids)
	}
}
