// Package sessions persists conversations: sessions plus their ordered
// message history. Internal breadcrumb markers are stored as ordinary
// system-role rows; filtering them is the reader's concern.
package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/atlasdesk/switchboard/pkg/models"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("session not found")

// Store is the session/message persistence interface.
type Store interface {
	CreateSession(ctx context.Context, userID string) (*models.Session, error)
	GetSession(ctx context.Context, id string) (*models.Session, error)

	// TouchSession bumps the session's last-activity timestamp.
	TouchSession(ctx context.Context, id string) error

	// AppendMessage persists one message. The store assigns ID and
	// CreatedAt when they are unset.
	AppendMessage(ctx context.Context, msg *models.Message) error

	// History returns the session's messages ordered oldest to newest.
	History(ctx context.Context, sessionID string) ([]models.Message, error)

	// ListIdleSessions returns ids of sessions with no activity since the
	// cutoff, for the retention sweeper.
	ListIdleSessions(ctx context.Context, cutoff time.Time) ([]string, error)

	// DeleteSession removes a session and its messages.
	DeleteSession(ctx context.Context, id string) error

	Close() error
}
