// Package tickets implements the ticket-creation capability: admin-managed
// ticket types with typed field specs, per-turn tool generation, payload
// validation, and ticket persistence.
package tickets

import (
	"context"
	"errors"

	"github.com/atlasdesk/switchboard/pkg/models"
)

// ErrTypeNotFound is returned for unknown ticket type ids.
var ErrTypeNotFound = errors.New("ticket type not found")

// Store persists ticket types and created tickets. Type reads happen every
// turn (catalog, tools, banner); implementations keep them cheap.
type Store interface {
	ListTypes(ctx context.Context) ([]models.TicketType, error)
	GetType(ctx context.Context, id string) (*models.TicketType, error)

	// GetTypes returns the subset of the given ids that exist, in id order.
	GetTypes(ctx context.Context, ids []string) ([]models.TicketType, error)

	// UpsertType inserts or replaces a ticket type definition.
	UpsertType(ctx context.Context, t *models.TicketType) error

	// CreateTicket persists a ticket. ID, ShortID, Status, and timestamps
	// must already be set by the caller.
	CreateTicket(ctx context.Context, t *models.Ticket) error

	Close() error
}
