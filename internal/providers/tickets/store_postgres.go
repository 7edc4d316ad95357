package tickets

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // Postgres driver

	"github.com/atlasdesk/switchboard/pkg/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS ticket_types (
	id           TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	fields       JSONB NOT NULL DEFAULT '[]'
);
CREATE TABLE IF NOT EXISTS tickets (
	id         TEXT PRIMARY KEY,
	short_id   TEXT NOT NULL,
	type_id    TEXT NOT NULL REFERENCES ticket_types(id),
	session_id TEXT NOT NULL,
	fields     JSONB NOT NULL DEFAULT '{}',
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tickets_session ON tickets(session_id);
CREATE INDEX IF NOT EXISTS idx_tickets_short ON tickets(short_id);
`

// PostgresStore is the production ticket store. Field specs and ticket
// payloads are stored as JSONB documents.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to Postgres and ensures the schema exists.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ticket store: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping ticket store: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ticket store: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreWithDB wraps an existing connection, for tests.
func NewPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ListTypes(ctx context.Context) ([]models.TicketType, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, display_name, description, fields FROM ticket_types ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list ticket types: %w", err)
	}
	defer rows.Close()
	return scanTypes(rows)
}

func (s *PostgresStore) GetType(ctx context.Context, id string) (*models.TicketType, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, description, fields FROM ticket_types WHERE id = $1`, id)
	t, err := scanType(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTypeNotFound
		}
		return nil, fmt.Errorf("get ticket type: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) GetTypes(ctx context.Context, ids []string) ([]models.TicketType, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	// Id lists are tiny, usually a single resolved target.
	var out []models.TicketType
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		t, err := s.GetType(ctx, id)
		if errors.Is(err, ErrTypeNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, nil
}

func (s *PostgresStore) UpsertType(ctx context.Context, t *models.TicketType) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("ticket type requires an id")
	}
	fields, err := json.Marshal(t.Fields)
	if err != nil {
		return fmt.Errorf("encode field specs: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ticket_types (id, display_name, description, fields)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		 SET display_name = $2, description = $3, fields = $4`,
		t.ID, t.DisplayName, t.Description, fields)
	if err != nil {
		return fmt.Errorf("upsert ticket type: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateTicket(ctx context.Context, t *models.Ticket) error {
	fields, err := json.Marshal(t.Fields)
	if err != nil {
		return fmt.Errorf("encode ticket fields: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tickets (id, short_id, type_id, session_id, fields, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.ShortID, t.TypeID, t.SessionID, fields, t.Status, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanType(row rowScanner) (*models.TicketType, error) {
	var t models.TicketType
	var fields []byte
	if err := row.Scan(&t.ID, &t.DisplayName, &t.Description, &fields); err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &t.Fields); err != nil {
			return nil, fmt.Errorf("decode field specs for %q: %w", t.ID, err)
		}
	}
	return &t, nil
}

func scanTypes(rows *sql.Rows) ([]models.TicketType, error) {
	var out []models.TicketType
	for rows.Next() {
		t, err := scanType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
