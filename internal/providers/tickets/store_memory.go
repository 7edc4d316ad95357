package tickets

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/atlasdesk/switchboard/pkg/models"
)

// MemoryStore keeps ticket types and tickets in memory. It backs tests and
// single-node deployments seeded from a YAML file.
type MemoryStore struct {
	mu      sync.RWMutex
	types   map[string]models.TicketType
	tickets map[string]models.Ticket
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		types:   make(map[string]models.TicketType),
		tickets: make(map[string]models.Ticket),
	}
}

// NewMemoryStoreFromFile seeds the store from a YAML file of ticket types.
func NewMemoryStoreFromFile(path string) (*MemoryStore, error) {
	types, err := LoadTypesFile(path)
	if err != nil {
		return nil, err
	}
	s := NewMemoryStore()
	for i := range types {
		s.types[types[i].ID] = types[i]
	}
	return s, nil
}

/// LoadTypesFile parses a YAML seed file: {ticket_types: [...]}.
func LoadTypesFile(path string) ([]models.TicketType, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ticket types: %w", err)
	}
	var doc struct {
		TicketTypes []models.TicketType `yaml:"ticket_types"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse ticket types: %w", err)
	}
	for i := range doc.TicketTypes {
		if doc.TicketTypes[i].ID == "" {
			return nil, fmt.Errorf("ticket type %d: missing id", i)
		}
		if doc.TicketTypes[i].DisplayName == "" {
			doc.TicketTypes[i].DisplayName = doc.TicketTypes[i].ID
		}
	}
	return doc.TicketTypes, nil
}

func (s *MemoryStore) ListTypes(ctx context.Context) ([]models.TicketType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.TicketType, 0, len(s.types))
	for _, t := range s.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetType(ctx context.Context, id string) (*models.TicketType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.types[id]
	if !ok {
		return nil, ErrTypeNotFound
	}
	return &t, nil
}

func (s *MemoryStore) GetTypes(ctx context.Context, ids []string) ([]models.TicketType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool, len(ids))
	var out []models.TicketType
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if t, ok := s.types[id]; ok {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) UpsertType(ctx context.Context, t *models.TicketType) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("ticket type requires an id")
	}
	s.mu.Lock()
	s.types[t.ID] = *t
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) CreateTicket(ctx context.Context, t *models.Ticket) error {
	s.mu.Lock()
	s.tickets[t.ID] = *t
	s.mu.Unlock()
	return nil
}

// Ticket returns a stored ticket by id, for tests and the admin surface.
func (s *MemoryStore) Ticket(id string) (models.Ticket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	return t, ok
}

func (s *MemoryStore) Close() error { return nil }
