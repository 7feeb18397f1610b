package storage

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/domain"
)

// MemoryStore keeps everything in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	tickets   map[string]domain.TicketRecord
	messages  map[string][]domain.ChatMessage
	customers map[string]domain.Customer
	nextID    int64
	now       func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickets:   map[string]domain.TicketRecord{},
		messages:  map[string][]domain.ChatMessage{},
		customers: map[string]domain.Customer{},
		now:       time.Now,
	}
}

func (s *MemoryStore) SaveTicket(ctx context.Context, record *domain.TicketRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if record == nil || record.TicketID == "" {
		return fmt.Errorf("ticket id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cloneRecord(*record)
	if existing, ok := s.tickets[record.TicketID]; ok {
		if existing.CustomerID != record.CustomerID {
			return fmt.Errorf("save ticket %s: %w", record.TicketID, ErrTicketOwner)
		}
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now().UTC()
	}
	s.tickets[record.TicketID] = stored
	return nil
}

func (s *MemoryStore) SaveMessages(ctx context.Context, ticketID string, messages []domain.ChatMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.messages[ticketID]
	for _, msg := range messages {
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = s.now().UTC()
		}
		if slices.ContainsFunc(stored, func(m domain.ChatMessage) bool { return sameMessage(m, msg) }) {
			continue
		}
		s.nextID++
		msg.ID = s.nextID
		msg.TicketID = ticketID
		stored = append(stored, msg)
	}
	s.messages[ticketID] = stored
	return nil
}

func sameMessage(a, b domain.ChatMessage) bool {
	return a.CustomerID == b.CustomerID && a.Role == b.Role && a.Content == b.Content && a.CreatedAt.Equal(b.CreatedAt)
}

func (s *MemoryStore) GetTicket(ctx context.Context, ticketID string) (*domain.TicketRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.tickets[ticketID]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneRecord(record)
	return &out, nil
}

func (s *MemoryStore) GetMessages(ctx context.Context, ticketID string) ([]domain.ChatMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ChatMessage(nil), s.messages[ticketID]...), nil
}

func (s *MemoryStore) GetCustomerHistory(ctx context.Context, customerID string, limit int) ([]domain.TicketRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	records, err := s.customerTickets(ctx, customerID, func(domain.TicketRecord) bool { return true })
	if err != nil {
		return nil, err
	}
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *MemoryStore) GetOpenTickets(ctx context.Context, customerID string) ([]domain.TicketRecord, error) {
	return s.customerTickets(ctx, customerID, func(r domain.TicketRecord) bool { return r.Status == domain.StatusOpen })
}

func (s *MemoryStore) customerTickets(ctx context.Context, customerID string, keep func(domain.TicketRecord) bool) ([]domain.TicketRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var records []domain.TicketRecord
	for _, record := range s.tickets {
		if record.CustomerID == customerID && keep(record) {
			records = append(records, cloneRecord(record))
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].TicketID > records[j].TicketID
		}
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

func (s *MemoryStore) UpsertCustomer(ctx context.Context, customer *domain.Customer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if customer == nil || customer.ID == "" {
		return fmt.Errorf("customer id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[customer.ID] = *customer
	return nil
}

func (s *MemoryStore) LookupCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	customer, ok := s.customers[customerID]
	if !ok {
		return nil, ErrNotFound
	}
	return &customer, nil
}

func (s *MemoryStore) Close() error { return nil }

func cloneRecord(r domain.TicketRecord) domain.TicketRecord {
	if r.TriageResult != nil {
		result := *r.TriageResult
		result.RelevantArticles = slices.Clone(r.TriageResult.RelevantArticles)
		r.TriageResult = &result
	}
	if r.ClosedAt != nil {
		closed := *r.ClosedAt
		r.ClosedAt = &closed
	}
	return r
}
