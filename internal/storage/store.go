// Package storage holds completed tickets, their conversations and customer
// profiles.
package storage

import (
	"context"
	"errors"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/domain"
)

// ErrNotFound is returned by single-row reads that match nothing.
var ErrNotFound = errors.New("not found")

// ErrTicketOwner is returned by SaveTicket when the ticket id is already
// stored for a different customer.
var ErrTicketOwner = errors.New("ticket belongs to another customer")

// DefaultHistoryLimit bounds GetCustomerHistory when limit <= 0.
const DefaultHistoryLimit = 10

// Store is the relational persistence boundary.
type Store interface {
	// SaveTicket inserts or updates a ticket row keyed by ticket id. An
	// update never changes the owning customer: a record naming another
	// customer fails with ErrTicketOwner.
	SaveTicket(ctx context.Context, record *domain.TicketRecord) error
	// SaveMessages appends the messages not yet stored for the ticket. A
	// message is already stored when customer, role, content and created_at
	// all match a stored row, so saving a growing conversation again only
	// adds the new turns.
	SaveMessages(ctx context.Context, ticketID string, messages []domain.ChatMessage) error
	GetTicket(ctx context.Context, ticketID string) (*domain.TicketRecord, error)
	GetMessages(ctx context.Context, ticketID string) ([]domain.ChatMessage, error)
	// GetCustomerHistory returns the newest tickets first.
	GetCustomerHistory(ctx context.Context, customerID string, limit int) ([]domain.TicketRecord, error)
	GetOpenTickets(ctx context.Context, customerID string) ([]domain.TicketRecord, error)
	UpsertCustomer(ctx context.Context, customer *domain.Customer) error
	LookupCustomer(ctx context.Context, customerID string) (*domain.Customer, error)
	Close() error
}
