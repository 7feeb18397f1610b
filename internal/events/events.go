// Package events publishes ticket lifecycle notifications.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/domain"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/logging"

	"github.com/google/uuid"
)

// Type names a lifecycle transition.
type Type string

const (
	// TicketClosed is emitted once a terminal ticket is persisted.
	TicketClosed Type = "ticket.closed"
	// TicketActivated is emitted when a ticket waits for continuation.
	TicketActivated Type = "ticket.activated"
)

// Event is one lifecycle notification.
type Event struct {
	ID         string                   `json:"id"`
	Type       Type                     `json:"type"`
	CustomerID string                   `json:"customer_id"`
	TicketID   string                   `json:"ticket_id"`
	Action     domain.RecommendedAction `json:"recommended_action,omitempty"`
	Urgency    domain.Urgency           `json:"urgency,omitempty"`
	TicketType string                   `json:"ticket_type,omitempty"`
	OccurredAt time.Time                `json:"occurred_at"`
}

// New builds an event for a finished run.
func New(typ Type, customerID, ticketID string, result *domain.TriageResult, at time.Time) Event {
	ev := Event{
		ID:         uuid.NewString(),
		Type:       typ,
		CustomerID: customerID,
		TicketID:   ticketID,
		OccurredAt: at.UTC(),
	}
	if result != nil {
		ev.Action = result.RecommendedAction
		ev.Urgency = result.Urgency
		ev.TicketType = result.ExtractedInfo.ProductArea
	}
	return ev
}

// Publisher delivers events. Publish failures are reported to the caller,
// which treats them as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// LogPublisher writes events to a logger.
type LogPublisher struct {
	logger logging.Logger
}

// NewLogPublisher returns a publisher logging at info level.
func NewLogPublisher(logger logging.Logger) *LogPublisher {
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("TicketEvents")
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, ev Event) error {
	p.logger.Info("event %s: ticket=%s customer=%s action=%s urgency=%s",
		ev.Type, ev.TicketID, ev.CustomerID, ev.Action, ev.Urgency)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// MemoryPublisher keeps events in memory.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

func (p *MemoryPublisher) Close() error { return nil }

// Events returns a copy of everything published so far.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

var (
	_ Publisher = Nop{}
	_ Publisher = (*LogPublisher)(nil)
	_ Publisher = (*MemoryPublisher)(nil)
	_ Publisher = (*KafkaPublisher)(nil)
)
