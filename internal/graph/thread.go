package graph

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ThreadID identifies one ticket conversation: {customer_id}:{ticket_id}.
type ThreadID struct {
	CustomerID string
	TicketID   string
}

// NewThreadID builds a thread identity.
func NewThreadID(customerID, ticketID string) ThreadID {
	return ThreadID{CustomerID: customerID, TicketID: ticketID}
}

func (id ThreadID) String() string {
	return id.CustomerID + ":" + id.TicketID
}

// Validate rejects empty parts and parts containing the separator.
func (id ThreadID) Validate() error {
	if id.CustomerID == "" || id.TicketID == "" {
		return fmt.Errorf("thread id needs customer and ticket: %q", id.String())
	}
	if strings.Contains(id.CustomerID, ":") || strings.Contains(id.TicketID, ":") {
		return fmt.Errorf("thread id parts must not contain ':': %q", id.String())
	}
	return nil
}

// ParseThreadID parses "customer:ticket".
func ParseThreadID(s string) (ThreadID, error) {
	customer, ticket, ok := strings.Cut(s, ":")
	id := ThreadID{CustomerID: customer, TicketID: ticket}
	if !ok {
		return id, fmt.Errorf("malformed thread id %q", s)
	}
	return id, id.Validate()
}

// Checkpoint sources.
const (
	SourceLoop = "loop"
)

// Metadata describes the write that produced a checkpoint.
type Metadata struct {
	Step      int       `json:"step"`
	Node      string    `json:"node"`
	Source    string    `json:"source"`
	WrittenAt time.Time `json:"written_at"`
}

// Checkpoint is the latest saved state of a thread.
type Checkpoint struct {
	Thread   ThreadID `json:"-"`
	State    *State   `json:"state"`
	Metadata Metadata `json:"metadata"`
}

// CheckpointStore persists the latest state per thread. A thread with a
// checkpoint is an activated ticket.
type CheckpointStore interface {
	// Get returns nil, nil when the thread has no checkpoint.
	Get(ctx context.Context, thread ThreadID) (*Checkpoint, error)
	Put(ctx context.Context, thread ThreadID, state *State, meta Metadata) error
	// Scan lists the activated ticket ids of a customer, sorted.
	Scan(ctx context.Context, customerID string) ([]string, error)
	Delete(ctx context.Context, thread ThreadID) error
}
