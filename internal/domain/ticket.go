package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageRole identifies the author of an inbound ticket message.
type MessageRole string

const (
	RoleCustomer MessageRole = "customer"
	RoleAgent    MessageRole = "agent"
)

// TicketMessage is one message of the inbound conversation.
type TicketMessage struct {
	Role      MessageRole `json:"role" binding:"required,oneof=customer agent"`
	Content   string      `json:"content" binding:"required"`
	Timestamp time.Time   `json:"timestamp"`
}

// CustomerInfo is the customer context supplied with a ticket.
type CustomerInfo struct {
	Plan            string `json:"plan"`
	TenureMonths    int    `json:"tenure_months"`
	Region          string `json:"region,omitempty"`
	Seats           *int   `json:"seats,omitempty"`
	PreviousTickets int    `json:"previous_tickets"`
}

// Ticket is the inbound support request. It is read-only inside the workflow.
type Ticket struct {
	TicketID     string          `json:"ticket_id,omitempty"`
	CustomerID   string          `json:"customer_id" binding:"required"`
	CustomerInfo CustomerInfo    `json:"customer_info"`
	Messages     []TicketMessage `json:"messages" binding:"required,min=1,dive"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
}

// Validate checks the invariants the workflow relies on.
func (t Ticket) Validate() error {
	if strings.TrimSpace(t.CustomerID) == "" {
		return fmt.Errorf("customer_id is required")
	}
	if strings.Contains(t.CustomerID, ":") || strings.Contains(t.TicketID, ":") {
		return fmt.Errorf("customer_id and ticket_id must not contain ':'")
	}
	if len(t.Messages) == 0 {
		return fmt.Errorf("at least one message is required")
	}
	for i, msg := range t.Messages {
		if msg.Role != RoleCustomer && msg.Role != RoleAgent {
			return fmt.Errorf("message %d: unknown role %q", i+1, msg.Role)
		}
		if strings.TrimSpace(msg.Content) == "" {
			return fmt.Errorf("message %d: content is empty", i+1)
		}
	}
	return nil
}

// LatestCustomerMessage returns the newest customer-authored text, falling
// back to the newest message of any role.
func (t Ticket) LatestCustomerMessage() string {
	for i := len(t.Messages) - 1; i >= 0; i-- {
		if t.Messages[i].Role == RoleCustomer {
			return t.Messages[i].Content
		}
	}
	if n := len(t.Messages); n > 0 {
		return t.Messages[n-1].Content
	}
	return ""
}

// MessageTexts returns the message contents in order.
func (t Ticket) MessageTexts() []string {
	texts := make([]string, len(t.Messages))
	for i, msg := range t.Messages {
		texts[i] = msg.Content
	}
	return texts
}

// NewTicketID mints an id of the form TKT-XXXXXXXX.
func NewTicketID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TKT-" + strings.ToUpper(hex[:8])
}
