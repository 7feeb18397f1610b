package domain

import "time"

// Ticket statuses in the relational store.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Chat message roles in the relational store.
const (
	ChatRoleHuman = "human"
	ChatRoleAI    = "ai"
)

// TicketRecord is a completed (or open) ticket row.
type TicketRecord struct {
	TicketID     string        `json:"ticket_id"`
	CustomerID   string        `json:"customer_id"`
	Status       string        `json:"status"`
	Urgency      Urgency       `json:"urgency,omitempty"`
	TicketType   string        `json:"ticket_type,omitempty"`
	TriageResult *TriageResult `json:"triage_result,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	ClosedAt     *time.Time    `json:"closed_at,omitempty"`
}

// ChatMessage is one persisted conversation turn.
type ChatMessage struct {
	ID         int64     `json:"id,omitempty"`
	TicketID   string    `json:"ticket_id"`
	CustomerID string    `json:"customer_id"`
	Role       string    `json:"role"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// Customer is a customer profile row.
type Customer struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Plan         string `json:"plan"`
	TenureMonths int    `json:"tenure_months"`
	Region       string `json:"region,omitempty"`
	Seats        int    `json:"seats,omitempty"`
	Notes        string `json:"notes,omitempty"`

	PreviousTickets int `json:"previous_tickets"`
}
