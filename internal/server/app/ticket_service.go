// Package app adapts the triage services to the request/response shapes of
// the HTTP API.
package app

import (
	"context"
	"errors"
	"strings"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/agents"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/checkpoint"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/domain"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/graph"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/logging"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/resolution"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/storage"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/triage"
)

// Triager runs one ticket through resolution, the workflow and persistence.
type Triager interface {
	Triage(ctx context.Context, ticket domain.Ticket) (*triage.Outcome, error)
}

// ActiveTicketLister summarizes the activated tickets of a customer.
type ActiveTicketLister interface {
	ActiveTickets(ctx context.Context, customerID string) ([]agents.TicketSummary, error)
}

// TriageResponse is the API view of one triage call.
type TriageResponse struct {
	*domain.TriageResult
	TicketID   string                 `json:"ticket_id"`
	Resolution *resolution.Resolution `json:"resolution,omitempty"`
	Persisted  bool                   `json:"persisted"`
	Status     string                 `json:"status"`
	NodesRun   []string               `json:"nodes_run,omitempty"`
}

// TicketDetail is a stored ticket with its conversation.
type TicketDetail struct {
	Ticket   *domain.TicketRecord `json:"ticket"`
	Messages []domain.ChatMessage `json:"messages"`
}

// ActiveTicket is an activated ticket with its matcher summary.
type ActiveTicket struct {
	TicketID     string `json:"ticket_id"`
	Step         int    `json:"step"`
	CurrentAgent string `json:"current_agent,omitempty"`
	Summary      string `json:"summary"`
}

// TicketService serves the ticket API.
type TicketService struct {
	triager     Triager
	store       storage.Store
	active      ActiveTicketLister
	checkpoints graph.CheckpointStore
	logger      logging.Logger
}

// NewTicketService wires the API service. Any collaborator may be nil; the
// operations that need it then report ErrUnavailable.
func NewTicketService(triager Triager, store storage.Store, active ActiveTicketLister, checkpoints graph.CheckpointStore) *TicketService {
	return &TicketService{
		triager:     triager,
		store:       store,
		active:      active,
		checkpoints: checkpoints,
		logger:      logging.NewComponentLogger("TicketService"),
	}
}

// Triage runs ticket and shapes the outcome.
func (s *TicketService) Triage(ctx context.Context, ticket domain.Ticket) (*TriageResponse, error) {
	if s.triager == nil {
		return nil, UnavailableError("triage service")
	}
	outcome, err := s.triager.Triage(ctx, ticket)
	if errors.Is(err, triage.ErrInvalidTicket) {
		return nil, ValidationError(err)
	}
	if err != nil {
		return nil, err
	}
	return &TriageResponse{
		TriageResult: outcome.Result,
		TicketID:     outcome.TicketID,
		Resolution:   outcome.Resolution,
		Persisted:    outcome.Persisted(),
		Status:       outcome.Persistence,
		NodesRun:     outcome.Run.Order,
	}, nil
}

// GetTicket returns a stored ticket and its messages.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*TicketDetail, error) {
	if s.store == nil {
		return nil, UnavailableError("ticket store")
	}
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return nil, ValidationError(errors.New("ticket id is required"))
	}
	record, err := s.store.GetTicket(ctx, ticketID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, NotFoundError("ticket %s", ticketID)
	}
	if err != nil {
		return nil, err
	}
	messages, err := s.store.GetMessages(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	return &TicketDetail{Ticket: record, Messages: messages}, nil
}

// History returns a customer's tickets, newest first.
func (s *TicketService) History(ctx context.Context, customerID string, limit int) ([]domain.TicketRecord, error) {
	if s.store == nil {
		return nil, UnavailableError("ticket store")
	}
	if err := requireCustomer(customerID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = storage.DefaultHistoryLimit
	}
	records, err := s.store.GetCustomerHistory(ctx, customerID, limit)
	if err != nil {
		return nil, err
	}
	return nonNilRecords(records), nil
}

// OpenTickets returns the customer's open ticket rows.
func (s *TicketService) OpenTickets(ctx context.Context, customerID string) ([]domain.TicketRecord, error) {
	if s.store == nil {
		return nil, UnavailableError("ticket store")
	}
	if err := requireCustomer(customerID); err != nil {
		return nil, err
	}
	records, err := s.store.GetOpenTickets(ctx, customerID)
	if err != nil {
		return nil, err
	}
	return nonNilRecords(records), nil
}

// ActiveTickets lists the customer's activated tickets with the summaries
// the ticket matcher sees.
func (s *TicketService) ActiveTickets(ctx context.Context, customerID string) ([]ActiveTicket, error) {
	if s.active == nil || s.checkpoints == nil {
		return nil, UnavailableError("checkpoint store")
	}
	if err := requireCustomer(customerID); err != nil {
		return nil, err
	}
	summaries, err := s.active.ActiveTickets(ctx, customerID)
	if err != nil {
		return nil, err
	}

	tickets := make([]ActiveTicket, 0, len(summaries))
	for _, summary := range summaries {
		cp, err := checkpoint.Load(ctx, s.checkpoints, graph.NewThreadID(customerID, summary.TicketID))
		if errors.Is(err, checkpoint.ErrNotFound) {
			// Closed after it was summarized.
			continue
		}
		if err != nil {
			s.logger.Warn("skipping active ticket %s: %v", summary.TicketID, err)
			continue
		}
		tickets = append(tickets, ActiveTicket{
			TicketID:     summary.TicketID,
			Step:         cp.Metadata.Step,
			CurrentAgent: cp.State.CurrentAgent,
			Summary:      summary.Summary,
		})
	}
	return tickets, nil
}

func requireCustomer(customerID string) error {
	if strings.TrimSpace(customerID) == "" {
		return ValidationError(errors.New("customer id is required"))
	}
	return nil
}

func nonNilRecords(records []domain.TicketRecord) []domain.TicketRecord {
	if records == nil {
		return []domain.TicketRecord{}
	}
	return records
}
