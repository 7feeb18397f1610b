// Package resolution decides which ticket an inbound message belongs to:
// an activated ticket of the same customer, the id the caller asked for,
// or a freshly minted one.
package resolution

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/agents"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/domain"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/graph"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/logging"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/observability"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/storage"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// Source records how a ticket id was chosen.
type Source string

const (
	SourceMatched   Source = "matched"
	SourceRequested Source = "requested"
	SourceGenerated Source = "generated"
)

const (
	defaultSummaryWorkers = 8
	summaryMessageRunes   = 100
)

// Matcher relates a message to one of the summarized tickets.
type Matcher interface {
	Match(ctx context.Context, message string, summaries []agents.TicketSummary) agents.MatchResult
}

// TicketLookup reads persisted tickets. storage.Store satisfies it.
type TicketLookup interface {
	GetTicket(ctx context.Context, ticketID string) (*domain.TicketRecord, error)
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	TicketID   string            `json:"ticket_id"`
	Source     Source            `json:"source"`
	Confidence domain.Confidence `json:"confidence,omitempty"`
	Reasoning  string            `json:"reasoning,omitempty"`
	// Candidates are the activated ticket ids considered.
	Candidates []string `json:"candidates,omitempty"`
}

// Options tune a Service. The zero value is usable.
type Options struct {
	Tracer         *observability.TracerProvider
	Metrics        *observability.MetricsCollector
	StoreMetrics   *observability.StoreMetrics
	Logger         logging.Logger
	SummaryWorkers int
	// Tickets, when set, vets requested ids: an id stored for another
	// customer or already closed is replaced by a new one.
	Tickets TicketLookup
	// NewID mints ticket ids; domain.NewTicketID by default.
	NewID func() string
}

// Service resolves ticket ids against the checkpoint store.
type Service struct {
	checkpoints graph.CheckpointStore
	matcher     Matcher
	tracer      *observability.TracerProvider
	metrics     *observability.MetricsCollector
	storeStats  *observability.StoreMetrics
	tickets     TicketLookup
	logger      logging.Logger
	workers     int
	newID       func() string
}

// NewService builds a resolver. A nil matcher disables matching, so every
// message opens the requested or a new ticket.
func NewService(checkpoints graph.CheckpointStore, matcher Matcher, opts Options) *Service {
	s := &Service{
		checkpoints: checkpoints,
		matcher:     matcher,
		tracer:      opts.Tracer,
		metrics:     opts.Metrics,
		storeStats:  opts.StoreMetrics,
		tickets:     opts.Tickets,
		logger:      opts.Logger,
		workers:     opts.SummaryWorkers,
		newID:       opts.NewID,
	}
	if s.tracer == nil {
		s.tracer = observability.NewNoopTracerProvider()
	}
	if logging.IsNil(s.logger) {
		s.logger = logging.NewComponentLogger("TicketResolver")
	}
	if s.workers <= 0 {
		s.workers = defaultSummaryWorkers
	}
	if s.newID == nil {
		s.newID = domain.NewTicketID
	}
	return s
}

// Resolve picks the ticket id for ticket. Only a high or medium confidence
// match naming one of the customer's activated tickets is accepted.
func (s *Service) Resolve(ctx context.Context, ticket domain.Ticket) (res *Resolution, err error) {
	if strings.TrimSpace(ticket.CustomerID) == "" {
		return nil, fmt.Errorf("resolve ticket: customer_id is required")
	}
	ctx = observability.ContextWithSessionID(ctx, ticket.CustomerID)
	ctx, span := s.tracer.StartSpan(ctx, observability.SpanResolution,
		attribute.String(observability.AttrSessionID, ticket.CustomerID),
	)
	defer func() {
		if res != nil {
			span.SetAttributes(
				attribute.String(observability.AttrTicketID, res.TicketID),
				attribute.String("triage.resolution.source", string(res.Source)),
			)
		}
		observability.EndSpan(span, err)
	}()

	active, err := s.checkpoints.Scan(ctx, ticket.CustomerID)
	if err != nil {
		s.storeStats.RecordCheckpointError("scan")
		return nil, fmt.Errorf("scan activated tickets of %s: %w", ticket.CustomerID, err)
	}
	s.storeStats.RecordActiveTickets(len(active))
	s.logger.Info("customer %s has %d activated tickets", ticket.CustomerID, len(active))

	if len(active) == 0 || s.matcher == nil {
		if res, err = s.fallback(ctx, ticket, active, "", ""); err != nil {
			return nil, err
		}
		s.metrics.RecordMatcherDecision(ctx, "none", string(res.Source))
		return res, nil
	}

	summaries, err := s.summarize(ctx, ticket.CustomerID, active)
	if err != nil {
		return nil, err
	}
	match := s.matcher.Match(ctx, ticket.LatestCustomerMessage(), summaries)

	if match.Confidence.Accepted() && match.MatchedTicketID != "" && slices.Contains(active, match.MatchedTicketID) {
		s.logger.Info("message matched activated ticket %s (%s)", match.MatchedTicketID, match.Confidence)
		res = &Resolution{
			TicketID:   match.MatchedTicketID,
			Source:     SourceMatched,
			Confidence: match.Confidence,
			Reasoning:  match.Reasoning,
			Candidates: active,
		}
	} else {
		if match.MatchedTicketID != "" && !slices.Contains(active, match.MatchedTicketID) {
			s.logger.Warn("matcher named unknown ticket %s, ignoring", match.MatchedTicketID)
		}
		if res, err = s.fallback(ctx, ticket, active, match.Confidence, match.Reasoning); err != nil {
			return nil, err
		}
	}
	s.metrics.RecordMatcherDecision(ctx, string(match.Confidence), string(res.Source))
	return res, nil
}

func (s *Service) fallback(ctx context.Context, ticket domain.Ticket, active []string, confidence domain.Confidence, reasoning string) (*Resolution, error) {
	res := &Resolution{Confidence: confidence, Reasoning: reasoning, Candidates: active}
	if id := strings.TrimSpace(ticket.TicketID); id != "" {
		usable, err := s.requestable(ctx, ticket.CustomerID, id, active)
		if err != nil {
			return nil, err
		}
		if usable {
			res.TicketID = id
			res.Source = SourceRequested
			return res, nil
		}
	}
	res.TicketID = s.newID()
	res.Source = SourceGenerated
	s.logger.Info("generated new ticket id %s", res.TicketID)
	return res, nil
}

// requestable reports whether the customer may continue under id. Activated
// tickets of the customer always qualify; otherwise a persisted ticket must
// belong to the customer and still be open.
func (s *Service) requestable(ctx context.Context, customerID, id string, active []string) (bool, error) {
	if s.tickets == nil || slices.Contains(active, id) {
		return true, nil
	}
	record, err := s.tickets.GetTicket(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("look up requested ticket %s: %w", id, err)
	}
	switch {
	case record.CustomerID != customerID:
		s.logger.Warn("requested ticket %s belongs to another customer, minting a new id", id)
		return false, nil
	case record.Status == domain.StatusClosed:
		s.logger.Info("requested ticket %s is closed, minting a new id", id)
		return false, nil
	}
	return true, nil
}

// ActiveTickets summarizes every activated ticket of a customer.
func (s *Service) ActiveTickets(ctx context.Context, customerID string) ([]agents.TicketSummary, error) {
	active, err := s.checkpoints.Scan(ctx, customerID)
	if err != nil {
		s.storeStats.RecordCheckpointError("scan")
		return nil, fmt.Errorf("scan activated tickets of %s: %w", customerID, err)
	}
	return s.summarize(ctx, customerID, active)
}

// summarize reads the checkpoints concurrently. Order follows ids and
// unreadable checkpoints are skipped.
func (s *Service) summarize(ctx context.Context, customerID string, ids []string) ([]agents.TicketSummary, error) {
	slots := make([]*agents.TicketSummary, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, id := range ids {
		g.Go(func() error {
			cp, err := s.checkpoints.Get(gctx, graph.NewThreadID(customerID, id))
			if err != nil {
				s.storeStats.RecordCheckpointError("get")
				s.logger.Warn("summarize ticket %s failed: %v", id, err)
				return nil
			}
			if cp == nil || cp.State == nil {
				return nil
			}
			slots[i] = &agents.TicketSummary{TicketID: id, Summary: Summarize(id, cp.State)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summaries := make([]agents.TicketSummary, 0, len(ids))
	for _, slot := range slots {
		if slot != nil {
			summaries = append(summaries, *slot)
		}
	}
	return summaries, nil
}

// Summarize renders the matcher's view of one activated ticket.
func Summarize(ticketID string, state *graph.State) string {
	ticketType, urgency := "unknown", "unknown"
	if state != nil && state.SupervisorDecision != nil {
		ticketType = orUnknown(string(state.SupervisorDecision.TicketType))
		urgency = orUnknown(string(state.SupervisorDecision.Urgency))
	}
	stage := "unknown"
	if state != nil && state.CurrentAgent != "" {
		stage = state.CurrentAgent
	}
	last := "No messages"
	if state != nil && state.Ticket != nil && len(state.Ticket.Messages) > 0 {
		last = firstRunes(state.Ticket.Messages[len(state.Ticket.Messages)-1].Content, summaryMessageRunes)
	}
	return fmt.Sprintf("**Ticket %s**\nType: %s\nUrgency: %s\nCurrent Stage: %s\nLast Message: %s...",
		ticketID, ticketType, urgency, stage, last)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func firstRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
