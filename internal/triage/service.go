// Package triage runs one inbound ticket end to end: resolve the ticket
// id, run the workflow on its thread, then persist terminal tickets.
package triage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/domain"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/events"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/graph"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/logging"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/observability"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/resolution"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/storage"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/workflow"

	"go.opentelemetry.io/otel/attribute"
)

// ErrInvalidTicket marks input the service refuses to run.
var ErrInvalidTicket = errors.New("invalid ticket")

// Persistence outcomes, also used as metric labels.
const (
	PersistClosed    = "closed"
	PersistActivated = "activated"
	PersistSkipped   = "skipped"
	PersistFailed    = "failed"
)

// Resolver picks the ticket id for an inbound ticket.
type Resolver interface {
	Resolve(ctx context.Context, ticket domain.Ticket) (*resolution.Resolution, error)
}

// Workflow runs the agent graph on one thread.
type Workflow interface {
	Invoke(ctx context.Context, ticket domain.Ticket, thread graph.ThreadID) (*graph.Result, error)
	Checkpoints() graph.CheckpointStore
}

// Outcome is everything one triage call produced.
type Outcome struct {
	TicketID   string
	Resolution *resolution.Resolution
	Result     *domain.TriageResult
	State      *graph.State
	Run        workflow.Snapshot
	// Persistence is one of the Persist* outcomes.
	Persistence string
}

// Persisted reports whether the ticket moved to the relational store.
func (o *Outcome) Persisted() bool {
	return o != nil && o.Persistence == PersistClosed
}

// Options configures a Service.
type Options struct {
	Events       events.Publisher
	Tracer       *observability.TracerProvider
	StoreMetrics *observability.StoreMetrics
	Logger       logging.Logger
	Now          func() time.Time
}

// Service coordinates resolution, the workflow and persistence. Calls for
// the same customer are serialized; different customers run in parallel.
type Service struct {
	resolver   Resolver
	workflow   Workflow
	store      storage.Store
	events     events.Publisher
	tracer     *observability.TracerProvider
	storeStats *observability.StoreMetrics
	logger     logging.Logger
	now        func() time.Time
	locks      *keyedLocks
}

// NewService wires a triage service.
func NewService(resolver Resolver, wf Workflow, store storage.Store, opts Options) (*Service, error) {
	if resolver == nil || wf == nil || store == nil {
		return nil, fmt.Errorf("triage service: resolver, workflow and store are required")
	}
	s := &Service{
		resolver:   resolver,
		workflow:   wf,
		store:      store,
		events:     opts.Events,
		tracer:     opts.Tracer,
		storeStats: opts.StoreMetrics,
		logger:     opts.Logger,
		now:        opts.Now,
		locks:      newKeyedLocks(),
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.tracer == nil {
		s.tracer = observability.NewNoopTracerProvider()
	}
	if logging.IsNil(s.logger) {
		s.logger = logging.NewComponentLogger("TriageService")
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Triage runs ticket through the full flow. The returned error covers
// invalid input, resolution and workflow failures; persistence problems
// are logged and reported through Outcome.Persistence.
func (s *Service) Triage(ctx context.Context, ticket domain.Ticket) (*Outcome, error) {
	if err := ticket.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTicket, err)
	}

	release, err := s.locks.acquire(ctx, ticket.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("wait for customer %s: %w", ticket.CustomerID, err)
	}
	defer release()

	s.logger.Info("starting triage for customer %s", ticket.CustomerID)
	res, err := s.resolver.Resolve(ctx, ticket)
	if err != nil {
		return nil, fmt.Errorf("resolve ticket: %w", err)
	}
	ticket.TicketID = res.TicketID
	thread := graph.NewThreadID(ticket.CustomerID, res.TicketID)

	run, err := s.workflow.Invoke(ctx, ticket, thread)
	if errors.Is(err, graph.ErrNoTriageResult) && run != nil {
		s.persist(ctx, thread, run.State)
	}
	if err != nil {
		return nil, fmt.Errorf("triage %s: %w", thread, err)
	}

	outcome := &Outcome{
		TicketID:   res.TicketID,
		Resolution: res,
		Result:     run.State.TriageResult,
		State:      run.State,
		Run:        run.Run,
	}
	outcome.Persistence = s.persist(ctx, thread, run.State)
	s.logger.Info("triage complete for ticket %s (%s)", res.TicketID, outcome.Persistence)
	return outcome, nil
}

// persist moves a terminal ticket to the relational store and drops its
// checkpoint. A failed save keeps the checkpoint so the ticket stays
// activated.
func (s *Service) persist(ctx context.Context, thread graph.ThreadID, state *graph.State) (outcome string) {
	ctx, span := s.tracer.StartSpan(ctx, observability.SpanPersistence,
		attribute.String(observability.AttrTicketID, thread.TicketID),
	)
	var spanErr error
	defer func() {
		span.SetAttributes(attribute.String(observability.AttrStatus, outcome))
		observability.EndSpan(span, spanErr)
		s.storeStats.RecordPersistence(outcome)
	}()

	if state == nil || state.TriageResult == nil {
		s.logger.Error("thread %s finished without a triage result, skipping persistence", thread)
		return PersistSkipped
	}
	result := state.TriageResult

	if !result.RecommendedAction.Terminal() {
		s.logger.Info("ticket %s needs continuation (%s), keeping it activated", thread.TicketID, result.RecommendedAction)
		s.publish(ctx, events.New(events.TicketActivated, thread.CustomerID, thread.TicketID, result, s.now()))
		return PersistActivated
	}

	if err := s.save(ctx, thread, state); err != nil {
		spanErr = err
		s.logger.Error("persist ticket %s failed, keeping checkpoint: %v", thread.TicketID, err)
		return PersistFailed
	}
	if err := s.workflow.Checkpoints().Delete(ctx, thread); err != nil {
		s.storeStats.RecordCheckpointError("delete")
		s.logger.Warn("delete checkpoint %s failed: %v", thread, err)
	}
	s.publish(ctx, events.New(events.TicketClosed, thread.CustomerID, thread.TicketID, result, s.now()))
	return PersistClosed
}

func (s *Service) save(ctx context.Context, thread graph.ThreadID, state *graph.State) error {
	now := s.now().UTC()
	result := state.TriageResult
	record := &domain.TicketRecord{
		TicketID:     thread.TicketID,
		CustomerID:   thread.CustomerID,
		Status:       domain.StatusClosed,
		Urgency:      result.Urgency,
		TicketType:   result.ExtractedInfo.ProductArea,
		TriageResult: result,
		CreatedAt:    now,
		ClosedAt:     &now,
	}
	if err := s.store.SaveTicket(ctx, record); err != nil {
		return fmt.Errorf("save ticket: %w", err)
	}

	messages := make([]domain.ChatMessage, 0, len(state.Messages))
	for _, turn := range state.Messages {
		role := domain.ChatRoleAI
		if turn.Role == domain.ChatRoleHuman {
			role = domain.ChatRoleHuman
		}
		created := turn.Timestamp
		if created.IsZero() {
			created = now
		}
		messages = append(messages, domain.ChatMessage{
			TicketID:   thread.TicketID,
			CustomerID: thread.CustomerID,
			Role:       role,
			Content:    turn.Content,
			CreatedAt:  created,
		})
	}
	if len(messages) > 0 {
		if err := s.store.SaveMessages(ctx, thread.TicketID, messages); err != nil {
			return fmt.Errorf("save messages: %w", err)
		}
	}
	s.logger.Info("saved ticket %s with %d messages", thread.TicketID, len(messages))
	return nil
}

func (s *Service) publish(ctx context.Context, ev events.Event) {
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("publish %s for %s failed: %v", ev.Type, ev.TicketID, err)
	}
}
