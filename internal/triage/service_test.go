package triage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/agents"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/checkpoint"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/domain"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/events"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/graph"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/llm"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/logging"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/resolution"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/storage"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/triage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 11, 13, 9, 30, 0, 0, time.UTC)

type harness struct {
	client      *llm.ScriptedClient
	checkpoints *checkpoint.MemoryStore
	store       *storage.MemoryStore
	events      *events.MemoryPublisher
	logger      *logging.Recorder
	service     *triage.Service
}

func newHarness(t *testing.T, client *llm.ScriptedClient, store storage.Store) *harness {
	t.Helper()
	h := &harness{
		client:      client,
		checkpoints: checkpoint.NewMemoryStore(),
		store:       storage.NewMemoryStore(),
		events:      events.NewMemoryPublisher(),
		logger:      &logging.Recorder{},
	}
	if store == nil {
		store = h.store
	}
	deps := agents.Deps{LLM: client, Logger: logging.Nop()}
	specialist := func(kind domain.TicketType) graph.Agent {
		s, err := agents.NewSpecialist(kind, deps, nil)
		require.NoError(t, err)
		return s
	}
	wf, err := graph.New(graph.Agents{
		Translator: agents.NewTranslator(deps),
		Supervisor: agents.NewSupervisor(deps, h.store),
		Billing:    specialist(domain.TicketTypeBilling),
		Technical:  specialist(domain.TicketTypeTechnical),
		General:    specialist(domain.TicketTypeGeneral),
	}, graph.Options{Checkpoints: h.checkpoints, Logger: logging.Nop(), Now: func() time.Time { return fixedNow }})
	require.NoError(t, err)

	resolver := resolution.NewService(h.checkpoints, agents.NewTicketMatcher(deps), resolution.Options{Logger: logging.Nop(), Tickets: store})
	h.service, err = triage.NewService(resolver, wf, store, triage.Options{
		Events: h.events,
		Logger: h.logger,
		Now:    func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return h
}

func ticket(ticketID, customerID, text string, info domain.CustomerInfo) domain.Ticket {
	return domain.Ticket{
		TicketID:     ticketID,
		CustomerID:   customerID,
		CustomerInfo: info,
		Messages: []domain.TicketMessage{
			{Role: domain.RoleCustomer, Content: text, Timestamp: fixedNow.Add(-time.Hour)},
		},
	}
}

const english = `{"original_language": "en", "is_english": true, "translated_messages": []}`

func TestScenarioDuplicateChargeEscalates(t *testing.T) {
	client := llm.NewScriptedClient("test").
		On(agents.NameTranslator, llm.Reply(english)).
		On(agents.NameSupervisor, llm.Reply(`{"urgency": "high", "ticket_type": "billing", "reasoning": "Duplicate charge with refund demand", "requires_escalation": false}`)).
		On(agents.NameBilling, llm.Reply("```json\n"+`{
		  "urgency": "high",
		  "extracted_info": {"product_area": "billing", "issue_type": "duplicate_charge", "sentiment": "frustrated", "language": "en"},
		  "recommended_action": "escalate_human",
		  "suggested_response": "We're sorry about the duplicate charge. A billing specialist will process your refund.",
		  "relevant_articles": [],
		  "reasoning": "Refunds require a human"
		}`+"\n```"))
	h := newHarness(t, client, nil)

	in := ticket("", "cust_001", "I was charged twice for my subscription! $49.99 on Nov 10 and Nov 12. I want an immediate refund!",
		domain.CustomerInfo{Plan: "pro", TenureMonths: 8})
	out, err := h.service.Triage(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, domain.UrgencyHigh, out.Result.Urgency)
	assert.Equal(t, domain.ActionEscalateHuman, out.Result.RecommendedAction)
	assert.Equal(t, domain.TicketTypeBilling, out.State.SupervisorDecision.TicketType)
	assert.Equal(t, resolution.SourceGenerated, out.Resolution.Source)
	assert.True(t, out.Persisted())

	record, err := h.store.GetTicket(context.Background(), out.TicketID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, record.Status)
	assert.Equal(t, "billing", record.TicketType)
	assert.Equal(t, out.Result, record.TriageResult)
	require.NotNil(t, record.ClosedAt)

	messages, err := h.store.GetMessages(context.Background(), out.TicketID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, domain.ChatRoleHuman, messages[0].Role)
	assert.Equal(t, domain.ChatRoleAI, messages[1].Role)
	assert.Contains(t, messages[1].Content, "billing specialist")

	cp, err := h.checkpoints.Get(context.Background(), graph.NewThreadID("cust_001", out.TicketID))
	require.NoError(t, err)
	assert.Nil(t, cp, "closed tickets leave the checkpoint store")

	published := h.events.Events()
	require.Len(t, published, 1)
	assert.Equal(t, events.TicketClosed, published[0].Type)
	assert.Equal(t, out.TicketID, published[0].TicketID)
}

func TestScenarioAmbiguousTicketStaysActivated(t *testing.T) {
	client := llm.NewScriptedClient("test").
		On(agents.NameTranslator, llm.Reply(english)).
		On(agents.NameSupervisor, llm.Reply(`{"urgency": "medium", "ticket_type": "general", "reasoning": "Not enough detail", "requires_escalation": false}`)).
		On(agents.NameGeneral, llm.Reply(`{
		  "urgency": "medium",
		  "extracted_info": {"product_area": "general", "issue_type": "unclear", "sentiment": "neutral", "language": "en"},
		  "recommended_action": "route_specialist",
		  "suggested_response": "Could you tell us which feature is not working?",
		  "relevant_articles": [],
		  "reasoning": "Need clarification"
		}`))
	h := newHarness(t, client, nil)

	out, err := h.service.Triage(context.Background(), ticket("TKT-CALLER01", "cust_002", "It's not working. Please fix it.",
		domain.CustomerInfo{Plan: "free", TenureMonths: 1}))
	require.NoError(t, err)

	assert.Equal(t, "TKT-CALLER01", out.TicketID)
	assert.Equal(t, resolution.SourceRequested, out.Resolution.Source)
	assert.Equal(t, domain.UrgencyMedium, out.Result.Urgency)
	assert.Equal(t, domain.ActionRouteSpecialist, out.Result.RecommendedAction)
	assert.Equal(t, domain.TicketTypeGeneral, out.State.SupervisorDecision.TicketType)
	assert.Equal(t, triage.PersistActivated, out.Persistence)

	_, err = h.store.GetTicket(context.Background(), "TKT-CALLER01")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	cp, err := h.checkpoints.Get(context.Background(), graph.NewThreadID("cust_002", "TKT-CALLER01"))
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, 3, cp.Metadata.Step)
	assert.Equal(t, graph.NodeGeneral, cp.Metadata.Node)

	require.Len(t, h.events.Events(), 1)
	assert.Equal(t, events.TicketActivated, h.events.Events()[0].Type)
}

func TestScenarioOutageBypassesSpecialist(t *testing.T) {
	client := llm.NewScriptedClient("test").
		On(agents.NameTranslator, llm.Reply(english)).
		On(agents.NameSupervisor, llm.Reply(`{"urgency": "critical", "ticket_type": "technical", "reasoning": "Full outage before a client presentation", "requires_escalation": true}`))
	h := newHarness(t, client, nil)

	seats := 45
	out, err := h.service.Triage(context.Background(), ticket("", "cust_003",
		"URGENT: Our entire team is getting a 503 error on all endpoints. We have a critical client presentation in 2 hours!",
		domain.CustomerInfo{Plan: "enterprise", TenureMonths: 24, Seats: &seats}))
	require.NoError(t, err)

	assert.Equal(t, domain.UrgencyCritical, out.Result.Urgency)
	assert.Equal(t, domain.ActionEscalateHuman, out.Result.RecommendedAction)
	assert.Equal(t, "technical", out.Result.ExtractedInfo.ProductArea)
	assert.Equal(t, []string{graph.NodeTranslator, graph.NodeSupervisor, graph.NodeEscalate}, out.Run.Order)
	assert.False(t, out.Run.Visited(graph.NodeTechnical))
	assert.Zero(t, client.CallCount(agents.NameTechnical))
	assert.True(t, out.Persisted())
}

func TestScenarioFollowUpReusesActivatedTicket(t *testing.T) {
	client := llm.NewScriptedClient("test").
		On(agents.NameTranslator, llm.Reply(english)).
		On(agents.NameSupervisor, llm.Reply(`{"urgency": "medium", "ticket_type": "technical", "reasoning": "Export bug", "requires_escalation": false}`)).
		On(agents.NameTechnical, llm.Reply(`{"urgency": "medium", "recommended_action": "route_specialist", "reasoning": "Needs engineering follow-up"}`)).
		On(agents.NameTicketMatcher, llm.Reply(`{"matched_ticket_id": "TKT-EXPORT01", "confidence": "medium", "reasoning": "Same export failure"}`))
	h := newHarness(t, client, nil)
	ctx := context.Background()

	first, err := h.service.Triage(ctx, ticket("TKT-EXPORT01", "cust_004", "CSV export fails with a timeout", domain.CustomerInfo{Plan: "pro"}))
	require.NoError(t, err)
	require.Equal(t, triage.PersistActivated, first.Persistence)

	followUp := ticket("", "cust_004", "The CSV export is still timing out today", domain.CustomerInfo{Plan: "pro"})
	followUp.Messages[0].Timestamp = fixedNow
	second, err := h.service.Triage(ctx, followUp)
	require.NoError(t, err)

	assert.Equal(t, "TKT-EXPORT01", second.TicketID)
	assert.Equal(t, resolution.SourceMatched, second.Resolution.Source)
	assert.Equal(t, domain.ConfidenceMedium, second.Resolution.Confidence)
	assert.Equal(t, 1, client.CallCount(agents.NameTicketMatcher))

	cp, err := h.checkpoints.Get(ctx, graph.NewThreadID("cust_004", "TKT-EXPORT01"))
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, 6, cp.Metadata.Step, "step numbering continues on the same thread")
	require.Len(t, cp.State.Messages, 4)
	assert.Equal(t, "CSV export fails with a timeout", cp.State.Messages[0].Content)
	assert.Equal(t, "The CSV export is still timing out today", cp.State.Messages[2].Content)

	ids, err := h.checkpoints.Scan(ctx, "cust_004")
	require.NoError(t, err)
	assert.Equal(t, []string{"TKT-EXPORT01"}, ids, "no second ticket is opened")
}

func TestReusedTicketIDDoesNotTouchOtherCustomer(t *testing.T) {
	client := llm.NewScriptedClient("test").
		On(agents.NameTranslator, llm.Reply(english)).
		On(agents.NameSupervisor, llm.Reply(`{"urgency": "critical", "ticket_type": "billing", "reasoning": "Fraud report", "requires_escalation": true}`))
	h := newHarness(t, client, nil)
	ctx := context.Background()

	first, err := h.service.Triage(ctx, ticket("TKT-SHARED01", "cust_a", "Someone used my card on your site", domain.CustomerInfo{}))
	require.NoError(t, err)
	require.Equal(t, "TKT-SHARED01", first.TicketID)
	require.Equal(t, triage.PersistClosed, first.Persistence)

	second, err := h.service.Triage(ctx, ticket("TKT-SHARED01", "cust_b", "My invoice shows the wrong company name", domain.CustomerInfo{}))
	require.NoError(t, err)
	assert.NotEqual(t, "TKT-SHARED01", second.TicketID)
	assert.Regexp(t, `^TKT-[0-9A-F]{8}$`, second.TicketID)
	assert.Equal(t, resolution.SourceGenerated, second.Resolution.Source)
	assert.Equal(t, triage.PersistClosed, second.Persistence)

	record, err := h.store.GetTicket(ctx, "TKT-SHARED01")
	require.NoError(t, err)
	assert.Equal(t, "cust_a", record.CustomerID)
	messages, err := h.store.GetMessages(ctx, "TKT-SHARED01")
	require.NoError(t, err)
	require.NotEmpty(t, messages)
	for _, msg := range messages {
		assert.Equal(t, "cust_a", msg.CustomerID)
	}
	assert.Equal(t, "Someone used my card on your site", messages[0].Content)

	other, err := h.store.GetTicket(ctx, second.TicketID)
	require.NoError(t, err)
	assert.Equal(t, "cust_b", other.CustomerID)
	history, err := h.store.GetCustomerHistory(ctx, "cust_b", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, second.TicketID, history[0].TicketID)
}

type failingSave struct {
	storage.Store
}

func (failingSave) SaveTicket(context.Context, *domain.TicketRecord) error {
	return errors.New("database is locked")
}

func TestFailedSaveKeepsCheckpoint(t *testing.T) {
	client := llm.NewScriptedClient("test").
		On(agents.NameTranslator, llm.Reply(english)).
		On(agents.NameSupervisor, llm.Reply(`{"urgency": "critical", "ticket_type": "billing", "requires_escalation": true}`))
	h := newHarness(t, client, failingSave{storage.NewMemoryStore()})

	out, err := h.service.Triage(context.Background(), ticket("TKT-KEEP0001", "cust_005", "Account charged 10 times", domain.CustomerInfo{}))
	require.NoError(t, err)
	assert.Equal(t, triage.PersistFailed, out.Persistence)
	assert.False(t, out.Persisted())
	assert.True(t, h.logger.Has("error", "persist ticket TKT-KEEP0001 failed"))

	cp, err := h.checkpoints.Get(context.Background(), graph.NewThreadID("cust_005", "TKT-KEEP0001"))
	require.NoError(t, err)
	assert.NotNil(t, cp)
	assert.Empty(t, h.events.Events())
}

func TestRejectsInvalidTicket(t *testing.T) {
	h := newHarness(t, llm.NewScriptedClient("test"), nil)
	_, err := h.service.Triage(context.Background(), domain.Ticket{CustomerID: "cust_001"})
	assert.ErrorIs(t, err, triage.ErrInvalidTicket)
	assert.Empty(t, h.client.Calls())
}

type stubWorkflow struct {
	checkpoints graph.CheckpointStore
	result      *graph.Result
	err         error
}

func (w *stubWorkflow) Invoke(_ context.Context, _ domain.Ticket, thread graph.ThreadID) (*graph.Result, error) {
	if w.result != nil {
		w.result.Thread = thread
	}
	return w.result, w.err
}

func (w *stubWorkflow) Checkpoints() graph.CheckpointStore { return w.checkpoints }

type fixedResolver struct{}

func (fixedResolver) Resolve(_ context.Context, t domain.Ticket) (*resolution.Resolution, error) {
	return &resolution.Resolution{TicketID: "TKT-FIXED001", Source: resolution.SourceGenerated}, nil
}

func TestMissingTriageResultSkipsPersistence(t *testing.T) {
	wf := &stubWorkflow{
		checkpoints: checkpoint.NewMemoryStore(),
		result:      &graph.Result{State: &graph.State{}},
		err:         graph.ErrNoTriageResult,
	}
	rec := &logging.Recorder{}
	store := storage.NewMemoryStore()
	svc, err := triage.NewService(fixedResolver{}, wf, store, triage.Options{Logger: rec})
	require.NoError(t, err)

	_, err = svc.Triage(context.Background(), ticket("", "cust_006", "hello", domain.CustomerInfo{}))
	assert.ErrorIs(t, err, graph.ErrNoTriageResult)
	assert.True(t, rec.Has("error", "without a triage result"))

	_, err = store.GetTicket(context.Background(), "TKT-FIXED001")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	_, err := triage.NewService(nil, &stubWorkflow{}, storage.NewMemoryStore(), triage.Options{})
	assert.Error(t, err)
}
