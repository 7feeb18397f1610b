package graph_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/checkpoint"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/domain"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/graph"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/logging"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcAgent struct {
	name string
	fn   func(ctx context.Context, state *graph.State) error
}

func (a funcAgent) Name() string { return a.name }

func (a funcAgent) Execute(ctx context.Context, state *graph.State) error {
	return a.fn(ctx, state)
}

func translator() graph.Agent {
	return funcAgent{name: "translator", fn: func(_ context.Context, s *graph.State) error {
		s.Translation = &domain.Translation{OriginalLanguage: "en", IsEnglish: true, OriginalMessages: s.Ticket.MessageTexts()}
		return nil
	}}
}

func supervisor(decision domain.SupervisorDecision) graph.Agent {
	return funcAgent{name: "supervisor", fn: func(_ context.Context, s *graph.State) error {
		d := decision
		s.SupervisorDecision = &d
		return nil
	}}
}

func specialist(name string, action domain.RecommendedAction, entered *[]string) graph.Agent {
	return funcAgent{name: name, fn: func(_ context.Context, s *graph.State) error {
		*entered = append(*entered, name)
		s.TriageResult = &domain.TriageResult{
			Urgency:           s.SupervisorDecision.Urgency,
			ExtractedInfo:     domain.ExtractedInfo{ProductArea: name},
			RecommendedAction: action,
			SuggestedResponse: "Reply from " + name,
			Reasoning:         name + " reasoning",
		}
		return nil
	}}
}

func testTicket(content string) domain.Ticket {
	return domain.Ticket{
		CustomerID: "cust_001",
		Messages: []domain.TicketMessage{{
			Role:      domain.RoleCustomer,
			Content:   content,
			Timestamp: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		}},
	}
}

type fixture struct {
	workflow    *graph.Workflow
	checkpoints *checkpoint.MemoryStore
	entered     []string
}

func newFixture(t *testing.T, decision domain.SupervisorDecision, action domain.RecommendedAction) *fixture {
	t.Helper()
	f := &fixture{checkpoints: checkpoint.NewMemoryStore()}
	wf, err := graph.New(graph.Agents{
		Translator: translator(),
		Supervisor: supervisor(decision),
		Billing:    specialist("billing", action, &f.entered),
		Technical:  specialist("technical", action, &f.entered),
		General:    specialist("general", action, &f.entered),
	}, graph.Options{Checkpoints: f.checkpoints, Logger: logging.Nop()})
	require.NoError(t, err)
	f.workflow = wf
	return f
}

func TestNewRequiresEveryAgent(t *testing.T) {
	_, err := graph.New(graph.Agents{Translator: translator()}, graph.Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "supervisor")
}

func TestRoute(t *testing.T) {
	tests := []struct {
		name     string
		decision *domain.SupervisorDecision
		want     string
	}{
		{"no decision", nil, graph.NodeGeneral},
		{"billing", &domain.SupervisorDecision{TicketType: domain.TicketTypeBilling}, graph.NodeBilling},
		{"technical", &domain.SupervisorDecision{TicketType: domain.TicketTypeTechnical}, graph.NodeTechnical},
		{"general", &domain.SupervisorDecision{TicketType: domain.TicketTypeGeneral}, graph.NodeGeneral},
		{"escalation wins", &domain.SupervisorDecision{TicketType: domain.TicketTypeBilling, RequiresEscalation: true}, graph.NodeEscalate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, graph.Route(&graph.State{SupervisorDecision: tt.decision}))
		})
	}
}

func TestInvokeRoutesToSpecialist(t *testing.T) {
	f := newFixture(t, domain.SupervisorDecision{Urgency: domain.UrgencyHigh, TicketType: domain.TicketTypeTechnical}, domain.ActionRouteSpecialist)
	thread := graph.NewThreadID("cust_001", "TKT-00000001")

	result, err := f.workflow.Invoke(context.Background(), testTicket("API returns 500"), thread)
	require.NoError(t, err)

	require.NotNil(t, result.State.TriageResult)
	assert.Equal(t, []string{"technical"}, f.entered)
	assert.Equal(t, []string{"translator", "supervisor", "technical"}, result.Run.Order)
	assert.Equal(t, workflow.PhaseSucceeded, result.Run.Phase)
	assert.Equal(t, 3, result.State.Iteration)
	assert.Equal(t, "technical", result.State.CurrentAgent)
	assert.Equal(t, "TKT-00000001", result.State.Ticket.TicketID)

	require.Len(t, result.State.Messages, 2)
	assert.Equal(t, domain.ChatRoleHuman, result.State.Messages[0].Role)
	assert.Equal(t, domain.ChatRoleAI, result.State.Messages[1].Role)
	assert.Equal(t, "Reply from technical", result.State.Messages[1].Content)

	cp, err := f.checkpoints.Get(context.Background(), thread)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, 3, cp.Metadata.Step)
	assert.Equal(t, "technical", cp.Metadata.Node)
	assert.Equal(t, graph.SourceLoop, cp.Metadata.Source)
}

func TestInvokeEscalationBypassesSpecialists(t *testing.T) {
	f := newFixture(t, domain.SupervisorDecision{
		Urgency:            domain.UrgencyCritical,
		TicketType:         domain.TicketTypeBilling,
		Reasoning:          "Legal threat",
		RequiresEscalation: true,
	}, domain.ActionAutoRespond)

	result, err := f.workflow.Invoke(context.Background(), testTicket("My lawyer will contact you"), graph.NewThreadID("cust_001", "TKT-00000002"))
	require.NoError(t, err)

	assert.Empty(t, f.entered)
	assert.False(t, result.Run.Visited(graph.NodeBilling))
	assert.Equal(t, graph.NodeEscalate, result.State.CurrentAgent)

	tr := result.State.TriageResult
	require.NotNil(t, tr)
	assert.Equal(t, domain.ActionEscalateHuman, tr.RecommendedAction)
	assert.Equal(t, domain.UrgencyCritical, tr.Urgency)
	assert.Equal(t, "billing", tr.ExtractedInfo.ProductArea)
	assert.Equal(t, "escalation", tr.ExtractedInfo.IssueType)
	assert.Equal(t, "urgent", tr.ExtractedInfo.Sentiment)
	assert.Equal(t, "en", tr.ExtractedInfo.Language)
	assert.Equal(t, "Legal threat", tr.Reasoning)
	assert.Equal(t, "Legal threat", result.State.LastMessage())
}

func TestEscalateNodeDefaults(t *testing.T) {
	state := &graph.State{}
	require.NoError(t, graph.NewEscalateNode().Execute(context.Background(), state))
	assert.Equal(t, domain.UrgencyHigh, state.TriageResult.Urgency)
	assert.Equal(t, "general", state.TriageResult.ExtractedInfo.ProductArea)
	assert.Equal(t, "Direct escalation required", state.TriageResult.Reasoning)
	assert.Error(t, graph.NewEscalateNode().Execute(context.Background(), nil))
}

func TestInvokeResumesFromCheckpoint(t *testing.T) {
	f := newFixture(t, domain.SupervisorDecision{Urgency: domain.UrgencyMedium, TicketType: domain.TicketTypeBilling}, domain.ActionRouteSpecialist)
	thread := graph.NewThreadID("cust_001", "TKT-00000003")
	first := testTicket("I was charged twice")

	_, err := f.workflow.Invoke(context.Background(), first, thread)
	require.NoError(t, err)

	followUp := first
	followUp.Messages = append(append([]domain.TicketMessage(nil), first.Messages...), domain.TicketMessage{
		Role:      domain.RoleCustomer,
		Content:   "Any update on the refund?",
		Timestamp: time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
	})
	result, err := f.workflow.Invoke(context.Background(), followUp, thread)
	require.NoError(t, err)

	turns := result.State.Messages
	require.Len(t, turns, 4, "prior human+ai turns, the new message, the new reply")
	assert.Equal(t, "I was charged twice", turns[0].Content)
	assert.Equal(t, "Reply from billing", turns[1].Content)
	assert.Equal(t, "Any update on the refund?", turns[2].Content)
	assert.Len(t, result.State.Ticket.Messages, 2)
	assert.Equal(t, 3, result.State.Iteration, "iteration counts this pass only")

	cp, err := f.checkpoints.Get(context.Background(), thread)
	require.NoError(t, err)
	assert.Equal(t, 6, cp.Metadata.Step)
}

func TestInvokeFailsWithoutTriageResult(t *testing.T) {
	lazy := funcAgent{name: "general", fn: func(context.Context, *graph.State) error { return nil }}
	wf, err := graph.New(graph.Agents{
		Translator: translator(),
		Supervisor: supervisor(domain.SupervisorDecision{TicketType: domain.TicketTypeGeneral}),
		Billing:    lazy, Technical: lazy, General: lazy,
	}, graph.Options{Logger: logging.Nop()})
	require.NoError(t, err)

	_, err = wf.Invoke(context.Background(), testTicket("hello"), graph.NewThreadID("cust_001", "TKT-00000004"))
	assert.ErrorIs(t, err, graph.ErrNoTriageResult)
}

func TestInvokeStopsOnContractViolation(t *testing.T) {
	broken := funcAgent{name: "supervisor", fn: func(context.Context, *graph.State) error { return errors.New("nil ticket") }}
	var entered []string
	wf, err := graph.New(graph.Agents{
		Translator: translator(),
		Supervisor: broken,
		Billing:    specialist("billing", domain.ActionAutoRespond, &entered),
		Technical:  specialist("technical", domain.ActionAutoRespond, &entered),
		General:    specialist("general", domain.ActionAutoRespond, &entered),
	}, graph.Options{Logger: logging.Nop()})
	require.NoError(t, err)

	result, err := wf.Invoke(context.Background(), testTicket("hello"), graph.NewThreadID("cust_001", "TKT-00000005"))
	require.Error(t, err)
	assert.Equal(t, workflow.PhaseFailed, result.Run.Phase)
	assert.Empty(t, entered)
}

func TestInvokeHonoursCancellationBetweenNodes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancelling := funcAgent{name: "translator", fn: func(_ context.Context, s *graph.State) error {
		s.Translation = &domain.Translation{OriginalLanguage: "en", IsEnglish: true}
		cancel()
		return nil
	}}
	checkpoints := checkpoint.NewMemoryStore()
	var entered []string
	wf, err := graph.New(graph.Agents{
		Translator: cancelling,
		Supervisor: supervisor(domain.SupervisorDecision{}),
		Billing:    specialist("billing", domain.ActionAutoRespond, &entered),
		Technical:  specialist("technical", domain.ActionAutoRespond, &entered),
		General:    specialist("general", domain.ActionAutoRespond, &entered),
	}, graph.Options{Checkpoints: checkpoints, Logger: logging.Nop()})
	require.NoError(t, err)

	thread := graph.NewThreadID("cust_001", "TKT-00000006")
	_, err = wf.Invoke(ctx, testTicket("hello"), thread)
	require.ErrorIs(t, err, context.Canceled)

	cp, getErr := checkpoints.Get(context.Background(), thread)
	require.NoError(t, getErr)
	require.NotNil(t, cp)
	assert.Equal(t, graph.NodeTranslator, cp.Metadata.Node, "the last completed node stays checkpointed")
}

type failingCheckpoints struct {
	checkpoint.Store
}

func (failingCheckpoints) Get(context.Context, graph.ThreadID) (*graph.Checkpoint, error) {
	return nil, errors.New("redis down")
}

func (failingCheckpoints) Put(context.Context, graph.ThreadID, *graph.State, graph.Metadata) error {
	return errors.New("redis down")
}

func TestCheckpointFailuresDoNotFailTheRun(t *testing.T) {
	rec := &logging.Recorder{}
	var entered []string
	wf, err := graph.New(graph.Agents{
		Translator: translator(),
		Supervisor: supervisor(domain.SupervisorDecision{TicketType: domain.TicketTypeGeneral}),
		Billing:    specialist("billing", domain.ActionAutoRespond, &entered),
		Technical:  specialist("technical", domain.ActionAutoRespond, &entered),
		General:    specialist("general", domain.ActionAutoRespond, &entered),
	}, graph.Options{Checkpoints: failingCheckpoints{}, Logger: rec})
	require.NoError(t, err)

	result, err := wf.Invoke(context.Background(), testTicket("hello"), graph.NewThreadID("cust_001", "TKT-00000007"))
	require.NoError(t, err)
	assert.NotNil(t, result.State.TriageResult)
	assert.True(t, rec.Has("warn", "checkpoint after"))
	assert.True(t, rec.Has("warn", "load checkpoint failed"))
}

func TestInvokeValidatesInput(t *testing.T) {
	f := newFixture(t, domain.SupervisorDecision{}, domain.ActionAutoRespond)
	_, err := f.workflow.Invoke(context.Background(), testTicket("hi"), graph.NewThreadID("", "TKT-1"))
	assert.Error(t, err)
	_, err = f.workflow.Invoke(context.Background(), domain.Ticket{CustomerID: "cust_001"}, graph.NewThreadID("cust_001", "TKT-1"))
	assert.Error(t, err)
}

func TestListenersSeeEveryNode(t *testing.T) {
	var mu sync.Mutex
	var started []string
	listener := workflow.ListenerFunc(func(e workflow.Event) {
		if e.Type == workflow.EventNodeStarted {
			mu.Lock()
			started = append(started, e.Node.ID)
			mu.Unlock()
		}
	})
	var entered []string
	wf, err := graph.New(graph.Agents{
		Translator: translator(),
		Supervisor: supervisor(domain.SupervisorDecision{TicketType: domain.TicketTypeBilling}),
		Billing:    specialist("billing", domain.ActionAutoRespond, &entered),
		Technical:  specialist("technical", domain.ActionAutoRespond, &entered),
		General:    specialist("general", domain.ActionAutoRespond, &entered),
	}, graph.Options{Listeners: []workflow.Listener{listener}, Logger: logging.Nop()})
	require.NoError(t, err)

	_, err = wf.Invoke(context.Background(), testTicket("invoice"), graph.NewThreadID("cust_001", "TKT-00000008"))
	require.NoError(t, err)
	assert.Equal(t, []string{"translator", "supervisor", "billing"}, started)
}
