package agents

import (
	"context"
	"fmt"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/agent/ports"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/agents/tools"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/domain"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/graph"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/prompts"
)

// Supervisor classifies urgency and ticket type, optionally reading the
// customer profile through customer_lookup.
type Supervisor struct {
	base
	lookup ports.ToolExecutor
}

var _ graph.Agent = (*Supervisor)(nil)

// NewSupervisor builds the supervisor node.
func NewSupervisor(deps Deps, directory tools.CustomerDirectory) *Supervisor {
	s := &Supervisor{base: newBase(NameSupervisor, prompts.Supervisor, "Supervisor", deps)}
	if directory != nil {
		s.lookup = tools.NewCustomerLookup(directory)
	}
	return s
}

func (a *Supervisor) Execute(ctx context.Context, state *graph.State) error {
	if state == nil || state.Ticket == nil {
		return fmt.Errorf("supervisor: state has no ticket")
	}
	state.SupervisorDecision = a.classify(ctx, state)
	return nil
}

func (a *Supervisor) classify(ctx context.Context, state *graph.State) *domain.SupervisorDecision {
	system, err := a.systemPrompt(ctx, nil)
	if err != nil {
		a.fellBack(ctx, "prompt", err)
		return classificationFailed(err)
	}
	user := fmt.Sprintf("Analyze and classify this support ticket.\n\n%s\n\n"+
		"Use the customer_lookup tool to get additional customer context.\n"+
		"Then classify the urgency and ticket type.\n\nReturn your classification as JSON.",
		TicketContent(state.Ticket, state.Translation))

	var toolset []ports.ToolExecutor
	if a.lookup != nil {
		toolset = append(toolset, a.lookup)
	}
	resp, _, err := a.toolLoop(toolset...).Run(ctx, a.complete, []ports.Message{
		{Role: ports.RoleSystem, Content: system},
		{Role: ports.RoleUser, Content: user},
	})
	if err != nil {
		a.fellBack(ctx, "llm_error", err)
		return classificationFailed(err)
	}

	decision, err := parseDecision(resp.Content)
	if err != nil {
		a.fellBack(ctx, "parse_error", err)
		return &domain.SupervisorDecision{
			Urgency:    domain.UrgencyMedium,
			TicketType: domain.TicketTypeGeneral,
			Reasoning:  "Parse failed: " + truncate(resp.Content, 200),
		}
	}
	return decision
}

func classificationFailed(err error) *domain.SupervisorDecision {
	return &domain.SupervisorDecision{
		Urgency:    domain.UrgencyMedium,
		TicketType: domain.TicketTypeGeneral,
		Reasoning:  "Classification failed: " + err.Error(),
	}
}

func parseDecision(content string) (*domain.SupervisorDecision, error) {
	parsed, err := decodeObject(content)
	if err != nil {
		return nil, err
	}
	rawUrgency, _ := parsed["urgency"].(string)
	urgency, ok := domain.ParseUrgency(rawUrgency)
	if !ok {
		return nil, fmt.Errorf("unknown urgency %q", rawUrgency)
	}
	rawType, _ := parsed["ticket_type"].(string)
	ticketType, ok := domain.ParseTicketType(rawType)
	if !ok {
		return nil, fmt.Errorf("unknown ticket_type %q", rawType)
	}
	reasoning, _ := stringField(parsed, "reasoning")
	escalate, _ := boolField(parsed, "requires_escalation")
	return &domain.SupervisorDecision{
		Urgency:            urgency,
		TicketType:         ticketType,
		Reasoning:          reasoning,
		RequiresEscalation: escalate,
	}, nil
}
