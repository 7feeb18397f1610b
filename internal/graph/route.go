package graph

import (
	"context"
	"fmt"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/domain"
)

// Node names.
const (
	NodeTranslator = "translator"
	NodeSupervisor = "supervisor"
	NodeBilling    = "billing"
	NodeTechnical  = "technical"
	NodeGeneral    = "general"
	NodeEscalate   = "escalate"
)

// Agent is one workflow node. Execute returns an error only when the state
// violates its contract; collaborator failures become fallback values.
type Agent interface {
	Name() string
	Execute(ctx context.Context, state *State) error
}

// Route picks the node after the supervisor.
func Route(state *State) string {
	if state == nil || state.SupervisorDecision == nil {
		return NodeGeneral
	}
	decision := state.SupervisorDecision
	if decision.RequiresEscalation {
		return NodeEscalate
	}
	switch decision.TicketType {
	case domain.TicketTypeBilling:
		return NodeBilling
	case domain.TicketTypeTechnical:
		return NodeTechnical
	default:
		return NodeGeneral
	}
}

// escalateNode hands the ticket to a human without calling a model.
type escalateNode struct{}

// NewEscalateNode returns the escalation node.
func NewEscalateNode() Agent {
	return escalateNode{}
}

func (escalateNode) Name() string { return NodeEscalate }

func (escalateNode) Execute(_ context.Context, state *State) error {
	if state == nil {
		return fmt.Errorf("escalate: nil state")
	}
	urgency := domain.UrgencyHigh
	productArea := string(domain.TicketTypeGeneral)
	reasoning := "Direct escalation required"
	if d := state.SupervisorDecision; d != nil {
		if d.Urgency != "" {
			urgency = d.Urgency
		}
		if d.TicketType != "" {
			productArea = string(d.TicketType)
		}
		if d.Reasoning != "" {
			reasoning = d.Reasoning
		}
	}
	state.TriageResult = &domain.TriageResult{
		Urgency: urgency,
		ExtractedInfo: domain.ExtractedInfo{
			ProductArea: productArea,
			IssueType:   "escalation",
			Sentiment:   "urgent",
			Language:    state.Language(),
		},
		RecommendedAction: domain.ActionEscalateHuman,
		RelevantArticles:  []domain.Article{},
		Reasoning:         reasoning,
	}
	return nil
}
