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

const specialistRequest = "Please analyze this ticket and provide your triage result as JSON."

// Specialist produces the triage result for one domain, searching the
// knowledge base restricted to that domain's category.
type Specialist struct {
	base
	domain domain.TicketType
	search ports.ToolExecutor
}

var _ graph.Agent = (*Specialist)(nil)

var specialistPrompts = map[domain.TicketType]string{
	domain.TicketTypeBilling:   prompts.Billing,
	domain.TicketTypeTechnical: prompts.Technical,
	domain.TicketTypeGeneral:   prompts.General,
}

// NewSpecialist builds the specialist for kind. searcher may be nil, in
// which case the specialist answers without the knowledge base.
func NewSpecialist(kind domain.TicketType, deps Deps, searcher tools.KnowledgeSearcher) (*Specialist, error) {
	promptName, ok := specialistPrompts[kind]
	if !ok {
		return nil, fmt.Errorf("unknown specialist domain %q", kind)
	}
	s := &Specialist{
		base:   newBase(string(kind), promptName, "Specialist", deps),
		domain: kind,
	}
	if searcher != nil {
		s.search = tools.NewKBSearch(searcher, string(kind))
	}
	return s, nil
}

// Domain returns the specialist's ticket type.
func (a *Specialist) Domain() domain.TicketType {
	return a.domain
}

func (a *Specialist) Execute(ctx context.Context, state *graph.State) error {
	if state == nil || state.Ticket == nil {
		return fmt.Errorf("%s specialist: state has no ticket", a.domain)
	}
	result := a.triage(ctx, state)
	if d := state.SupervisorDecision; d != nil && d.RequiresEscalation {
		result.RecommendedAction = domain.ActionEscalateHuman
	}
	state.TriageResult = result
	return nil
}

func (a *Specialist) triage(ctx context.Context, state *graph.State) *domain.TriageResult {
	urgency := domain.UrgencyMedium
	supervisorReasoning := ""
	if d := state.SupervisorDecision; d != nil {
		if d.Urgency != "" {
			urgency = d.Urgency
		}
		supervisorReasoning = d.Reasoning
	}

	system, err := a.systemPrompt(ctx, map[string]string{
		"ticket_content":       Conversation(state.Ticket, state.Translation),
		"customer_info":        CustomerInfoLine(state.Ticket.CustomerInfo),
		"urgency":              string(urgency),
		"supervisor_reasoning": orNA(supervisorReasoning),
		"original_language":    state.Language(),
	})
	if err != nil {
		a.fellBack(ctx, "prompt", err)
		return a.failed(urgency, state.Language(), "Specialist failed: "+err.Error())
	}

	var toolset []ports.ToolExecutor
	if a.search != nil {
		toolset = append(toolset, a.search)
	}
	resp, _, err := a.toolLoop(toolset...).Run(ctx, a.complete, []ports.Message{
		{Role: ports.RoleSystem, Content: system},
		{Role: ports.RoleUser, Content: specialistRequest},
	})
	if err != nil {
		a.fellBack(ctx, "llm_error", err)
		return a.failed(urgency, state.Language(), "Specialist failed: "+err.Error())
	}

	parsed, err := decodeObject(resp.Content)
	if err != nil {
		a.fellBack(ctx, "parse_error", err)
		return a.failed(urgency, state.Language(), "Parse failed: "+truncate(resp.Content, 200))
	}
	return a.fromParsed(parsed, urgency, state.Language())
}

// fromParsed fills every field it can from parsed and defaults the rest.
func (a *Specialist) fromParsed(parsed map[string]any, urgency domain.Urgency, language string) *domain.TriageResult {
	result := &domain.TriageResult{
		Urgency:           urgency,
		RecommendedAction: domain.ActionRouteSpecialist,
		ExtractedInfo: domain.ExtractedInfo{
			ProductArea: string(a.domain),
			IssueType:   "unknown",
			Sentiment:   "neutral",
			Language:    language,
		},
		RelevantArticles: []domain.Article{},
	}
	if raw, ok := parsed["urgency"].(string); ok {
		if u, ok := domain.ParseUrgency(raw); ok {
			result.Urgency = u
		}
	}
	if raw, ok := parsed["recommended_action"].(string); ok {
		if action, ok := domain.ParseAction(raw); ok {
			result.RecommendedAction = action
		}
	}
	if info, ok := parsed["extracted_info"].(map[string]any); ok {
		if v, ok := stringField(info, "product_area"); ok {
			result.ExtractedInfo.ProductArea = v
		}
		if v, ok := stringField(info, "issue_type"); ok {
			result.ExtractedInfo.IssueType = v
		}
		if v, ok := stringField(info, "sentiment"); ok {
			result.ExtractedInfo.Sentiment = v
		}
		if v, ok := stringField(info, "language"); ok {
			result.ExtractedInfo.Language = v
		}
	}
	if v, ok := stringField(parsed, "suggested_response"); ok {
		result.SuggestedResponse = v
	}
	if v, ok := stringField(parsed, "reasoning"); ok {
		result.Reasoning = v
	}
	if items, ok := parsed["relevant_articles"].([]any); ok {
		for _, item := range items {
			entry, ok := item.(map[string]any)
			if !ok {
				continue
			}
			article := domain.Article{ID: "unknown", Title: "Unknown", RelevanceScore: 0.5}
			if v, ok := stringField(entry, "id"); ok {
				article.ID = v
			}
			if v, ok := stringField(entry, "title"); ok {
				article.Title = v
			}
			if v, ok := floatField(entry, "relevance_score"); ok {
				article.RelevanceScore = clamp01(v)
			}
			result.RelevantArticles = append(result.RelevantArticles, article)
		}
	}
	return result
}

func (a *Specialist) failed(urgency domain.Urgency, language, reasoning string) *domain.TriageResult {
	return &domain.TriageResult{
		Urgency:           urgency,
		RecommendedAction: domain.ActionEscalateHuman,
		ExtractedInfo: domain.ExtractedInfo{
			ProductArea: string(a.domain),
			IssueType:   "unknown",
			Sentiment:   "neutral",
			Language:    language,
		},
		RelevantArticles: []domain.Article{},
		Reasoning:        reasoning,
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
