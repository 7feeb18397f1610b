package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/agent/ports"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/domain"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/prompts"
)

// TicketSummary describes one activated ticket to the matcher.
type TicketSummary struct {
	TicketID string `json:"ticket_id"`
	Summary  string `json:"summary"`
}

// MatchResult is the matcher's decision. An empty MatchedTicketID means no
// ticket matched.
type MatchResult struct {
	MatchedTicketID string            `json:"matched_ticket_id,omitempty"`
	Confidence      domain.Confidence `json:"confidence"`
	Reasoning       string            `json:"reasoning"`
}

// TicketMatcher decides whether a new message continues an active ticket.
type TicketMatcher struct {
	base
}

// NewTicketMatcher builds the matcher.
func NewTicketMatcher(deps Deps) *TicketMatcher {
	return &TicketMatcher{base: newBase(NameTicketMatcher, prompts.TicketMatcher, "TicketMatcher", deps)}
}

// Match never fails; problems yield a low-confidence non-match.
func (m *TicketMatcher) Match(ctx context.Context, message string, summaries []TicketSummary) MatchResult {
	if len(summaries) == 0 {
		return MatchResult{Confidence: domain.ConfidenceHigh, Reasoning: "No active tickets found for this customer"}
	}

	system, err := m.systemPrompt(ctx, nil)
	if err != nil {
		m.fellBack(ctx, "prompt", err)
		return MatchResult{Confidence: domain.ConfidenceLow, Reasoning: "Matching failed: " + err.Error()}
	}
	resp, err := m.complete(ctx, []ports.Message{
		{Role: ports.RoleSystem, Content: system},
		{Role: ports.RoleUser, Content: matchRequest(message, summaries)},
	}, nil)
	if err != nil {
		m.fellBack(ctx, "llm_error", err)
		return MatchResult{Confidence: domain.ConfidenceLow, Reasoning: "Matching failed: " + err.Error()}
	}

	parsed, err := decodeObject(resp.Content)
	if err != nil {
		m.fellBack(ctx, "parse_error", err)
		return MatchResult{Confidence: domain.ConfidenceLow, Reasoning: "Parse failed: " + truncate(resp.Content, 100)}
	}
	result := MatchResult{Confidence: domain.ConfidenceLow}
	if raw, ok := parsed["confidence"].(string); ok {
		result.Confidence = domain.ParseConfidence(raw)
	}
	if id, ok := stringField(parsed, "matched_ticket_id"); ok && !strings.EqualFold(id, "null") {
		result.MatchedTicketID = id
	}
	result.Reasoning, _ = stringField(parsed, "reasoning")
	return result
}

func matchRequest(message string, summaries []TicketSummary) string {
	var b strings.Builder
	b.WriteString("## New Customer Message\n")
	b.WriteString(message)
	b.WriteString("\n\n## Active Tickets\n")
	for _, s := range summaries {
		fmt.Fprintf(&b, "- **%s**: %s\n", s.TicketID, s.Summary)
	}
	b.WriteString("\nAnalyze if the new message relates to any active ticket.")
	return b.String()
}
