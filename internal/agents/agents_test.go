package agents

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/agent/ports"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/domain"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/graph"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/kb"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/llm"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/logging"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func depsFor(client ports.LLMClient) Deps {
	return Deps{LLM: client, Logger: logging.Nop()}
}

func spanishState() *graph.State {
	seats := 5
	return graph.NewState(domain.Ticket{
		TicketID:   "TKT-1A2B3C4D",
		CustomerID: "cust_001",
		CustomerInfo: domain.CustomerInfo{
			Plan:            "pro",
			TenureMonths:    8,
			Seats:           &seats,
			PreviousTickets: 1,
		},
		Messages: []domain.TicketMessage{
			{Role: domain.RoleCustomer, Content: "Me cobraron dos veces", Timestamp: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
			{Role: domain.RoleCustomer, Content: "Necesito un reembolso", Timestamp: time.Date(2025, 3, 1, 10, 5, 0, 0, time.UTC)},
		},
	})
}

type fakeSearcher struct {
	category string
}

func (f *fakeSearcher) Search(_ context.Context, _ string, category string, _ int) ([]kb.SearchResult, error) {
	f.category = category
	return []kb.SearchResult{{ArticleID: "KB-101", Title: "Duplicate charges", Category: category, Text: "Refunds take 5 days.", Score: 0.9}}, nil
}

func TestTranslatorParsesTranslation(t *testing.T) {
	client := llm.NewScriptedClient("test").On(NameTranslator, llm.Reply("```json\n"+
		`{"original_language": "ES", "is_english": false, "translated_messages": ["I was charged twice", "I need a refund"], "original_messages": ["tampered"]}`+
		"\n```"))
	state := spanishState()

	require.NoError(t, NewTranslator(depsFor(client)).Execute(context.Background(), state))

	tr := state.Translation
	require.NotNil(t, tr)
	assert.Equal(t, "es", tr.OriginalLanguage)
	assert.False(t, tr.IsEnglish)
	assert.Equal(t, []string{"I was charged twice", "I need a refund"}, tr.TranslatedMessages)
	assert.Equal(t, []string{"Me cobraron dos veces", "Necesito un reembolso"}, tr.OriginalMessages, "originals come from the ticket")

	calls := client.Calls()
	require.Len(t, calls, 1)
	user := calls[0].Messages[1].Content
	assert.True(t, strings.HasPrefix(user, "Analyze the following customer support messages:\n\nMessage 1: Me cobraron dos veces\nMessage 2: Necesito un reembolso\n"))
	assert.True(t, strings.HasSuffix(user, "Return JSON only."))
	assert.Equal(t, NameTranslator, calls[0].Agent())
}

func TestTranslatorFallsBackOnGarbage(t *testing.T) {
	for name, step := range map[string]llm.ScriptedStep{
		"garbage":   llm.Reply("I think this is Spanish!"),
		"llm error": llm.Fail(errors.New("upstream 503")),
		"empty":     llm.Reply("   "),
	} {
		t.Run(name, func(t *testing.T) {
			client := llm.NewScriptedClient("test").On(NameTranslator, step)
			state := spanishState()
			require.NoError(t, NewTranslator(depsFor(client)).Execute(context.Background(), state))

			tr := state.Translation
			require.NotNil(t, tr)
			assert.Equal(t, "en", tr.OriginalLanguage)
			assert.True(t, tr.IsEnglish)
			assert.Nil(t, tr.TranslatedMessages)
			assert.Equal(t, []string{"Me cobraron dos veces", "Necesito un reembolso"}, tr.OriginalMessages)
		})
	}
}

func TestTranslatorToleratesShortTranslation(t *testing.T) {
	client := llm.NewScriptedClient("test").On(NameTranslator, llm.Reply(
		`{"original_language": "es", "is_english": false, "translated_messages": ["I was charged twice"]}`))
	state := spanishState()
	require.NoError(t, NewTranslator(depsFor(client)).Execute(context.Background(), state))

	content := Conversation(state.Ticket, state.Translation)
	assert.Contains(t, content, "I was charged twice")
	assert.Contains(t, content, "Necesito un reembolso", "untranslated messages fall back to the original")
}

func TestTranslatorRejectsMissingTicket(t *testing.T) {
	assert.Error(t, NewTranslator(depsFor(llm.NewScriptedClient("test"))).Execute(context.Background(), &graph.State{}))
}

func TestSupervisorUsesCustomerLookup(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.UpsertCustomer(context.Background(), &domain.Customer{ID: "cust_001", Name: "Ana", Plan: "pro", TenureMonths: 8}))
	client := llm.NewScriptedClient("test").On(NameSupervisor,
		llm.CallTool("call_1", "customer_lookup", map[string]any{"customer_id": "cust_001"}),
		llm.Reply(`{"urgency": "high", "ticket_type": "billing", "reasoning": "Duplicate charge", "requires_escalation": false}`),
	)
	state := spanishState()
	state.Translation = &domain.Translation{
		OriginalLanguage:   "es",
		TranslatedMessages: []string{"I was charged twice", "I need a refund"},
		OriginalMessages:   state.Ticket.MessageTexts(),
	}

	require.NoError(t, NewSupervisor(depsFor(client), store).Execute(context.Background(), state))

	assert.Equal(t, &domain.SupervisorDecision{
		Urgency:    domain.UrgencyHigh,
		TicketType: domain.TicketTypeBilling,
		Reasoning:  "Duplicate charge",
	}, state.SupervisorDecision)

	calls := client.Calls()
	require.Len(t, calls, 2)
	user := calls[0].Messages[1].Content
	assert.Contains(t, user, "- **Ticket ID:** TKT-1A2B3C4D")
	assert.Contains(t, user, "- **Original Language:** es")
	assert.Contains(t, user, "- **Seats:** 5")
	assert.Contains(t, user, "- **Region:** N/A")
	assert.Contains(t, user, "[customer] (2025-03-01T10:00:00Z): I was charged twice")
	require.Len(t, calls[0].Tools, 1)
	assert.Equal(t, "customer_lookup", calls[0].Tools[0].Name)

	toolMsg := calls[1].Messages[len(calls[1].Messages)-1]
	assert.Equal(t, ports.RoleTool, toolMsg.Role)
	assert.Equal(t, "call_1", toolMsg.ToolCallID)
	assert.Contains(t, toolMsg.Content, "**Customer:** Ana")
}

func TestSupervisorFallbacks(t *testing.T) {
	tests := []struct {
		name          string
		steps         []llm.ScriptedStep
		wantReasoning string
	}{
		{"unparseable", []llm.ScriptedStep{llm.Reply("Billing, probably urgent")}, "Parse failed: Billing, probably urgent"},
		{"unknown enum", []llm.ScriptedStep{llm.Reply(`{"urgency": "extreme", "ticket_type": "billing"}`)}, `Parse failed: {"urgency": "extreme"`},
		{"llm failure", []llm.ScriptedStep{llm.Fail(errors.New("rate limited"))}, "Classification failed: rate limited"},
		{"endless tools", []llm.ScriptedStep{llm.CallTool("c", "customer_lookup", map[string]any{"customer_id": "x"})}, "Classification failed: tool rounds exhausted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := llm.NewScriptedClient("test").On(NameSupervisor, tt.steps...)
			state := spanishState()
			require.NoError(t, NewSupervisor(depsFor(client), storage.NewMemoryStore()).Execute(context.Background(), state))

			d := state.SupervisorDecision
			require.NotNil(t, d)
			assert.Equal(t, domain.UrgencyMedium, d.Urgency)
			assert.Equal(t, domain.TicketTypeGeneral, d.TicketType)
			assert.False(t, d.RequiresEscalation)
			assert.True(t, strings.HasPrefix(d.Reasoning, tt.wantReasoning), d.Reasoning)
		})
	}
}

func TestSupervisorParseFailureTruncates(t *testing.T) {
	long := strings.Repeat("é", 300)
	client := llm.NewScriptedClient("test").On(NameSupervisor, llm.Reply(long))
	state := spanishState()
	require.NoError(t, NewSupervisor(depsFor(client), nil).Execute(context.Background(), state))
	assert.Equal(t, "Parse failed: "+strings.Repeat("é", 200), state.SupervisorDecision.Reasoning)
	assert.Empty(t, client.Calls()[0].Tools, "no directory means no lookup tool")
}

func billingState() *graph.State {
	state := spanishState()
	state.Translation = &domain.Translation{OriginalLanguage: "es", TranslatedMessages: []string{"I was charged twice", "I need a refund"}, OriginalMessages: state.Ticket.MessageTexts()}
	state.SupervisorDecision = &domain.SupervisorDecision{Urgency: domain.UrgencyHigh, TicketType: domain.TicketTypeBilling, Reasoning: "Duplicate charge"}
	return state
}

func TestSpecialistSearchesOwnCategory(t *testing.T) {
	searcher := &fakeSearcher{}
	client := llm.NewScriptedClient("test").On(NameBilling,
		llm.CallTool("kb_1", "kb_search", map[string]any{"query": "duplicate charge", "top_k": float64(3)}),
		llm.Reply(`{
		  "urgency": "high",
		  "extracted_info": {"product_area": "billing", "issue_type": "duplicate_charge", "sentiment": "frustrated", "language": "es"},
		  "recommended_action": "auto_respond",
		  "suggested_response": "Hemos reembolsado el cargo duplicado.",
		  "relevant_articles": [{"id": "KB-101", "title": "Duplicate charges", "relevance_score": 0.9}],
		  "reasoning": "KB covers it"
		}`),
	)
	specialist, err := NewSpecialist(domain.TicketTypeBilling, depsFor(client), searcher)
	require.NoError(t, err)
	assert.Equal(t, NameBilling, specialist.Name())

	state := billingState()
	require.NoError(t, specialist.Execute(context.Background(), state))

	assert.Equal(t, "billing", searcher.category)
	r := state.TriageResult
	require.NotNil(t, r)
	assert.Equal(t, domain.ActionAutoRespond, r.RecommendedAction)
	assert.Equal(t, "Hemos reembolsado el cargo duplicado.", r.SuggestedResponse)
	assert.Equal(t, []domain.Article{{ID: "KB-101", Title: "Duplicate charges", RelevanceScore: 0.9}}, r.RelevantArticles)

	system := client.Calls()[0].Messages[0].Content
	assert.Contains(t, system, "**Supervisor Urgency:** high")
	assert.Contains(t, system, "**Supervisor Reasoning:** Duplicate charge")
	assert.Contains(t, system, "**Original Language:** es")
	assert.Contains(t, system, "Plan: pro, Tenure: 8 months, Region: N/A, Seats: 5, Previous Tickets: 1")
	assert.Contains(t, system, "I need a refund")
	assert.NotContains(t, system, "{{")
	assert.Equal(t, specialistRequest, client.Calls()[0].Messages[1].Content)
}

func TestSpecialistRecoversPartialOutput(t *testing.T) {
	client := llm.NewScriptedClient("test").On(NameTechnical, llm.Reply(
		`{"recommended_action": "sometimes", "relevant_articles": [{"relevance_score": 7}, "junk", {"id": "KB-9", "relevance_score": -1}]}`))
	specialist, err := NewSpecialist(domain.TicketTypeTechnical, depsFor(client), nil)
	require.NoError(t, err)

	state := billingState()
	state.SupervisorDecision.Urgency = domain.UrgencyLow
	require.NoError(t, specialist.Execute(context.Background(), state))

	r := state.TriageResult
	assert.Equal(t, domain.UrgencyLow, r.Urgency)
	assert.Equal(t, domain.ActionRouteSpecialist, r.RecommendedAction)
	assert.Equal(t, domain.ExtractedInfo{ProductArea: "technical", IssueType: "unknown", Sentiment: "neutral", Language: "es"}, r.ExtractedInfo)
	assert.Equal(t, []domain.Article{
		{ID: "unknown", Title: "Unknown", RelevanceScore: 1},
		{ID: "KB-9", Title: "Unknown", RelevanceScore: 0},
	}, r.RelevantArticles)
}

func TestSpecialistFullFallbacks(t *testing.T) {
	tests := []struct {
		name   string
		step   llm.ScriptedStep
		prefix string
	}{
		{"unparseable", llm.Reply("no json here"), "Parse failed: no json here"},
		{"llm failure", llm.Fail(errors.New("timeout")), "Specialist failed: timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := llm.NewScriptedClient("test").On(NameGeneral, tt.step)
			specialist, err := NewSpecialist(domain.TicketTypeGeneral, depsFor(client), nil)
			require.NoError(t, err)
			state := billingState()
			require.NoError(t, specialist.Execute(context.Background(), state))

			r := state.TriageResult
			assert.Equal(t, domain.ActionEscalateHuman, r.RecommendedAction)
			assert.Equal(t, domain.UrgencyHigh, r.Urgency)
			assert.True(t, strings.HasPrefix(r.Reasoning, tt.prefix), r.Reasoning)
			assert.NotNil(t, r.RelevantArticles)
		})
	}
}

func TestSpecialistForcesEscalation(t *testing.T) {
	client := llm.NewScriptedClient("test").On(NameBilling, llm.Reply(`{"urgency": "low", "recommended_action": "auto_respond"}`))
	specialist, err := NewSpecialist(domain.TicketTypeBilling, depsFor(client), nil)
	require.NoError(t, err)
	state := billingState()
	state.SupervisorDecision.RequiresEscalation = true

	require.NoError(t, specialist.Execute(context.Background(), state))
	assert.Equal(t, domain.ActionEscalateHuman, state.TriageResult.RecommendedAction)
}

func TestNewSpecialistRejectsUnknownDomain(t *testing.T) {
	_, err := NewSpecialist("sales", depsFor(llm.NewScriptedClient("test")), nil)
	assert.Error(t, err)
}

func TestTicketMatcher(t *testing.T) {
	summaries := []TicketSummary{{TicketID: "TKT-AAAA0001", Summary: "**TKT-AAAA0001**\nType: billing"}}

	t.Run("no active tickets skips the model", func(t *testing.T) {
		client := llm.NewScriptedClient("test")
		got := NewTicketMatcher(depsFor(client)).Match(context.Background(), "hello", nil)
		assert.Equal(t, MatchResult{Confidence: domain.ConfidenceHigh, Reasoning: "No active tickets found for this customer"}, got)
		assert.Empty(t, client.Calls())
	})

	t.Run("match", func(t *testing.T) {
		client := llm.NewScriptedClient("test").On(NameTicketMatcher, llm.Reply(
			`{"matched_ticket_id": "TKT-AAAA0001", "confidence": "HIGH", "reasoning": "Same refund"}`))
		got := NewTicketMatcher(depsFor(client)).Match(context.Background(), "Where is my refund?", summaries)
		assert.Equal(t, MatchResult{MatchedTicketID: "TKT-AAAA0001", Confidence: domain.ConfidenceHigh, Reasoning: "Same refund"}, got)

		user := client.Calls()[0].Messages[1].Content
		assert.Equal(t, "## New Customer Message\nWhere is my refund?\n\n## Active Tickets\n- **TKT-AAAA0001**: **TKT-AAAA0001**\nType: billing\n\nAnalyze if the new message relates to any active ticket.", user)
	})

	t.Run("null id and unknown confidence", func(t *testing.T) {
		client := llm.NewScriptedClient("test").On(NameTicketMatcher, llm.Reply(
			`{"matched_ticket_id": null, "confidence": "certain", "reasoning": "Unrelated"}`))
		got := NewTicketMatcher(depsFor(client)).Match(context.Background(), "New question", summaries)
		assert.Empty(t, got.MatchedTicketID)
		assert.Equal(t, domain.ConfidenceLow, got.Confidence)
	})

	t.Run("parse failure", func(t *testing.T) {
		client := llm.NewScriptedClient("test").On(NameTicketMatcher, llm.Reply(strings.Repeat("x", 150)))
		got := NewTicketMatcher(depsFor(client)).Match(context.Background(), "New question", summaries)
		assert.Equal(t, MatchResult{Confidence: domain.ConfidenceLow, Reasoning: "Parse failed: " + strings.Repeat("x", 100)}, got)
	})

	t.Run("llm failure", func(t *testing.T) {
		client := llm.NewScriptedClient("test").On(NameTicketMatcher, llm.Fail(errors.New("boom")))
		got := NewTicketMatcher(depsFor(client)).Match(context.Background(), "New question", summaries)
		assert.Equal(t, MatchResult{Confidence: domain.ConfidenceLow, Reasoning: "Matching failed: boom"}, got)
	})
}

func TestFallbacksAreLogged(t *testing.T) {
	rec := &logging.Recorder{}
	client := llm.NewScriptedClient("test").On(NameTranslator, llm.Reply("nope"))
	NewTranslator(Deps{LLM: client, Logger: rec}).Translate(context.Background(), []string{"hi"})
	assert.True(t, rec.Has("warn", "translator fallback (parse_error)"))
}

func TestTicketContentWithoutTranslation(t *testing.T) {
	ticket := &domain.Ticket{
		TicketID:   "TKT-1",
		CustomerID: "cust_9",
		Messages:   []domain.TicketMessage{{Role: domain.RoleAgent, Content: "How can we help?"}},
	}
	content := TicketContent(ticket, &domain.Translation{OriginalLanguage: "en", IsEnglish: true})
	assert.NotContains(t, content, "Original Language")
	assert.Contains(t, content, "- **Plan:** N/A")
	assert.True(t, strings.HasSuffix(content, "## Conversation\n[agent]: How can we help?"))
}
