package evaluation

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/agent/ports"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/config"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/di"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/domain"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/logging"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/triage"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type toolCallingLLM struct {
	calls []string
}

func (c *toolCallingLLM) Model() string { return "fake" }

func (c *toolCallingLLM) Complete(context.Context, ports.CompletionRequest) (*ports.CompletionResponse, error) {
	resp := &ports.CompletionResponse{StopReason: "tool_calls"}
	for i, name := range c.calls {
		resp.ToolCalls = append(resp.ToolCalls, ports.ToolCall{ID: string(rune('a' + i)), Name: name})
	}
	return resp, nil
}

// scriptedTriager answers every ticket with the same path and result, and
// reports its tool calls through llm.
type scriptedTriager struct {
	llm    ports.LLMClient
	order  []string
	result *domain.TriageResult
	err    error
	seen   atomic.Int32
}

func (s *scriptedTriager) Triage(ctx context.Context, ticket domain.Ticket) (*triage.Outcome, error) {
	s.seen.Add(1)
	if s.llm != nil {
		_, _ = s.llm.Complete(ctx, ports.CompletionRequest{
			Metadata: map[string]any{ports.MetadataSessionID: ticket.CustomerID},
		})
	}
	if s.err != nil {
		return nil, s.err
	}
	return &triage.Outcome{
		TicketID:    ticket.TicketID,
		Result:      s.result,
		Run:         workflow.Snapshot{Order: s.order},
		Persistence: triage.PersistClosed,
	}, nil
}

func billingScenario(id string) Scenario {
	return Scenario{
		ID:       id,
		Name:     "Refund",
		Category: CategoryBilling,
		Messages: []ScenarioMessage{{Role: "customer", Content: "refund my invoice"}},
		Workflow: WorkflowExpectation{
			AgentsInclude: []string{"translator", "supervisor", "billing"},
			AgentsExclude: []string{"technical"},
			ToolsInclude:  []string{"kb_search"},
		},
		Expected: TriageExpectation{
			Urgency:    domain.UrgencyMedium,
			Action:     domain.ActionAutoRespond,
			TicketType: domain.TicketTypeBilling,
		},
	}
}

func fixedClock() func() time.Time {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return func() time.Time { return now }
}

func TestToolRecorderKeepsSessionsApart(t *testing.T) {
	recorder := NewToolRecorder()
	client := recorder.Wrap(&toolCallingLLM{calls: []string{"kb_search", "kb_search", "customer_lookup"}})
	assert.Equal(t, "fake", client.Model())

	ctx := context.Background()
	_, err := client.Complete(ctx, ports.CompletionRequest{Metadata: map[string]any{ports.MetadataSessionID: "cust-a"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"kb_search", "customer_lookup"}, recorder.Take("cust-a"))
	assert.Empty(t, recorder.Take("cust-a"), "Take forgets the session")
	assert.Empty(t, recorder.Take("cust-b"))
}

func TestRunnerScoresScenarios(t *testing.T) {
	recorder := NewToolRecorder()
	triager := &scriptedTriager{
		llm:   recorder.Wrap(&toolCallingLLM{calls: []string{"kb_search"}}),
		order: []string{"translator", "supervisor", "billing"},
		result: &domain.TriageResult{
			Urgency:           domain.UrgencyMedium,
			RecommendedAction: domain.ActionAutoRespond,
			ExtractedInfo:     domain.ExtractedInfo{ProductArea: "billing", Language: "en"},
		},
	}
	wrongAction := billingScenario("billing-b")
	wrongAction.Expected.Action = domain.ActionEscalateHuman

	runner := NewRunner(triager, RunnerOptions{Tools: recorder, Concurrency: 2, Logger: logging.Nop(), Now: fixedClock()})
	report, err := runner.Run(context.Background(), []Scenario{billingScenario("billing-a"), wrongAction})
	require.NoError(t, err)

	assert.Equal(t, "20250102-030405", report.RunID)
	require.Len(t, report.Results, 2)
	first := report.Results[0]
	assert.Equal(t, "billing-a", first.ScenarioID)
	assert.True(t, first.Pass)
	assert.Equal(t, "eval-billing-a-20250102-030405", first.TicketID)
	assert.Equal(t, []string{"kb_search"}, first.Workflow.ToolsUsed)

	second := report.Results[1]
	assert.False(t, second.Pass)
	assert.True(t, second.Workflow.Pass)
	assert.False(t, second.Classification.Action.Match)

	s := report.Summary
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.Passed)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 0.5, s.ActionAccuracy)
	assert.Equal(t, 1.0, s.RoutingAccuracy)
	assert.Equal(t, 1.0, s.WorkflowPassRate)
	assert.Equal(t, CategorySummary{Total: 2, Passed: 1}, s.ByCategory[CategoryBilling])
	assert.Equal(t, 0.5, s.PassRate())
}

func TestRunnerRecordsScenarioErrors(t *testing.T) {
	triager := &scriptedTriager{err: errors.New("llm unavailable")}
	runner := NewRunner(triager, RunnerOptions{Logger: logging.Nop()})

	report, err := runner.Run(context.Background(), []Scenario{billingScenario("a"), billingScenario("b")})
	require.NoError(t, err)

	assert.EqualValues(t, 2, triager.seen.Load())
	assert.Equal(t, 2, report.Summary.Errored)
	assert.Equal(t, 0, report.Summary.Passed)
	assert.Equal(t, 0.0, report.Summary.UrgencyAccuracy)
	assert.Equal(t, "llm unavailable", report.Results[0].Error)
}

func TestRunnerStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(&scriptedTriager{}, RunnerOptions{Logger: logging.Nop()}).Run(ctx, []Scenario{billingScenario("a")})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunnerRequiresTriager(t *testing.T) {
	_, err := NewRunner(nil, RunnerOptions{}).Run(context.Background(), nil)
	assert.Error(t, err)
}

func TestReportWriters(t *testing.T) {
	report := &Report{
		RunID:     "run-1",
		StartedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Results: []ScenarioResult{
			{ScenarioID: "ok", Category: CategoryGeneral, Pass: true, Workflow: WorkflowValidation{Pass: true, AgentsUsed: []string{"translator", "supervisor", "general"}}},
			{ScenarioID: "bad", Category: CategoryBilling, Classification: Classification{Urgency: FieldMatch{Expected: "high", Actual: "low"}}},
			{ScenarioID: "broken", Category: CategoryBilling, Error: "boom"},
		},
	}
	report.Summary = Summarize(report.Results)

	var md bytes.Buffer
	require.NoError(t, report.WriteMarkdown(&md))
	out := md.String()
	assert.Contains(t, out, "### PASS ok")
	assert.Contains(t, out, "### FAIL bad")
	assert.Contains(t, out, "urgency: expected high, got low")
	assert.Contains(t, out, "### ERROR broken")
	assert.Contains(t, out, "| billing | 0 | 2 |")
	assert.Contains(t, out, "translator -> supervisor -> general")

	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "nested", "report.json")
	require.NoError(t, SaveReport(report, jsonPath))
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run_id": "run-1"`)

	mdPath := filepath.Join(dir, "report.md")
	require.NoError(t, SaveReport(report, mdPath))
	data, err = os.ReadFile(mdPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# Triage Evaluation Report"))
}

func TestRunnerAgainstMockWorkflow(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	for _, name := range []string{"OPENAI_API_KEY", "LLM_API_KEY", "LITELLM_PROXY_URL", "DATABASE_URL", "REDIS_ADDR"} {
		t.Setenv(name, "")
	}
	cfg, _, err := config.Load(config.WithOverrides(map[string]any{
		"llm.provider":                  config.ProviderMock,
		"embedding.provider":            config.ProviderMock,
		"kb.source":                     "",
		"observability.metrics.enabled": false,
		"observability.logging.level":   "error",
	}))
	require.NoError(t, err)

	recorder := NewToolRecorder()
	c, err := di.Build(context.Background(), cfg, di.WithLLMMiddleware(recorder.Wrap))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Cleanup(context.Background()) })

	scenario := Scenario{
		ID:       "billing-double-charge",
		Category: CategoryBilling,
		Messages: []ScenarioMessage{{Role: "customer", Content: "I was charged twice for my subscription this month"}},
		Workflow: WorkflowExpectation{
			AgentsInclude: []string{"translator", "supervisor", "billing"},
			AgentsExclude: []string{"technical", "general", "escalate"},
			ToolsInclude:  []string{"customer_lookup", "kb_search"},
		},
		Expected: TriageExpectation{Urgency: domain.UrgencyHigh, Action: domain.ActionRouteSpecialist, TicketType: domain.TicketTypeBilling},
	}

	report, err := NewRunner(c.Triage, RunnerOptions{Tools: recorder}).Run(context.Background(), []Scenario{scenario})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)

	res := report.Results[0]
	require.Empty(t, res.Error)
	assert.True(t, res.Workflow.Pass, "agents=%v tools=%v", res.Workflow.AgentsUsed, res.Workflow.ToolsUsed)
	assert.True(t, res.Classification.Routing.Match)
	assert.Equal(t, "eval-billing-double-charge-"+report.RunID, res.TicketID)
}
