package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/domain"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/prompts"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/server/app"
	jsonx "github.com/mhokchuekchuek/support-ticket-triage-agent/internal/shared/json"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var offlineSets = []string{
	"--set", "llm.provider=mock",
	"--set", "embedding.provider=mock",
	"--set", "kb.source=",
	"--set", "observability.metrics.enabled=false",
	"--set", "observability.logging.level=error",
}

func offlineEnv(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	for _, name := range []string{"OPENAI_API_KEY", "LLM_API_KEY", "LITELLM_PROXY_URL", "DATABASE_URL", "REDIS_ADDR"} {
		t.Setenv(name, "")
	}
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCommand(&out, &errOut)
	root.SetArgs(append(append([]string{}, args...), offlineSets...))
	err := root.Execute()
	return out.String(), errOut.String(), err
}

func TestParseSets(t *testing.T) {
	got, err := parseSets([]string{"LLM.Provider=mock", " server.port = 9000 ", "kb.source="})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"llm.provider": "mock",
		"server.port":  "9000",
		"kb.source":    "",
	}, got)

	_, err = parseSets([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseSets([]string{"=x"})
	assert.Error(t, err)
}

func TestTicketFromFlags(t *testing.T) {
	t.Run("messages only", func(t *testing.T) {
		ticket, err := ticketFromFlags(strings.NewReader(""), "", "CUST-1", "", "pro", []string{"hello", "  "})
		require.NoError(t, err)
		assert.Equal(t, "CUST-1", ticket.CustomerID)
		assert.Equal(t, "pro", ticket.CustomerInfo.Plan)
		require.Len(t, ticket.Messages, 1)
		assert.Equal(t, domain.RoleCustomer, ticket.Messages[0].Role)
	})

	t.Run("stdin with flag overrides", func(t *testing.T) {
		body := `{"ticket_id":"T-1","customer_id":"C-1","messages":[{"role":"customer","content":"app crashes","timestamp":"2024-11-15T09:00:00Z"}]}`
		ticket, err := ticketFromFlags(strings.NewReader(body), "-", "C-2", "", "", []string{"still crashing"})
		require.NoError(t, err)
		assert.Equal(t, "T-1", ticket.TicketID)
		assert.Equal(t, "C-2", ticket.CustomerID)
		require.Len(t, ticket.Messages, 2)
		assert.Equal(t, "app crashes", ticket.Messages[0].Content)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ticket.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"customer_id":"C-9","messages":[{"role":"customer","content":"hi"}]}`), 0o644))
		ticket, err := ticketFromFlags(nil, path, "", "", "", nil)
		require.NoError(t, err)
		assert.Equal(t, "C-9", ticket.CustomerID)
	})

	t.Run("nothing given", func(t *testing.T) {
		_, err := ticketFromFlags(strings.NewReader(""), "", "C-1", "", "", nil)
		assert.Error(t, err)
	})

	t.Run("bad json", func(t *testing.T) {
		_, err := ticketFromFlags(strings.NewReader("{"), "-", "", "", "", nil)
		assert.ErrorContains(t, err, "decode ticket")
	})
}

func TestExitCodeError(t *testing.T) {
	inner := errors.New("pass rate too low")
	err := error(&ExitCodeError{Code: 3, Err: inner})
	assert.Equal(t, "pass rate too low", err.Error())
	assert.ErrorIs(t, err, inner)

	var exitErr *ExitCodeError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.Code)

	var nilErr *ExitCodeError
	assert.Empty(t, nilErr.Error())
	assert.NoError(t, nilErr.Unwrap())
}

func TestPrintTriage(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	printTriage(&buf, &app.TriageResponse{
		TicketID: "T-1",
		Status:   "closed",
		NodesRun: []string{"translator", "supervisor", "billing"},
		TriageResult: &domain.TriageResult{
			Urgency:           domain.UrgencyHigh,
			RecommendedAction: domain.ActionRouteSpecialist,
			ExtractedInfo:     domain.ExtractedInfo{ProductArea: "billing", IssueType: "double_charge", Sentiment: "frustrated", Language: "en"},
			RelevantArticles:  []domain.Article{{ID: "KB-001", Title: "Refund policy", RelevanceScore: 0.91}},
			SuggestedResponse: "We are refunding the duplicate charge.",
		},
	})
	out := buf.String()
	assert.Contains(t, out, "Ticket T-1 (closed)")
	assert.Contains(t, out, "translator -> supervisor -> billing")
	assert.Contains(t, out, "urgency: high")
	assert.Contains(t, out, "Refund policy (KB-001, 0.91)")
	assert.Contains(t, out, "We are refunding the duplicate charge.")
}

func TestPrintHistory(t *testing.T) {
	color.NoColor = true
	closed := time.Date(2024, 11, 15, 9, 30, 0, 0, time.UTC)
	var buf bytes.Buffer
	printHistory(&buf, "C-1",
		[]domain.TicketRecord{{TicketID: "T-1", Status: "closed", TicketType: string(domain.TicketTypeBilling), Urgency: domain.UrgencyLow, ClosedAt: &closed}},
		[]app.ActiveTicket{{TicketID: "T-2", Step: 4, CurrentAgent: "supervisor", Summary: "Login fails\nsecond line"}},
	)
	out := buf.String()
	assert.Contains(t, out, "Active (1)")
	assert.Contains(t, out, "T-2 step 4 at supervisor Login fails")
	assert.NotContains(t, out, "second line")
	assert.Contains(t, out, "History (1)")
	assert.Contains(t, out, "2024-11-15 09:30")
}

func TestRunCommandJSON(t *testing.T) {
	offlineEnv(t)
	out, _, err := execute(t, "run", "-c", "CUST-001", "-t", "T-100", "-m", "I was charged twice for my subscription", "--json")
	require.NoError(t, err)

	var resp app.TriageResponse
	require.NoError(t, jsonx.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "T-100", resp.TicketID)
	require.NotNil(t, resp.TriageResult)
	assert.Equal(t, "billing", resp.ExtractedInfo.ProductArea)
	assert.Contains(t, resp.NodesRun, "billing")
}

func TestRunCommandRejectsInvalidTicket(t *testing.T) {
	offlineEnv(t)
	_, _, err := execute(t, "run", "-c", "bad:id", "-m", "hello")
	assert.ErrorContains(t, err, "invalid ticket")
}

func TestEvalCommandList(t *testing.T) {
	offlineEnv(t)
	out, _, err := execute(t, "eval", "--list", "--category", "escalation")
	require.NoError(t, err)
	assert.Contains(t, out, "escalation-01-legal-threat")
	assert.NotContains(t, out, "billing-01")
}

func TestEvalCommandThreshold(t *testing.T) {
	offlineEnv(t)
	report := filepath.Join(t.TempDir(), "report.json")
	_, _, err := execute(t, "eval", "--category", "billing", "--output", report, "--min-pass-rate", "1.01")

	var exitErr *ExitCodeError
	require.True(t, errors.As(err, &exitErr), "err=%v", err)
	assert.Equal(t, exitEvalBelowThreshold, exitErr.Code)
	assert.FileExists(t, report)
}

func TestPromptsCommands(t *testing.T) {
	offlineEnv(t)
	out, _, err := execute(t, "prompts", "list")
	require.NoError(t, err)
	for _, name := range prompts.Names() {
		assert.Contains(t, out, name)
	}

	out, _, err = execute(t, "prompts", "show", prompts.Supervisor, "--meta")
	require.NoError(t, err)
	assert.Contains(t, out, prompts.Supervisor)
	assert.Contains(t, out, "embedded")
}

func TestPromptsUploadNeedsCredentials(t *testing.T) {
	offlineEnv(t)
	_, _, err := execute(t, "prompts", "upload")
	assert.Error(t, err)
}
