package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/config"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/domain"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/observability"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/resolution"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/server/app"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/server/ports"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/storage"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/triage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTriager struct {
	got     domain.Ticket
	outcome *triage.Outcome
	err     error
}

func (f *fakeTriager) Triage(_ context.Context, ticket domain.Ticket) (*triage.Outcome, error) {
	f.got = ticket
	return f.outcome, f.err
}

type staticHealth []ports.ComponentHealth

func (s staticHealth) CheckAll(context.Context) []ports.ComponentHealth { return s }

const triageBody = `{
  "customer_id": "CUST-001",
  "customer_info": {"plan": "pro", "tenure_months": 8, "seats": 5},
  "messages": [
    {"role": "customer", "content": "I was charged twice this month", "timestamp": "2025-03-01T10:00:00Z"}
  ]
}`

func newTestRouter(t *testing.T, triager app.Triager, store storage.Store, health ports.HealthChecker) http.Handler {
	t.Helper()
	return NewRouter(RouterDeps{
		Tickets: app.NewTicketService(triager, store, nil, nil),
		Health:  health,
		Tracer:  observability.NewNoopTracerProvider(),
		Server:  config.ServerConfig{CORSOrigins: []string{"*"}},
	})
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestTriageEndpointReturnsResultAndTicketID(t *testing.T) {
	triager := &fakeTriager{outcome: &triage.Outcome{
		TicketID:   "TKT-1A2B3C4D",
		Resolution: &resolution.Resolution{TicketID: "TKT-1A2B3C4D", Source: resolution.SourceGenerated},
		Result: &domain.TriageResult{
			Urgency:           domain.UrgencyHigh,
			RecommendedAction: domain.ActionEscalateHuman,
			ExtractedInfo:     domain.ExtractedInfo{ProductArea: "billing"},
			RelevantArticles:  []domain.Article{},
			Reasoning:         "duplicate charge",
		},
		Persistence: triage.PersistClosed,
	}}
	router := newTestRouter(t, triager, nil, nil)

	for _, path := range []string{"/api/v1/triage", "/triage"} {
		rec := do(router, http.MethodPost, path, triageBody)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		body := decode(t, rec)
		assert.Equal(t, "TKT-1A2B3C4D", body["ticket_id"])
		assert.Equal(t, "high", body["urgency"])
		assert.Equal(t, "escalate_human", body["recommended_action"])
		assert.Equal(t, true, body["persisted"])
		assert.Equal(t, "generated", body["resolution"].(map[string]any)["source"])
	}

	assert.Equal(t, "CUST-001", triager.got.CustomerID)
	require.NotNil(t, triager.got.CustomerInfo.Seats)
	assert.Equal(t, 5, *triager.got.CustomerInfo.Seats)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), triager.got.Messages[0].Timestamp)
}

func TestTriageEndpointValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
	}{
		{name: "malformed json", body: `{"customer_id":`},
		{name: "missing customer", body: `{"messages":[{"role":"customer","content":"hi"}]}`},
		{name: "no messages", body: `{"customer_id":"CUST-1","messages":[]}`},
		{name: "unknown role", body: `{"customer_id":"CUST-1","messages":[{"role":"bot","content":"hi"}]}`},
		{name: "rejected by service", body: triageBody, err: fmt.Errorf("%w: customer_id and ticket_id must not contain ':'", triage.ErrInvalidTicket)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, &fakeTriager{err: tt.err}, nil, nil)
			rec := do(router, http.MethodPost, "/api/v1/triage", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decode(t, rec)["error"])
		})
	}
}

func TestTriageEndpointInfrastructureFailure(t *testing.T) {
	router := newTestRouter(t, &fakeTriager{err: errors.New("scan checkpoints: connection refused")}, nil, nil)

	rec := do(router, http.MethodPost, "/api/v1/triage", triageBody)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "triage failed", body["error"])
	assert.Contains(t, body["details"], "connection refused")
}

func TestTicketReadEndpoints(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	closedAt := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveTicket(ctx, &domain.TicketRecord{
		TicketID: "TKT-00000001", CustomerID: "CUST-9", Status: domain.StatusClosed,
		Urgency: domain.UrgencyLow, CreatedAt: closedAt.Add(-time.Hour), ClosedAt: &closedAt,
	}))
	require.NoError(t, store.SaveMessages(ctx, "TKT-00000001", []domain.ChatMessage{
		{TicketID: "TKT-00000001", CustomerID: "CUST-9", Role: domain.ChatRoleHuman, Content: "How do I export?"},
		{TicketID: "TKT-00000001", CustomerID: "CUST-9", Role: domain.ChatRoleAI, Content: "See the export guide."},
	}))
	router := newTestRouter(t, nil, store, nil)

	rec := do(router, http.MethodGet, "/api/v1/tickets/TKT-00000001", "")
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode(t, rec)
	assert.Equal(t, "closed", detail["ticket"].(map[string]any)["status"])
	assert.Len(t, detail["messages"], 2)

	rec = do(router, http.MethodGet, "/api/v1/tickets/TKT-NOPE0000", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(router, http.MethodGet, "/api/v1/customers/CUST-9/history?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["tickets"], 1)

	rec = do(router, http.MethodGet, "/api/v1/customers/CUST-9/history?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(router, http.MethodGet, "/api/v1/customers/CUST-9/tickets/open", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, decode(t, rec)["tickets"])

	rec = do(router, http.MethodGet, "/api/v1/customers/CUST-9/tickets/active", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	t.Run("degraded when a component is not ready", func(t *testing.T) {
		router := newTestRouter(t, nil, nil, staticHealth{
			{Name: "llm", Status: ports.HealthStatusReady},
			{Name: "knowledge_base", Status: ports.HealthStatusNotReady},
		})
		rec := do(router, http.MethodGet, "/health", "")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "degraded", body["status"])
		assert.Len(t, body["components"], 2)
		assert.Contains(t, body, "uptime_seconds")
	})

	t.Run("unavailable when a component errors", func(t *testing.T) {
		router := newTestRouter(t, nil, nil, staticHealth{{Name: "database", Status: ports.HealthStatusError}})
		rec := do(router, http.MethodGet, "/health", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "error", decode(t, rec)["status"])
	})

	t.Run("ok without probes", func(t *testing.T) {
		rec := do(newTestRouter(t, nil, nil, nil), http.MethodGet, "/health", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", decode(t, rec)["status"])
	})
}

func TestUnknownRoute(t *testing.T) {
	rec := do(newTestRouter(t, nil, nil, nil), http.MethodGet, "/api/v2/nothing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "route not found", decode(t, rec)["error"])
}
