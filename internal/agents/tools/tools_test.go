package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/agent/ports"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/domain"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/kb"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	results  []kb.SearchResult
	err      error
	query    string
	category string
	topK     int
}

func (f *fakeSearcher) Search(_ context.Context, query, category string, topK int) ([]kb.SearchResult, error) {
	f.query, f.category, f.topK = query, category, topK
	return f.results, f.err
}

func TestCustomerLookupFormatsProfile(t *testing.T) {
	store := storage.NewMemoryStore()
	require.NoError(t, store.UpsertCustomer(context.Background(), &domain.Customer{
		ID:              "cust_001",
		Name:            "Jane Doe",
		Email:           "jane@example.com",
		Plan:            "enterprise",
		TenureMonths:    24,
		Seats:           50,
		PreviousTickets: 3,
	}))

	tool := NewCustomerLookup(store)
	assert.Equal(t, CustomerLookupName, tool.Definition().Name)

	result, err := tool.Execute(context.Background(), ports.ToolCall{ID: "c1", Arguments: map[string]any{"customer_id": "cust_001"}})
	require.NoError(t, err)
	require.NoError(t, result.Error)
	assert.Equal(t, "c1", result.CallID)
	assert.Contains(t, result.Content, "**Customer:** Jane Doe")
	assert.Contains(t, result.Content, "**Plan:** enterprise")
	assert.Contains(t, result.Content, "**Tenure:** 24 months")
	assert.Contains(t, result.Content, "**Region:** N/A")
	assert.Contains(t, result.Content, "**Seats:** 50")
	assert.Contains(t, result.Content, "**Notes:** None")
}

func TestCustomerLookupNotFoundIsContent(t *testing.T) {
	tool := NewCustomerLookup(storage.NewMemoryStore())
	result, err := tool.Execute(context.Background(), ports.ToolCall{ID: "c1", Arguments: map[string]any{"customer_id": "ghost"}})
	require.NoError(t, err)
	require.NoError(t, result.Error)
	assert.Equal(t, "Customer ghost not found.", result.Content)
}

func TestCustomerLookupRequiresID(t *testing.T) {
	tool := NewCustomerLookup(storage.NewMemoryStore())
	result, err := tool.Execute(context.Background(), ports.ToolCall{ID: "c1"})
	require.NoError(t, err)
	assert.Error(t, result.Error)
}

func TestKBSearchUsesCategoryAndClampsTopK(t *testing.T) {
	searcher := &fakeSearcher{results: []kb.SearchResult{
		{ArticleID: "KB-001", Title: "Refund policy", Category: "billing", Text: "Refunds are processed within 5 days.", Score: 0.912},
		{ArticleID: "KB-002", Title: "Invoices", Category: "billing", Text: strings.Repeat("x", 600), Score: 0.5},
	}}
	tool := NewKBSearch(searcher, "billing")

	result, err := tool.Execute(context.Background(), ports.ToolCall{ID: "k1", Arguments: map[string]any{"query": "refund", "top_k": float64(50)}})
	require.NoError(t, err)
	require.NoError(t, result.Error)

	assert.Equal(t, "refund", searcher.query)
	assert.Equal(t, "billing", searcher.category)
	assert.Equal(t, maxKBTopK, searcher.topK)

	entries := strings.Split(result.Content, "\n\n---\n\n")
	require.Len(t, entries, 2)
	assert.True(t, strings.HasPrefix(entries[0], "**Refund policy** (id: KB-001, category: billing, relevance: 0.91)\n"))
	assert.Equal(t, strings.Repeat("x", maxExcerptRune)+"...", strings.SplitN(entries[1], "\n", 2)[1])
}

func TestKBSearchDefaultsAndEmpty(t *testing.T) {
	searcher := &fakeSearcher{}
	tool := NewKBSearch(searcher, "")

	result, err := tool.Execute(context.Background(), ports.ToolCall{ID: "k1", Arguments: map[string]any{"query": "login"}})
	require.NoError(t, err)
	assert.Equal(t, defaultKBTopK, searcher.topK)
	assert.Equal(t, "No relevant articles found.", result.Content)
}

func TestKBSearchReportsFailuresAsToolErrors(t *testing.T) {
	tool := NewKBSearch(&fakeSearcher{err: errors.New("index offline")}, "technical")

	result, err := tool.Execute(context.Background(), ports.ToolCall{ID: "k1", Arguments: map[string]any{"query": "api"}})
	require.NoError(t, err)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "index offline")

	missing, err := tool.Execute(context.Background(), ports.ToolCall{ID: "k2"})
	require.NoError(t, err)
	assert.Error(t, missing.Error)
}
