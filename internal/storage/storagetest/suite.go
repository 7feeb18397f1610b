// Package storagetest holds behaviour tests shared by every storage.Store.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/domain"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store. Cleanup is registered on t.
type Factory func(t *testing.T) storage.Store

// Run exercises the storage.Store contract against newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("TicketRoundTrip", func(t *testing.T) { testTicketRoundTrip(t, newStore(t)) })
	t.Run("SaveTicketUpserts", func(t *testing.T) { testSaveTicketUpserts(t, newStore(t)) })
	t.Run("SaveTicketKeepsOwner", func(t *testing.T) { testSaveTicketKeepsOwner(t, newStore(t)) })
	t.Run("MissingTicket", func(t *testing.T) { testMissingTicket(t, newStore(t)) })
	t.Run("MessagesAppendedPerTicket", func(t *testing.T) { testMessagesAppended(t, newStore(t)) })
	t.Run("CustomerHistoryNewestFirst", func(t *testing.T) { testCustomerHistory(t, newStore(t)) })
	t.Run("OpenTickets", func(t *testing.T) { testOpenTickets(t, newStore(t)) })
	t.Run("Customers", func(t *testing.T) { testCustomers(t, newStore(t)) })
}

func sampleResult() *domain.TriageResult {
	return &domain.TriageResult{
		Urgency: domain.UrgencyHigh,
		ExtractedInfo: domain.ExtractedInfo{
			ProductArea: "billing",
			IssueType:   "duplicate_charge",
			Sentiment:   "frustrated",
			Language:    "es",
		},
		RecommendedAction: domain.ActionAutoRespond,
		SuggestedResponse: "We have refunded the duplicate charge.",
		RelevantArticles: []domain.Article{
			{ID: "KB-001", Title: "Refund policy", RelevanceScore: 0.87},
		},
		Reasoning: "Duplicate charge confirmed",
	}
}

func testTicketRoundTrip(t *testing.T, store storage.Store) {
	ctx := context.Background()
	closedAt := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	record := &domain.TicketRecord{
		TicketID:     "TKT-AAAA0001",
		CustomerID:   "cust_001",
		Status:       domain.StatusClosed,
		Urgency:      domain.UrgencyHigh,
		TicketType:   "billing",
		TriageResult: sampleResult(),
		CreatedAt:    closedAt.Add(-time.Hour),
		ClosedAt:     &closedAt,
	}
	require.NoError(t, store.SaveTicket(ctx, record))

	got, err := store.GetTicket(ctx, record.TicketID)
	require.NoError(t, err)
	assert.Equal(t, record.CustomerID, got.CustomerID)
	assert.Equal(t, domain.StatusClosed, got.Status)
	assert.Equal(t, domain.UrgencyHigh, got.Urgency)
	assert.Equal(t, "billing", got.TicketType)
	assert.Equal(t, sampleResult(), got.TriageResult)
	assert.WithinDuration(t, record.CreatedAt, got.CreatedAt, time.Millisecond)
	require.NotNil(t, got.ClosedAt)
	assert.WithinDuration(t, closedAt, *got.ClosedAt, time.Millisecond)
}

func testSaveTicketUpserts(t *testing.T, store storage.Store) {
	ctx := context.Background()
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveTicket(ctx, &domain.TicketRecord{
		TicketID:   "TKT-AAAA0002",
		CustomerID: "cust_001",
		Status:     domain.StatusOpen,
		CreatedAt:  created,
	}))
	closedAt := created.Add(2 * time.Hour)
	require.NoError(t, store.SaveTicket(ctx, &domain.TicketRecord{
		TicketID:     "TKT-AAAA0002",
		CustomerID:   "cust_001",
		Status:       domain.StatusClosed,
		Urgency:      domain.UrgencyLow,
		TicketType:   "general",
		TriageResult: sampleResult(),
		CreatedAt:    closedAt,
		ClosedAt:     &closedAt,
	}))

	got, err := store.GetTicket(ctx, "TKT-AAAA0002")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, got.Status)
	assert.Equal(t, domain.UrgencyLow, got.Urgency)
	assert.WithinDuration(t, created, got.CreatedAt, time.Millisecond, "created_at is kept on update")
	require.NotNil(t, got.TriageResult)
}

func testSaveTicketKeepsOwner(t *testing.T, store storage.Store) {
	ctx := context.Background()
	closedAt := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveTicket(ctx, &domain.TicketRecord{
		TicketID:   "TKT-AAAA0005",
		CustomerID: "cust_001",
		Status:     domain.StatusClosed,
		TicketType: "billing",
		CreatedAt:  closedAt.Add(-time.Hour),
		ClosedAt:   &closedAt,
	}))

	err := store.SaveTicket(ctx, &domain.TicketRecord{
		TicketID:   "TKT-AAAA0005",
		CustomerID: "cust_002",
		Status:     domain.StatusOpen,
		TicketType: "technical",
	})
	require.ErrorIs(t, err, storage.ErrTicketOwner)

	got, err := store.GetTicket(ctx, "TKT-AAAA0005")
	require.NoError(t, err)
	assert.Equal(t, "cust_001", got.CustomerID)
	assert.Equal(t, domain.StatusClosed, got.Status)
	assert.Equal(t, "billing", got.TicketType)
}

func testMissingTicket(t *testing.T, store storage.Store) {
	_, err := store.GetTicket(context.Background(), "TKT-MISSING0")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	messages, err := store.GetMessages(context.Background(), "TKT-MISSING0")
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func testMessagesAppended(t *testing.T, store storage.Store) {
	ctx := context.Background()
	base := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	first := []domain.ChatMessage{
		{CustomerID: "cust_001", Role: domain.ChatRoleHuman, Content: "I was charged twice", CreatedAt: base},
		{CustomerID: "cust_001", Role: domain.ChatRoleAI, Content: "Refund issued", CreatedAt: base.Add(time.Minute)},
	}
	require.NoError(t, store.SaveMessages(ctx, "TKT-AAAA0003", first))
	require.NoError(t, store.SaveMessages(ctx, "TKT-AAAA0004", first[:1]))

	retried := append(append([]domain.ChatMessage(nil), first...),
		domain.ChatMessage{CustomerID: "cust_001", Role: domain.ChatRoleHuman, Content: "Thanks", CreatedAt: base.Add(2 * time.Minute)})
	require.NoError(t, store.SaveMessages(ctx, "TKT-AAAA0003", retried))

	got, err := store.GetMessages(ctx, "TKT-AAAA0003")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, msg := range got {
		assert.Equal(t, "TKT-AAAA0003", msg.TicketID)
		assert.Equal(t, retried[i].Role, msg.Role)
		assert.Equal(t, retried[i].Content, msg.Content)
		assert.NotZero(t, msg.ID)
	}
	assert.WithinDuration(t, base, got[0].CreatedAt, time.Millisecond)

	other, err := store.GetMessages(ctx, "TKT-AAAA0004")
	require.NoError(t, err)
	assert.Len(t, other, 1)

	// A later conversation that does not repeat the earlier turns keeps them.
	followUp := []domain.ChatMessage{
		{CustomerID: "cust_001", Role: domain.ChatRoleHuman, Content: "Charged again", CreatedAt: base.Add(time.Hour)},
	}
	require.NoError(t, store.SaveMessages(ctx, "TKT-AAAA0003", followUp))
	got, err = store.GetMessages(ctx, "TKT-AAAA0003")
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "I was charged twice", got[0].Content)
	assert.Equal(t, "Charged again", got[3].Content)
}

func testCustomerHistory(t *testing.T, store storage.Store) {
	ctx := context.Background()
	base := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"TKT-H0000001", "TKT-H0000002", "TKT-H0000003"} {
		require.NoError(t, store.SaveTicket(ctx, &domain.TicketRecord{
			TicketID:   id,
			CustomerID: "cust_hist",
			Status:     domain.StatusClosed,
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, store.SaveTicket(ctx, &domain.TicketRecord{
		TicketID:   "TKT-OTHER001",
		CustomerID: "cust_other",
		Status:     domain.StatusClosed,
		CreatedAt:  base,
	}))

	history, err := store.GetCustomerHistory(ctx, "cust_hist", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "TKT-H0000003", history[0].TicketID)
	assert.Equal(t, "TKT-H0000001", history[2].TicketID)

	limited, err := store.GetCustomerHistory(ctx, "cust_hist", 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "TKT-H0000002", limited[1].TicketID)

	none, err := store.GetCustomerHistory(ctx, "cust_nobody", 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testOpenTickets(t *testing.T, store storage.Store) {
	ctx := context.Background()
	require.NoError(t, store.SaveTicket(ctx, &domain.TicketRecord{TicketID: "TKT-OPEN0001", CustomerID: "cust_open", Status: domain.StatusOpen}))
	require.NoError(t, store.SaveTicket(ctx, &domain.TicketRecord{TicketID: "TKT-DONE0001", CustomerID: "cust_open", Status: domain.StatusClosed}))

	open, err := store.GetOpenTickets(ctx, "cust_open")
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "TKT-OPEN0001", open[0].TicketID)
	assert.Nil(t, open[0].TriageResult)
	assert.Nil(t, open[0].ClosedAt)
}

func testCustomers(t *testing.T, store storage.Store) {
	ctx := context.Background()
	_, err := store.LookupCustomer(ctx, "cust_new")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	customer := &domain.Customer{
		ID:              "cust_new",
		Name:            "Ana Souza",
		Email:           "ana@example.com",
		Plan:            "pro",
		TenureMonths:    14,
		Region:          "BR",
		Seats:           5,
		Notes:           "Prefers Portuguese",
		PreviousTickets: 2,
	}
	require.NoError(t, store.UpsertCustomer(ctx, customer))

	updated := *customer
	updated.Plan = "enterprise"
	require.NoError(t, store.UpsertCustomer(ctx, &updated))

	got, err := store.LookupCustomer(ctx, "cust_new")
	require.NoError(t, err)
	assert.Equal(t, updated, *got)

	assert.Error(t, store.UpsertCustomer(ctx, &domain.Customer{}))
}
