// Package checkpointtest holds behaviour tests shared by checkpoint stores.
package checkpointtest

import (
	"context"
	"testing"
	"time"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/checkpoint"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/domain"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/graph"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) checkpoint.Store

// SampleState returns a state after a billing specialist pass.
func SampleState() *graph.State {
	ticket := domain.Ticket{
		TicketID:   "TKT-0000000A",
		CustomerID: "cust_001",
		CustomerInfo: domain.CustomerInfo{
			Plan:         "pro",
			TenureMonths: 12,
		},
		Messages: []domain.TicketMessage{{
			Role:      domain.RoleCustomer,
			Content:   "Me cobraron dos veces",
			Timestamp: time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC),
		}},
	}
	state := graph.NewState(ticket)
	state.Translation = &domain.Translation{
		OriginalLanguage:   "es",
		TranslatedMessages: []string{"I was charged twice"},
		OriginalMessages:   []string{"Me cobraron dos veces"},
	}
	state.SupervisorDecision = &domain.SupervisorDecision{
		Urgency:    domain.UrgencyHigh,
		TicketType: domain.TicketTypeBilling,
		Reasoning:  "Duplicate charge",
	}
	state.TriageResult = &domain.TriageResult{
		Urgency:           domain.UrgencyHigh,
		ExtractedInfo:     domain.ExtractedInfo{ProductArea: "billing", IssueType: "duplicate_charge", Sentiment: "frustrated", Language: "es"},
		RecommendedAction: domain.ActionRouteSpecialist,
		RelevantArticles:  []domain.Article{{ID: "KB-001", Title: "Refunds", RelevanceScore: 0.8}},
		Reasoning:         "Needs billing review",
	}
	state.Iteration = 3
	state.CurrentAgent = graph.NodeBilling
	return state
}

// Run exercises the checkpoint.Store contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("MissingThreadIsNil", func(t *testing.T) {
		store := newStore(t)
		cp, err := store.Get(context.Background(), graph.NewThreadID("cust_001", "TKT-NONE0000"))
		require.NoError(t, err)
		assert.Nil(t, cp)

		_, err = checkpoint.Load(context.Background(), store, graph.NewThreadID("cust_001", "TKT-NONE0000"))
		assert.ErrorIs(t, err, checkpoint.ErrNotFound)
	})

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		thread := graph.NewThreadID("cust_001", "TKT-0000000A")
		meta := graph.Metadata{Step: 3, Node: graph.NodeBilling, Source: graph.SourceLoop, WrittenAt: time.Date(2025, 5, 1, 8, 1, 0, 0, time.UTC)}
		require.NoError(t, store.Put(ctx, thread, SampleState(), meta))

		cp, err := store.Get(ctx, thread)
		require.NoError(t, err)
		require.NotNil(t, cp)
		assert.Equal(t, thread, cp.Thread)
		assert.Equal(t, 3, cp.Metadata.Step)
		assert.Equal(t, graph.NodeBilling, cp.Metadata.Node)
		assert.True(t, meta.WrittenAt.Equal(cp.Metadata.WrittenAt))

		want := SampleState()
		assert.Equal(t, want.Translation, cp.State.Translation)
		assert.Equal(t, want.SupervisorDecision, cp.State.SupervisorDecision)
		assert.Equal(t, want.TriageResult, cp.State.TriageResult)
		assert.Equal(t, want.CurrentAgent, cp.State.CurrentAgent)
		require.Len(t, cp.State.Messages, 1)
		assert.True(t, want.Messages[0].Timestamp.Equal(cp.State.Messages[0].Timestamp))
		assert.Equal(t, want.Ticket.CustomerInfo.Plan, cp.State.Ticket.CustomerInfo.Plan)
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		thread := graph.NewThreadID("cust_001", "TKT-0000000B")
		state := SampleState()
		require.NoError(t, store.Put(ctx, thread, state, graph.Metadata{Step: 1, Node: graph.NodeTranslator}))
		state.CurrentAgent = graph.NodeSupervisor
		require.NoError(t, store.Put(ctx, thread, state, graph.Metadata{Step: 2, Node: graph.NodeSupervisor}))

		cp, err := store.Get(ctx, thread)
		require.NoError(t, err)
		assert.Equal(t, 2, cp.Metadata.Step)
		assert.Equal(t, graph.NodeSupervisor, cp.State.CurrentAgent)
	})

	t.Run("ScanIsPerCustomerAndSorted", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		for _, thread := range []graph.ThreadID{
			graph.NewThreadID("cust_a", "TKT-00000002"),
			graph.NewThreadID("cust_a", "TKT-00000001"),
			graph.NewThreadID("cust_ab", "TKT-00000003"),
			graph.NewThreadID("cust_b", "TKT-00000004"),
		} {
			require.NoError(t, store.Put(ctx, thread, SampleState(), graph.Metadata{Step: 1}))
		}

		ids, err := store.Scan(ctx, "cust_a")
		require.NoError(t, err)
		assert.Equal(t, []string{"TKT-00000001", "TKT-00000002"}, ids)

		none, err := store.Scan(ctx, "cust_none")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("DeletePurgesThread", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		thread := graph.NewThreadID("cust_del", "TKT-0000000C")
		require.NoError(t, store.Put(ctx, thread, SampleState(), graph.Metadata{Step: 1}))
		require.NoError(t, store.Delete(ctx, thread))
		require.NoError(t, store.Delete(ctx, thread), "deleting twice is fine")

		cp, err := store.Get(ctx, thread)
		require.NoError(t, err)
		assert.Nil(t, cp)
		ids, err := store.Scan(ctx, "cust_del")
		require.NoError(t, err)
		assert.Empty(t, ids)
	})

	t.Run("RejectsInvalidThreads", func(t *testing.T) {
		store := newStore(t)
		err := store.Put(context.Background(), graph.NewThreadID("", "TKT-1"), SampleState(), graph.Metadata{})
		assert.Error(t, err)
		err = store.Put(context.Background(), graph.NewThreadID("cust", "TKT-1"), nil, graph.Metadata{})
		assert.Error(t, err)
	})
}
