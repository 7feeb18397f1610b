package checkpoint_test

import (
	"context"
	"testing"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/checkpoint"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/checkpoint/checkpointtest"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/graph"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	checkpointtest.Run(t, func(t *testing.T) checkpoint.Store {
		return checkpoint.NewMemoryStore()
	})
}

func TestMemoryStoreIsolatesCallers(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	ctx := context.Background()
	thread := graph.NewThreadID("cust_001", "TKT-0000000A")
	state := checkpointtest.SampleState()
	require.NoError(t, store.Put(ctx, thread, state, graph.Metadata{Step: 1}))

	state.TriageResult.Reasoning = "mutated after put"
	cp, err := store.Get(ctx, thread)
	require.NoError(t, err)
	assert.Equal(t, "Needs billing review", cp.State.TriageResult.Reasoning)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	thread := graph.NewThreadID("c", "t")
	_, err := checkpoint.Decode(thread, []byte("not json"))
	assert.Error(t, err)
	_, err = checkpoint.Decode(thread, []byte(`{"metadata":{"step":1}}`))
	assert.Error(t, err)
}
