package postgresstore

import (
	"context"
	"testing"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/storage"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/storage/storagetest"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/testutil"

	"github.com/stretchr/testify/require"
)

func TestPostgresStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		pool, _, cleanup := testutil.NewPostgresTestPool(t)
		t.Cleanup(cleanup)

		store := New(pool)
		require.NoError(t, store.EnsureSchema(context.Background()))
		return store
	})
}
