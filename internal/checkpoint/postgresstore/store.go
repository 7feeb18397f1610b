// Package postgresstore keeps checkpoints in a Postgres table.
package postgresstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/checkpoint"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/graph"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/logging"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements checkpoint.Store on Postgres.
type Store struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

var _ checkpoint.Store = (*Store)(nil)

// New constructs a store on pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, logger: logging.NewComponentLogger("PostgresCheckpointStore")}
}

// EnsureSchema creates the checkpoint table.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS workflow_checkpoints (
    customer_id TEXT NOT NULL,
    ticket_id TEXT NOT NULL,
    step INTEGER NOT NULL,
    node TEXT NOT NULL,
    payload JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (customer_id, ticket_id)
);
`)
	if err != nil {
		return fmt.Errorf("ensure checkpoint schema: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, thread graph.ThreadID) (*graph.Checkpoint, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `
SELECT payload FROM workflow_checkpoints WHERE customer_id = $1 AND ticket_id = $2`,
		thread.CustomerID, thread.TicketID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint %s: %w", thread, err)
	}
	return checkpoint.Decode(thread, payload)
}

func (s *Store) Put(ctx context.Context, thread graph.ThreadID, state *graph.State, meta graph.Metadata) error {
	if err := thread.Validate(); err != nil {
		return err
	}
	payload, err := checkpoint.Encode(state, meta)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO workflow_checkpoints (customer_id, ticket_id, step, node, payload, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW())
ON CONFLICT (customer_id, ticket_id) DO UPDATE SET
    step = EXCLUDED.step,
    node = EXCLUDED.node,
    payload = EXCLUDED.payload,
    updated_at = NOW()
`, thread.CustomerID, thread.TicketID, meta.Step, meta.Node, payload)
	if err != nil {
		return fmt.Errorf("put checkpoint %s: %w", thread, err)
	}
	return nil
}

func (s *Store) Scan(ctx context.Context, customerID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
SELECT ticket_id FROM workflow_checkpoints WHERE customer_id = $1 ORDER BY ticket_id`, customerID)
	if err != nil {
		return nil, fmt.Errorf("scan checkpoints of %s: %w", customerID, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan checkpoints of %s: %w", customerID, err)
	}
	return ids, nil
}

func (s *Store) Delete(ctx context.Context, thread graph.ThreadID) error {
	tag, err := s.pool.Exec(ctx, `
DELETE FROM workflow_checkpoints WHERE customer_id = $1 AND ticket_id = $2`, thread.CustomerID, thread.TicketID)
	if err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", thread, err)
	}
	s.logger.Debug("deleted checkpoint %s (%d rows)", thread, tag.RowsAffected())
	return nil
}
