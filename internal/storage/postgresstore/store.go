package postgresstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/domain"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/logging"
	jsonx "github.com/mhokchuekchuek/support-ticket-triage-agent/internal/shared/json"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements storage.Store on Postgres.
type Store struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

var _ storage.Store = (*Store)(nil)

// New constructs a Postgres-backed store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:   pool,
		logger: logging.NewComponentLogger("TicketPostgresStore"),
	}
}

// Open connects to dsn and ensures the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	store := New(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

// EnsureSchema creates the tickets, chat_messages and customers tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("ticket store not initialized")
	}
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS tickets (
    ticket_id TEXT PRIMARY KEY,
    customer_id TEXT NOT NULL,
    status TEXT NOT NULL,
    urgency TEXT,
    ticket_type TEXT,
    triage_result JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    closed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_tickets_customer_created ON tickets (customer_id, created_at DESC);

CREATE TABLE IF NOT EXISTS chat_messages (
    id BIGSERIAL PRIMARY KEY,
    ticket_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_ticket ON chat_messages (ticket_id, id);

CREATE TABLE IF NOT EXISTS customers (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL DEFAULT '',
    email TEXT NOT NULL DEFAULT '',
    plan TEXT NOT NULL DEFAULT '',
    tenure_months INTEGER NOT NULL DEFAULT 0,
    region TEXT NOT NULL DEFAULT '',
    seats INTEGER NOT NULL DEFAULT 0,
    previous_tickets INTEGER NOT NULL DEFAULT 0,
    notes TEXT NOT NULL DEFAULT ''
);
`)
	return err
}

func (s *Store) SaveTicket(ctx context.Context, record *domain.TicketRecord) error {
	if record == nil || record.TicketID == "" {
		return fmt.Errorf("ticket id is required")
	}
	var resultJSON []byte
	if record.TriageResult != nil {
		var err error
		if resultJSON, err = jsonx.Marshal(record.TriageResult); err != nil {
			return fmt.Errorf("encode triage result: %w", err)
		}
	}
	createdAt := record.CreatedAt
	tag, err := s.pool.Exec(ctx, `
INSERT INTO tickets (ticket_id, customer_id, status, urgency, ticket_type, triage_result, created_at, closed_at)
VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()), $8)
ON CONFLICT (ticket_id) DO UPDATE SET
    status = EXCLUDED.status,
    urgency = EXCLUDED.urgency,
    ticket_type = EXCLUDED.ticket_type,
    triage_result = EXCLUDED.triage_result,
    closed_at = EXCLUDED.closed_at
WHERE tickets.customer_id = EXCLUDED.customer_id
`, record.TicketID, record.CustomerID, record.Status, string(record.Urgency), record.TicketType,
		resultJSON, nullableTime(createdAt), record.ClosedAt)
	if err != nil {
		return fmt.Errorf("save ticket %s: %w", record.TicketID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("save ticket %s: %w", record.TicketID, storage.ErrTicketOwner)
	}
	return nil
}

func (s *Store) SaveMessages(ctx context.Context, ticketID string, messages []domain.ChatMessage) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, msg := range messages {
		createdAt := msg.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		batch.Queue(`
INSERT INTO chat_messages (ticket_id, customer_id, role, content, created_at)
SELECT $1::text, $2::text, $3::text, $4::text, $5::timestamptz
WHERE NOT EXISTS (
    SELECT 1 FROM chat_messages
    WHERE ticket_id = $1 AND customer_id = $2 AND role = $3 AND content = $4 AND created_at = $5
)`,
			ticketID, msg.CustomerID, msg.Role, msg.Content, createdAt)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert messages of %s: %w", ticketID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.logger.Debug("saved %d messages for ticket %s", len(messages), ticketID)
	return nil
}

const ticketColumns = `ticket_id, customer_id, status, COALESCE(urgency, ''), COALESCE(ticket_type, ''), triage_result, created_at, closed_at`

func (s *Store) GetTicket(ctx context.Context, ticketID string) (*domain.TicketRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE ticket_id = $1`, ticketID)
	record, err := scanTicket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket %s: %w", ticketID, err)
	}
	return record, nil
}

func (s *Store) GetMessages(ctx context.Context, ticketID string) ([]domain.ChatMessage, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, ticket_id, customer_id, role, content, created_at
FROM chat_messages WHERE ticket_id = $1 ORDER BY id`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("get messages of %s: %w", ticketID, err)
	}
	defer rows.Close()

	var messages []domain.ChatMessage
	for rows.Next() {
		var msg domain.ChatMessage
		if err := rows.Scan(&msg.ID, &msg.TicketID, &msg.CustomerID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *Store) GetCustomerHistory(ctx context.Context, customerID string, limit int) ([]domain.TicketRecord, error) {
	if limit <= 0 {
		limit = storage.DefaultHistoryLimit
	}
	return s.queryTickets(ctx, `SELECT `+ticketColumns+` FROM tickets
WHERE customer_id = $1 ORDER BY created_at DESC, ticket_id DESC LIMIT $2`, customerID, limit)
}

func (s *Store) GetOpenTickets(ctx context.Context, customerID string) ([]domain.TicketRecord, error) {
	return s.queryTickets(ctx, `SELECT `+ticketColumns+` FROM tickets
WHERE customer_id = $1 AND status = $2 ORDER BY created_at DESC, ticket_id DESC`, customerID, domain.StatusOpen)
}

func (s *Store) queryTickets(ctx context.Context, query string, args ...any) ([]domain.TicketRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.TicketRecord
	for rows.Next() {
		record, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

func (s *Store) UpsertCustomer(ctx context.Context, c *domain.Customer) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("customer id is required")
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO customers (id, name, email, plan, tenure_months, region, seats, previous_tickets, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    email = EXCLUDED.email,
    plan = EXCLUDED.plan,
    tenure_months = EXCLUDED.tenure_months,
    region = EXCLUDED.region,
    seats = EXCLUDED.seats,
    previous_tickets = EXCLUDED.previous_tickets,
    notes = EXCLUDED.notes
`, c.ID, c.Name, c.Email, c.Plan, c.TenureMonths, c.Region, c.Seats, c.PreviousTickets, c.Notes)
	return err
}

func (s *Store) LookupCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.pool.QueryRow(ctx, `
SELECT id, name, email, plan, tenure_months, region, seats, previous_tickets, notes
FROM customers WHERE id = $1`, customerID).Scan(
		&c.ID, &c.Name, &c.Email, &c.Plan, &c.TenureMonths, &c.Region, &c.Seats, &c.PreviousTickets, &c.Notes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup customer %s: %w", customerID, err)
	}
	return &c, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanTicket(row pgx.Row) (*domain.TicketRecord, error) {
	var (
		record     domain.TicketRecord
		urgency    string
		resultJSON []byte
	)
	if err := row.Scan(&record.TicketID, &record.CustomerID, &record.Status, &urgency, &record.TicketType,
		&resultJSON, &record.CreatedAt, &record.ClosedAt); err != nil {
		return nil, err
	}
	record.Urgency = domain.Urgency(urgency)
	if len(resultJSON) > 0 {
		var result domain.TriageResult
		if err := jsonx.Unmarshal(resultJSON, &result); err != nil {
			return nil, fmt.Errorf("decode triage result of %s: %w", record.TicketID, err)
		}
		record.TriageResult = &result
	}
	return &record, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
