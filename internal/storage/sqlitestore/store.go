// Package sqlitestore is a single-file storage.Store for local runs.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/domain"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/logging"
	jsonx "github.com/mhokchuekchuek/support-ticket-triage-agent/internal/shared/json"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/storage"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

// Store implements storage.Store on SQLite.
type Store struct {
	db     *sql.DB
	logger logging.Logger
	now    func() time.Time
}

var _ storage.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path. ":memory:" keeps
// everything in memory.
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite serializes writers; one connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	store := &Store{db: db, logger: logging.NewComponentLogger("TicketSQLiteStore"), now: time.Now}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS tickets (
    ticket_id TEXT PRIMARY KEY,
    customer_id TEXT NOT NULL,
    status TEXT NOT NULL,
    urgency TEXT NOT NULL DEFAULT '',
    ticket_type TEXT NOT NULL DEFAULT '',
    triage_result TEXT,
    created_at TEXT NOT NULL,
    closed_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_tickets_customer_created ON tickets (customer_id, created_at DESC);

CREATE TABLE IF NOT EXISTS chat_messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ticket_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at TEXT NOT NULL
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
	if err != nil {
		return fmt.Errorf("ensure sqlite schema: %w", err)
	}
	return nil
}

func (s *Store) SaveTicket(ctx context.Context, record *domain.TicketRecord) error {
	if record == nil || record.TicketID == "" {
		return fmt.Errorf("ticket id is required")
	}
	var resultJSON any
	if record.TriageResult != nil {
		data, err := jsonx.Marshal(record.TriageResult)
		if err != nil {
			return fmt.Errorf("encode triage result: %w", err)
		}
		resultJSON = string(data)
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO tickets (ticket_id, customer_id, status, urgency, ticket_type, triage_result, created_at, closed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (ticket_id) DO UPDATE SET
    status = excluded.status,
    urgency = excluded.urgency,
    ticket_type = excluded.ticket_type,
    triage_result = excluded.triage_result,
    closed_at = excluded.closed_at
WHERE tickets.customer_id = excluded.customer_id
`, record.TicketID, record.CustomerID, record.Status, string(record.Urgency), record.TicketType,
		resultJSON, formatTime(createdAt), formatTimePtr(record.ClosedAt))
	if err != nil {
		return fmt.Errorf("save ticket %s: %w", record.TicketID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("save ticket %s: %w", record.TicketID, storage.ErrTicketOwner)
	}
	return nil
}

func (s *Store) SaveMessages(ctx context.Context, ticketID string, messages []domain.ChatMessage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO chat_messages (ticket_id, customer_id, role, content, created_at)
SELECT ?1, ?2, ?3, ?4, ?5
WHERE NOT EXISTS (
    SELECT 1 FROM chat_messages
    WHERE ticket_id = ?1 AND customer_id = ?2 AND role = ?3 AND content = ?4 AND created_at = ?5
)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, msg := range messages {
		createdAt := msg.CreatedAt
		if createdAt.IsZero() {
			createdAt = s.now()
		}
		if _, err := stmt.ExecContext(ctx, ticketID, msg.CustomerID, msg.Role, msg.Content, formatTime(createdAt)); err != nil {
			return fmt.Errorf("insert message of %s: %w", ticketID, err)
		}
	}
	return tx.Commit()
}

const ticketColumns = `ticket_id, customer_id, status, urgency, ticket_type, triage_result, created_at, closed_at`

func (s *Store) GetTicket(ctx context.Context, ticketID string) (*domain.TicketRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE ticket_id = ?`, ticketID)
	record, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket %s: %w", ticketID, err)
	}
	return record, nil
}

func (s *Store) GetMessages(ctx context.Context, ticketID string) ([]domain.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, ticket_id, customer_id, role, content, created_at
FROM chat_messages WHERE ticket_id = ? ORDER BY id`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("get messages of %s: %w", ticketID, err)
	}
	defer rows.Close()

	var messages []domain.ChatMessage
	for rows.Next() {
		var (
			msg       domain.ChatMessage
			createdAt string
		)
		if err := rows.Scan(&msg.ID, &msg.TicketID, &msg.CustomerID, &msg.Role, &msg.Content, &createdAt); err != nil {
			return nil, err
		}
		if msg.CreatedAt, err = parseTime(createdAt); err != nil {
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
WHERE customer_id = ? ORDER BY created_at DESC, ticket_id DESC LIMIT ?`, customerID, limit)
}

func (s *Store) GetOpenTickets(ctx context.Context, customerID string) ([]domain.TicketRecord, error) {
	return s.queryTickets(ctx, `SELECT `+ticketColumns+` FROM tickets
WHERE customer_id = ? AND status = ? ORDER BY created_at DESC, ticket_id DESC`, customerID, domain.StatusOpen)
}

func (s *Store) queryTickets(ctx context.Context, query string, args ...any) ([]domain.TicketRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
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
	_, err := s.db.ExecContext(ctx, `
INSERT INTO customers (id, name, email, plan, tenure_months, region, seats, previous_tickets, notes)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    name = excluded.name,
    email = excluded.email,
    plan = excluded.plan,
    tenure_months = excluded.tenure_months,
    region = excluded.region,
    seats = excluded.seats,
    previous_tickets = excluded.previous_tickets,
    notes = excluded.notes
`, c.ID, c.Name, c.Email, c.Plan, c.TenureMonths, c.Region, c.Seats, c.PreviousTickets, c.Notes)
	return err
}

func (s *Store) LookupCustomer(ctx context.Context, customerID string) (*domain.Customer, error) {
	var c domain.Customer
	err := s.db.QueryRowContext(ctx, `
SELECT id, name, email, plan, tenure_months, region, seats, previous_tickets, notes
FROM customers WHERE id = ?`, customerID).Scan(
		&c.ID, &c.Name, &c.Email, &c.Plan, &c.TenureMonths, &c.Region, &c.Seats, &c.PreviousTickets, &c.Notes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup customer %s: %w", customerID, err)
	}
	return &c, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTicket(row scanner) (*domain.TicketRecord, error) {
	var (
		record     domain.TicketRecord
		urgency    string
		resultJSON sql.NullString
		createdAt  string
		closedAt   sql.NullString
	)
	if err := row.Scan(&record.TicketID, &record.CustomerID, &record.Status, &urgency, &record.TicketType,
		&resultJSON, &createdAt, &closedAt); err != nil {
		return nil, err
	}
	record.Urgency = domain.Urgency(urgency)

	var err error
	if record.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if closedAt.Valid && closedAt.String != "" {
		closed, err := parseTime(closedAt.String)
		if err != nil {
			return nil, err
		}
		record.ClosedAt = &closed
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var result domain.TriageResult
		if err := jsonx.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("decode triage result of %s: %w", record.TicketID, err)
		}
		record.TriageResult = &result
	}
	return &record, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
