package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"hivewatch/internal/eventing"
)

const defaultOutboxTable = "outbox_messages"

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// OutboxStore is a Postgres implementation for outbox records.
type OutboxStore struct {
	db    *sql.DB
	table string
}

// NewOutboxStore constructs an outbox store.
func NewOutboxStore(db *sql.DB, opts ...OutboxOption) *OutboxStore {
	store := &OutboxStore{db: db, table: defaultOutboxTable}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// OutboxOption configures the outbox store.
type OutboxOption func(*OutboxStore)

// WithOutboxTable overrides the table name.
func WithOutboxTable(table string) OutboxOption {
	return func(store *OutboxStore) {
		if table != "" {
			store.table = table
		}
	}
}

// Table returns the table name used by the store.
func (s *OutboxStore) Table() string {
	return s.table
}

// Writer returns a writer bound to tx, so messages commit with the caller's unit of work.
func (s *OutboxStore) Writer(tx DBTX) *OutboxWriter {
	return &OutboxWriter{db: tx, table: s.table}
}

// Add writes a message outside any caller transaction.
func (s *OutboxStore) Add(ctx context.Context, msg *eventing.OutboxMessage) error {
	if s == nil || s.db == nil {
		return errors.New("outbox store: nil db")
	}
	return s.Writer(s.db).Add(ctx, msg)
}

// GetPending returns unprocessed outbox records, oldest first.
func (s *OutboxStore) GetPending(ctx context.Context, limit int) ([]*eventing.OutboxMessage, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("outbox store: nil db")
	}
	if limit <= 0 {
		limit = eventing.DefaultBatchSize
	}
	query := fmt.Sprintf(`
SELECT id, type, content, created_at, processed_at, status, error, retry_count
FROM %s
WHERE processed_at IS NULL
ORDER BY created_at ASC
LIMIT $1`, s.table)

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*eventing.OutboxMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Save writes the delivery state of every message in one transaction.
// Rows that are already terminal in the table are left as they are.
func (s *OutboxStore) Save(ctx context.Context, batch []*eventing.OutboxMessage) error {
	if s == nil || s.db == nil {
		return errors.New("outbox store: nil db")
	}
	if len(batch) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
UPDATE %s
SET processed_at = $1, status = $2, error = $3, retry_count = $4
WHERE id = $5 AND processed_at IS NULL`, s.table)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, msg := range batch {
		if msg == nil {
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			nullableTime(msg.ProcessedAt),
			string(msg.Status),
			nullableString(msg.Error),
			msg.RetryCount,
			msg.ID,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// OutboxWriter inserts outbox records through a caller-provided connection or transaction.
type OutboxWriter struct {
	db    DBTX
	table string
}

// Add inserts a pending message.
func (w *OutboxWriter) Add(ctx context.Context, msg *eventing.OutboxMessage) error {
	if w == nil || w.db == nil {
		return errors.New("outbox writer: nil db")
	}
	if msg == nil || msg.ID == "" || msg.Type == "" {
		return errors.New("outbox writer: invalid message")
	}
	status := msg.Status
	if status == "" {
		status = eventing.StatusPending
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	type,
	content,
	created_at,
	processed_at,
	status,
	error,
	retry_count
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8
)`, w.table)
	_, err := w.db.ExecContext(ctx, query,
		msg.ID,
		msg.Type,
		msg.Content,
		msg.CreatedAt,
		nullableTime(msg.ProcessedAt),
		string(status),
		nullableString(msg.Error),
		msg.RetryCount,
	)
	return err
}

type messageScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row messageScanner) (*eventing.OutboxMessage, error) {
	var msg eventing.OutboxMessage
	var status string
	var processedAt sql.NullTime
	var errText sql.NullString
	if err := row.Scan(
		&msg.ID,
		&msg.Type,
		&msg.Content,
		&msg.CreatedAt,
		&processedAt,
		&status,
		&errText,
		&msg.RetryCount,
	); err != nil {
		return nil, err
	}
	msg.Status = eventing.Status(status)
	msg.CreatedAt = msg.CreatedAt.UTC()
	if processedAt.Valid {
		at := processedAt.Time.UTC()
		msg.ProcessedAt = &at
	}
	if errText.Valid {
		text := errText.String
		msg.Error = &text
	}
	return &msg, nil
}

func nullableTime(value *time.Time) sql.NullTime {
	if value == nil || value.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value.UTC(), Valid: true}
}

func nullableString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}
