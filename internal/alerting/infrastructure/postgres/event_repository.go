package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	alerting "hivewatch/internal/alerting/domain"
	outboxpg "hivewatch/internal/eventing/infrastructure/postgres"
)

const defaultAlertEventsTable = "alert_events"

// EventRepository is a Postgres repository for alert events.
type EventRepository struct {
	db    *sql.DB
	table string
}

// NewEventRepository constructs a repository.
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db, table: defaultAlertEventsTable}
}

// GetOpenByRule returns the open event for a rule, or nil when there is none.
func (r *EventRepository) GetOpenByRule(ctx context.Context, ruleID string) (*alerting.AlertEvent, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert event repo: nil db")
	}
	if ruleID == "" {
		return nil, errors.New("alert event repo: empty rule id")
	}
	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`
SELECT id, rule_id, device_id, message, start_time, end_time
FROM %s
WHERE rule_id = $1 AND end_time IS NULL
ORDER BY start_time DESC
LIMIT 1`, r.table), ruleID)
	return scanEvent(row)
}

// GetByID fetches an event by id.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*alerting.AlertEvent, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert event repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, fmt.Sprintf(`
SELECT id, rule_id, device_id, message, start_time, end_time
FROM %s
WHERE id = $1`, r.table), id)
	return scanEvent(row)
}

// Writer binds event writes to tx.
func (r *EventRepository) Writer(tx outboxpg.DBTX) *EventWriter {
	return &EventWriter{db: tx, table: r.table}
}

// EventWriter writes alert events through a transaction or connection.
type EventWriter struct {
	db    outboxpg.DBTX
	table string
}

// Add inserts an event.
func (w *EventWriter) Add(ctx context.Context, event *alerting.AlertEvent) error {
	if w == nil || w.db == nil {
		return errors.New("alert event repo: nil db")
	}
	if event == nil || event.ID == "" || event.RuleID == "" {
		return errors.New("alert event repo: missing fields")
	}
	_, err := w.db.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (id, rule_id, device_id, message, start_time, end_time)
VALUES ($1, $2, $3, $4, $5, $6)`, w.table),
		event.ID,
		event.RuleID,
		event.DeviceID,
		event.Message,
		event.StartTime.UTC(),
		nullableTime(event.EndTime),
	)
	return err
}

// Close sets the end time of an open event.
func (w *EventWriter) Close(ctx context.Context, event *alerting.AlertEvent) error {
	if w == nil || w.db == nil {
		return errors.New("alert event repo: nil db")
	}
	if event == nil || event.ID == "" || event.EndTime == nil {
		return errors.New("alert event repo: close requires id and end time")
	}
	res, err := w.db.ExecContext(ctx, fmt.Sprintf(`
UPDATE %s
SET end_time = $1
WHERE id = $2 AND end_time IS NULL`, w.table), event.EndTime.UTC(), event.ID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return alerting.ErrEventClosed
	}
	return nil
}

type eventScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row eventScanner) (*alerting.AlertEvent, error) {
	var event alerting.AlertEvent
	var endTime sql.NullTime
	if err := row.Scan(
		&event.ID,
		&event.RuleID,
		&event.DeviceID,
		&event.Message,
		&event.StartTime,
		&endTime,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	event.StartTime = event.StartTime.UTC()
	if endTime.Valid {
		end := endTime.Time.UTC()
		event.EndTime = &end
	}
	return &event, nil
}

func nullableTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value.UTC(), Valid: true}
}
