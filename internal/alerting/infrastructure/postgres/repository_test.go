package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	alerting "hivewatch/internal/alerting/domain"
	"hivewatch/internal/eventing"
	outboxpg "hivewatch/internal/eventing/infrastructure/postgres"
)

func TestRuleRepositoryListActive(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "device_id", "metric", "operator", "threshold", "duration_seconds", "active", "created_at"}).
		AddRow("rule-1", "hive-1", "tempinside", ">", 30.0, 0, true, created).
		AddRow("rule-2", "hive-1", "weight", "LessThan", 12.5, 60, true, created)
	mock.ExpectQuery(`SELECT id, device_id, metric, operator, threshold, duration_seconds, active, created_at\s+FROM alert_rules\s+WHERE active = TRUE`).
		WillReturnRows(rows)

	rules, err := NewRuleRepository(db).ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, alerting.OperatorGreater, rules[0].Operator)
	assert.Equal(t, alerting.OperatorLess, rules[1].Operator)
	assert.Equal(t, 60, rules[1].DurationSeconds)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRuleRepositoryListActiveRejectsUnknownOperator(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "device_id", "metric", "operator", "threshold", "duration_seconds", "active", "created_at"}).
		AddRow("rule-9", "hive-1", "tempinside", "~", 30.0, 0, true, time.Now())
	mock.ExpectQuery(`FROM alert_rules`).WillReturnRows(rows)

	_, err = NewRuleRepository(db).ListActive(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, alerting.ErrInvalidRule)
	assert.Contains(t, err.Error(), "rule-9")
}

func TestMeasurementRepositoryGetRecent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ts := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"device_id", "ts", "temp_inside", "temp_outside", "humidity_inside", "humidity_outside", "weight"}).
		AddRow("hive-1", ts, 32.5, nil, 61.0, nil, nil).
		AddRow("hive-1", ts.Add(-time.Minute), 31.0, 12.0, nil, nil, 40.2)
	mock.ExpectQuery(`FROM measurements\s+WHERE device_id = \$1\s+ORDER BY ts DESC\s+LIMIT \$2`).
		WithArgs("hive-1", 100).
		WillReturnRows(rows)

	samples, err := NewMeasurementRepository(db).GetRecent(context.Background(), "hive-1", 100)
	require.NoError(t, err)
	require.Len(t, samples, 2)
	require.NotNil(t, samples[0].TempInside)
	assert.Equal(t, 32.5, *samples[0].TempInside)
	assert.Nil(t, samples[0].TempOutside)
	assert.Nil(t, samples[0].Weight)
	require.NotNil(t, samples[1].Weight)
	assert.Equal(t, 40.2, *samples[1].Weight)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryGetOpenByRule(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	start := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM alert_events\s+WHERE rule_id = \$1 AND end_time IS NULL`).
		WithArgs("rule-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "rule_id", "device_id", "message", "start_time", "end_time"}).
			AddRow("evt-1", "rule-1", "hive-1", "Alert triggered for tempinside > 30", start, nil))
	mock.ExpectQuery(`FROM alert_events\s+WHERE rule_id = \$1 AND end_time IS NULL`).
		WithArgs("rule-2").
		WillReturnError(sql.ErrNoRows)

	repo := NewEventRepository(db)
	open, err := repo.GetOpenByRule(context.Background(), "rule-1")
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.True(t, open.IsOpen())
	assert.Equal(t, start, open.StartTime)

	none, err := repo.GetOpenByRule(context.Background(), "rule-2")
	require.NoError(t, err)
	assert.Nil(t, none)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventWriterCloseAlreadyClosed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	end := time.Date(2026, 5, 1, 8, 1, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE alert_events\s+SET end_time = \$1\s+WHERE id = \$2 AND end_time IS NULL`).
		WithArgs(end, "evt-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewEventRepository(db).Writer(db).Close(context.Background(), &alerting.AlertEvent{ID: "evt-1", EndTime: &end})
	assert.ErrorIs(t, err, alerting.ErrEventClosed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManagerCommitsEventAndMessageTogether(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	start := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO alert_events`).
		WithArgs("evt-1", "rule-1", "hive-1", "Alert triggered for tempinside > 30", start, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO outbox_messages`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	manager, err := NewTxManager(db, NewEventRepository(db), outboxpg.NewOutboxStore(db))
	require.NoError(t, err)

	ctx := context.Background()
	uow, err := manager.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, uow.Events().Add(ctx, &alerting.AlertEvent{
		ID:        "evt-1",
		RuleID:    "rule-1",
		DeviceID:  "hive-1",
		Message:   "Alert triggered for tempinside > 30",
		StartTime: start,
	}))
	require.NoError(t, uow.Outbox().Add(ctx, &eventing.OutboxMessage{
		ID:        "msg-1",
		Type:      "AlertTriggered",
		Content:   `{"alertId":"evt-1"}`,
		CreatedAt: start,
		Status:    eventing.StatusPending,
	}))
	require.NoError(t, uow.Commit(ctx))
	require.NoError(t, uow.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManagerRollsBackOnWriteFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO alert_events`).WillReturnError(errors.New("duplicate key value violates unique constraint"))
	mock.ExpectRollback()

	manager, err := NewTxManager(db, NewEventRepository(db), outboxpg.NewOutboxStore(db))
	require.NoError(t, err)

	ctx := context.Background()
	uow, err := manager.Begin(ctx)
	require.NoError(t, err)
	err = uow.Events().Add(ctx, &alerting.AlertEvent{ID: "evt-2", RuleID: "rule-1", StartTime: time.Now()})
	require.Error(t, err)
	require.NoError(t, uow.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}
