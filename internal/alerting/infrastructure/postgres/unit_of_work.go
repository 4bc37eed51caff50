package postgres

import (
	"context"
	"database/sql"
	"errors"

	"hivewatch/internal/alerting/application"
	"hivewatch/internal/eventing"
	outboxpg "hivewatch/internal/eventing/infrastructure/postgres"
)

// TxManager opens a sql.Tx per unit of work so an alert event write and its outbox
// message commit together.
type TxManager struct {
	db     *sql.DB
	events *EventRepository
	outbox *outboxpg.OutboxStore
}

// NewTxManager constructs a TxManager.
func NewTxManager(db *sql.DB, events *EventRepository, outbox *outboxpg.OutboxStore) (*TxManager, error) {
	if db == nil {
		return nil, errors.New("alert uow: nil db")
	}
	if events == nil || outbox == nil {
		return nil, errors.New("alert uow: nil repository")
	}
	return &TxManager{db: db, events: events, outbox: outbox}, nil
}

// Begin starts a transaction.
func (m *TxManager) Begin(ctx context.Context) (application.UnitOfWork, error) {
	if m == nil || m.db == nil {
		return nil, errors.New("alert uow: nil db")
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &txUnit{
		tx:     tx,
		events: m.events.Writer(tx),
		outbox: m.outbox.Writer(tx),
	}, nil
}

type txUnit struct {
	tx     *sql.Tx
	events *EventWriter
	outbox *outboxpg.OutboxWriter
}

func (u *txUnit) Events() application.EventWriter {
	return u.events
}

func (u *txUnit) Outbox() eventing.OutboxWriter {
	return u.outbox
}

func (u *txUnit) Commit(_ context.Context) error {
	return u.tx.Commit()
}

func (u *txUnit) Rollback() error {
	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}
