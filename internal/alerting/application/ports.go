package application

import (
	"context"
	"time"

	alerting "hivewatch/internal/alerting/domain"
	"hivewatch/internal/eventing"
)

// RuleStore loads alert rules.
type RuleStore interface {
	ListActive(ctx context.Context) ([]alerting.AlertRule, error)
}

// MeasurementStore loads device measurements.
type MeasurementStore interface {
	// GetRecent returns up to limit measurements for the device, newest first.
	GetRecent(ctx context.Context, deviceID string, limit int) ([]alerting.Measurement, error)
}

// EventReader looks up alert events.
type EventReader interface {
	// GetOpenByRule returns the open event for the rule, or nil when there is none.
	GetOpenByRule(ctx context.Context, ruleID string) (*alerting.AlertEvent, error)
}

// EventWriter mutates alert events inside a unit of work.
type EventWriter interface {
	Add(ctx context.Context, event *alerting.AlertEvent) error
	Close(ctx context.Context, event *alerting.AlertEvent) error
}

// UnitOfWork groups an alert event mutation with its outbox message.
type UnitOfWork interface {
	Events() EventWriter
	Outbox() eventing.OutboxWriter
	Commit(ctx context.Context) error
	Rollback() error
}

// UnitOfWorkFactory starts units of work.
type UnitOfWorkFactory interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}
