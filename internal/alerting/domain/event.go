package alerting

import (
	"errors"
	"time"
)

// AlertEvent is one triggered episode of a rule. EndTime == nil means open.
type AlertEvent struct {
	ID        string
	RuleID    string
	DeviceID  string
	Message   string
	StartTime time.Time
	EndTime   *time.Time
}

// NewAlertEvent opens an event for rule at startTime.
func NewAlertEvent(id string, rule AlertRule, startTime time.Time) (*AlertEvent, error) {
	if id == "" {
		return nil, errors.New("alert event: empty id")
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return &AlertEvent{
		ID:        id,
		RuleID:    rule.ID,
		DeviceID:  rule.DeviceID,
		Message:   rule.TriggerMessage(),
		StartTime: startTime.UTC(),
	}, nil
}

// IsOpen reports whether the event has not been closed yet.
func (e *AlertEvent) IsOpen() bool {
	return e != nil && e.EndTime == nil
}

// Close sets the end time. An event closes once.
func (e *AlertEvent) Close(at time.Time) error {
	if e == nil {
		return errors.New("alert event: nil")
	}
	if e.EndTime != nil {
		return ErrEventClosed
	}
	end := at.UTC()
	if end.Before(e.StartTime) {
		end = e.StartTime
	}
	e.EndTime = &end
	return nil
}
