package events

import (
	"encoding/json"
	"errors"
	"time"

	alerting "hivewatch/internal/alerting/domain"
)

// Outbox message types for alert lifecycle transitions.
const (
	TypeAlertTriggered = "AlertTriggered"
	TypeAlertClosed    = "AlertClosed"
)

// AlertTriggered is the payload written when an alert event opens.
type AlertTriggered struct {
	AlertID   string    `json:"alertId"`
	DeviceID  string    `json:"deviceId"`
	RuleID    string    `json:"ruleId"`
	Message   string    `json:"message"`
	StartTime time.Time `json:"startTime"`
}

// AlertClosed is the payload written when an alert event closes.
type AlertClosed struct {
	AlertID   string    `json:"alertId"`
	DeviceID  string    `json:"deviceId"`
	RuleID    string    `json:"ruleId"`
	Message   string    `json:"message"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

// Alert is the union view used by channels that render either payload.
type Alert struct {
	AlertID   string     `json:"alertId"`
	DeviceID  string     `json:"deviceId"`
	RuleID    string     `json:"ruleId"`
	Message   string     `json:"message"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
}

// NewAlertTriggered builds the payload for an opened event.
func NewAlertTriggered(event alerting.AlertEvent) AlertTriggered {
	return AlertTriggered{
		AlertID:   event.ID,
		DeviceID:  event.DeviceID,
		RuleID:    event.RuleID,
		Message:   event.Message,
		StartTime: event.StartTime.UTC(),
	}
}

// NewAlertClosed builds the payload for a closed event.
func NewAlertClosed(event alerting.AlertEvent, message string) (AlertClosed, error) {
	if event.EndTime == nil {
		return AlertClosed{}, errors.New("alert events: event is still open")
	}
	return AlertClosed{
		AlertID:   event.ID,
		DeviceID:  event.DeviceID,
		RuleID:    event.RuleID,
		Message:   message,
		StartTime: event.StartTime.UTC(),
		EndTime:   event.EndTime.UTC(),
	}, nil
}

// Encode serializes a payload into outbox content.
func Encode(payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// DecodeAlert parses either payload type.
func DecodeAlert(content string) (Alert, error) {
	var alert Alert
	if err := json.Unmarshal([]byte(content), &alert); err != nil {
		return Alert{}, err
	}
	if alert.AlertID == "" {
		return Alert{}, errors.New("alert events: missing alertId")
	}
	return alert, nil
}
