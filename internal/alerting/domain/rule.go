package alerting

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Operator compares a measured value against a rule threshold.
type Operator string

const (
	OperatorLess           Operator = "<"
	OperatorLessOrEqual    Operator = "<="
	OperatorEqual          Operator = "=="
	OperatorGreaterOrEqual Operator = ">="
	OperatorGreater        Operator = ">"
)

var operatorNames = map[string]Operator{
	"<":                  OperatorLess,
	"<=":                 OperatorLessOrEqual,
	"==":                 OperatorEqual,
	"=":                  OperatorEqual,
	">=":                 OperatorGreaterOrEqual,
	">":                  OperatorGreater,
	"lessthan":           OperatorLess,
	"lessthanorequal":    OperatorLessOrEqual,
	"equal":              OperatorEqual,
	"equals":             OperatorEqual,
	"greaterthanorequal": OperatorGreaterOrEqual,
	"greaterthan":        OperatorGreater,
}

// ParseOperator accepts either the symbol ("<=") or the name ("LessThanOrEqual").
func ParseOperator(value string) (Operator, error) {
	op, ok := operatorNames[strings.ToLower(strings.TrimSpace(value))]
	if !ok {
		return "", fmt.Errorf("%w: unknown operator %q", ErrInvalidRule, value)
	}
	return op, nil
}

// Valid returns true when operator is supported.
func (o Operator) Valid() bool {
	switch o {
	case OperatorLess, OperatorLessOrEqual, OperatorEqual, OperatorGreaterOrEqual, OperatorGreater:
		return true
	default:
		return false
	}
}

// Compare applies the operator to (value, threshold).
func (o Operator) Compare(value, threshold float64) bool {
	switch o {
	case OperatorLess:
		return value < threshold
	case OperatorLessOrEqual:
		return value <= threshold
	case OperatorEqual:
		return value == threshold
	case OperatorGreaterOrEqual:
		return value >= threshold
	case OperatorGreater:
		return value > threshold
	default:
		return false
	}
}

// AlertRule defines a threshold on one metric of one device.
//
// DurationSeconds is stored with the rule but not enforced: evaluation always
// acts on the latest sample.
type AlertRule struct {
	ID              string
	DeviceID        string
	Metric          string
	Operator        Operator
	Threshold       float64
	DurationSeconds int
	Active          bool
	CreatedAt       time.Time
}

// Validate checks rule invariants.
func (r AlertRule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRule)
	}
	if r.DeviceID == "" {
		return fmt.Errorf("%w: empty device id", ErrInvalidRule)
	}
	if r.Metric == "" {
		return fmt.Errorf("%w: empty metric", ErrInvalidRule)
	}
	if !r.Operator.Valid() {
		return fmt.Errorf("%w: invalid operator %q", ErrInvalidRule, r.Operator)
	}
	if r.DurationSeconds < 0 {
		return fmt.Errorf("%w: negative duration", ErrInvalidRule)
	}
	return nil
}

// TriggerMessage is the text stored on events opened by this rule.
func (r AlertRule) TriggerMessage() string {
	return fmt.Sprintf("Alert triggered for %s %s %s", r.Metric, r.Operator, formatThreshold(r.Threshold))
}

// ClearMessage is the text sent when an event of this rule closes.
func (r AlertRule) ClearMessage() string {
	return fmt.Sprintf("Alert closed for %s %s %s", r.Metric, r.Operator, formatThreshold(r.Threshold))
}

func formatThreshold(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
