package alerting

import "errors"

var (
	// ErrInvalidRule indicates a rule that cannot be evaluated.
	ErrInvalidRule = errors.New("alert rule: invalid")
	// ErrEventClosed is returned when closing an event twice.
	ErrEventClosed = errors.New("alert event: already closed")
)
