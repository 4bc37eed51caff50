package eventing

import (
	"errors"
	"time"
)

// Status is the delivery state of an outbox message.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusProcessed Status = "Processed"
	StatusFailed    Status = "Failed"
)

// ErrMessageTerminal is returned when mutating a message that already has ProcessedAt set.
var ErrMessageTerminal = errors.New("outbox message: already processed")

// OutboxMessage is a durable notification envelope.
//
// ProcessedAt == nil means the message is still eligible for dispatch. Once set the
// message is terminal, whether it was delivered (Processed) or abandoned (Failed).
type OutboxMessage struct {
	ID          string
	Type        string
	Content     string
	CreatedAt   time.Time
	ProcessedAt *time.Time
	Status      Status
	Error       *string
	RetryCount  int
}

// NewOutboxMessage builds a pending message.
func NewOutboxMessage(msgType, content string, createdAt time.Time) (*OutboxMessage, error) {
	if msgType == "" {
		return nil, errors.New("outbox message: empty type")
	}
	if content == "" {
		return nil, errors.New("outbox message: empty content")
	}
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return &OutboxMessage{
		ID:        NewID(),
		Type:      msgType,
		Content:   content,
		CreatedAt: createdAt.UTC(),
		Status:    StatusPending,
	}, nil
}

// IsTerminal reports whether the message will never be dispatched again.
func (m *OutboxMessage) IsTerminal() bool {
	return m != nil && m.ProcessedAt != nil
}

// MarkProcessed records a successful publish.
func (m *OutboxMessage) MarkProcessed(now time.Time) error {
	if m == nil {
		return errors.New("outbox message: nil")
	}
	if m.IsTerminal() {
		return ErrMessageTerminal
	}
	at := now.UTC()
	m.ProcessedAt = &at
	m.Status = StatusProcessed
	return nil
}

// RecordFailure records a failed publish attempt. The message stays pending until
// maxRetries failed attempts have been recorded, then it is closed off in place.
// The returned bool is true when the message was abandoned by this call.
func (m *OutboxMessage) RecordFailure(cause error, now time.Time, maxRetries int) (bool, error) {
	if m == nil {
		return false, errors.New("outbox message: nil")
	}
	if m.IsTerminal() {
		return false, ErrMessageTerminal
	}
	text := "unknown publish error"
	if cause != nil {
		text = cause.Error()
	}
	m.Error = &text
	m.Status = StatusFailed
	m.RetryCount++
	if m.RetryCount < maxRetries {
		return false, nil
	}
	at := now.UTC()
	m.ProcessedAt = &at
	return true, nil
}
