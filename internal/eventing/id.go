package eventing

import "github.com/google/uuid"

// NewID generates a random identifier for outbox messages and alert events.
func NewID() string {
	return uuid.NewString()
}
