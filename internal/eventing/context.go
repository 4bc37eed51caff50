package eventing

import "context"

type contextKey string

const (
	contextKeyMessageID contextKey = "eventing.message_id"
	contextKeyRetry     contextKey = "eventing.retry_count"
)

// WithMessage attaches outbox message metadata to ctx for publishers.
func WithMessage(ctx context.Context, msg *OutboxMessage) context.Context {
	if msg == nil {
		return ctx
	}
	ctx = context.WithValue(ctx, contextKeyMessageID, msg.ID)
	return context.WithValue(ctx, contextKeyRetry, msg.RetryCount)
}

// MessageIDFromContext returns the id of the outbox message being published.
func MessageIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(contextKeyMessageID).(string)
	return value
}

// RetryCountFromContext returns how many earlier attempts failed for the message.
func RetryCountFromContext(ctx context.Context) int {
	value, _ := ctx.Value(contextKeyRetry).(int)
	return value
}
