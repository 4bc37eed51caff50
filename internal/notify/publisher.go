package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"hivewatch/internal/eventing"
)

var (
	_ eventing.Publisher = (*LogPublisher)(nil)
	_ eventing.Publisher = (*MultiPublisher)(nil)
	_ eventing.Publisher = (*WebhookPublisher)(nil)
	_ eventing.Publisher = (*MQTTPublisher)(nil)
	_ eventing.Publisher = (*KafkaPublisher)(nil)
	_ eventing.Publisher = (*RedisPublisher)(nil)
)

// Envelope is the body sent by channels that forward the outbox message as-is.
type Envelope struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

func encodeEnvelope(msgType, content string) ([]byte, error) {
	raw := json.RawMessage(content)
	if !json.Valid(raw) {
		quoted, err := json.Marshal(content)
		if err != nil {
			return nil, err
		}
		raw = quoted
	}
	return json.Marshal(Envelope{Type: msgType, Content: raw})
}

// LogPublisher writes messages to the logger. It never fails.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher constructs a LogPublisher.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

// Publish logs the message.
func (p *LogPublisher) Publish(_ context.Context, msgType, content string) error {
	if p == nil {
		return nil
	}
	p.logger.Info("alert notification", zap.String("type", msgType), zap.String("content", content))
	return nil
}

// MultiPublisher fans a message out to every channel.
type MultiPublisher struct {
	publishers []eventing.Publisher
	names      []string
}

// NewMultiPublisher constructs a MultiPublisher.
func NewMultiPublisher(publishers ...eventing.Publisher) *MultiPublisher {
	m := &MultiPublisher{}
	for i, p := range publishers {
		m.add(fmt.Sprintf("channel-%d", i), p)
	}
	return m
}

func (m *MultiPublisher) add(name string, p eventing.Publisher) {
	if p == nil {
		return
	}
	m.publishers = append(m.publishers, p)
	m.names = append(m.names, name)
}

// Len returns the number of channels.
func (m *MultiPublisher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.publishers)
}

// Publish sends to all channels and joins their errors. Any failure fails the whole
// publish, so healthy channels may see the message again on retry.
func (m *MultiPublisher) Publish(ctx context.Context, msgType, content string) error {
	if m == nil || len(m.publishers) == 0 {
		return errors.New("notify: no channels")
	}
	var errs []error
	for i, p := range m.publishers {
		if err := p.Publish(ctx, msgType, content); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.names[i], err))
		}
	}
	return errors.Join(errs...)
}

// Close releases channels that hold connections.
func (m *MultiPublisher) Close() error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, p := range m.publishers {
		if closer, ok := p.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
