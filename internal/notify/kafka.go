package notify

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"hivewatch/internal/alerting/application/events"
	"hivewatch/internal/eventing"
)

// KafkaWriter is the subset of kafka.Writer used for publishing.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes messages to one topic keyed by alert id, so events of one alert
// land on the same partition.
type KafkaPublisher struct {
	writer KafkaWriter
}

// NewKafkaPublisher constructs a publisher over writer.
func NewKafkaPublisher(writer KafkaWriter) (*KafkaPublisher, error) {
	if writer == nil {
		return nil, errors.New("kafka channel: nil writer")
	}
	return &KafkaPublisher{writer: writer}, nil
}

// NewKafkaWriter builds a kafka.Writer for brokers and topic.
func NewKafkaWriter(brokers []string, topic string, timeout time.Duration) (*kafka.Writer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka channel: no brokers")
	}
	if topic == "" {
		return nil, errors.New("kafka channel: empty topic")
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  1,
		WriteTimeout: timeout,
	}, nil
}

// Publish writes one message. The key is the payload alertId when present.
func (p *KafkaPublisher) Publish(ctx context.Context, msgType, content string) error {
	if p == nil || p.writer == nil {
		return errors.New("kafka channel: nil writer")
	}
	msg := kafka.Message{
		Value:   []byte(content),
		Headers: []kafka.Header{{Key: "type", Value: []byte(msgType)}},
		Time:    time.Now().UTC(),
	}
	if id := eventing.MessageIDFromContext(ctx); id != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "message_id", Value: []byte(id)})
	}
	if alert, err := events.DecodeAlert(content); err == nil {
		msg.Key = []byte(alert.AlertID)
	}
	return p.writer.WriteMessages(ctx, msg)
}

// Close closes the writer.
func (p *KafkaPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
