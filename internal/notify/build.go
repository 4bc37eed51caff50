package notify

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"hivewatch/internal/config"
	"hivewatch/internal/eventing"
)

// ErrUnknownChannel is returned for a channel kind Build does not know.
var ErrUnknownChannel = errors.New("notify: unknown channel kind")

// Build constructs the publisher set for channels. With no channels configured the
// set holds a single LogPublisher.
func Build(channels []config.ChannelConfig, logger *zap.Logger) (*MultiPublisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	set := &MultiPublisher{}
	if len(channels) == 0 {
		set.add("log", NewLogPublisher(logger))
		return set, nil
	}
	for i, ch := range channels {
		name := fmt.Sprintf("%s-%d", ch.Kind, i)
		p, err := buildChannel(ch, logger)
		if err != nil {
			_ = set.Close()
			return nil, fmt.Errorf("notify: channel %s: %w", name, err)
		}
		set.add(name, p)
		logger.Info("notification channel ready", zap.String("channel", name))
	}
	return set, nil
}

func buildChannel(ch config.ChannelConfig, logger *zap.Logger) (eventing.Publisher, error) {
	switch ch.Kind {
	case "log":
		return NewLogPublisher(logger), nil
	case "webhook":
		return NewWebhookPublisher(ch.URL,
			WithWebhookFormat(ch.Format),
			WithWebhookTimeout(ch.Timeout),
			WithWebhookHeaders(ch.Headers),
		)
	case "mqtt":
		client, err := DialMQTT(ch.Broker, ch.ClientID, ch.Username, ch.Password, ch.Timeout)
		if err != nil {
			return nil, err
		}
		return NewMQTTPublisher(client, ch.TopicPrefix,
			WithMQTTQoS(ch.QoS),
			WithMQTTRetained(ch.Retained),
			WithMQTTTimeout(ch.Timeout),
		)
	case "kafka":
		writer, err := NewKafkaWriter(ch.Brokers, ch.Topic, ch.Timeout)
		if err != nil {
			return nil, err
		}
		return NewKafkaPublisher(writer)
	case "redis":
		if ch.Addr == "" {
			return nil, errors.New("redis channel: empty addr")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     ch.Addr,
			Password: ch.Password,
			DB:       ch.DB,
		})
		return NewRedisPublisher(client, ch.Channel)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, ch.Kind)
	}
}
