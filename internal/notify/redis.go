package notify

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher PUBLISHes the message envelope to a pub/sub channel. Zero subscribers
// is not an error.
type RedisPublisher struct {
	client  redis.UniversalClient
	channel string
}

// NewRedisPublisher constructs a publisher.
func NewRedisPublisher(client redis.UniversalClient, channel string) (*RedisPublisher, error) {
	if client == nil {
		return nil, errors.New("redis channel: nil client")
	}
	if channel == "" {
		return nil, errors.New("redis channel: empty channel")
	}
	return &RedisPublisher{client: client, channel: channel}, nil
}

// Publish sends the envelope.
func (p *RedisPublisher) Publish(ctx context.Context, msgType, content string) error {
	if p == nil || p.client == nil {
		return errors.New("redis channel: nil client")
	}
	payload, err := encodeEnvelope(msgType, content)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, payload).Err()
}

// Close closes the client.
func (p *RedisPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
