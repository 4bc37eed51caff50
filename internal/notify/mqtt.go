package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTClient is the subset of mqtt.Client used for publishing.
type MQTTClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes each message to <prefix>/<type>.
type MQTTPublisher struct {
	client      MQTTClient
	topicPrefix string
	qos         byte
	retained    bool
	timeout     time.Duration
}

// MQTTOption configures the MQTT publisher.
type MQTTOption func(*MQTTPublisher)

// WithMQTTQoS sets the publish QoS level.
func WithMQTTQoS(qos byte) MQTTOption {
	return func(p *MQTTPublisher) {
		if qos <= 2 {
			p.qos = qos
		}
	}
}

// WithMQTTRetained marks published messages as retained.
func WithMQTTRetained(retained bool) MQTTOption {
	return func(p *MQTTPublisher) {
		p.retained = retained
	}
}

// WithMQTTTimeout bounds the wait for the publish token.
func WithMQTTTimeout(timeout time.Duration) MQTTOption {
	return func(p *MQTTPublisher) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// NewMQTTPublisher constructs a publisher over a connected client.
func NewMQTTPublisher(client MQTTClient, topicPrefix string, opts ...MQTTOption) (*MQTTPublisher, error) {
	if client == nil {
		return nil, errors.New("mqtt channel: nil client")
	}
	topicPrefix = strings.TrimSuffix(strings.TrimSpace(topicPrefix), "/")
	if topicPrefix == "" {
		return nil, errors.New("mqtt channel: empty topic prefix")
	}
	p := &MQTTPublisher{
		client:      client,
		topicPrefix: topicPrefix,
		qos:         1,
		timeout:     10 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// DialMQTT connects a paho client to broker.
func DialMQTT(broker, clientID, username, password string, timeout time.Duration) (mqtt.Client, error) {
	if broker == "" {
		return nil, errors.New("mqtt channel: empty broker")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	if username != "" {
		opts.SetUsername(username)
		opts.SetPassword(password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(timeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqtt channel: connect to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt channel: connect to %s: %w", broker, err)
	}
	return client, nil
}

// Topic returns the topic used for msgType.
func (p *MQTTPublisher) Topic(msgType string) string {
	return p.topicPrefix + "/" + msgType
}

// Publish sends content and waits for the broker acknowledgement.
func (p *MQTTPublisher) Publish(ctx context.Context, msgType, content string) error {
	if p == nil || p.client == nil {
		return errors.New("mqtt channel: nil client")
	}
	timeout := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	token := p.client.Publish(p.Topic(msgType), p.qos, p.retained, []byte(content))
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(timeout):
		return fmt.Errorf("mqtt channel: publish to %s timed out", p.Topic(msgType))
	}
	return token.Error()
}

// Close disconnects the client.
func (p *MQTTPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	p.client.Disconnect(250)
	return nil
}
