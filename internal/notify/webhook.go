package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"hivewatch/internal/eventing"
)

// MessageIDHeader carries the outbox message id so receivers can drop duplicates.
const MessageIDHeader = "X-Outbox-Message-Id"

// Webhook body formats.
const (
	WebhookFormatRaw  = "raw"
	WebhookFormatText = "text"
)

type webhookText struct {
	Content string `json:"content"`
}

type webhookTextPayload struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
}

// WebhookPublisher posts messages to an HTTP endpoint.
type WebhookPublisher struct {
	url      string
	format   string
	client   *resty.Client
	template *Template
}

// WebhookOption configures the webhook publisher.
type WebhookOption func(*WebhookPublisher)

// WithWebhookFormat selects raw (envelope JSON) or text (DingTalk/WeCom msgtype=text).
func WithWebhookFormat(format string) WebhookOption {
	return func(p *WebhookPublisher) {
		if format != "" {
			p.format = format
		}
	}
}

// WithWebhookTimeout sets the request timeout.
func WithWebhookTimeout(timeout time.Duration) WebhookOption {
	return func(p *WebhookPublisher) {
		if timeout > 0 {
			p.client.SetTimeout(timeout)
		}
	}
}

// WithWebhookHeaders adds static request headers.
func WithWebhookHeaders(headers map[string]string) WebhookOption {
	return func(p *WebhookPublisher) {
		if len(headers) > 0 {
			p.client.SetHeaders(headers)
		}
	}
}

// WithWebhookTemplate overrides the text template.
func WithWebhookTemplate(tpl *Template) WebhookOption {
	return func(p *WebhookPublisher) {
		if tpl != nil {
			p.template = tpl
		}
	}
}

// NewWebhookPublisher constructs a webhook publisher.
func NewWebhookPublisher(url string, opts ...WebhookOption) (*WebhookPublisher, error) {
	if url == "" {
		return nil, errors.New("webhook channel: empty url")
	}
	p := &WebhookPublisher{
		url:    url,
		format: WebhookFormatRaw,
		client: resty.New().
			SetTimeout(10*time.Second).
			SetHeader("Content-Type", "application/json"),
	}
	for _, opt := range opts {
		opt(p)
	}
	switch p.format {
	case WebhookFormatRaw:
	case WebhookFormatText:
		if p.template == nil {
			tpl, err := NewTemplate("")
			if err != nil {
				return nil, err
			}
			p.template = tpl
		}
	default:
		return nil, fmt.Errorf("webhook channel: unknown format %q", p.format)
	}
	return p, nil
}

// Publish posts the message. Any non-2xx response is a failure.
func (p *WebhookPublisher) Publish(ctx context.Context, msgType, content string) error {
	if p == nil || p.url == "" {
		return errors.New("webhook channel: empty url")
	}
	var body any
	switch p.format {
	case WebhookFormatText:
		text, err := p.template.RenderMessage(msgType, content)
		if err != nil {
			return fmt.Errorf("webhook channel: render: %w", err)
		}
		body = webhookTextPayload{MsgType: "text", Text: webhookText{Content: text}}
	default:
		payload, err := encodeEnvelope(msgType, content)
		if err != nil {
			return err
		}
		body = payload
	}

	req := p.client.R().
		SetContext(ctx).
		SetBody(body)
	if id := eventing.MessageIDFromContext(ctx); id != "" {
		req.SetHeader(MessageIDHeader, id)
	}
	resp, err := req.Post(p.url)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("webhook channel: non-2xx response %d", resp.StatusCode())
	}
	return nil
}
