package eventing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"hivewatch/internal/observability/metrics"
)

const (
	DefaultBatchSize      = 20
	DefaultMaxRetries     = 3
	DefaultPollInterval   = 5 * time.Second
	DefaultPublishTimeout = 10 * time.Second
)

// Publisher delivers one message to an external channel.
type Publisher interface {
	Publish(ctx context.Context, msgType, content string) error
}

// OutboxWriter appends messages to the outbox.
type OutboxWriter interface {
	Add(ctx context.Context, msg *OutboxMessage) error
}

// OutboxStore provides access to pending outbox records.
type OutboxStore interface {
	// GetPending returns up to limit messages with ProcessedAt unset, oldest first.
	GetPending(ctx context.Context, limit int) ([]*OutboxMessage, error)
	// Save persists the mutations of a batch in a single commit.
	Save(ctx context.Context, batch []*OutboxMessage) error
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// DispatchResult captures the outcome of one dispatch tick.
type DispatchResult struct {
	Requested int
	Claimed   int
	Processed int
	Retried   int
	Abandoned int
	Skipped   int
}

// Dispatcher drains pending outbox messages to a publisher with bounded retry.
//
// Delivery is at-least-once: a crash or failed Save after a successful publish
// republishes the message on a later tick. Only one dispatcher may run against a
// store; rows are not claimed or locked.
type Dispatcher struct {
	outbox         OutboxStore
	publisher      Publisher
	batchSize      int
	maxRetries     int
	pollInterval   time.Duration
	publishTimeout time.Duration
	clock          Clock
	logger         *zap.Logger
}

// Option configures the dispatcher.
type Option func(*Dispatcher)

// WithBatchSize overrides the number of messages loaded per tick.
func WithBatchSize(size int) Option {
	return func(d *Dispatcher) {
		if size > 0 {
			d.batchSize = size
		}
	}
}

// WithMaxRetries overrides the number of failed attempts before a message is abandoned.
func WithMaxRetries(retries int) Option {
	return func(d *Dispatcher) {
		if retries > 0 {
			d.maxRetries = retries
		}
	}
}

// WithPollInterval overrides the sleep between ticks.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.pollInterval = interval
		}
	}
}

// WithPublishTimeout bounds each publish call.
func WithPublishTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.publishTimeout = timeout
		}
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(d *Dispatcher) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(outbox OutboxStore, publisher Publisher, opts ...Option) (*Dispatcher, error) {
	if outbox == nil {
		return nil, errors.New("outbox dispatcher: nil outbox store")
	}
	if publisher == nil {
		return nil, errors.New("outbox dispatcher: nil publisher")
	}
	d := &Dispatcher{
		outbox:         outbox,
		publisher:      publisher,
		batchSize:      DefaultBatchSize,
		maxRetries:     DefaultMaxRetries,
		pollInterval:   DefaultPollInterval,
		publishTimeout: DefaultPublishTimeout,
		clock:          systemClock{},
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Run loops until ctx is cancelled. Cancellation is observed between ticks.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d == nil {
		return errors.New("outbox dispatcher: nil dispatcher")
	}
	d.logger.Info("outbox dispatcher started",
		zap.Int("batch_size", d.batchSize),
		zap.Int("max_retries", d.maxRetries),
		zap.Duration("poll_interval", d.pollInterval),
	)
	timer := time.NewTimer(d.pollInterval)
	defer timer.Stop()
	for {
		if err := ctx.Err(); err != nil {
			d.logger.Info("outbox dispatcher stopped")
			return err
		}
		if _, err := d.Tick(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("outbox dispatch tick failed", zap.Error(err))
		}

		timer.Reset(d.pollInterval)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}
}

// Tick loads one batch of pending messages, publishes each and saves the batch.
func (d *Dispatcher) Tick(ctx context.Context) (DispatchResult, error) {
	start := time.Now()
	result := DispatchResult{Requested: d.batchSize}
	batch, err := d.outbox.GetPending(ctx, d.batchSize)
	if err != nil {
		metrics.ObserveOutboxDispatch(metrics.ResultError, time.Since(start), 0, 0, 0)
		return result, fmt.Errorf("outbox dispatcher: load pending: %w", err)
	}
	result.Claimed = len(batch)
	if len(batch) == 0 {
		metrics.ObserveOutboxDispatch(metrics.ResultSuccess, time.Since(start), 0, 0, 0)
		return result, nil
	}

	for _, msg := range batch {
		if ctx.Err() != nil {
			result.Skipped++
			continue
		}
		if msg == nil || msg.IsTerminal() {
			result.Skipped++
			continue
		}
		pubErr := d.publish(ctx, msg)
		if pubErr != nil && ctx.Err() != nil && errors.Is(pubErr, ctx.Err()) {
			// Shutdown interrupted the call; leave the row untouched for the next run.
			result.Skipped++
			continue
		}
		now := d.clock.Now()
		if pubErr == nil {
			_ = msg.MarkProcessed(now)
			result.Processed++
			metrics.ObservePublish(msg.Type, metrics.ResultSuccess)
			continue
		}
		metrics.ObservePublish(msg.Type, metrics.ResultError)
		abandoned, _ := msg.RecordFailure(pubErr, now, d.maxRetries)
		if abandoned {
			result.Abandoned++
			d.logger.Warn("outbox message abandoned after retries",
				zap.String("message_id", msg.ID),
				zap.String("type", msg.Type),
				zap.Int("retry_count", msg.RetryCount),
				zap.Error(pubErr),
			)
			continue
		}
		result.Retried++
		d.logger.Info("outbox publish failed, will retry",
			zap.String("message_id", msg.ID),
			zap.String("type", msg.Type),
			zap.Int("retry_count", msg.RetryCount),
			zap.Error(pubErr),
		)
	}

	saveCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		saveCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), d.publishTimeout)
		defer cancel()
	}
	if err := d.outbox.Save(saveCtx, batch); err != nil {
		metrics.ObserveOutboxDispatch(metrics.ResultError, time.Since(start), 0, 0, 0)
		return result, fmt.Errorf("outbox dispatcher: save batch: %w", err)
	}
	metrics.ObserveOutboxDispatch(metrics.ResultSuccess, time.Since(start), result.Processed, result.Retried, result.Abandoned)
	if result.Processed+result.Retried+result.Abandoned > 0 {
		d.logger.Debug("outbox batch dispatched",
			zap.Int("claimed", result.Claimed),
			zap.Int("processed", result.Processed),
			zap.Int("retried", result.Retried),
			zap.Int("abandoned", result.Abandoned),
		)
	}
	return result, nil
}

func (d *Dispatcher) publish(ctx context.Context, msg *OutboxMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("outbox dispatcher: publisher panic: %v", r)
		}
	}()
	if d.publishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.publishTimeout)
		defer cancel()
	}
	return d.publisher.Publish(WithMessage(ctx, msg), msg.Type, msg.Content)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
