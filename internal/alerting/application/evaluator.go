package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"hivewatch/internal/alerting/application/events"
	alerting "hivewatch/internal/alerting/domain"
	"hivewatch/internal/eventing"
	"hivewatch/internal/observability/metrics"
)

// DefaultSampleWindow is the number of recent measurements fetched per device.
const DefaultSampleWindow = 100

// EvaluationResult summarizes one evaluation pass.
type EvaluationResult struct {
	Rules          int
	Devices        int
	DevicesSkipped int
	Measurements   int
	Triggered      int
	Closed         int
}

// Evaluator turns the latest measurement of each device into alert event transitions.
//
// A pass stops at the first error and returns it; transitions committed before the
// failure stay committed and the next pass picks up the remaining rules. Evaluate is not
// safe for concurrent use against the same stores; callers schedule it non-reentrantly.
type Evaluator struct {
	rules        RuleStore
	measurements MeasurementStore
	events       EventReader
	uow          UnitOfWorkFactory
	clock        Clock
	newID        func() string
	sampleWindow int
	logger       *zap.Logger
}

// EvaluatorOption configures the evaluator.
type EvaluatorOption func(*Evaluator)

// WithClock overrides the default clock.
func WithClock(clock Clock) EvaluatorOption {
	return func(e *Evaluator) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithIDGenerator overrides the alert event and message id source.
func WithIDGenerator(fn func() string) EvaluatorOption {
	return func(e *Evaluator) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// WithSampleWindow sets how many recent measurements are fetched per device.
func WithSampleWindow(n int) EvaluatorOption {
	return func(e *Evaluator) {
		if n > 0 {
			e.sampleWindow = n
		}
	}
}

// WithLogger sets the evaluator logger.
func WithLogger(logger *zap.Logger) EvaluatorOption {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEvaluator constructs an evaluator.
func NewEvaluator(rules RuleStore, measurements MeasurementStore, eventsReader EventReader, uow UnitOfWorkFactory, opts ...EvaluatorOption) (*Evaluator, error) {
	if rules == nil {
		return nil, errors.New("alert evaluator: nil rule store")
	}
	if measurements == nil {
		return nil, errors.New("alert evaluator: nil measurement store")
	}
	if eventsReader == nil {
		return nil, errors.New("alert evaluator: nil event store")
	}
	if uow == nil {
		return nil, errors.New("alert evaluator: nil unit of work factory")
	}
	e := &Evaluator{
		rules:        rules,
		measurements: measurements,
		events:       eventsReader,
		uow:          uow,
		clock:        systemClock{},
		newID:        eventing.NewID,
		sampleWindow: DefaultSampleWindow,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Evaluate runs one pass and returns the number of measurements considered.
func (e *Evaluator) Evaluate(ctx context.Context) (int, error) {
	result, err := e.EvaluatePass(ctx)
	return result.Measurements, err
}

// EvaluatePass runs one pass and returns its summary.
func (e *Evaluator) EvaluatePass(ctx context.Context) (EvaluationResult, error) {
	if e == nil {
		return EvaluationResult{}, errors.New("alert evaluator: nil evaluator")
	}
	start := time.Now()
	result, err := e.evaluate(ctx)
	outcome := metrics.ResultSuccess
	if err != nil {
		outcome = metrics.ResultError
	}
	metrics.ObserveEvaluation(outcome, time.Since(start), result.Measurements)
	if err != nil {
		return result, err
	}
	e.logger.Debug("alert evaluation completed",
		zap.Int("rules", result.Rules),
		zap.Int("devices", result.Devices),
		zap.Int("devices_skipped", result.DevicesSkipped),
		zap.Int("measurements", result.Measurements),
		zap.Int("triggered", result.Triggered),
		zap.Int("closed", result.Closed),
	)
	return result, nil
}

func (e *Evaluator) evaluate(ctx context.Context) (EvaluationResult, error) {
	var result EvaluationResult
	rules, err := e.rules.ListActive(ctx)
	if err != nil {
		return result, fmt.Errorf("alert evaluator: list rules: %w", err)
	}
	if len(rules) == 0 {
		return result, nil
	}
	result.Rules = len(rules)

	deviceOrder, rulesByDevice := groupByDevice(rules)
	result.Devices = len(deviceOrder)

	for _, deviceID := range deviceOrder {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		samples, err := e.measurements.GetRecent(ctx, deviceID, e.sampleWindow)
		if err != nil {
			return result, fmt.Errorf("alert evaluator: device %s: load measurements: %w", deviceID, err)
		}
		if len(samples) == 0 {
			result.DevicesSkipped++
			continue
		}
		result.Measurements += len(samples)
		latest := samples[0]

		for _, rule := range rulesByDevice[deviceID] {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			transition, err := e.evaluateRule(ctx, rule, latest)
			if err != nil {
				return result, fmt.Errorf("alert evaluator: rule %s: %w", rule.ID, err)
			}
			switch transition {
			case transitionTriggered:
				result.Triggered++
			case transitionClosed:
				result.Closed++
			}
		}
	}
	return result, nil
}

type transition int

const (
	transitionNone transition = iota
	transitionTriggered
	transitionClosed
)

func (e *Evaluator) evaluateRule(ctx context.Context, rule alerting.AlertRule, latest alerting.Measurement) (transition, error) {
	conditionMet := false
	if value, ok := latest.Value(rule.Metric); ok {
		conditionMet = rule.Operator.Compare(value, rule.Threshold)
	}

	open, err := e.events.GetOpenByRule(ctx, rule.ID)
	if err != nil {
		return transitionNone, fmt.Errorf("load open event: %w", err)
	}

	switch {
	case conditionMet && open == nil:
		if err := e.openEvent(ctx, rule); err != nil {
			return transitionNone, err
		}
		return transitionTriggered, nil
	case !conditionMet && open != nil:
		if err := e.closeEvent(ctx, rule, open); err != nil {
			return transitionNone, err
		}
		return transitionClosed, nil
	default:
		return transitionNone, nil
	}
}

func (e *Evaluator) openEvent(ctx context.Context, rule alerting.AlertRule) error {
	now := e.clock.Now().UTC()
	event, err := alerting.NewAlertEvent(e.newID(), rule, now)
	if err != nil {
		return err
	}
	content, err := events.Encode(events.NewAlertTriggered(*event))
	if err != nil {
		return err
	}
	msg, err := eventing.NewOutboxMessage(events.TypeAlertTriggered, content, now)
	if err != nil {
		return err
	}
	msg.ID = e.newID()

	err = e.inUnitOfWork(ctx, func(uow UnitOfWork) error {
		if err := uow.Events().Add(ctx, event); err != nil {
			return fmt.Errorf("add event: %w", err)
		}
		if err := uow.Outbox().Add(ctx, msg); err != nil {
			return fmt.Errorf("add outbox message: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	metrics.IncAlertTransition("triggered")
	e.logger.Info("alert triggered",
		zap.String("rule_id", rule.ID),
		zap.String("device_id", rule.DeviceID),
		zap.String("alert_id", event.ID),
		zap.String("message_id", msg.ID),
	)
	return nil
}

func (e *Evaluator) closeEvent(ctx context.Context, rule alerting.AlertRule, open *alerting.AlertEvent) error {
	now := e.clock.Now().UTC()
	event := *open
	if err := event.Close(now); err != nil {
		return err
	}
	payload, err := events.NewAlertClosed(event, rule.ClearMessage())
	if err != nil {
		return err
	}
	content, err := events.Encode(payload)
	if err != nil {
		return err
	}
	msg, err := eventing.NewOutboxMessage(events.TypeAlertClosed, content, now)
	if err != nil {
		return err
	}
	msg.ID = e.newID()

	err = e.inUnitOfWork(ctx, func(uow UnitOfWork) error {
		if err := uow.Events().Close(ctx, &event); err != nil {
			return fmt.Errorf("close event: %w", err)
		}
		if err := uow.Outbox().Add(ctx, msg); err != nil {
			return fmt.Errorf("add outbox message: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	metrics.IncAlertTransition("closed")
	e.logger.Info("alert closed",
		zap.String("rule_id", rule.ID),
		zap.String("device_id", rule.DeviceID),
		zap.String("alert_id", event.ID),
		zap.String("message_id", msg.ID),
	)
	return nil
}

func (e *Evaluator) inUnitOfWork(ctx context.Context, fn func(UnitOfWork) error) error {
	uow, err := e.uow.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin unit of work: %w", err)
	}
	if err := fn(uow); err != nil {
		if rbErr := uow.Rollback(); rbErr != nil {
			e.logger.Warn("unit of work rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := uow.Commit(ctx); err != nil {
		_ = uow.Rollback()
		return fmt.Errorf("commit unit of work: %w", err)
	}
	return nil
}

func groupByDevice(rules []alerting.AlertRule) ([]string, map[string][]alerting.AlertRule) {
	order := make([]string, 0, len(rules))
	byDevice := make(map[string][]alerting.AlertRule)
	for _, rule := range rules {
		if _, seen := byDevice[rule.DeviceID]; !seen {
			order = append(order, rule.DeviceID)
		}
		byDevice[rule.DeviceID] = append(byDevice[rule.DeviceID], rule)
	}
	return order, byDevice
}
