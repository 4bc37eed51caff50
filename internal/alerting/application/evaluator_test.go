package application_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"hivewatch/internal/alerting/application"
	"hivewatch/internal/alerting/application/events"
	alerting "hivewatch/internal/alerting/domain"
	"hivewatch/internal/alerting/infrastructure/memory"
	"hivewatch/internal/eventing"
	eventmemory "hivewatch/internal/eventing/infrastructure/memory"
)

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time {
	return c.now
}

type sequenceIDs struct {
	n int
}

func (s *sequenceIDs) Next() string {
	s.n++
	return fmt.Sprintf("id-%03d", s.n)
}

type harness struct {
	rules        *memory.RuleStore
	measurements *memory.MeasurementStore
	events       *memory.EventStore
	outbox       *eventmemory.OutboxStore
	clock        *stepClock
	evaluator    *application.Evaluator
}

func newHarness(t *testing.T, rules ...alerting.AlertRule) *harness {
	t.Helper()
	h := &harness{
		rules:        memory.NewRuleStore(rules...),
		measurements: memory.NewMeasurementStore(),
		events:       memory.NewEventStore(),
		outbox:       eventmemory.NewOutboxStore(),
		clock:        &stepClock{now: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)},
	}
	uow, err := memory.NewUnitOfWorkFactory(h.events, h.outbox)
	if err != nil {
		t.Fatalf("uow: %v", err)
	}
	ids := &sequenceIDs{}
	h.evaluator, err = application.NewEvaluator(h.rules, h.measurements, h.events, uow,
		application.WithClock(h.clock),
		application.WithIDGenerator(ids.Next),
	)
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}
	return h
}

func (h *harness) record(t *testing.T, deviceID string, tempInside float64) {
	t.Helper()
	value := tempInside
	if err := h.measurements.Append(alerting.Measurement{
		DeviceID:   deviceID,
		Timestamp:  h.clock.now,
		TempInside: &value,
	}); err != nil {
		t.Fatalf("append measurement: %v", err)
	}
}

func hotRule() alerting.AlertRule {
	return alerting.AlertRule{
		ID:        "rule-1",
		DeviceID:  "hive-1",
		Metric:    "tempinside",
		Operator:  alerting.OperatorGreater,
		Threshold: 30,
		Active:    true,
	}
}

func TestEvaluateTriggersWhenConditionMet(t *testing.T) {
	h := newHarness(t, hotRule())
	h.record(t, "hive-1", 32)

	n, err := h.evaluator.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 measurement considered, got %d", n)
	}

	all := h.events.All()
	if len(all) != 1 {
		t.Fatalf("expected 1 event, got %d", len(all))
	}
	event := all[0]
	if event.EndTime != nil || event.RuleID != "rule-1" || event.DeviceID != "hive-1" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Message != "Alert triggered for tempinside > 30" {
		t.Fatalf("unexpected message: %q", event.Message)
	}

	msgs := h.outbox.All()
	if len(msgs) != 1 || msgs[0].Type != events.TypeAlertTriggered {
		t.Fatalf("expected one AlertTriggered message, got %+v", msgs)
	}
	payload, err := events.DecodeAlert(msgs[0].Content)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.AlertID != event.ID || payload.EndTime != nil {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestEvaluateIsIdempotentWhileConditionHolds(t *testing.T) {
	h := newHarness(t, hotRule())
	h.record(t, "hive-1", 32)
	for i := 0; i < 3; i++ {
		h.clock.now = h.clock.now.Add(30 * time.Second)
		if _, err := h.evaluator.Evaluate(context.Background()); err != nil {
			t.Fatalf("evaluate %d: %v", i, err)
		}
	}
	if got := len(h.events.All()); got != 1 {
		t.Fatalf("expected 1 event, got %d", got)
	}
	if got := len(h.outbox.All()); got != 1 {
		t.Fatalf("expected 1 outbox message, got %d", got)
	}
}

func TestEvaluateClosesWhenConditionClears(t *testing.T) {
	h := newHarness(t, hotRule())
	h.record(t, "hive-1", 32)
	if _, err := h.evaluator.Evaluate(context.Background()); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	started := h.clock.now

	h.clock.now = h.clock.now.Add(time.Minute)
	h.record(t, "hive-1", 28)
	if _, err := h.evaluator.Evaluate(context.Background()); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	all := h.events.All()
	if len(all) != 1 || all[0].EndTime == nil {
		t.Fatalf("expected the event to be closed, got %+v", all)
	}
	if !all[0].EndTime.Equal(h.clock.now) || !all[0].StartTime.Equal(started) {
		t.Fatalf("unexpected event times: %+v", all[0])
	}

	msgs := h.outbox.All()
	if len(msgs) != 2 || msgs[1].Type != events.TypeAlertClosed {
		t.Fatalf("expected AlertClosed as second message, got %+v", msgs)
	}
	payload, err := events.DecodeAlert(msgs[1].Content)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.EndTime == nil || !payload.StartTime.Equal(started) {
		t.Fatalf("expected start and end in payload, got %+v", payload)
	}
	if !strings.HasPrefix(payload.Message, "Alert closed for") {
		t.Fatalf("unexpected close message: %q", payload.Message)
	}
}

func TestThreeTickScenario(t *testing.T) {
	h := newHarness(t, hotRule())

	// Tick 1: 32 opens an event.
	h.record(t, "hive-1", 32)
	if _, err := h.evaluator.Evaluate(context.Background()); err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	// Tick 2: still 32, nothing changes.
	h.clock.now = h.clock.now.Add(30 * time.Second)
	if _, err := h.evaluator.Evaluate(context.Background()); err != nil {
		t.Fatalf("tick 2: %v", err)
	}
	// Tick 3: 28 closes it.
	h.clock.now = h.clock.now.Add(30 * time.Second)
	h.record(t, "hive-1", 28)
	if _, err := h.evaluator.Evaluate(context.Background()); err != nil {
		t.Fatalf("tick 3: %v", err)
	}

	all := h.events.All()
	if len(all) != 1 || all[0].EndTime == nil {
		t.Fatalf("expected exactly one closed event, got %+v", all)
	}
	msgs := h.outbox.All()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 outbox messages, got %d", len(msgs))
	}
	if msgs[0].Type != events.TypeAlertTriggered || msgs[1].Type != events.TypeAlertClosed {
		t.Fatalf("unexpected message order: %s, %s", msgs[0].Type, msgs[1].Type)
	}
	for _, msg := range msgs {
		if msg.Status != eventing.StatusPending || msg.ProcessedAt != nil {
			t.Fatalf("expected pending messages, got %+v", msg)
		}
	}
}

func TestEvaluateSkipsDevicesWithoutMeasurements(t *testing.T) {
	rule := hotRule()
	other := hotRule()
	other.ID = "rule-2"
	other.DeviceID = "hive-2"
	h := newHarness(t, rule, other)
	h.record(t, "hive-2", 35)
	h.record(t, "hive-2", 36)

	result, err := h.evaluator.EvaluatePass(context.Background())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Devices != 2 || result.DevicesSkipped != 1 || result.Measurements != 2 || result.Triggered != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if open, _ := h.events.GetOpenByRule(context.Background(), "rule-1"); open != nil {
		t.Fatalf("expected no event for device without data")
	}
}

func TestEvaluateAbsentMetricIsNotMet(t *testing.T) {
	rule := hotRule()
	rule.Metric = "Weight"
	h := newHarness(t, rule)
	h.record(t, "hive-1", 50)
	if _, err := h.evaluator.Evaluate(context.Background()); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(h.events.All()) != 0 {
		t.Fatalf("expected no event when metric is absent")
	}

	rule.Metric = "co2"
	rule.Operator = alerting.OperatorLess
	h = newHarness(t, rule)
	h.record(t, "hive-1", 10)
	if _, err := h.evaluator.Evaluate(context.Background()); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(h.events.All()) != 0 {
		t.Fatalf("expected no event for unknown metric")
	}
}

func TestEvaluateMetricNameIsCaseInsensitive(t *testing.T) {
	rule := hotRule()
	rule.Metric = "TempInside"
	h := newHarness(t, rule)
	h.record(t, "hive-1", 31)
	if _, err := h.evaluator.Evaluate(context.Background()); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(h.events.All()) != 1 {
		t.Fatalf("expected event for mixed-case metric name")
	}
}

func TestEvaluateNoActiveRules(t *testing.T) {
	rule := hotRule()
	rule.Active = false
	h := newHarness(t, rule)
	h.record(t, "hive-1", 40)
	n, err := h.evaluator.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if n != 0 || len(h.events.All()) != 0 {
		t.Fatalf("expected no work, got n=%d events=%d", n, len(h.events.All()))
	}
}

type failingMeasurements struct {
	failOn string
}

func (f failingMeasurements) GetRecent(_ context.Context, deviceID string, _ int) ([]alerting.Measurement, error) {
	if deviceID == f.failOn {
		return nil, errors.New("connection reset")
	}
	value := 40.0
	return []alerting.Measurement{{DeviceID: deviceID, Timestamp: time.Now(), TempInside: &value}}, nil
}

func TestEvaluateAbortsPassOnError(t *testing.T) {
	first := hotRule()
	second := hotRule()
	second.ID = "rule-2"
	second.DeviceID = "hive-2"
	rules := memory.NewRuleStore(first, second)
	eventStore := memory.NewEventStore()
	outbox := eventmemory.NewOutboxStore()
	uow, _ := memory.NewUnitOfWorkFactory(eventStore, outbox)

	evaluator, err := application.NewEvaluator(rules, failingMeasurements{failOn: "hive-2"}, eventStore, uow)
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}
	_, err = evaluator.Evaluate(context.Background())
	if err == nil || !strings.Contains(err.Error(), "hive-2") {
		t.Fatalf("expected error naming the device, got %v", err)
	}
	// The first device's transition was committed before the failure.
	if len(eventStore.All()) != 1 || len(outbox.All()) != 1 {
		t.Fatalf("expected the committed transition to survive the aborted pass")
	}
}

func TestEvaluateStopsOnCancelledContext(t *testing.T) {
	h := newHarness(t, hotRule())
	h.record(t, "hive-1", 32)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.evaluator.Evaluate(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(h.events.All()) != 0 {
		t.Fatalf("expected no writes after cancellation")
	}
}

func TestNewEvaluatorValidatesDependencies(t *testing.T) {
	if _, err := application.NewEvaluator(nil, memory.NewMeasurementStore(), memory.NewEventStore(), nil); err == nil {
		t.Fatalf("expected error for nil dependencies")
	}
}
