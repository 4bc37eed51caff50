package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	alerting "hivewatch/internal/alerting/domain"
)

// EventStore is an in-memory alert event store. Like the partial unique index in
// Postgres, it refuses a second open event for the same rule.
type EventStore struct {
	mu     sync.RWMutex
	events map[string]alerting.AlertEvent
	order  []string
}

// NewEventStore constructs an empty store.
func NewEventStore() *EventStore {
	return &EventStore{events: make(map[string]alerting.AlertEvent)}
}

// GetOpenByRule returns the open event for the rule, or nil.
func (s *EventStore) GetOpenByRule(_ context.Context, ruleID string) (*alerting.AlertEvent, error) {
	if s == nil {
		return nil, errors.New("memory events: nil store")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		event := s.events[id]
		if event.RuleID == ruleID && event.EndTime == nil {
			clone := cloneEvent(event)
			return &clone, nil
		}
	}
	return nil, nil
}

// Get returns an event by id.
func (s *EventStore) Get(id string) (alerting.AlertEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	event, ok := s.events[id]
	if !ok {
		return alerting.AlertEvent{}, false
	}
	return cloneEvent(event), true
}

// All returns every event in insertion order.
func (s *EventStore) All() []alerting.AlertEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]alerting.AlertEvent, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, cloneEvent(s.events[id]))
	}
	return result
}

func (s *EventStore) add(event alerting.AlertEvent) error {
	if event.ID == "" {
		return errors.New("memory events: empty id")
	}
	if _, exists := s.events[event.ID]; exists {
		return fmt.Errorf("memory events: duplicate id %s", event.ID)
	}
	if event.EndTime == nil {
		for _, id := range s.order {
			existing := s.events[id]
			if existing.RuleID == event.RuleID && existing.EndTime == nil {
				return fmt.Errorf("memory events: rule %s already has open event %s", event.RuleID, existing.ID)
			}
		}
	}
	s.events[event.ID] = cloneEvent(event)
	s.order = append(s.order, event.ID)
	return nil
}

func (s *EventStore) close(event alerting.AlertEvent) error {
	existing, ok := s.events[event.ID]
	if !ok {
		return fmt.Errorf("memory events: event %s not found", event.ID)
	}
	if existing.EndTime != nil {
		return alerting.ErrEventClosed
	}
	if event.EndTime == nil {
		return errors.New("memory events: close without end time")
	}
	end := *event.EndTime
	existing.EndTime = &end
	s.events[event.ID] = existing
	return nil
}

func cloneEvent(event alerting.AlertEvent) alerting.AlertEvent {
	if event.EndTime != nil {
		end := *event.EndTime
		event.EndTime = &end
	}
	return event
}
