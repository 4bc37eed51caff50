package memory

import (
	"context"
	"errors"
	"sync"

	alerting "hivewatch/internal/alerting/domain"
)

// RuleStore is an in-memory rule store for tests and local runs.
type RuleStore struct {
	mu    sync.RWMutex
	rules []alerting.AlertRule
}

// NewRuleStore constructs a store seeded with rules.
func NewRuleStore(rules ...alerting.AlertRule) *RuleStore {
	s := &RuleStore{}
	for _, rule := range rules {
		_ = s.Put(rule)
	}
	return s
}

// Put inserts or replaces a rule by id.
func (s *RuleStore) Put(rule alerting.AlertRule) error {
	if s == nil {
		return errors.New("memory rules: nil store")
	}
	if rule.ID == "" {
		return errors.New("memory rules: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rules {
		if s.rules[i].ID == rule.ID {
			s.rules[i] = rule
			return nil
		}
	}
	s.rules = append(s.rules, rule)
	return nil
}

// ListActive returns active rules in insertion order.
func (s *RuleStore) ListActive(_ context.Context) ([]alerting.AlertRule, error) {
	if s == nil {
		return nil, errors.New("memory rules: nil store")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var active []alerting.AlertRule
	for _, rule := range s.rules {
		if rule.Active {
			active = append(active, rule)
		}
	}
	return active, nil
}
