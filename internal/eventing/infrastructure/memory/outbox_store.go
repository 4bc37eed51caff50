package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"hivewatch/internal/eventing"
)

// OutboxStore is an in-memory outbox for tests and local runs.
type OutboxStore struct {
	mu       sync.Mutex
	messages map[string]eventing.OutboxMessage
	order    []string
}

// NewOutboxStore constructs an empty store.
func NewOutboxStore() *OutboxStore {
	return &OutboxStore{messages: make(map[string]eventing.OutboxMessage)}
}

// Add appends a message.
func (s *OutboxStore) Add(_ context.Context, msg *eventing.OutboxMessage) error {
	if s == nil {
		return errors.New("memory outbox: nil store")
	}
	if msg == nil || msg.ID == "" {
		return errors.New("memory outbox: invalid message")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.messages[msg.ID]; exists {
		return fmt.Errorf("memory outbox: duplicate id %s", msg.ID)
	}
	s.messages[msg.ID] = cloneMessage(*msg)
	s.order = append(s.order, msg.ID)
	return nil
}

// GetPending returns up to limit unprocessed messages ordered by CreatedAt.
func (s *OutboxStore) GetPending(_ context.Context, limit int) ([]*eventing.OutboxMessage, error) {
	if s == nil {
		return nil, errors.New("memory outbox: nil store")
	}
	if limit <= 0 {
		limit = eventing.DefaultBatchSize
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []*eventing.OutboxMessage
	for _, id := range s.order {
		msg := s.messages[id]
		if msg.ProcessedAt != nil {
			continue
		}
		clone := cloneMessage(msg)
		pending = append(pending, &clone)
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// Save replaces stored messages with the batch state. Either all rows are written or none.
func (s *OutboxStore) Save(_ context.Context, batch []*eventing.OutboxMessage) error {
	if s == nil {
		return errors.New("memory outbox: nil store")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range batch {
		if msg == nil {
			continue
		}
		if _, ok := s.messages[msg.ID]; !ok {
			return fmt.Errorf("memory outbox: unknown message %s", msg.ID)
		}
	}
	for _, msg := range batch {
		if msg == nil {
			continue
		}
		s.messages[msg.ID] = cloneMessage(*msg)
	}
	return nil
}

// All returns every message in insertion order.
func (s *OutboxStore) All() []eventing.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]eventing.OutboxMessage, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, cloneMessage(s.messages[id]))
	}
	return result
}

// Get returns a message by id.
func (s *OutboxStore) Get(id string) (eventing.OutboxMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return eventing.OutboxMessage{}, false
	}
	return cloneMessage(msg), true
}

func cloneMessage(msg eventing.OutboxMessage) eventing.OutboxMessage {
	if msg.ProcessedAt != nil {
		at := *msg.ProcessedAt
		msg.ProcessedAt = &at
	}
	if msg.Error != nil {
		text := *msg.Error
		msg.Error = &text
	}
	return msg
}
