package memory

import (
	"context"
	"errors"
	"sync"

	"hivewatch/internal/alerting/application"
	alerting "hivewatch/internal/alerting/domain"
	"hivewatch/internal/eventing"
	eventmemory "hivewatch/internal/eventing/infrastructure/memory"
)

// UnitOfWorkFactory stages event and outbox writes and applies them together on Commit.
type UnitOfWorkFactory struct {
	mu     sync.Mutex
	events *EventStore
	outbox *eventmemory.OutboxStore
}

// NewUnitOfWorkFactory constructs a factory over the given stores.
func NewUnitOfWorkFactory(events *EventStore, outbox *eventmemory.OutboxStore) (*UnitOfWorkFactory, error) {
	if events == nil || outbox == nil {
		return nil, errors.New("memory uow: nil store")
	}
	return &UnitOfWorkFactory{events: events, outbox: outbox}, nil
}

// Begin starts a unit of work.
func (f *UnitOfWorkFactory) Begin(_ context.Context) (application.UnitOfWork, error) {
	if f == nil {
		return nil, errors.New("memory uow: nil factory")
	}
	return &unitOfWork{factory: f}, nil
}

type stagedEvent struct {
	event alerting.AlertEvent
	close bool
}

type unitOfWork struct {
	factory  *UnitOfWorkFactory
	events   []stagedEvent
	messages []eventing.OutboxMessage
	done     bool
}

func (u *unitOfWork) Events() application.EventWriter {
	return eventWriter{uow: u}
}

func (u *unitOfWork) Outbox() eventing.OutboxWriter {
	return outboxWriter{uow: u}
}

// Commit applies staged writes. The event store is validated before anything is written, so
// a rejected event leaves both stores untouched.
func (u *unitOfWork) Commit(ctx context.Context) error {
	if u.done {
		return errors.New("memory uow: already finished")
	}
	u.done = true

	f := u.factory
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events.mu.Lock()
	snapshot := make(map[string]alerting.AlertEvent, len(f.events.events))
	for id, event := range f.events.events {
		snapshot[id] = event
	}
	order := append([]string(nil), f.events.order...)
	for _, staged := range u.events {
		var err error
		if staged.close {
			err = f.events.close(staged.event)
		} else {
			err = f.events.add(staged.event)
		}
		if err != nil {
			f.events.events = snapshot
			f.events.order = order
			f.events.mu.Unlock()
			return err
		}
	}
	f.events.mu.Unlock()

	for i := range u.messages {
		if err := f.outbox.Add(ctx, &u.messages[i]); err != nil {
			return err
		}
	}
	return nil
}

func (u *unitOfWork) Rollback() error {
	u.done = true
	u.events = nil
	u.messages = nil
	return nil
}

type eventWriter struct {
	uow *unitOfWork
}

func (w eventWriter) Add(_ context.Context, event *alerting.AlertEvent) error {
	if event == nil {
		return errors.New("memory uow: nil event")
	}
	w.uow.events = append(w.uow.events, stagedEvent{event: cloneEvent(*event)})
	return nil
}

func (w eventWriter) Close(_ context.Context, event *alerting.AlertEvent) error {
	if event == nil {
		return errors.New("memory uow: nil event")
	}
	w.uow.events = append(w.uow.events, stagedEvent{event: cloneEvent(*event), close: true})
	return nil
}

type outboxWriter struct {
	uow *unitOfWork
}

func (w outboxWriter) Add(_ context.Context, msg *eventing.OutboxMessage) error {
	if msg == nil {
		return errors.New("memory uow: nil message")
	}
	w.uow.messages = append(w.uow.messages, *msg)
	return nil
}
