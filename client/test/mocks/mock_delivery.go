package mocks

import (
	"context"
	"sync"

	"github.com/RezaEskandarii/bulkmail/types"
)

// MockEnqueuer is a mock implementation of dispatch.Enqueuer for testing.
type MockEnqueuer struct {
	EnqueueFunc func(ctx context.Context, job types.DispatchJob) error
}

func (m *MockEnqueuer) Enqueue(ctx context.Context, job types.DispatchJob) error {
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(ctx, job)
	}
	return nil
}

// MockMailSender is a mock implementation of mailer.Sender for testing.
type MockMailSender struct {
	SendMailFunc func(ctx context.Context, to, subject, html string) error
}

func (m *MockMailSender) SendMail(ctx context.Context, to, subject, html string) error {
	if m.SendMailFunc != nil {
		return m.SendMailFunc(ctx, to, subject, html)
	}
	return nil
}

// EmittedEvent is one call recorded by MockBroadcaster.
type EmittedEvent struct {
	UserID  int64
	Event   string
	Payload any
}

// MockBroadcaster records every event it is asked to emit.
type MockBroadcaster struct {
	// OnEmit, when set, runs before the event is recorded.
	OnEmit func(userID int64, event string, payload any)

	mu     sync.Mutex
	events []EmittedEvent
}

func (m *MockBroadcaster) TryEmit(userID int64, event string, payload any) {
	if m.OnEmit != nil {
		m.OnEmit(userID, event, payload)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, EmittedEvent{UserID: userID, Event: event, Payload: payload})
}

func (m *MockBroadcaster) Events() []EmittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EmittedEvent(nil), m.events...)
}
