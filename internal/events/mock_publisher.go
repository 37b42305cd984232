package events

import (
	"context"
	"sync"
)

// PublishedEvent records one Publish call on a MockEventPublisher.
type PublishedEvent struct {
	Topic string
	Event interface{}
}

// MockEventPublisher captures published events for assertions in tests.
type MockEventPublisher struct {
	mu     sync.Mutex
	events []PublishedEvent

	PublishErr error
}

func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{}
}

func (m *MockEventPublisher) Publish(ctx context.Context, topic string, event interface{}) error {
	if m.PublishErr != nil {
		return m.PublishErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, PublishedEvent{Topic: topic, Event: event})
	return nil
}

func (m *MockEventPublisher) Close() error { return nil }

// Events returns a copy of recorded events.
func (m *MockEventPublisher) Events() []PublishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PublishedEvent, len(m.events))
	copy(out, m.events)
	return out
}

// EventsForTopic returns recorded events for a single topic.
func (m *MockEventPublisher) EventsForTopic(topic string) []PublishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PublishedEvent
	for _, e := range m.events {
		if e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}
