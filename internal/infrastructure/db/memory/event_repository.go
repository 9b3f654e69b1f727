package memory

import (
	"context"
	"sync"

	"github.com/studyhub/group-requests/internal/core/domain"
)

// EventStore keeps the audit trail in memory. It is separate from Store so the
// dispatcher workers never contend with the directory lock.
type EventStore struct {
	mu     sync.RWMutex
	events map[string][]domain.RequestEvent
}

func NewEventStore() *EventStore {
	return &EventStore{events: make(map[string][]domain.RequestEvent)}
}

func (s *EventStore) InsertEvent(_ context.Context, event *domain.RequestEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.RequestID] = append(s.events[event.RequestID], *event)
	return nil
}

func (s *EventStore) ListEvents(_ context.Context, requestID string) ([]*domain.RequestEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.events[requestID]
	out := make([]*domain.RequestEvent, len(stored))
	for i := range stored {
		ev := stored[i]
		out[i] = &ev
	}
	return out, nil
}
