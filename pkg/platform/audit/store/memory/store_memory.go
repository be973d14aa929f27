package memory

import (
	"context"
	"sync"

	audit "golden/pkg/platform/audit"
)

type InMemoryStore struct {
	mu     sync.RWMutex
	events []audit.Event
	index  map[string][]int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{index: make(map[string][]int)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	s.index = make(map[string][]int)
}

func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index[event.Subject] = append(s.index[event.Subject], len(s.events))
	s.events = append(s.events, event)
	return nil
}

// ListBySubject returns a record's events oldest first.
func (s *InMemoryStore) ListBySubject(_ context.Context, subject string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Event, 0, len(s.index[subject]))
	for _, i := range s.index[subject] {
		out = append(out, s.events[i])
	}
	return out, nil
}

// ListRecent returns the most recent N events, newest last.
func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := max(len(s.events)-limit, 0)
	return append([]audit.Event{}, s.events[start:]...), nil
}
