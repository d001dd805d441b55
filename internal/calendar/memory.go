package calendar

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps events in process memory. It is safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string]Event
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string]Event)}
}

func (s *MemoryStore) CheckAvailability(_ context.Context, start, end time.Time) (Availability, error) {
	s.mu.RLock()
	var conflicts []Event
	for _, e := range s.events {
		if e.Overlaps(start, end) {
			conflicts = append(conflicts, e)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(conflicts, func(a, b Event) int { return a.Start.Compare(b.Start) })
	return availabilityOf(start, end, conflicts), nil
}

func (s *MemoryStore) CreateEvent(_ context.Context, in EventInput) (Event, error) {
	if in.End.Before(in.Start) {
		return Event{}, ErrInvalidRange
	}
	e := Event{
		ID:          "event_" + uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		Start:       in.Start.UTC(),
		End:         in.End.UTC(),
	}
	s.mu.Lock()
	s.events[e.ID] = e
	s.mu.Unlock()
	return e, nil
}

func (s *MemoryStore) UpdateEvent(_ context.Context, id string, patch EventPatch) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.events[id]
	if !ok {
		return Event{}, fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	updated, err := patch.Apply(current)
	if err != nil {
		return Event{}, err
	}
	updated.Start, updated.End = updated.Start.UTC(), updated.End.UTC()
	s.events[id] = updated
	return updated, nil
}

func (s *MemoryStore) DeleteEvent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	delete(s.events, id)
	return nil
}
