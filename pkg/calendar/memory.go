package calendar

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps events in process memory. It is the fallback backend
// when no credentials or store path are configured, and the workhorse of
// the test suite.
type MemoryStore struct {
	mu       sync.RWMutex
	defaults Defaults
	events   map[string]Event
	order    map[string]int // insertion order, tie-break for FindByTitle
	seq      int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(defaults Defaults) *MemoryStore {
	return &MemoryStore{
		defaults: defaults.normalize(),
		events:   make(map[string]Event),
		order:    make(map[string]int),
	}
}

func (s *MemoryStore) Upsert(title string, start time.Time, durationMinutes, reminderOverrideMinutes int) (Event, error) {
	evt := newEvent(title, start, durationMinutes, reminderOverrideMinutes, s.defaults)

	s.mu.Lock()
	s.events[evt.ID] = evt
	s.order[evt.ID] = s.seq
	s.seq++
	s.mu.Unlock()

	return evt, nil
}

func (s *MemoryStore) Delete(eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[eventID]; !ok {
		return ErrNotFound
	}
	delete(s.events, eventID)
	delete(s.order, eventID)
	return nil
}

func (s *MemoryStore) FindByTitle(title string) (Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best Event
	found := false
	for _, evt := range s.events {
		if evt.Title != title {
			continue
		}
		if !found || earlier(evt, best, s.order) {
			best = evt
			found = true
		}
	}
	if !found {
		return Event{}, ErrNotFound
	}
	return best, nil
}

func (s *MemoryStore) ListUpcoming(ref time.Time) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for _, evt := range s.events {
		if !evt.Start.Before(ref) {
			out = append(out, evt)
		}
	}
	sortByStart(out)
	return out, nil
}

func (s *MemoryStore) ListRange(from, to time.Time) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Event
	for _, evt := range s.events {
		if !evt.Start.Before(from) && evt.Start.Before(to) {
			out = append(out, evt)
		}
	}
	sortByStart(out)
	return out, nil
}

// earlier orders by start time, falling back to insertion order so
// duplicate titles resolve deterministically.
func earlier(a, b Event, order map[string]int) bool {
	if !a.Start.Equal(b.Start) {
		return a.Start.Before(b.Start)
	}
	return order[a.ID] < order[b.ID]
}

func sortByStart(events []Event) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})
}
