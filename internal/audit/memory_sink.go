package audit

import "sync"

// MemorySink stores events in memory (development/testing use).
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink creates a new in-memory event sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Emit appends the event to the in-memory store.
func (s *MemorySink) Emit(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a copy of all stored events (for testing/inspection).
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// CountByAction returns how many stored events carry the given action.
func (s *MemorySink) CountByAction(action string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.Action == action {
			n++
		}
	}
	return n
}
