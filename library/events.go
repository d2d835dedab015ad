package library

import "sync"

// EventKind classifies a collection change.
type EventKind string

const (
	EventAdded   EventKind = "added"
	EventUpdated EventKind = "updated"
	EventRemoved EventKind = "removed"
	EventLoaded  EventKind = "loaded"
)

// Event describes one change to the record collection. For EventLoaded the
// Record field is zero; subscribers should re-read the snapshot.
type Event struct {
	Kind   EventKind
	Record Record
}

type subscribers struct {
	subsMu sync.Mutex
	subs   []chan Event
}

// Subscribe returns a channel receiving collection-change events. Delivery is
// non-blocking: a subscriber that falls more than 16 events behind misses the
// overflow and should resynchronize from Snapshot.
func (s *subscribers) Subscribe() <-chan Event {
	ch := make(chan Event, 16)
	s.subsMu.Lock()
	s.subs = append(s.subs, ch)
	s.subsMu.Unlock()
	return ch
}

func (s *subscribers) emit(event Event) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
