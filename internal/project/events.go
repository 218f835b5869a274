package project

import "github.com/bryanchriswhite/fremkalder/internal/surface"

// EventType classifies a session change.
type EventType string

const (
	EventSurfaces EventType = "surfaces" // added, removed, locked or resegmented
	EventPoints   EventType = "points"   // a point was dragged
	EventPointer  EventType = "pointer"  // hover state changed
	EventMapping  EventType = "mapping"
	EventProject  EventType = "project" // saved or loaded
)

// Event is sent to subscribers after a change has been applied.
type Event struct {
	Type    EventType         `json:"type"`
	Surface surface.SurfaceID `json:"surface,omitempty"`
}

// Subscribe returns a channel receiving change events. Slow subscribers
// miss events rather than block the session.
func (s *Session) Subscribe() chan Event {
	ch := make(chan Event, 16)
	s.listenersMu.Lock()
	s.listeners = append(s.listeners, ch)
	s.listenersMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (s *Session) Unsubscribe(ch chan Event) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	for i, l := range s.listeners {
		if l == ch {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

func (s *Session) notify(ev Event) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	for _, ch := range s.listeners {
		select {
		case ch <- ev:
		default:
			s.log.Debug().Str("event", string(ev.Type)).Msg("Dropped event for slow subscriber")
		}
	}
}
