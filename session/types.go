package session

import "github.com/google/uuid"

// Handle is an opaque reference to a session in a Table.
// Handle 0 is reserved and always invalid.
type Handle uint32

// EventType identifies a session lifecycle notification.
type EventType uint8

const (
	EventOpened EventType = iota
	EventClosed
)

func (t EventType) String() string {
	switch t {
	case EventOpened:
		return "opened"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is a session lifecycle notification.
type Event struct {
	ID     uuid.UUID
	Handle Handle
	Type   EventType
}

// Observer receives session lifecycle events. Observers are called
// synchronously and must not call back into the table.
type Observer interface {
	OnSessionEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnSessionEvent calls f.
func (f ObserverFunc) OnSessionEvent(e Event) {
	f(e)
}
