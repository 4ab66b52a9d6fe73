package sharing

import (
	"time"

	"github.com/yourorg/together/internal/models"
)

// EventType identifies a controller notification.
type EventType int

const (
	EventStateChanged EventType = iota
	EventStarted
	EventStopped
	// EventExpired is raised when the countdown reaches zero, never by Stop.
	EventExpired
	// EventEndedRemotely is raised when a status poll reports the session is gone.
	EventEndedRemotely
	EventPosition
	EventSynced
	EventPartner
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventStateChanged:
		return "state_changed"
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	case EventExpired:
		return "expired"
	case EventEndedRemotely:
		return "ended_remotely"
	case EventPosition:
		return "position"
	case EventSynced:
		return "synced"
	case EventPartner:
		return "partner"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether t ends a session or an operation. Terminal
// events are never dropped for slow subscribers.
func (t EventType) Terminal() bool {
	switch t {
	case EventStopped, EventExpired, EventEndedRemotely, EventError:
		return true
	}
	return false
}

// Event is delivered to subscribers. State and Session reflect the
// controller right after the change that raised it.
type Event struct {
	Type     EventType
	State    State
	Session  Session
	Position *models.Position
	Partner  *models.PartnerPresence
	Err      error
	At       time.Time
}
