package sharing

import (
	"time"

	"github.com/yourorg/together/internal/models"
)

// State is the lifecycle state of the controller.
type State int

const (
	Idle State = iota
	Requesting
	Active
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requesting:
		return "requesting"
	case Active:
		return "active"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Session is one bounded sharing engagement. The zero value is an inactive session.
type Session struct {
	ID               string
	Active           bool
	StartedAt        time.Time
	DurationMinutes  int
	RemainingSeconds int
}

// Snapshot is a consistent copy of the controller state.
type Snapshot struct {
	State        State
	Session      Session
	LastPosition *models.Position
	Partner      *models.PartnerPresence
}
