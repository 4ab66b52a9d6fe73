package models

import "time"

// CoarseAccuracyMeters is the accuracy above which a fix is not drawn with an accuracy circle.
const CoarseAccuracyMeters = 100.0

// Position is a single location sample.
type Position struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	CapturedAt time.Time `json:"lastUpdated"`
}

// IsCoarse reports whether the fix has no usable accuracy.
func (p Position) IsCoarse() bool {
	return p.Accuracy == nil || *p.Accuracy > CoarseAccuracyMeters
}

// AccuracyMeters returns the accuracy or 0 when unknown.
func (p Position) AccuracyMeters() float64 {
	if p.Accuracy == nil {
		return 0
	}
	return *p.Accuracy
}

// Float64 returns a pointer to v. Handy for optional accuracy values.
func Float64(v float64) *float64 {
	return &v
}

// PartnerPresence is the last known state of the partner as reported by the gateway.
type PartnerPresence struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	ProfilePhoto string    `json:"profilePhoto,omitempty"`
	Online       bool      `json:"online"`
	LastLocation *Position `json:"location,omitempty"`
}

// StatusResult is the decoded result of a status poll.
type StatusResult struct {
	Sharing         SharingStatus
	UserPosition    *Position
	PartnerPosition *Position
}

// Envelope is the common wrapper of every gateway response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Live feed event types.
const (
	LiveLocation       = "location"
	LiveSharingStarted = "sharing_started"
	LiveSharingStopped = "sharing_stopped"
)

// LiveEvent is pushed to the partner over the live websocket feed.
type LiveEvent struct {
	Type     string    `json:"type"`
	UserID   int64     `json:"userId"`
	Position *Position `json:"position,omitempty"`
	At       time.Time `json:"at"`
}
