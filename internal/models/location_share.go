package models

import "time"

// LocationShare representa un compartir de ubicación con la pareja
type LocationShare struct {
	ID              string     `json:"id" db:"id"`
	UserID          int64      `json:"user_id" db:"user_id"`
	Latitude        float64    `json:"latitude" db:"latitude"`
	Longitude       float64    `json:"longitude" db:"longitude"`
	Accuracy        *float64   `json:"accuracy,omitempty" db:"accuracy"`
	DurationMinutes int        `json:"duration_minutes" db:"duration_minutes"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt       time.Time  `json:"expires_at" db:"expires_at"`
	StoppedAt       *time.Time `json:"stopped_at,omitempty" db:"stopped_at"`
	IsActive        bool       `json:"is_active" db:"is_active"`
	LastUpdatedAt   time.Time  `json:"last_updated_at" db:"last_updated_at"`
}

// TimeRemaining retorna los segundos restantes (nunca negativo)
func (s *LocationShare) TimeRemaining(now time.Time) int {
	if !s.IsActive {
		return 0
	}
	remaining := int(s.ExpiresAt.Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Position returns the last stored sample of the share.
func (s *LocationShare) Position() Position {
	return Position{
		Latitude:   s.Latitude,
		Longitude:  s.Longitude,
		Accuracy:   s.Accuracy,
		CapturedAt: s.LastUpdatedAt,
	}
}

// StartSharingRequest es el body de POST /api/location/start
type StartSharingRequest struct {
	Duration        int       `json:"duration"`
	InitialLocation *Position `json:"initialLocation"`
}

// SessionInfo describe la sesión creada por el gateway
type SessionInfo struct {
	ID            string    `json:"id"`
	StartTime     time.Time `json:"startTime"`
	Duration      int       `json:"duration"`
	TimeRemaining int       `json:"timeRemaining"`
}

// StartSharingResponse es la respuesta de POST /api/location/start
type StartSharingResponse struct {
	Envelope
	Session *SessionInfo `json:"session,omitempty"`
}

// SharingStatus es el estado autoritativo que guarda el servidor
type SharingStatus struct {
	ID            string     `json:"id,omitempty"`
	IsSharing     bool       `json:"isSharing"`
	StartTime     *time.Time `json:"startTime,omitempty"`
	Duration      int        `json:"duration"`
	TimeRemaining int        `json:"timeRemaining"`
}

// StatusResponse es la respuesta de GET /api/location/status
type StatusResponse struct {
	Envelope
	Status          *SharingStatus `json:"status,omitempty"`
	UserLocation    *Position      `json:"userLocation,omitempty"`
	PartnerLocation *Position      `json:"partnerLocation,omitempty"`
}

// PartnerResponse es la respuesta de GET /api/partner/info
type PartnerResponse struct {
	Envelope
	Partner *PartnerPresence `json:"partner,omitempty"`
}

// PairRequest vincula dos cuentas como pareja
type PairRequest struct {
	PartnerUsername string `json:"partner_username"`
}
