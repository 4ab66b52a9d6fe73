package models

import "time"

// User represents a user record in DB (internal use only).
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	ProfilePhoto string    `json:"profile_photo"`
	PartnerID    *int64    `json:"partner_id,omitempty"` // pareja vinculada
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// RegisterRequest holds the data for creating a new user.
type RegisterRequest struct {
	Username     string `json:"username"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	Name         string `json:"name"`
	ProfilePhoto string `json:"profile_photo,omitempty"`
}
