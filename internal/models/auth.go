package models

import "time"

// LoginRequest represents credentials provided by the client.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UserDTO is a minimal user representation for responses.
type UserDTO struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	PartnerID *int64 `json:"partner_id,omitempty"`
}

// LoginResponse is returned upon successful authentication.
type LoginResponse struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token"`
	User      UserDTO   `json:"user"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ErrorResponse is the error shape for API errors. Success is always false.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Fail builds an ErrorResponse.
func Fail(msg string) ErrorResponse {
	return ErrorResponse{Success: false, Error: msg}
}
