package sharing

import "errors"

var (
	// ErrPermissionDenied is returned when the permission gate refuses location access.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrPositionUnavailable is returned when no initial fix could be read.
	ErrPositionUnavailable = errors.New("position unavailable")
	// ErrGatewayUnreachable covers transport failures and non-success HTTP statuses.
	ErrGatewayUnreachable = errors.New("sharing gateway unreachable")
	// ErrGatewayRejected is returned when the gateway answered with success=false.
	ErrGatewayRejected = errors.New("sharing gateway rejected the request")

	ErrBusy            = errors.New("another sharing operation is in progress")
	ErrNotActive       = errors.New("no active sharing session")
	ErrInvalidDuration = errors.New("sharing duration must be positive")
	ErrClosed          = errors.New("sharing controller closed")
)
