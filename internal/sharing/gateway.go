package sharing

import (
	"context"

	"github.com/yourorg/together/internal/models"
)

// Gateway is the remote authority that persists sharing sessions. Calls
// carry no retry; failures should wrap ErrGatewayUnreachable or
// ErrGatewayRejected.
type Gateway interface {
	StartSharing(ctx context.Context, minutes int, pos models.Position) (models.SessionInfo, error)
	StopSharing(ctx context.Context) error
	UpdateLocation(ctx context.Context, pos models.Position) error
	FetchStatus(ctx context.Context) (models.StatusResult, error)
	PartnerInfo(ctx context.Context) (models.PartnerPresence, error)
}
