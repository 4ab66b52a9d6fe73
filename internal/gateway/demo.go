package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/together/internal/clock"
	"github.com/yourorg/together/internal/models"
	"github.com/yourorg/together/internal/position"
	"github.com/yourorg/together/internal/sharing"
)

// DemoLatency is the simulated round trip of the demo gateway.
const DemoLatency = 300 * time.Millisecond

// demoPartnerStep is how far the demo partner walks between two reads.
const demoPartnerStep = 15.0

var _ sharing.Gateway = (*Demo)(nil)

// Demo is an in-memory gateway with a simulated partner. It is only used
// when explicitly selected; it never stands in for a failing server.
type Demo struct {
	clock   clock.Clock
	latency time.Duration

	mu        sync.Mutex
	session   *models.SessionInfo
	expiresAt time.Time
	user      *models.Position
	partner   models.PartnerPresence
	bearing   float64
	rng       *rand.Rand
}

// NewDemo returns a demo gateway whose partner starts walking near San Francisco.
func NewDemo(clk clock.Clock, latency time.Duration) *Demo {
	if clk == nil {
		clk = clock.New()
	}
	now := clk.Now()
	return &Demo{
		clock:   clk,
		latency: latency,
		partner: models.PartnerPresence{
			ID:       2,
			Username: "Alex",
			Online:   true,
			LastLocation: &models.Position{
				Latitude:   37.7749,
				Longitude:  -122.4194,
				Accuracy:   models.Float64(12),
				CapturedAt: now,
			},
		},
		bearing: 45,
		rng:     rand.New(rand.NewSource(now.UnixNano())),
	}
}

func (d *Demo) wait(ctx context.Context) error {
	if d.latency <= 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", sharing.ErrGatewayUnreachable, err)
		}
		return nil
	}
	t := time.NewTimer(d.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", sharing.ErrGatewayUnreachable, ctx.Err())
	case <-t.C:
		return nil
	}
}

func (d *Demo) StartSharing(ctx context.Context, minutes int, pos models.Position) (models.SessionInfo, error) {
	if err := d.wait(ctx); err != nil {
		return models.SessionInfo{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.clock.Now()
	if d.liveLocked(now) {
		return models.SessionInfo{}, fmt.Errorf("%w: already sharing", sharing.ErrGatewayRejected)
	}
	d.session = &models.SessionInfo{
		ID:            uuid.NewString(),
		StartTime:     now,
		Duration:      minutes,
		TimeRemaining: minutes * 60,
	}
	d.expiresAt = now.Add(time.Duration(minutes) * time.Minute)
	d.user = &pos
	return *d.session, nil
}

func (d *Demo) StopSharing(ctx context.Context) error {
	if err := d.wait(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	// Stopping an expired or missing session succeeds, like the server.
	d.session = nil
	return nil
}

func (d *Demo) UpdateLocation(ctx context.Context, pos models.Position) error {
	if err := d.wait(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.liveLocked(d.clock.Now()) {
		return fmt.Errorf("%w: not sharing", sharing.ErrGatewayRejected)
	}
	d.user = &pos
	return nil
}

func (d *Demo) FetchStatus(ctx context.Context) (models.StatusResult, error) {
	if err := d.wait(ctx); err != nil {
		return models.StatusResult{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.clock.Now()
	d.walkLocked(now)

	partner := *d.partner.LastLocation
	result := models.StatusResult{PartnerPosition: &partner}
	if d.user != nil {
		user := *d.user
		result.UserPosition = &user
	}
	if d.liveLocked(now) {
		start := d.session.StartTime
		result.Sharing = models.SharingStatus{
			ID:            d.session.ID,
			IsSharing:     true,
			StartTime:     &start,
			Duration:      d.session.Duration,
			TimeRemaining: int(d.expiresAt.Sub(now).Seconds()),
		}
	}
	return result, nil
}

func (d *Demo) PartnerInfo(ctx context.Context) (models.PartnerPresence, error) {
	if err := d.wait(ctx); err != nil {
		return models.PartnerPresence{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.walkLocked(d.clock.Now())
	p := d.partner
	loc := *d.partner.LastLocation
	p.LastLocation = &loc
	return p, nil
}

func (d *Demo) liveLocked(now time.Time) bool {
	if d.session == nil {
		return false
	}
	if !now.Before(d.expiresAt) {
		d.session = nil
		return false
	}
	return true
}

func (d *Demo) walkLocked(now time.Time) {
	loc := d.partner.LastLocation
	d.bearing += d.rng.NormFloat64() * 20
	lat, lon := position.Offset(loc.Latitude, loc.Longitude, d.bearing, demoPartnerStep)
	d.partner.LastLocation = &models.Position{
		Latitude:   lat,
		Longitude:  lon,
		Accuracy:   loc.Accuracy,
		CapturedAt: now,
	}
}
