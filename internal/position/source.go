// Package position provides device position sources for the sharing
// controller: a random-walk simulator, an NMEA 0183 stream reader and a
// wrapper adding a timeout and freshness ceiling to single reads.
package position

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yourorg/together/internal/models"
)

var (
	// ErrUnavailable is returned when no fix can be produced.
	ErrUnavailable = errors.New("position unavailable")
	// ErrTimeout is returned together with ErrUnavailable when a read exceeds its deadline.
	ErrTimeout = errors.New("position request timed out")
)

// Source is a live device-location feed.
//
// Watch must not block waiting for onUpdate consumers: it starts delivering
// asynchronously and returns immediately. Callbacks stop once the returned
// Subscription is cancelled or ctx is done.
type Source interface {
	Current(ctx context.Context) (models.Position, error)
	Watch(ctx context.Context, onUpdate func(models.Position)) (Subscription, error)
}

// Subscription is a standing watch registration. Cancel is idempotent.
type Subscription interface {
	Cancel()
}

// WatchOptions throttle watch deliveries. A sample is delivered when the
// device moved at least MinDistance meters or MinInterval elapsed since the
// last delivered sample, whichever happens first.
type WatchOptions struct {
	MinDistance float64
	MinInterval time.Duration
}

// DefaultWatchOptions matches the mobile client: 5 meters or 5 seconds.
var DefaultWatchOptions = WatchOptions{
	MinDistance: 5,
	MinInterval: 5 * time.Second,
}

type subscription struct {
	once   sync.Once
	cancel context.CancelFunc
}

func newSubscription(parent context.Context) (*subscription, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &subscription{cancel: cancel}, ctx
}

func (s *subscription) Cancel() {
	s.once.Do(s.cancel)
}

// Filter applies WatchOptions to a stream of samples.
type Filter struct {
	opts WatchOptions
	last *models.Position
}

// NewFilter returns a Filter for opts.
func NewFilter(opts WatchOptions) *Filter {
	return &Filter{opts: opts}
}

// Accept reports whether p should be delivered and records it if so.
func (f *Filter) Accept(p models.Position) bool {
	if f.last == nil {
		f.last = &p
		return true
	}
	if p.CapturedAt.Before(f.last.CapturedAt) {
		return false
	}
	moved := DistanceMeters(f.last.Latitude, f.last.Longitude, p.Latitude, p.Longitude)
	elapsed := p.CapturedAt.Sub(f.last.CapturedAt)
	if moved >= f.opts.MinDistance || elapsed >= f.opts.MinInterval {
		f.last = &p
		return true
	}
	return false
}
