package position

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/yourorg/together/internal/clock"
	"github.com/yourorg/together/internal/models"
)

// SimulatorConfig tunes the random walk.
type SimulatorConfig struct {
	Interval   time.Duration // raw fix cadence
	StepMeters float64
	Accuracy   float64
	Seed       int64
	Watch      WatchOptions
}

// DefaultSimulatorConfig walks ~4 m every 2 s with an 8 m accuracy.
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		Interval:   2 * time.Second,
		StepMeters: 4,
		Accuracy:   8,
		Seed:       time.Now().UnixNano(),
		Watch:      DefaultWatchOptions,
	}
}

// Simulator is a Source that performs a random walk around an origin. It
// stands in for a GPS receiver during development and demos.
type Simulator struct {
	cfg   SimulatorConfig
	clock clock.Clock

	mu      sync.Mutex
	lat     float64
	lon     float64
	bearing float64
	rng     *rand.Rand
}

// NewSimulator starts the walk at lat/lon.
func NewSimulator(lat, lon float64, cfg SimulatorConfig, clk clock.Clock) *Simulator {
	if clk == nil {
		clk = clock.New()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSimulatorConfig().Interval
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	return &Simulator{
		cfg:     cfg,
		clock:   clk,
		lat:     lat,
		lon:     lon,
		bearing: rng.Float64() * 360,
		rng:     rng,
	}
}

// Current returns the present simulated fix without moving.
func (s *Simulator) Current(ctx context.Context) (models.Position, error) {
	if err := ctx.Err(); err != nil {
		return models.Position{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sampleLocked(), nil
}

// Watch moves the walker every Interval and delivers filtered fixes.
func (s *Simulator) Watch(ctx context.Context, onUpdate func(models.Position)) (Subscription, error) {
	sub, wctx := newSubscription(ctx)
	ticker := s.clock.NewTicker(s.cfg.Interval)
	filter := NewFilter(s.cfg.Watch)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-wctx.Done():
				return
			case <-ticker.C():
				p := s.step()
				if wctx.Err() != nil {
					return
				}
				if filter.Accept(p) {
					onUpdate(p)
				}
			}
		}
	}()
	return sub, nil
}

func (s *Simulator) step() models.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bearing += s.rng.NormFloat64() * 30
	s.lat, s.lon = Offset(s.lat, s.lon, s.bearing, s.cfg.StepMeters)
	return s.sampleLocked()
}

func (s *Simulator) sampleLocked() models.Position {
	p := models.Position{
		Latitude:   s.lat,
		Longitude:  s.lon,
		CapturedAt: s.clock.Now(),
	}
	if s.cfg.Accuracy > 0 {
		p.Accuracy = models.Float64(s.cfg.Accuracy)
	}
	return p
}
