package position

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yourorg/together/internal/clock"
	"github.com/yourorg/together/internal/models"
)

const (
	// DefaultTimeout bounds a single Current read.
	DefaultTimeout = 15 * time.Second
	// DefaultMaxAge is how old a cached fix may be and still be returned by Current.
	DefaultMaxAge = 10 * time.Second
)

// Fresh wraps a Source with a bounded wait and a freshness ceiling. Fixes
// seen by Current or by a watch are remembered and reused by Current while
// they are younger than MaxAge.
type Fresh struct {
	src     Source
	timeout time.Duration
	maxAge  time.Duration
	clock   clock.Clock

	mu   sync.Mutex
	last *models.Position
}

// NewFresh wraps src. Zero timeout or maxAge select the defaults.
func NewFresh(src Source, timeout, maxAge time.Duration, clk clock.Clock) *Fresh {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Fresh{src: src, timeout: timeout, maxAge: maxAge, clock: clk}
}

// Current returns a cached fix no older than MaxAge or reads a new one,
// giving up after the timeout.
func (f *Fresh) Current(ctx context.Context) (models.Position, error) {
	if p, ok := f.cached(); ok {
		return p, nil
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	type result struct {
		pos models.Position
		err error
	}
	ch := make(chan result, 1)
	go func() {
		p, err := f.src.Current(ctx)
		ch <- result{pos: p, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return models.Position{}, fmt.Errorf("%w: %w", ErrUnavailable, ErrTimeout)
			}
			return models.Position{}, fmt.Errorf("%w: %v", ErrUnavailable, r.err)
		}
		f.remember(r.pos)
		return r.pos, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			return models.Position{}, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		}
		return models.Position{}, fmt.Errorf("%w: %w", ErrUnavailable, ErrTimeout)
	}
}

// Watch forwards to the wrapped source, remembering delivered fixes.
func (f *Fresh) Watch(ctx context.Context, onUpdate func(models.Position)) (Subscription, error) {
	return f.src.Watch(ctx, func(p models.Position) {
		f.remember(p)
		onUpdate(p)
	})
}

func (f *Fresh) cached() (models.Position, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil {
		return models.Position{}, false
	}
	if f.clock.Now().Sub(f.last.CapturedAt) > f.maxAge {
		return models.Position{}, false
	}
	return *f.last, true
}

func (f *Fresh) remember(p models.Position) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil || !p.CapturedAt.Before(f.last.CapturedAt) {
		f.last = &p
	}
}
