package position

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"

	nmea "github.com/adrianmo/go-nmea"

	"github.com/yourorg/together/internal/clock"
	"github.com/yourorg/together/internal/models"
)

// uere approximates the user equivalent range error (meters) used to turn
// HDOP into an accuracy radius.
const uere = 5.0

// Opener opens a fresh NMEA stream.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// OpenNMEA returns an Opener for addr: "tcp://host:port" dials a raw NMEA
// feed (gpsd in nmea mode, gpsfake, a phone GPS bridge); anything else is
// treated as a file or serial device path.
func OpenNMEA(addr string) Opener {
	return func(ctx context.Context) (io.ReadCloser, error) {
		if hostport, ok := strings.CutPrefix(addr, "tcp://"); ok {
			var d net.Dialer
			return d.DialContext(ctx, "tcp", hostport)
		}
		return os.Open(addr)
	}
}

// NMEAReader returns an Opener that serves r. The stream can only be consumed once.
func NMEAReader(r io.Reader) Opener {
	var once sync.Once
	return func(context.Context) (io.ReadCloser, error) {
		var rc io.ReadCloser
		once.Do(func() { rc = io.NopCloser(r) })
		if rc == nil {
			return nil, fmt.Errorf("%w: nmea stream already consumed", ErrUnavailable)
		}
		return rc, nil
	}
}

// NMEA is a Source reading RMC and GGA sentences from a GPS stream.
type NMEA struct {
	open   Opener
	opts   WatchOptions
	clock  clock.Clock
	logger *slog.Logger

	mu   sync.Mutex
	hdop float64
}

// NewNMEA builds an NMEA source. Fixes are stamped with the clock's time of receipt.
func NewNMEA(open Opener, opts WatchOptions, clk clock.Clock, logger *slog.Logger) *NMEA {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NMEA{open: open, opts: opts, clock: clk, logger: logger}
}

// Current reads the stream until the first valid fix.
func (n *NMEA) Current(ctx context.Context) (models.Position, error) {
	var (
		fix   models.Position
		found bool
	)
	err := n.consume(ctx, func(p models.Position) bool {
		fix, found = p, true
		return false
	})
	if found {
		return fix, nil
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	return models.Position{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Watch delivers filtered fixes until cancelled or the stream ends.
func (n *NMEA) Watch(ctx context.Context, onUpdate func(models.Position)) (Subscription, error) {
	sub, wctx := newSubscription(ctx)
	filter := NewFilter(n.opts)
	go func() {
		err := n.consume(wctx, func(p models.Position) bool {
			if filter.Accept(p) {
				onUpdate(p)
			}
			return true
		})
		switch {
		case wctx.Err() != nil:
		case err != nil:
			n.logger.Warn("nmea watch ended", "error", err)
		default:
			n.logger.Warn("nmea stream ended")
		}
	}()
	return sub, nil
}

// consume opens the stream and calls fn for every fix until fn returns false,
// ctx is done or the stream fails.
func (n *NMEA) consume(ctx context.Context, fn func(models.Position) bool) error {
	rc, err := n.open(ctx)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { rc.Close() })
	defer func() {
		if stop() {
			rc.Close()
		}
	}()

	scanner := bufio.NewScanner(rc)
	for scanner.Scan() {
		p, ok := n.parse(scanner.Text())
		if !ok {
			continue
		}
		if !fn(p) {
			return nil
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return scanner.Err()
}

func (n *NMEA) parse(line string) (models.Position, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return models.Position{}, false
	}
	s, err := nmea.Parse(line)
	if err != nil {
		n.logger.Debug("skipping nmea sentence", "error", err)
		return models.Position{}, false
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	var lat, lon float64
	switch v := s.(type) {
	case nmea.GGA:
		if v.FixQuality == nmea.Invalid {
			return models.Position{}, false
		}
		n.hdop = v.HDOP
		lat, lon = v.Latitude, v.Longitude
	case nmea.RMC:
		if v.Validity != nmea.ValidRMC {
			return models.Position{}, false
		}
		lat, lon = v.Latitude, v.Longitude
	default:
		return models.Position{}, false
	}

	p := models.Position{Latitude: lat, Longitude: lon, CapturedAt: n.clock.Now()}
	if n.hdop > 0 {
		p.Accuracy = models.Float64(n.hdop * uere)
	}
	return p, true
}
