// Package sharing implements the location sharing session controller: a
// state machine that starts, stops and expires bounded sharing sessions
// while coordinating a countdown, a status poller and a position watch.
//
// All session state is owned by a single goroutine. Public methods submit
// work to it and gateway or position calls run outside of it, so ticks keep
// flowing while a request is in flight.
package sharing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yourorg/together/internal/clock"
	"github.com/yourorg/together/internal/models"
	"github.com/yourorg/together/internal/position"
)

const (
	// DefaultPollInterval is how often the server status is reconciled while active.
	DefaultPollInterval = 60 * time.Second
	// CountdownInterval is the countdown resolution.
	CountdownInterval = time.Second

	eventBuffer  = 32
	actionBuffer = 64
)

// Config tunes a Controller. Zero values select the defaults.
type Config struct {
	PollInterval time.Duration
	Clock        clock.Clock
	Logger       *slog.Logger
}

// Controller drives the sharing session lifecycle.
type Controller struct {
	gate         PermissionGate
	source       position.Source
	gateway      Gateway
	clock        clock.Clock
	logger       *slog.Logger
	pollInterval time.Duration

	actions   chan func()
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	// owned by the loop
	state   State
	session Session
	gen     uint64
	timers  *timerSet
	lastPos *models.Position
	partner *models.PartnerPresence
	subs    map[int]chan Event
	nextSub int
}

// NewController starts the controller loop. Close releases it.
func NewController(gate PermissionGate, source position.Source, gateway Gateway, cfg Config) *Controller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	c := &Controller{
		gate:         gate,
		source:       source,
		gateway:      gateway,
		clock:        cfg.Clock,
		logger:       cfg.Logger.With("component", "sharing"),
		pollInterval: cfg.PollInterval,
		actions:      make(chan func(), actionBuffer),
		done:         make(chan struct{}),
		stopped:      make(chan struct{}),
		subs:         make(map[int]chan Event),
	}
	go c.run()
	return c
}

// Close stops the loop and waits for background calls to return. A live
// session is left running on the server so Resume can pick it up later.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	<-c.stopped
	c.wg.Wait()
	return nil
}

// Subscribe returns a channel of events and a function that releases it.
// Events are dropped for subscribers that do not keep up, except terminal
// ones, which evict buffered non-terminal events instead. The channel is
// closed on unsubscribe or Close.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, eventBuffer)
	var id int
	err := c.call(func() error {
		id = c.nextSub
		c.nextSub++
		c.subs[id] = ch
		return nil
	})
	if err != nil {
		close(ch)
		return ch, func() {}
	}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			_ = c.call(func() error {
				if _, ok := c.subs[id]; ok {
					delete(c.subs, id)
					close(ch)
				}
				return nil
			})
		})
	}
}

// Snapshot returns a copy of the current state. After Close it returns the zero Snapshot.
func (c *Controller) Snapshot() Snapshot {
	var snap Snapshot
	_ = c.call(func() error {
		snap = Snapshot{State: c.state, Session: c.session}
		if c.lastPos != nil {
			p := *c.lastPos
			snap.LastPosition = &p
		}
		if c.partner != nil {
			p := *c.partner
			snap.Partner = &p
		}
		return nil
	})
	return snap
}

// Start begins a session of the given length. It only succeeds from Idle;
// any failure leaves the controller Idle with no session.
func (c *Controller) Start(ctx context.Context, minutes int) error {
	if minutes <= 0 {
		return ErrInvalidDuration
	}
	if err := c.call(func() error {
		if c.state != Idle {
			return ErrBusy
		}
		c.setState(Requesting)
		return nil
	}); err != nil {
		return err
	}

	info, pos, err := c.requestStart(ctx, minutes)
	if err != nil {
		_ = c.call(func() error {
			c.setState(Idle)
			c.emit(Event{Type: EventError, Err: err})
			return nil
		})
		return err
	}

	return c.call(func() error {
		c.activate(Session{
			ID:               info.ID,
			DurationMinutes:  minutes,
			RemainingSeconds: minutes * 60,
		}, &pos)
		return nil
	})
}

func (c *Controller) requestStart(ctx context.Context, minutes int) (models.SessionInfo, models.Position, error) {
	if err := c.ensurePermission(ctx); err != nil {
		return models.SessionInfo{}, models.Position{}, err
	}
	pos, err := c.source.Current(ctx)
	if err != nil {
		return models.SessionInfo{}, models.Position{}, fmt.Errorf("%w: %w", ErrPositionUnavailable, err)
	}
	info, err := c.gateway.StartSharing(ctx, minutes, pos)
	if err != nil {
		return models.SessionInfo{}, models.Position{}, fmt.Errorf("start sharing: %w", err)
	}
	return info, pos, nil
}

func (c *Controller) ensurePermission(ctx context.Context) error {
	granted, err := c.gate.EnsurePermission(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	if !granted {
		return ErrPermissionDenied
	}
	return nil
}

// Stop ends the active session. On gateway failure the session stays Active
// and the error is returned so the caller can retry.
func (c *Controller) Stop(ctx context.Context) error {
	var gen uint64
	if err := c.call(func() error {
		switch c.state {
		case Active:
		case Requesting, Stopping:
			return ErrBusy
		default:
			return ErrNotActive
		}
		gen = c.gen
		c.setState(Stopping)
		return nil
	}); err != nil {
		return err
	}

	stopErr := c.gateway.StopSharing(ctx)

	return c.call(func() error {
		// expired while the request was in flight
		if c.gen != gen || c.state != Stopping {
			return nil
		}
		if stopErr != nil {
			err := fmt.Errorf("stop sharing: %w", stopErr)
			c.setState(Active)
			c.emit(Event{Type: EventError, Err: err})
			return err
		}
		c.end(EventStopped)
		return nil
	})
}

// Resume restores a session the server still considers live, for example
// after a restart. It reports whether a session was resumed.
func (c *Controller) Resume(ctx context.Context) (bool, error) {
	if err := c.call(func() error {
		if c.state != Idle {
			return ErrBusy
		}
		c.setState(Requesting)
		return nil
	}); err != nil {
		return false, err
	}

	sess, pos, err := c.requestResume(ctx)
	if err != nil || sess == nil {
		_ = c.call(func() error {
			c.setState(Idle)
			if err != nil {
				c.emit(Event{Type: EventError, Err: err})
			}
			return nil
		})
		return false, err
	}

	if err := c.call(func() error {
		c.activate(*sess, pos)
		return nil
	}); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Controller) requestResume(ctx context.Context) (*Session, *models.Position, error) {
	status, err := c.gateway.FetchStatus(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch status: %w", err)
	}
	if !status.Sharing.IsSharing || status.Sharing.TimeRemaining <= 0 {
		return nil, nil, nil
	}
	if err := c.ensurePermission(ctx); err != nil {
		return nil, nil, err
	}
	sess := &Session{
		ID:               status.Sharing.ID,
		DurationMinutes:  status.Sharing.Duration,
		RemainingSeconds: status.Sharing.TimeRemaining,
	}
	if sess.DurationMinutes <= 0 {
		sess.DurationMinutes = (sess.RemainingSeconds + 59) / 60
	}
	if status.Sharing.StartTime != nil {
		sess.StartedAt = *status.Sharing.StartTime
	}
	return sess, status.UserPosition, nil
}

// RefreshPartner fetches the partner presence. It never changes the session.
func (c *Controller) RefreshPartner(ctx context.Context) (models.PartnerPresence, error) {
	p, err := c.gateway.PartnerInfo(ctx)
	if err != nil {
		return models.PartnerPresence{}, fmt.Errorf("partner info: %w", err)
	}
	if err := c.call(func() error {
		c.setPartner(p)
		return nil
	}); err != nil {
		return models.PartnerPresence{}, err
	}
	return p, nil
}

// ==================== loop ====================

func (c *Controller) run() {
	defer close(c.stopped)
	for {
		var tickC, pollC <-chan time.Time
		if c.timers != nil {
			tickC = c.timers.countdown.C()
			pollC = c.timers.poll.C()
		}
		select {
		case <-c.done:
			c.shutdown()
			return
		case fn := <-c.actions:
			fn()
		case <-tickC:
			c.tick()
		case <-pollC:
			c.pollStatus()
		}
	}
}

func (c *Controller) shutdown() {
	if c.timers != nil {
		c.timers.stop()
		c.timers = nil
	}
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}

// call runs fn on the loop and waits for its result.
func (c *Controller) call(fn func() error) error {
	errc := make(chan error, 1)
	select {
	case c.actions <- func() { errc <- fn() }:
	case <-c.done:
		return ErrClosed
	}
	select {
	case err := <-errc:
		return err
	case <-c.stopped:
		select {
		case err := <-errc:
			return err
		default:
			return ErrClosed
		}
	}
}

// post queues fn on the loop without waiting for it to run.
func (c *Controller) post(fn func()) {
	select {
	case c.actions <- fn:
	case <-c.done:
	}
}

func (c *Controller) background(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}

func (c *Controller) activate(sess Session, pos *models.Position) {
	if c.timers != nil {
		c.timers.stop()
	}
	c.gen++
	gen := c.gen

	sess.Active = true
	if sess.StartedAt.IsZero() {
		sess.StartedAt = c.clock.Now()
	}
	c.session = sess
	c.lastPos = pos

	ctx, cancel := context.WithCancel(context.Background())
	ts := &timerSet{
		countdown: c.clock.NewTicker(CountdownInterval),
		poll:      c.clock.NewTicker(c.pollInterval),
		ctx:       ctx,
		cancel:    cancel,
	}
	sub, err := c.source.Watch(ctx, func(p models.Position) {
		c.post(func() { c.handlePosition(gen, p) })
	})
	if err != nil {
		c.logger.Warn("position watch failed, sharing without live updates", "error", err)
	} else {
		ts.watch = sub
	}
	c.timers = ts

	c.setState(Active)
	c.emit(Event{Type: EventStarted, Position: pos})
	c.logger.Info("sharing started",
		"session", sess.ID,
		"duration_minutes", sess.DurationMinutes,
		"remaining_seconds", sess.RemainingSeconds)
}

// end tears down the timer set and clears the session.
func (c *Controller) end(kind EventType) {
	if c.timers != nil {
		c.timers.stop()
		c.timers = nil
	}
	id := c.session.ID
	c.session = Session{}
	c.lastPos = nil
	c.setState(Idle)
	c.emit(Event{Type: kind})
	c.logger.Info("sharing ended", "session", id, "reason", kind.String())
}

func (c *Controller) tick() {
	if c.timers == nil {
		return
	}
	if c.session.RemainingSeconds > 0 {
		c.session.RemainingSeconds--
	}
	if c.session.RemainingSeconds == 0 {
		c.end(EventExpired)
	}
}

func (c *Controller) handlePosition(gen uint64, p models.Position) {
	if c.state != Active || gen != c.gen {
		return
	}
	if c.lastPos != nil && p.CapturedAt.Before(c.lastPos.CapturedAt) {
		c.logger.Debug("dropping out of order position", "captured_at", p.CapturedAt)
		return
	}
	c.lastPos = &p
	c.emit(Event{Type: EventPosition, Position: &p})

	ctx := c.timers.ctx
	c.background(func() {
		if err := c.gateway.UpdateLocation(ctx, p); err != nil && ctx.Err() == nil {
			c.logger.Warn("location update failed", "error", err)
		}
	})
}

func (c *Controller) pollStatus() {
	ts := c.timers
	if ts == nil || c.state != Active || ts.polling {
		return
	}
	ts.polling = true
	gen := c.gen
	ctx := ts.ctx
	c.background(func() {
		status, err := c.gateway.FetchStatus(ctx)
		c.post(func() { c.reconcile(gen, status, err) })
	})
}

// reconcile applies a status poll. The server is authoritative.
func (c *Controller) reconcile(gen uint64, status models.StatusResult, err error) {
	if gen != c.gen || c.timers == nil {
		return
	}
	c.timers.polling = false
	if err != nil {
		c.logger.Warn("status poll failed", "error", err)
		return
	}
	if c.state != Active {
		return
	}

	if status.PartnerPosition != nil {
		p := models.PartnerPresence{}
		if c.partner != nil {
			p = *c.partner
		}
		loc := *status.PartnerPosition
		p.LastLocation = &loc
		p.Online = true
		c.setPartner(p)
	}

	if !status.Sharing.IsSharing {
		c.end(EventEndedRemotely)
		return
	}
	if remaining := status.Sharing.TimeRemaining; remaining != c.session.RemainingSeconds {
		if remaining <= 0 {
			c.end(EventExpired)
			return
		}
		c.logger.Debug("countdown corrected by server",
			"local", c.session.RemainingSeconds, "server", remaining)
		c.session.RemainingSeconds = remaining
	}
	c.emit(Event{Type: EventSynced})
}

func (c *Controller) setPartner(p models.PartnerPresence) {
	c.partner = &p
	cp := p
	c.emit(Event{Type: EventPartner, Partner: &cp})
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.emit(Event{Type: EventStateChanged})
}

func (c *Controller) emit(ev Event) {
	ev.State = c.state
	ev.Session = c.session
	ev.At = c.clock.Now()
	for _, ch := range c.subs {
		select {
		case ch <- ev:
			continue
		default:
		}
		if !ev.Type.Terminal() {
			c.logger.Warn("dropping sharing event for slow subscriber", "type", ev.Type.String())
			continue
		}
		c.makeRoom(ch)
		select {
		case ch <- ev:
		default:
			c.logger.Error("subscriber full of lifecycle events", "type", ev.Type.String())
		}
	}
}

// makeRoom discards the buffered non-terminal events of ch, keeping the
// terminal ones in order. Only the loop sends on ch, so the re-sends fit.
func (c *Controller) makeRoom(ch chan Event) {
	kept := make([]Event, 0, len(ch))
	dropped := 0
drain:
	for {
		select {
		case old := <-ch:
			if old.Type.Terminal() {
				kept = append(kept, old)
			} else {
				dropped++
			}
		default:
			break drain
		}
	}
	for _, old := range kept {
		ch <- old
	}
	c.logger.Warn("dropped buffered events for slow subscriber", "dropped", dropped)
}
