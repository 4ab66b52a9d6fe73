package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually advanced Clock. Ticks are delivered synchronously: Advance
// blocks until every due tick has been received by its consumer or the ticker
// has been stopped, so a test observes each tick exactly once.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	seq     int
	tickers []*fakeTicker
}

// NewFake returns a Fake clock set to start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker period")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	t := &fakeTicker{
		seq:    f.seq,
		period: d,
		next:   f.now.Add(d),
		ch:     make(chan time.Time),
		done:   make(chan struct{}),
	}
	f.tickers = append(f.tickers, t)
	return t
}

// Advance moves the clock forward by d, firing every tick that falls due in
// order. It returns the number of ticks that were received.
func (f *Fake) Advance(d time.Duration) int {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	delivered := 0
	for {
		t, at, ok := f.nextDue(target)
		if !ok {
			break
		}
		select {
		case t.ch <- at:
			delivered++
		case <-t.done:
		}
	}

	f.mu.Lock()
	if f.now.Before(target) {
		f.now = target
	}
	f.mu.Unlock()
	return delivered
}

// Tickers returns how many live tickers with period d exist.
func (f *Fake) Tickers(d time.Duration) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tickers {
		if t.period == d && !t.stopped() {
			n++
		}
	}
	return n
}

// nextDue picks the earliest live ticker due at or before target, moves the
// clock to its deadline and schedules its following tick.
func (f *Fake) nextDue(target time.Time) (*fakeTicker, time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	live := f.tickers[:0]
	for _, t := range f.tickers {
		if !t.stopped() {
			live = append(live, t)
		}
	}
	f.tickers = live
	if len(live) == 0 {
		return nil, time.Time{}, false
	}

	due := make([]*fakeTicker, len(live))
	copy(due, live)
	sort.Slice(due, func(i, j int) bool {
		if due[i].next.Equal(due[j].next) {
			return due[i].seq < due[j].seq
		}
		return due[i].next.Before(due[j].next)
	})
	t := due[0]
	if t.next.After(target) {
		return nil, time.Time{}, false
	}
	at := t.next
	f.now = at
	t.next = t.next.Add(t.period)
	return t, at, true
}

type fakeTicker struct {
	seq    int
	period time.Duration
	next   time.Time
	ch     chan time.Time
	done   chan struct{}
	once   sync.Once
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.once.Do(func() { close(t.done) })
}

func (t *fakeTicker) stopped() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}
