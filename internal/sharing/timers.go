package sharing

import (
	"context"

	"github.com/yourorg/together/internal/clock"
	"github.com/yourorg/together/internal/position"
)

// timerSet is everything that runs on behalf of a live session. It is owned
// by the event loop and torn down as one unit.
type timerSet struct {
	countdown clock.Ticker
	poll      clock.Ticker
	watch     position.Subscription

	// ctx scopes background gateway calls of the session.
	ctx    context.Context
	cancel context.CancelFunc

	polling bool
}

func (t *timerSet) stop() {
	t.countdown.Stop()
	t.poll.Stop()
	if t.watch != nil {
		t.watch.Cancel()
	}
	t.cancel()
}
