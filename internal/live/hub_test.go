package live

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/together/internal/models"
)

type fakeConn struct {
	mu       sync.Mutex
	written  [][]byte
	closed   bool
	failing  bool
	closedCh chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{closedCh: make(chan struct{})}
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("broken pipe")
	}
	f.written = append(f.written, data)
	return nil
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.closedCh
	return 0, nil, errors.New("closed")
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.closedCh)
	}
	return nil
}

func (f *fakeConn) messages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.written...)
}

func TestHubRoutesEventsPerUser(t *testing.T) {
	h := NewHub()
	defer h.Stop()

	alice, bob := newFakeConn(), newFakeConn()
	go h.Serve(1, alice)
	go h.Serve(2, bob)
	require.Eventually(t, func() bool { return h.Connected(1) == 1 && h.Connected(2) == 1 }, time.Second, time.Millisecond)

	ev := models.LiveEvent{Type: models.LiveLocation, UserID: 2, Position: &models.Position{Latitude: 1.5}}
	assert.Equal(t, 1, h.publishSync(1, ev))

	msgs := alice.messages()
	require.Len(t, msgs, 1)
	var got models.LiveEvent
	require.NoError(t, json.Unmarshal(msgs[0], &got))
	assert.Equal(t, int64(2), got.UserID)
	assert.Equal(t, 1.5, got.Position.Latitude)
	assert.Empty(t, bob.messages())
}

func TestHubDropsBrokenConnections(t *testing.T) {
	h := NewHub()
	defer h.Stop()

	good, bad := newFakeConn(), newFakeConn()
	bad.failing = true
	go h.Serve(1, good)
	go h.Serve(1, bad)
	require.Eventually(t, func() bool { return h.Connected(1) == 2 }, time.Second, time.Millisecond)

	assert.Equal(t, 1, h.publishSync(1, models.LiveEvent{Type: models.LiveSharingStarted}))
	assert.Equal(t, 1, h.Connected(1))
}

func TestHubUnregistersOnClientClose(t *testing.T) {
	h := NewHub()
	defer h.Stop()

	conn := newFakeConn()
	done := make(chan struct{})
	go func() {
		h.Serve(3, conn)
		close(done)
	}()
	require.Eventually(t, func() bool { return h.Connected(3) == 1 }, time.Second, time.Millisecond)

	conn.Close()
	<-done
	require.Eventually(t, func() bool { return h.Connected(3) == 0 }, time.Second, time.Millisecond)

	// sin conexiones Publish no hace nada
	h.Publish(3, models.LiveEvent{Type: models.LiveLocation})
}

func TestHubStopClosesConnections(t *testing.T) {
	h := NewHub()
	conn := newFakeConn()
	go h.Serve(4, conn)
	require.Eventually(t, func() bool { return h.Connected(4) == 1 }, time.Second, time.Millisecond)

	h.Stop()
	h.Stop()
	require.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return conn.closed
	}, time.Second, time.Millisecond)
}
