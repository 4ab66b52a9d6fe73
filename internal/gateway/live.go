package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/yourorg/together/internal/models"
)

// Live is an open connection to the partner live feed.
type Live struct {
	conn *websocket.Conn
}

// liveURL turns the REST base URL into the websocket feed URL.
func liveURL(baseURL, token string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws/live"
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// DialLive opens the partner feed with the client's token.
func (c *Client) DialLive(ctx context.Context) (*Live, error) {
	target, err := liveURL(c.baseURL, c.Token())
	if err != nil {
		return nil, err
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial live feed: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial live feed: %w", err)
	}
	return &Live{conn: conn}, nil
}

// Next blocks for the next event.
func (l *Live) Next() (models.LiveEvent, error) {
	var ev models.LiveEvent
	if err := l.conn.ReadJSON(&ev); err != nil {
		return models.LiveEvent{}, err
	}
	return ev, nil
}

// Run calls fn for every event until ctx is done or the connection drops.
// A cancelled ctx is not reported as an error.
func (l *Live) Run(ctx context.Context, fn func(models.LiveEvent)) error {
	stop := context.AfterFunc(ctx, func() { l.conn.Close() })
	defer stop()
	for {
		ev, err := l.Next()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return fmt.Errorf("live feed closed: %s", closeErr.Text)
			}
			return fmt.Errorf("read live feed: %w", err)
		}
		fn(ev)
	}
}

// Close sends a close frame and releases the connection.
func (l *Live) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
	_ = l.conn.WriteMessage(websocket.CloseMessage, msg)
	return l.conn.Close()
}
