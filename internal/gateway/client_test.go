package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/together/internal/clock"
	"github.com/yourorg/together/internal/models"
	"github.com/yourorg/together/internal/sharing"
)

var epoch = time.Date(2024, 2, 14, 19, 30, 0, 0, time.UTC)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestStartSharingSendsRequest(t *testing.T) {
	var got models.StartSharingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/location/start", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, models.StartSharingResponse{
			Envelope: models.Envelope{Success: true},
			Session:  &models.SessionInfo{ID: "abc", StartTime: epoch, Duration: got.Duration, TimeRemaining: got.Duration * 60},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret", time.Second)
	pos := models.Position{Latitude: -33.45, Longitude: -70.66, Accuracy: models.Float64(5), CapturedAt: epoch}
	info, err := c.StartSharing(context.Background(), 30, pos)
	require.NoError(t, err)

	assert.Equal(t, "abc", info.ID)
	assert.Equal(t, 1800, info.TimeRemaining)
	assert.Equal(t, 30, got.Duration)
	require.NotNil(t, got.InitialLocation)
	assert.Equal(t, -33.45, got.InitialLocation.Latitude)
	assert.Equal(t, 5.0, got.InitialLocation.AccuracyMeters())
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name: "rejected",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusConflict, models.Fail("ya estás compartiendo ubicación"))
			},
			want: sharing.ErrGatewayRejected,
		},
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusUnauthorized, models.Fail("token inválido"))
			},
			want: sharing.ErrGatewayRejected,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusInternalServerError, models.Fail("db down"))
			},
			want: sharing.ErrGatewayUnreachable,
		},
		{
			name: "not json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("<html>proxy error</html>"))
			},
			want: sharing.ErrGatewayUnreachable,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			err := NewClient(srv.URL, "t", time.Second).StopSharing(context.Background())
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, "t", time.Second).FetchStatus(context.Background())
	assert.ErrorIs(t, err, sharing.ErrGatewayUnreachable)
}

func TestFetchStatusMapsResponse(t *testing.T) {
	start := epoch.Add(-5 * time.Minute)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/location/status", r.URL.Path)
		writeJSON(w, http.StatusOK, models.StatusResponse{
			Envelope:        models.Envelope{Success: true},
			Status:          &models.SharingStatus{IsSharing: true, StartTime: &start, Duration: 15, TimeRemaining: 600},
			PartnerLocation: &models.Position{Latitude: 37.77, Longitude: -122.41, CapturedAt: epoch},
		})
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL, "t", time.Second).FetchStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Sharing.IsSharing)
	assert.Equal(t, 600, res.Sharing.TimeRemaining)
	require.NotNil(t, res.Sharing.StartTime)
	assert.True(t, res.Sharing.StartTime.Equal(start))
	require.NotNil(t, res.PartnerPosition)
	assert.Equal(t, 37.77, res.PartnerPosition.Latitude)
	assert.Nil(t, res.UserPosition)
}

func TestPartnerInfoWithoutPartner(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.PartnerResponse{Envelope: models.Envelope{Success: true}})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "t", time.Second).PartnerInfo(context.Background())
	assert.ErrorIs(t, err, sharing.ErrGatewayRejected)
}

func TestLoginStoresToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req models.LoginRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Password != "hunter22" {
			writeJSON(w, http.StatusUnauthorized, models.Fail("credenciales inválidas"))
			return
		}
		assert.Empty(t, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, models.LoginResponse{
			Success: true,
			Token:   "jwt-token",
			User:    models.UserDTO{ID: 1, Username: req.Username},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	_, err := c.Login(context.Background(), "martina", "wrong")
	require.ErrorIs(t, err, sharing.ErrGatewayRejected)
	assert.Empty(t, c.Token())

	resp, err := c.Login(context.Background(), "martina", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, "martina", resp.User.Username)
	assert.Equal(t, "jwt-token", c.Token())
}

func TestLiveURL(t *testing.T) {
	u, err := liveURL("https://api.example.com/", "a b")
	require.NoError(t, err)
	assert.Equal(t, "wss://api.example.com/ws/live?token=a+b", u)

	u, err = liveURL("http://localhost:8080", "tok")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/ws/live?token=tok", u)
}

func TestLiveFeedDeliversEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws/live", r.URL.Path)
		assert.Equal(t, "tok", r.URL.Query().Get("token"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()
		for i := 0; i < 2; i++ {
			_ = conn.WriteJSON(models.LiveEvent{
				Type:     models.LiveLocation,
				UserID:   2,
				Position: &models.Position{Latitude: float64(i), CapturedAt: epoch},
				At:       epoch,
			})
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", time.Second)
	live, err := c.DialLive(context.Background())
	require.NoError(t, err)
	defer live.Close()

	var got []models.LiveEvent
	err = live.Run(context.Background(), func(ev models.LiveEvent) { got = append(got, ev) })
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.LiveLocation, got[1].Type)
	assert.Equal(t, 1.0, got[1].Position.Latitude)
}

func TestDemoLifecycle(t *testing.T) {
	clk := clock.NewFake(epoch)
	d := NewDemo(clk, 0)
	ctx := context.Background()
	pos := models.Position{Latitude: 37.78, Longitude: -122.43, CapturedAt: epoch}

	info, err := d.StartSharing(ctx, 15, pos)
	require.NoError(t, err)
	assert.Equal(t, 900, info.TimeRemaining)
	assert.NotEmpty(t, info.ID)

	_, err = d.StartSharing(ctx, 15, pos)
	assert.ErrorIs(t, err, sharing.ErrGatewayRejected)

	clk.Advance(5 * time.Minute)
	status, err := d.FetchStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.Sharing.IsSharing)
	assert.Equal(t, 600, status.Sharing.TimeRemaining)
	assert.Equal(t, info.ID, status.Sharing.ID)
	require.NotNil(t, status.PartnerPosition)
	assert.True(t, status.PartnerPosition.CapturedAt.Equal(epoch.Add(5*time.Minute)))

	require.NoError(t, d.StopSharing(ctx))
	assert.NoError(t, d.StopSharing(ctx), "stopping twice succeeds")
	assert.ErrorIs(t, d.UpdateLocation(ctx, pos), sharing.ErrGatewayRejected)
}

func TestDemoExpires(t *testing.T) {
	clk := clock.NewFake(epoch)
	d := NewDemo(clk, 0)
	ctx := context.Background()

	_, err := d.StartSharing(ctx, 15, models.Position{CapturedAt: epoch})
	require.NoError(t, err)
	clk.Advance(15 * time.Minute)

	status, err := d.FetchStatus(ctx)
	require.NoError(t, err)
	assert.False(t, status.Sharing.IsSharing)

	partner, err := d.PartnerInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Alex", partner.Username)
	assert.True(t, partner.Online)
}

func TestDemoStopAfterExpiry(t *testing.T) {
	clk := clock.NewFake(epoch)
	d := NewDemo(clk, 0)
	ctx := context.Background()

	_, err := d.StartSharing(ctx, 15, models.Position{CapturedAt: epoch})
	require.NoError(t, err)
	clk.Advance(15*time.Minute + time.Second)

	assert.NoError(t, d.StopSharing(ctx))
	status, err := d.FetchStatus(ctx)
	require.NoError(t, err)
	assert.False(t, status.Sharing.IsSharing)
}

func TestDemoHonoursCancellation(t *testing.T) {
	d := NewDemo(nil, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.FetchStatus(ctx)
	assert.ErrorIs(t, err, sharing.ErrGatewayUnreachable)
}
