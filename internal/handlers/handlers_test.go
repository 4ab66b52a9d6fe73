package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourorg/together/internal/auth"
	"github.com/yourorg/together/internal/cache"
	"github.com/yourorg/together/internal/middleware"
	"github.com/yourorg/together/internal/models"
)

const testSecret = "0123456789abcdef0123456789abcdef"

var testNow = time.Date(2024, 2, 14, 19, 30, 0, 0, time.UTC)

type fakePublisher struct {
	mu     sync.Mutex
	events map[int64][]models.LiveEvent
}

func (f *fakePublisher) Publish(userID int64, ev models.LiveEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.events == nil {
		f.events = make(map[int64][]models.LiveEvent)
	}
	f.events[userID] = append(f.events[userID], ev)
}

func (f *fakePublisher) sent(userID int64) []models.LiveEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.LiveEvent(nil), f.events[userID]...)
}

type harness struct {
	app      *fiber.App
	mock     sqlmock.Sqlmock
	issuer   *auth.Issuer
	presence *cache.MemoryPresence
	live     *fakePublisher
	shares   *LocationShareHandler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	issuer, err := auth.NewIssuer(testSecret, time.Hour)
	require.NoError(t, err)

	presence := cache.NewMemoryPresence(time.Minute)
	t.Cleanup(func() { presence.Close() })

	live := &fakePublisher{}
	shares := NewLocationShareHandler(db, presence, live)
	shares.now = func() time.Time { return testNow }
	authH := NewAuthHandler(db, issuer)
	authH.cost = bcrypt.MinCost

	app := fiber.New()
	requireAuth := middleware.RequireAuth(issuer)
	app.Post("/api/register", authH.Register)
	app.Post("/api/login", authH.Login)
	app.Post("/api/partner/pair", requireAuth, authH.Pair)
	app.Get("/api/partner/info", requireAuth, shares.PartnerInfo)
	app.Get("/api/location/status", requireAuth, shares.Status)
	app.Post("/api/location/start", requireAuth, shares.Start)
	app.Post("/api/location/stop", requireAuth, shares.Stop)
	app.Post("/api/location/update", requireAuth, shares.Update)

	return &harness{app: app, mock: mock, issuer: issuer, presence: presence, live: live, shares: shares}
}

// do sends body as JSON, authenticated as userID when it is not zero, and
// decodes the response into out.
func (h *harness) do(t *testing.T, method, path string, userID int64, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		token, _, err := h.issuer.Issue(userID, "user")
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (h *harness) post(t *testing.T, path string, userID int64, body, out any) int {
	return h.do(t, http.MethodPost, path, userID, body, out)
}

func (h *harness) get(t *testing.T, path string, userID int64, out any) int {
	return h.do(t, http.MethodGet, path, userID, nil, out)
}

var shareCols = []string{
	"id", "user_id", "latitude", "longitude", "accuracy", "duration_minutes",
	"created_at", "expires_at", "stopped_at", "is_active", "last_updated_at",
}

func shareRow(userID int64, lat, lon float64, minutes int, startedAgo time.Duration) *sqlmock.Rows {
	created := testNow.Add(-startedAgo)
	return sqlmock.NewRows(shareCols).AddRow(
		"c0ffee00-0000-4000-8000-000000000001", userID, lat, lon, 12.0, minutes,
		created, created.Add(time.Duration(minutes)*time.Minute), nil, true, testNow.Add(-10*time.Second),
	)
}

func partnerRow(partnerID any) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"partner_id"}).AddRow(partnerID)
}
