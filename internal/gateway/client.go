// Package gateway implements the remote session gateway consumed by the
// sharing controller: a REST client for the together server, a live partner
// feed over websocket and an explicit in-memory demo mode.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/yourorg/together/internal/models"
	"github.com/yourorg/together/internal/sharing"
)

// DefaultTimeout bounds a single REST call.
const DefaultTimeout = 15 * time.Second

const maxBody = 1 << 20

var _ sharing.Gateway = (*Client)(nil)

// Client talks to the together REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

// NewClient creates a client for baseURL (e.g. http://localhost:8080).
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		token:      token,
	}
}

// SetToken replaces the bearer credential.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current bearer credential.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) StartSharing(ctx context.Context, minutes int, pos models.Position) (models.SessionInfo, error) {
	var resp models.StartSharingResponse
	req := models.StartSharingRequest{Duration: minutes, InitialLocation: &pos}
	if err := c.do(ctx, http.MethodPost, "/api/location/start", req, &resp); err != nil {
		return models.SessionInfo{}, err
	}
	if resp.Session == nil {
		return models.SessionInfo{}, fmt.Errorf("%w: response without session", sharing.ErrGatewayRejected)
	}
	return *resp.Session, nil
}

func (c *Client) StopSharing(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/location/stop", nil, nil)
}

func (c *Client) UpdateLocation(ctx context.Context, pos models.Position) error {
	return c.do(ctx, http.MethodPost, "/api/location/update", pos, nil)
}

func (c *Client) FetchStatus(ctx context.Context) (models.StatusResult, error) {
	var resp models.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/location/status", nil, &resp); err != nil {
		return models.StatusResult{}, err
	}
	result := models.StatusResult{
		UserPosition:    resp.UserLocation,
		PartnerPosition: resp.PartnerLocation,
	}
	if resp.Status != nil {
		result.Sharing = *resp.Status
	}
	return result, nil
}

func (c *Client) PartnerInfo(ctx context.Context) (models.PartnerPresence, error) {
	var resp models.PartnerResponse
	if err := c.do(ctx, http.MethodGet, "/api/partner/info", nil, &resp); err != nil {
		return models.PartnerPresence{}, err
	}
	if resp.Partner == nil {
		return models.PartnerPresence{}, fmt.Errorf("%w: no partner linked", sharing.ErrGatewayRejected)
	}
	return *resp.Partner, nil
}

// Login authenticates and stores the returned token on the client.
func (c *Client) Login(ctx context.Context, username, password string) (models.LoginResponse, error) {
	var resp models.LoginResponse
	req := models.LoginRequest{Username: username, Password: password}
	if err := c.do(ctx, http.MethodPost, "/api/login", req, &resp); err != nil {
		return models.LoginResponse{}, err
	}
	c.SetToken(resp.Token)
	return resp, nil
}

// Pair links the authenticated user with partnerUsername.
func (c *Client) Pair(ctx context.Context, partnerUsername string) error {
	return c.do(ctx, http.MethodPost, "/api/partner/pair", models.PairRequest{PartnerUsername: partnerUsername}, nil)
}

// Health checks that the server answers and reports itself healthy.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", sharing.ErrGatewayUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check returned %d", sharing.ErrGatewayUnreachable, resp.StatusCode)
	}
	return nil
}

// do sends body as JSON and decodes the response into out when it is not
// nil. A false success flag is reported as ErrGatewayRejected.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", sharing.ErrGatewayUnreachable, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", sharing.ErrGatewayUnreachable, path, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %s %s returned %d", sharing.ErrGatewayUnreachable, method, path, resp.StatusCode)
	}
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("%w: %s %s returned %d with undecodable body: %v",
			sharing.ErrGatewayUnreachable, method, path, resp.StatusCode, err)
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%w: %s (%d)", sharing.ErrGatewayRejected, msg, resp.StatusCode)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("%w: decode %s: %v", sharing.ErrGatewayUnreachable, path, err)
		}
	}
	return nil
}
