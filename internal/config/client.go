package config

import (
	"strings"
	"time"
)

// Gateway modes.
const (
	GatewayHTTP = "http"
	GatewayDemo = "demo"
)

// Position sources.
const (
	SourceSimulator = "sim"
	SourceNMEA      = "nmea"
)

// Client holds the settings of cmd/cli.
type Client struct {
	APIBaseURL string
	APIToken   string
	// GatewayMode is "http" or "demo". Demo is never chosen implicitly.
	GatewayMode string

	PositionSource  string
	NMEASource      string
	SimOriginLat    float64
	SimOriginLon    float64
	PollInterval    time.Duration
	PositionTimeout time.Duration
	PositionMaxAge  time.Duration
	RequestTimeout  time.Duration
}

// LoadClient reads the client settings.
func LoadClient() Client {
	return Client{
		APIBaseURL:      GetEnv("API_BASE_URL", "http://localhost:8080"),
		APIToken:        GetEnv("API_TOKEN", ""),
		GatewayMode:     strings.ToLower(GetEnv("GATEWAY_MODE", GatewayHTTP)),
		PositionSource:  strings.ToLower(GetEnv("POSITION_SOURCE", SourceSimulator)),
		NMEASource:      GetEnv("NMEA_SOURCE", "tcp://localhost:10110"),
		SimOriginLat:    GetEnvAsFloat("SIM_ORIGIN_LAT", 37.78825),
		SimOriginLon:    GetEnvAsFloat("SIM_ORIGIN_LON", -122.4324),
		PollInterval:    GetEnvAsDuration("POLL_INTERVAL", 60*time.Second),
		PositionTimeout: GetEnvAsDuration("POSITION_TIMEOUT", 15*time.Second),
		PositionMaxAge:  GetEnvAsDuration("POSITION_MAX_AGE", 10*time.Second),
		RequestTimeout:  GetEnvAsDuration("REQUEST_TIMEOUT", 15*time.Second),
	}
}
