package handlers

import (
	"database/sql"
	"log"
	"runtime"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/yourorg/together/internal/cache"
)

// Contadores de sesiones, expuestos en /metrics
var (
	sessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "together",
		Subsystem: "sharing",
		Name:      "sessions_started_total",
		Help:      "Location sharing sessions started.",
	})

	sessionsStopped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "together",
		Subsystem: "sharing",
		Name:      "sessions_stopped_total",
		Help:      "Location sharing sessions ended, by reason (user, expired).",
	}, []string{"reason"})

	locationUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "together",
		Subsystem: "sharing",
		Name:      "location_updates_total",
		Help:      "Accepted location updates, split by coarse accuracy.",
	}, []string{"coarse"})
)

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// StatsHandler expone un resumen legible del servidor
type StatsHandler struct {
	db        *sql.DB
	presence  cache.PresenceStore
	startTime time.Time
}

// NewStatsHandler crea un nuevo handler de estadísticas
func NewStatsHandler(db *sql.DB, presence cache.PresenceStore) *StatsHandler {
	return &StatsHandler{
		db:        db,
		presence:  presence,
		startTime: time.Now(),
	}
}

// SystemStats representa el resumen del servidor
type SystemStats struct {
	UptimeSeconds  int64        `json:"uptimeSeconds"`
	MemoryMB       int64        `json:"memoryMB"`
	Goroutines     int          `json:"goroutines"`
	ActiveSessions int          `json:"activeSessions"`
	PairedUsers    int          `json:"pairedUsers"`
	PresenceCache  *cache.Stats `json:"presenceCache,omitempty"`
}

// GetStats handles GET /api/stats.
func (h *StatsHandler) GetStats(c *fiber.Ctx) error {
	stats := SystemStats{
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	stats.MemoryMB = int64(m.Alloc / 1024 / 1024) // Convertir a MB

	ctx := c.UserContext()
	if err := h.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM location_shares WHERE is_active = true AND expires_at > ?`, time.Now().UTC(),
	).Scan(&stats.ActiveSessions); err != nil {
		log.Printf("⚠️  Error contando sesiones activas: %v", err)
	}
	if err := h.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE partner_id IS NOT NULL`,
	).Scan(&stats.PairedUsers); err != nil {
		log.Printf("⚠️  Error contando parejas: %v", err)
	}

	// Solo la caché en memoria lleva estadísticas
	if mem, ok := h.presence.(*cache.MemoryPresence); ok {
		s := mem.Stats()
		stats.PresenceCache = &s
	}

	return c.JSON(stats)
}
