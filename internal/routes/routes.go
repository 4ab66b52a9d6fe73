package routes

import (
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yourorg/together/internal/auth"
	"github.com/yourorg/together/internal/cache"
	"github.com/yourorg/together/internal/handlers"
	"github.com/yourorg/together/internal/live"
	"github.com/yourorg/together/internal/middleware"
)

// Deps agrupa lo que necesitan los handlers
type Deps struct {
	DB       *sql.DB
	Issuer   *auth.Issuer
	Presence cache.PresenceStore
	Hub      *live.Hub
	Checks   map[string]handlers.HealthCheck
}

// Register monta todas las rutas y retorna el handler de sesiones
// (cmd/server lo usa para expirar sesiones vencidas).
func Register(app *fiber.App, deps Deps) *handlers.LocationShareHandler {
	app.Use(middleware.MetricsMiddleware())

	// ============================================================================
	// API PÚBLICA
	// ============================================================================
	api := app.Group("/api")

	// Health check (sin rate limiting)
	api.Get("/health", handlers.NewHealthHandler(deps.Checks).Health)

	// ============================================================================
	// AUTENTICACIÓN (con rate limiting estricto)
	// ============================================================================
	authHandler := handlers.NewAuthHandler(deps.DB, deps.Issuer)
	api.Post("/register", middleware.AuthRateLimiter(), authHandler.Register)
	api.Post("/login", middleware.AuthRateLimiter(), authHandler.Login)

	requireAuth := middleware.RequireAuth(deps.Issuer)
	userLimit := middleware.UserRateLimiter(300, time.Minute)

	// Initialize handlers
	shares := handlers.NewLocationShareHandler(deps.DB, deps.Presence, deps.Hub)
	stats := handlers.NewStatsHandler(deps.DB, deps.Presence)

	// ============================================================================
	// COMPARTIR UBICACIÓN
	// ============================================================================
	location := api.Group("/location", requireAuth, userLimit)
	location.Get("/status", shares.Status)
	// GET /api/location/status - estado autoritativo de la sesión + ubicación de la pareja
	location.Post("/start", shares.Start)
	// POST /api/location/start - Body: {duration, initialLocation}
	location.Post("/stop", shares.Stop)
	location.Post("/update", shares.Update)
	// POST /api/location/update - Body: {latitude, longitude, accuracy, lastUpdated}

	// ============================================================================
	// PAREJA
	// ============================================================================
	partner := api.Group("/partner", requireAuth, userLimit)
	partner.Get("/info", shares.PartnerInfo)
	partner.Post("/pair", authHandler.Pair)
	// POST /api/partner/pair - Body: {partner_username}

	api.Get("/stats", requireAuth, stats.GetStats)

	// ============================================================================
	// MÉTRICAS PROMETHEUS
	// ============================================================================
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// ============================================================================
	// FEED EN VIVO DE LA PAREJA
	// ============================================================================
	app.Use("/ws/live", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/live", middleware.RequireQueryToken(deps.Issuer), websocket.New(func(c *websocket.Conn) {
		userID, _ := c.Locals(middleware.LocalUserID).(int64)
		deps.Hub.Serve(userID, c)
	}))

	return shares
}
