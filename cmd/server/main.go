package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"github.com/yourorg/together/internal/auth"
	"github.com/yourorg/together/internal/cache"
	"github.com/yourorg/together/internal/config"
	appdb "github.com/yourorg/together/internal/db"
	"github.com/yourorg/together/internal/handlers"
	"github.com/yourorg/together/internal/live"
	"github.com/yourorg/together/internal/middleware"
	"github.com/yourorg/together/internal/routes"
)

// expiryInterval es cada cuánto se cierran sesiones vencidas
const expiryInterval = 30 * time.Second

func main() {
	config.LoadDotEnv()
	cfg := config.LoadServer()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ============================================================================
	// JWT
	// ============================================================================
	secret := cfg.JWTSecret
	if secret == "" {
		if cfg.Production {
			log.Fatal("❌ CRITICAL: JWT_SECRET must be set in production environment")
		}
		log.Println("⚠️ WARNING: Using default JWT secret (development only)")
		secret = config.DevJWTSecret
	}
	issuer, err := auth.NewIssuer(secret, cfg.JWTTTL)
	if err != nil {
		log.Fatalf("❌ CRITICAL: %v", err)
	}

	// ============================================================================
	// DB CONNECTION
	// ============================================================================
	log.Printf("🔗 Conectando a la base de datos %s:%s/%s...", cfg.DBHost, cfg.DBPort, cfg.DBName)
	db, err := appdb.ConnectWithRetry(ctx, cfg, 5*time.Second)
	if err != nil {
		log.Fatalf("❌ Base de datos no disponible: %v", err)
	}
	defer db.Close()
	log.Println("✅ Database ready")

	checks := map[string]handlers.HealthCheck{"database": db.PingContext}

	// ============================================================================
	// PRESENCIA: Redis si está configurado, si no memoria
	// ============================================================================
	var presence cache.PresenceStore
	if cfg.RedisURL != "" {
		client, err := cache.DialRedis(ctx, cfg.RedisURL, cfg.RedisPassword)
		if err != nil {
			log.Fatalf("❌ Redis no disponible en %s: %v", cfg.RedisURL, err)
		}
		rp := cache.NewRedisPresence(client, cfg.PresenceTTL)
		defer rp.Close()
		presence = rp
		checks["presence"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		log.Printf("✅ Presencia compartida en Redis (%s)", cfg.RedisURL)
	} else {
		mp := cache.NewMemoryPresence(cfg.PresenceTTL)
		defer mp.Close()
		presence = mp
		log.Println("💾 Presencia en memoria (un solo servidor)")
	}

	hub := live.NewHub()
	defer hub.Stop()

	app := fiber.New(fiber.Config{AppName: "together"})
	app.Use(logger.New())
	app.Use(middleware.GlobalRateLimiter())

	shares := routes.Register(app, routes.Deps{
		DB:       db,
		Issuer:   issuer,
		Presence: presence,
		Hub:      hub,
		Checks:   checks,
	})
	go shares.RunExpiry(ctx, expiryInterval)

	// ============================================================================
	// GRACEFUL SHUTDOWN
	// ============================================================================
	go func() {
		<-ctx.Done()
		log.Println("\n🛑 Señal de terminación recibida, cerrando servidor...")
		hub.Stop()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("⚠️  Error cerrando servidor: %v", err)
		}
	}()

	log.Printf("🚀 Servidor escuchando en :%s", cfg.Port)
	log.Println("📍 Endpoints disponibles:")
	log.Println("   POST /api/register, /api/login      - Autenticación")
	log.Println("   GET  /api/location/status           - Estado de la sesión")
	log.Println("   POST /api/location/start|stop|update - Compartir ubicación")
	log.Println("   GET  /api/partner/info              - Pareja y su presencia")
	log.Println("   WS   /ws/live?token=                - Feed en vivo de la pareja")
	log.Println("   GET  /metrics                       - Prometheus")
	log.Println("💡 Presiona Ctrl+C para detener")

	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal(err)
	}
	log.Println("✅ Servidor cerrado correctamente")
}
