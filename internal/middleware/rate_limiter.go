package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// ============================================================================
// RATE LIMITING MIDDLEWARE
// ============================================================================
// Protege el gateway contra clientes que reintentan en loop

// GlobalRateLimiter - Limitador general para todos los endpoints
// 1000 requests por minuto por IP
func GlobalRateLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        1000,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached:      limitReached("rate limit exceeded", time.Minute),
		LimiterMiddleware: limiter.SlidingWindow{},
	})
}

// AuthRateLimiter - Limitador para login y registro
// 10 requests por minuto (protege contra fuerza bruta)
func AuthRateLimiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        10,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			// IP + endpoint para que registrarse no consuma el cupo de login
			return c.IP() + ":" + c.Path()
		},
		LimitReached:      limitReached("demasiadas solicitudes de autenticación, intenta de nuevo en un minuto", time.Minute),
		LimiterMiddleware: limiter.SlidingWindow{},
	})
}

// UserRateLimiter - Rate limiting por usuario autenticado.
// Un cliente sano hace 1 update por movimiento + 1 status por minuto,
// así que el límite solo corta clientes rotos.
func UserRateLimiter(maxRequests int, window time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        maxRequests,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			if userID, ok := UserID(c); ok {
				return "user:" + strconv.FormatInt(userID, 10)
			}
			// Fallback a IP si no está autenticado
			return "ip:" + c.IP()
		},
		LimitReached:      limitReached("user rate limit exceeded", window),
		LimiterMiddleware: limiter.SlidingWindow{},
	})
}

func limitReached(message string, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"success":     false,
			"error":       message,
			"retry_after": int(window.Seconds()),
		})
	}
}
