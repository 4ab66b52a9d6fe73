package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/yourorg/together/internal/auth"
	"github.com/yourorg/together/internal/models"
)

// LocalUserID es la clave en c.Locals donde queda el id del usuario autenticado
const LocalUserID = "userID"

// RequireAuth valida el bearer token y guarda el user_id en c.Locals
func RequireAuth(issuer *auth.Issuer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(models.Fail("missing bearer token"))
		}
		return authenticate(c, issuer, strings.TrimSpace(token))
	}
}

// RequireQueryToken autentica con ?token= (los websockets no pueden mandar headers)
func RequireQueryToken(issuer *auth.Issuer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := strings.TrimSpace(c.Query("token"))
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(models.Fail("missing token"))
		}
		return authenticate(c, issuer, token)
	}
}

func authenticate(c *fiber.Ctx, issuer *auth.Issuer, token string) error {
	claims, err := issuer.Parse(token)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(models.Fail("invalid token"))
	}
	userID, err := claims.UserID()
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(models.Fail("invalid token"))
	}
	c.Locals(LocalUserID, userID)
	c.Locals("username", claims.Username)
	return c.Next()
}

// UserID retorna el usuario autenticado por RequireAuth
func UserID(c *fiber.Ctx) (int64, bool) {
	id, ok := c.Locals(LocalUserID).(int64)
	return id, ok && id > 0
}
