package handlers

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthCheck verifica una dependencia del servidor
type HealthCheck func(ctx context.Context) error

// HealthResponse representa el estado de salud del sistema
type HealthResponse struct {
	Success   bool              `json:"success"`
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Version   string            `json:"version,omitempty"`
}

// HealthHandler corre los checks registrados
type HealthHandler struct {
	checks  map[string]HealthCheck
	timeout time.Duration
}

// NewHealthHandler crea el handler; checks va por nombre de servicio
func NewHealthHandler(checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 2 * time.Second}
}

// Health proporciona un health check completo del sistema
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	services := make(map[string]string, len(h.checks))
	overall := "healthy"

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
		err := h.checks[name](ctx)
		cancel()
		if err != nil {
			services[name] = "unhealthy: " + err.Error()
			overall = "degraded"
			continue
		}
		services[name] = "healthy"
	}

	statusCode := fiber.StatusOK
	if overall == "degraded" {
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(HealthResponse{
		Success:   overall == "healthy",
		Status:    overall,
		Timestamp: time.Now(),
		Services:  services,
		Version:   os.Getenv("APP_VERSION"),
	})
}
