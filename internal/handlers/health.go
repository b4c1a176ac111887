package handlers

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
)

// Pinger checks one dependency
type Pinger func(ctx context.Context) error

// HealthHandler reports service and dependency health
type HealthHandler struct {
	checks map[string]Pinger
	logger ectologger.Logger
}

// NewHealthHandler creates a health handler
func NewHealthHandler(checks map[string]Pinger, logger ectologger.Logger) *HealthHandler {
	return &HealthHandler{
		checks: checks,
		logger: logger,
	}
}

// Register registers health routes
func (h *HealthHandler) Register(e *echo.Echo) {
	e.GET("/health", h.Liveness)
	e.GET("/ready", h.Readiness)
}

// Liveness reports the process is up
func (h *HealthHandler) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness pings every dependency and reports per-dependency status
func (h *HealthHandler) Readiness(c echo.Context) error {
	ctx := c.Request().Context()

	healthy := true
	statuses := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.logger.WithContext(ctx).WithError(err).Warnf("Dependency '%s' is unhealthy", name)
			statuses[name] = "unhealthy"
			healthy = false
			continue
		}
		statuses[name] = "ok"
	}

	code := http.StatusOK
	status := "ok"
	if !healthy {
		code = http.StatusServiceUnavailable
		status = "degraded"
	}
	return c.JSON(code, map[string]any{
		"status":       status,
		"dependencies": statuses,
	})
}
