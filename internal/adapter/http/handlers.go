package http

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Handler struct{ checks map[string]HealthCheck }

func NewHandler() *Handler { return &Handler{checks: map[string]HealthCheck{}} }

// WithCheck adds a named dependency check to /health.
func (h *Handler) WithCheck(name string, fn HealthCheck) *Handler {
	h.checks[name] = fn
	return h
}

func (h *Handler) Health(c echo.Context) error {
	body := map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339Nano),
	}
	if len(h.checks) == 0 {
		return c.JSON(http.StatusOK, body)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	code := http.StatusOK
	results := map[string]string{}
	for name, fn := range h.checks {
		if err := fn(ctx); err != nil {
			results[name] = err.Error()
			code = http.StatusServiceUnavailable
			body["status"] = "degraded"
			continue
		}
		results[name] = "ok"
	}
	body["checks"] = results
	return c.JSON(code, body)
}
