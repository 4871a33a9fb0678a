package handler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger is a dependency that can report its reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	checks    map[string]Pinger
	version   string
	startTime time.Time
	timeout   time.Duration
}

// NewHealthHandler creates a new health handler. checks maps a dependency
// name (postgres, clickhouse, redis, minio) to its pinger.
func NewHealthHandler(checks map[string]Pinger, version string) *HealthHandler {
	return &HealthHandler{
		checks:    checks,
		version:   version,
		startTime: time.Now(),
		timeout:   5 * time.Second,
	}
}

// HealthStatus represents health check status
type HealthStatus struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	checks, healthy := h.runChecks(c.UserContext())
	status := HealthStatus{
		Status:    "healthy",
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
	if !healthy {
		status.Status = "degraded"
		return c.Status(fiber.StatusServiceUnavailable).JSON(status)
	}
	return c.JSON(status)
}

// Liveness handles GET /health/live
func (h *HealthHandler) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "alive"})
}

// Readiness handles GET /health/ready
func (h *HealthHandler) Readiness(c *fiber.Ctx) error {
	checks, healthy := h.runChecks(c.UserContext())
	if !healthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not ready",
			"checks": checks,
		})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

// Version handles GET /version
func (h *HealthHandler) Version(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"version": h.version})
}

// runChecks pings every dependency concurrently under one timeout.
func (h *HealthHandler) runChecks(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]error, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(i int, p Pinger) {
			defer wg.Done()
			results[i] = p.Ping(ctx)
		}(i, h.checks[name])
	}
	wg.Wait()

	out := make(map[string]string, len(names))
	healthy := true
	for i, name := range names {
		if results[i] != nil {
			out[name] = "unhealthy: " + results[i].Error()
			healthy = false
			continue
		}
		out[name] = "healthy"
	}
	return out, healthy
}

// RegisterRoutes registers health routes
func (h *HealthHandler) RegisterRoutes(app fiber.Router) {
	app.Get("/health", h.Health)
	app.Get("/health/live", h.Liveness)
	app.Get("/health/ready", h.Readiness)
	app.Get("/version", h.Version)
}
