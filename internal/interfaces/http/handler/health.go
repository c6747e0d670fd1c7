package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/erp/invoicing/internal/infrastructure/resilience"
	"github.com/gin-gonic/gin"
)

// Health statuses
const (
	HealthUp       = "UP"
	HealthDegraded = "DEGRADED"
	HealthDown     = "DOWN"
)

// HealthCheck probes one local dependency such as the database or redis
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// BreakerStatus reports the state of a remote dependency's circuit breaker
type BreakerStatus interface {
	Name() string
	State() string
}

// HealthHandler reports service liveness and dependency health
type HealthHandler struct {
	checks    []HealthCheck
	breakers  []BreakerStatus
	version   string
	startTime time.Time
	timeout   time.Duration
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(version string, checks []HealthCheck, breakers ...BreakerStatus) *HealthHandler {
	return &HealthHandler{
		checks:    checks,
		breakers:  breakers,
		version:   version,
		startTime: time.Now(),
		timeout:   2 * time.Second,
	}
}

// ComponentHealth is the result of one check
type ComponentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version"`
	GoVersion  string                     `json:"go_version"`
	Uptime     string                     `json:"uptime"`
	Components map[string]ComponentHealth `json:"components"`
	Breakers   map[string]string          `json:"breakers"`
}

// Health runs every check. A failing local check answers 503 DOWN; an open
// breaker only degrades the status since cached answers may still serve.
//
//	GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	resp := HealthResponse{
		Status:     HealthUp,
		Version:    h.version,
		GoVersion:  runtime.Version(),
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
		Components: make(map[string]ComponentHealth, len(h.checks)),
		Breakers:   make(map[string]string, len(h.breakers)),
	}

	for _, check := range h.checks {
		if err := check.Check(ctx); err != nil {
			resp.Components[check.Name] = ComponentHealth{Status: HealthDown, Error: err.Error()}
			resp.Status = HealthDown
			continue
		}
		resp.Components[check.Name] = ComponentHealth{Status: HealthUp}
	}

	for _, b := range h.breakers {
		state := b.State()
		resp.Breakers[b.Name()] = state
		if state == resilience.StateOpen && resp.Status == HealthUp {
			resp.Status = HealthDegraded
		}
	}

	status := http.StatusOK
	if resp.Status == HealthDown {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

// Ping answers liveness probes
//
//	GET /ping
func (h *HealthHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "pong",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
