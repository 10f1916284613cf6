package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/waterbill/backend/internal/infrastructure/telemetry"
	"github.com/waterbill/backend/internal/interfaces/http/dto"
)

// Pinger checks a backing dependency
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness and readiness checks
type HealthHandler struct {
	BaseHandler
	name      string
	db        Pinger
	timeout   time.Duration
	startTime time.Time
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(name string, db Pinger) *HealthHandler {
	return &HealthHandler{
		name:      name,
		db:        db,
		timeout:   2 * time.Second,
		startTime: time.Now(),
	}
}

// HealthResponse is the liveness check body
type HealthResponse struct {
	Status    string `json:"status"`
	Name      string `json:"name"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
}

// ReadyResponse is the readiness check body
type ReadyResponse struct {
	Status   string            `json:"status"`
	Checks   map[string]string `json:"checks"`
	Duration string            `json:"duration"`
}

// Health reports that the process is up
func (h *HealthHandler) Health(c *gin.Context) {
	h.Success(c, HealthResponse{
		Status:    "ok",
		Name:      h.name,
		Version:   telemetry.ServiceVersion,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	})
}

// Ready reports whether the database answers within the check timeout
func (h *HealthHandler) Ready(c *gin.Context) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	resp := ReadyResponse{Status: "ready", Checks: map[string]string{"database": "ok"}}
	status := http.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		resp.Status = "not_ready"
		resp.Checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	resp.Duration = time.Since(start).String()

	if status != http.StatusOK {
		c.JSON(status, dto.Response{Success: false, Data: resp})
		return
	}
	h.Success(c, resp)
}

// RegisterRoutes implements router.RouteRegistrar
func (h *HealthHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/health", h.Health)
	rg.GET("/ready", h.Ready)
}
