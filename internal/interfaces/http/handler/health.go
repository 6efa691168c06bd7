package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/erp/remittance/internal/interfaces/http/dto"
	"github.com/erp/remittance/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
)

// Pinger reports whether a backing dependency is reachable
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a plain function to Pinger
type PingFunc func(ctx context.Context) error

// PingContext calls f
func (f PingFunc) PingContext(ctx context.Context) error {
	return f(ctx)
}

// HealthHandler serves liveness, readiness and build information
type HealthHandler struct {
	BaseHandler
	name      string
	version   string
	startTime time.Time
	timeout   time.Duration
	checks    map[string]Pinger
}

// NewHealthHandler creates a new HealthHandler. Every entry in checks must
// answer a ping for the service to report ready.
func NewHealthHandler(name, version string, checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{
		name:      name,
		version:   version,
		startTime: time.Now(),
		timeout:   2 * time.Second,
		checks:    checks,
	}
}

// HealthResponse is returned by the health endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	GoVersion string            `json:"go_version"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Register mounts /health and /ready at the engine root
func (h *HealthHandler) Register(engine *gin.Engine) {
	engine.GET("/health", h.Live)
	engine.GET("/ready", h.Ready)
}

// Routes returns the versioned system group
func (h *HealthHandler) Routes() *router.DomainGroup {
	return router.NewDomainGroup("system", "/system").
		GET("/info", h.Live)
}

// Live reports that the process is serving requests
//
//	@Summary	Liveness check
//	@Tags		system
//	@Produce	json
//	@Success	200	{object}	dto.Response{data=HealthResponse}
//	@Router		/health [get]
func (h *HealthHandler) Live(c *gin.Context) {
	h.Success(c, h.response("ok", nil))
}

// Ready pings every dependency and answers 503 if any is unreachable
//
//	@Summary	Readiness check
//	@Tags		system
//	@Produce	json
//	@Success	200	{object}	dto.Response{data=HealthResponse}
//	@Failure	503	{object}	dto.Response{data=HealthResponse,error=dto.ErrorInfo}
//	@Router		/ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	status := "ok"
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check.PingContext(ctx); err != nil {
			status = "unavailable"
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	resp := h.response(status, results)
	if status != "ok" {
		c.JSON(http.StatusServiceUnavailable, dto.Response{
			Success: false,
			Data:    resp,
			Error:   &dto.ErrorInfo{Code: dto.ErrCodeServiceUnavailable, Message: "A dependency is unavailable"},
		})
		return
	}
	h.Success(c, resp)
}

func (h *HealthHandler) response(status string, checks map[string]string) HealthResponse {
	return HealthResponse{
		Status:    status,
		Name:      h.name,
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Checks:    checks,
	}
}
