package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/grafana/pyroscope-go"
)

// Profiling label names
const (
	ProfilingLabelRoute  = "route"
	ProfilingLabelMethod = "method"
)

// ProfilingConfig holds configuration for the profiling middleware.
type ProfilingConfig struct {
	Enabled   bool
	SkipPaths []string
}

// DefaultProfilingConfig returns default profiling middleware configuration.
func DefaultProfilingConfig() ProfilingConfig {
	return ProfilingConfig{
		Enabled:   true,
		SkipPaths: []string{"/health", "/ready"},
	}
}

// ProfilingWithConfig tags CPU and allocation samples taken while a request
// is handled with its route pattern and method, so profiles can be sliced
// per endpoint in Pyroscope.
func ProfilingWithConfig(cfg ProfilingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		labels := profilingLabels(c)
		pyroscope.TagWrapper(c.Request.Context(), pyroscope.Labels(labels...), func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}

// profilingLabels returns key/value pairs for the request. Unmatched routes
// share one label value to keep cardinality bounded.
func profilingLabels(c *gin.Context) []string {
	route := c.FullPath()
	if route == "" {
		route = "unknown"
	}
	return []string{
		ProfilingLabelRoute, route,
		ProfilingLabelMethod, strings.ToUpper(c.Request.Method),
	}
}
