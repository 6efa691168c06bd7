package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// gin context keys the remittance handlers fill in for the access log
const (
	ginOutcomeKey   = "logger.remittance_outcome"
	ginRequestIDKey = "request_id"
)

// outcome is what a remittance request did, as reported by its handler
type outcome struct {
	fields []zap.Field
}

func addOutcome(c *gin.Context, fields ...zap.Field) {
	o, _ := c.Get(ginOutcomeKey)
	prev, _ := o.(*outcome)
	if prev == nil {
		prev = &outcome{}
		c.Set(ginOutcomeKey, prev)
	}
	prev.fields = append(prev.fields, fields...)
}

// AnnotatePayment records the payment a request wrote on its access log entry
func AnnotatePayment(c *gin.Context, paymentID string, allocations int, total decimal.Decimal) {
	addOutcome(c,
		zap.String(FieldPaymentID, paymentID),
		zap.Int("allocations", allocations),
		Amount("total_payment", total),
	)
}

// AnnotateReconciliation records a reconciliation outcome on the access log entry
func AnnotateReconciliation(c *gin.Context, status string, threshold decimal.Decimal) {
	addOutcome(c,
		zap.String("reconciliation_status", status),
		Threshold(threshold),
	)
}

// GinMiddleware writes one access log entry per request. The request context
// is tagged with the request id and, on remittance routes, the payment
// reference, so service and ledger entries of the request share them.
// Health check paths are logged at debug.
func GinMiddleware(base *zap.Logger, quietPaths ...string) gin.HandlerFunc {
	if len(quietPaths) == 0 {
		quietPaths = []string{"/health", "/ready"}
	}

	return func(c *gin.Context) {
		start := time.Now()

		ctx := c.Request.Context()
		if requestID := c.GetString(ginRequestIDKey); requestID != "" {
			ctx = WithRequestID(ctx, requestID)
		}
		if reference := c.Param("reference"); reference != "" {
			ctx = WithPaymentReference(ctx, reference)
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		fields := append(Fields(ctx),
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("body_size", c.Writer.Size()),
		)
		if query := c.Request.URL.RawQuery; query != "" {
			fields = append(fields, zap.String("query", query))
		}
		if o, ok := c.Get(ginOutcomeKey); ok {
			fields = append(fields, o.(*outcome).fields...)
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
		}

		path := c.Request.URL.Path
		switch {
		case status >= http.StatusInternalServerError:
			base.Error("HTTP request", fields...)
		case status >= http.StatusBadRequest:
			base.Warn("HTTP request", fields...)
		case isQuiet(path, quietPaths):
			base.Debug("HTTP request", fields...)
		default:
			base.Info("HTTP request", fields...)
		}
	}
}

func isQuiet(path string, quietPaths []string) bool {
	for _, p := range quietPaths {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}

// Recovery turns a handler panic into a 500 in the API error envelope and
// logs it with the request's remittance scope.
func Recovery(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				requestID := c.GetString(ginRequestIDKey)
				base.Error("Panic recovered", append(Fields(WithRequestID(c.Request.Context(), requestID)),
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.Any("panic", rec),
					zap.Stack("stacktrace"),
				)...)

				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"error": gin.H{
						"code":       "ERR_INTERNAL",
						"message":    "An unexpected error occurred",
						"request_id": requestID,
					},
				})
			}
		}()
		c.Next()
	}
}
