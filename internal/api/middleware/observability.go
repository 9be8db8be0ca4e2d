package middleware

import (
	"strconv"
	"time"

	"dishfinder/internal/telemetry"
	"dishfinder/pkg/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestID tags every request with an id, echoing a valid client-supplied
// X-Request-ID and minting one otherwise.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if !utils.IsValidID(id) {
			id = utils.GenerateID()
		}
		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// Observe records request metrics and writes one access log line per
// request. Routes are labelled by their pattern, not the raw path, to keep
// metric cardinality bounded.
func Observe(metrics *telemetry.Metrics, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		took := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		metrics.ObserveHTTP(c.Request.Method, route, strconv.Itoa(status), took)

		if log != nil {
			log.Infow("[HTTP] request",
				"method", c.Request.Method,
				"route", route,
				"status", status,
				"took", took,
				"request_id", c.GetString(RequestIDKey),
			)
		}
	}
}
