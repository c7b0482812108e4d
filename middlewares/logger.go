package middlewares

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// RequestIDHeader carries the request id in both directions.
	RequestIDHeader = "X-Request-ID"
	// RequestIDKey is the gin context key holding the request id.
	RequestIDKey = "request_id"
)

// Logger assigns a request id and writes one access log line per request.
func Logger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		// Runs for aborted streams too; the abort panic is re-raised after logging.
		defer func() {
			rec := recover()
			status := c.Writer.Status()

			event := logger.Info()
			switch {
			case rec != nil || status >= 500:
				event = logger.Error()
			case status >= 400:
				event = logger.Warn()
			}
			event.
				Str("request_id", requestID).
				Str("method", c.Request.Method).
				Str("path", c.FullPath()).
				Int("status", status).
				Int("bytes", c.Writer.Size()).
				Dur("latency", time.Since(start)).
				Str("client_ip", c.ClientIP()).
				Bool("aborted", rec != nil).
				Msg("request")

			if rec != nil {
				panic(rec)
			}
		}()

		c.Next()
	}
}
