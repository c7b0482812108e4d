package middlewares

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Recovery turns handler panics into a 500 response. http.ErrAbortHandler
// is re-raised so net/http drops the connection instead of cleanly ending a
// response that was already streaming.
func Recovery(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}
			logger.Error().
				Interface("panic", rec).
				Str("request_id", c.GetString(RequestIDKey)).
				Str("path", c.Request.URL.Path).
				Msg("recovered from panic")
			if !c.Writer.Written() {
				c.String(http.StatusInternalServerError, "Internal Server Error")
			}
			c.Abort()
		}()
		c.Next()
	}
}
