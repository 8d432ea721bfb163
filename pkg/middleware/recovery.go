package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// InitSentry configures error reporting. An empty dsn leaves it disabled.
func InitSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}
	return sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	})
}

// FlushSentry waits for buffered events to be delivered
func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

// Recovery turns panics into 500 responses and reports them, along with
// any other 5xx response, to Sentry when it is configured
func Recovery(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		hub := sentry.CurrentHub().Clone()
		hub.Scope().SetRequest(c.Request)
		hub.Scope().SetTag("request_id", RequestIDFrom(c))

		defer func() {
			if rec := recover(); rec != nil {
				logger.Error().
					Str("panic", fmt.Sprintf("%v", rec)).
					Str("path", c.Request.URL.Path).
					Str("request_id", RequestIDFrom(c)).
					Msg("Panic recovered in HTTP handler")
				if hub.Client() != nil {
					hub.RecoverWithContext(c.Request.Context(), rec)
				}
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			}
		}()

		c.Next()

		if c.Writer.Status() >= http.StatusInternalServerError && hub.Client() != nil {
			if err := c.Errors.Last(); err != nil {
				hub.CaptureException(err.Err)
			} else {
				hub.CaptureMessage(fmt.Sprintf("%s %s returned %d", c.Request.Method, c.FullPath(), c.Writer.Status()))
			}
		}
	}
}
