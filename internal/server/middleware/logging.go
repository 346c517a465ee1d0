package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"digicheese/backend/internal/logging"
)

var quietPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
}

// Logger attaches a request-scoped logger to the request context (retrievable with
// zerolog.Ctx) and writes one access log line per request. Health checks are not logged.
// Must run after RequestID.
func Logger(base zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		l := base.With().Str(logging.FieldRequestID, RequestIDFrom(c.Request.Context())).Logger()
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))

		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		if quietPaths[path] {
			return
		}
		status := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case status >= 500:
			ev = l.Error()
		case status >= 400:
			ev = l.Warn()
		default:
			ev = l.Info()
		}
		if id, ok := IdentityFrom(c.Request.Context()); ok {
			ev = ev.Str(logging.FieldUserID, id.SubjectID)
		}
		if err := c.Errors.Last(); err != nil {
			ev = ev.Err(err.Err)
		}
		ev.Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request completed")
	}
}
