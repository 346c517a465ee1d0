package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"digicheese/backend/internal/platform/httpx"
)

// Recovery turns a panic into a 500 with the standard error body and logs the stack.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				zerolog.Ctx(c.Request.Context()).Error().
					Str("panic", fmt.Sprint(rec)).
					Bytes("stack", debug.Stack()).
					Str("path", c.Request.URL.Path).
					Msg("panic recovered")
				httpx.AbortWith(c, http.StatusInternalServerError, httpx.CodeInternal, "internal error")
			}
		}()
		c.Next()
	}
}
