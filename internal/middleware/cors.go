package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// The browser-facing surface is the lock/row API plus the websocket
// subscribe; preflights only ever carry the headers our own middleware
// consumes (HolderAuth reads Authorization, RequestID echoes X-Request-Id).
const (
	corsMethods = "GET, POST, PUT, DELETE, OPTIONS"
	corsHeaders = "Authorization, Content-Type, X-Request-Id"
)

// CORS admits the configured origins, or every origin when the allowlist
// is empty (the review UI is typically served from the same host, so an
// empty list is the common deployment).
func CORS(allowlist []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowlist))
	for _, origin := range allowlist {
		if o := strings.TrimSpace(origin); o != "" {
			allowed[o] = struct{}{}
		}
	}
	return func(c *gin.Context) {
		header := c.Writer.Header()
		switch origin := c.GetHeader("Origin"); {
		case len(allowed) == 0:
			header.Set("Access-Control-Allow-Origin", "*")
		case origin == "":
			// non-browser caller, nothing to grant
		default:
			if _, ok := allowed[origin]; !ok {
				break
			}
			header.Set("Access-Control-Allow-Origin", origin)
			header.Set("Vary", "Origin")
		}
		if header.Get("Access-Control-Allow-Origin") != "" {
			header.Set("Access-Control-Allow-Methods", corsMethods)
			header.Set("Access-Control-Allow-Headers", corsHeaders)
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
