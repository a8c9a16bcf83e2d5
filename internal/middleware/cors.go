package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CORS returns a middleware that sets CORS headers for the admin console.
// AllowedOrigins can be "*" or a comma-separated list (e.g. "http://localhost:3000,http://localhost:3001").
func CORS(allowedOrigins string) gin.HandlerFunc {
	allow := originMatcher(allowedOrigins)
	return func(c *gin.Context) {
		if origin := allow(c.GetHeader("Origin")); origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Max-Age", "86400")
			if origin != "*" {
				c.Header("Vary", "Origin")
			}
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// CheckOrigin returns a websocket origin check using the same allow-list as CORS.
// Requests without an Origin header (non-browser clients) are accepted.
func CheckOrigin(allowedOrigins string) func(r *http.Request) bool {
	allow := originMatcher(allowedOrigins)
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allow(origin) != ""
	}
}

// originMatcher returns the Access-Control-Allow-Origin value for origin, or "" when denied.
func originMatcher(allowedOrigins string) func(origin string) string {
	origins := parseOrigins(allowedOrigins)
	return func(origin string) string {
		if len(origins) == 0 || origins["*"] {
			return "*"
		}
		if origin != "" && origins[origin] {
			return origin
		}
		return ""
	}
}

func parseOrigins(s string) map[string]bool {
	m := make(map[string]bool)
	for _, o := range strings.Split(strings.TrimSpace(s), ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			m[o] = true
		}
	}
	return m
}
