package handler

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
)

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}

// RequireBearerMiddleware protects the API from callers outside the
// platform gateway. Infra probes stay open.
func RequireBearerMiddleware() gin.HandlerFunc {
	disabled := strings.EqualFold(os.Getenv("MT5_AUTH_DISABLED"), "true") || os.Getenv("MT5_AUTH_DISABLED") == "1"

	return func(c *gin.Context) {
		if disabled {
			c.Next()
			return
		}
		p := c.Request.URL.Path
		if p == "/healthz" || p == "/readyz" || p == "/mt5/bridge/health" {
			c.Next()
			return
		}
		auth := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		c.Next()
	}
}
