package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HeaderName carries the key on every /v1 request except ingest, which
// authenticates with the token inside its payload.
const HeaderName = "X-API-Key"

// Valid reports whether provided matches expected. An empty expected key
// accepts anything.
func Valid(expected, provided string) bool {
	if expected == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// APIKeyMiddleware rejects a missing key with 401 and a wrong one with 403.
func APIKeyMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided := c.GetHeader(HeaderName)
		switch {
		case Valid(apiKey, provided):
			c.Next()
		case provided == "":
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
		default:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid API key"})
		}
	}
}
