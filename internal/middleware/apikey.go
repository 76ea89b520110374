package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"passgate/internal/config"
)

// APIKeyMiddleware guards the device-facing endpoints. Door terminals
// cannot hold JWT sessions, so they present a static key instead.
type APIKeyMiddleware struct {
	config *config.Config
}

func NewAPIKeyMiddleware(config *config.Config) *APIKeyMiddleware {
	return &APIKeyMiddleware{config: config}
}

func (m *APIKeyMiddleware) APIKeyRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.config.APIKeyRequired {
			c.Next()
			return
		}

		apiKey := c.GetHeader("X-API-Key")

		if apiKey == "" {
			apiKey = c.Query("api_key")
		}

		if apiKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "API key required"})
			c.Abort()
			return
		}

		validKey := false
		for _, key := range m.config.APIKeys {
			if apiKey == key {
				validKey = true
				break
			}
		}

		if !validKey {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			c.Abort()
			return
		}

		c.Next()
	}
}
