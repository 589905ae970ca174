package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/directory"
)

// AuthMiddleware validates the Authorization header against the directory
// service and stores the authenticated user id on the context.
func AuthMiddleware(validator directory.TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		userID, err := validator.ValidateToken(c.Request.Context(), parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("userID", userID)
		c.Next()
	}
}

// ServiceAuthMiddleware guards internal endpoints called by sibling services
// with a shared token. An empty configured token disables the surface.
func ServiceAuthMiddleware(serviceToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if serviceToken == "" {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		if c.GetHeader("X-Service-Token") != serviceToken {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid service token"})
			return
		}
		c.Next()
	}
}
