package middleware

import (
	"net/http"
	"strings"

	"callwire/internal/core/domain"
	"callwire/internal/core/services"

	"github.com/gin-gonic/gin"
)

const claimsKey = "claims"

func AuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// ModeratorOnly requires the session token to carry the moderator role. It
// must run after AuthMiddleware.
func ModeratorOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			c.Abort()
			return
		}
		if claims.Role != domain.RoleModerator {
			c.JSON(http.StatusForbidden, gin.H{"error": "moderator role required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// ClaimsFrom extracts the session claims set by AuthMiddleware.
func ClaimsFrom(c *gin.Context) (*services.Claims, bool) {
	val, exists := c.Get(claimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := val.(*services.Claims)
	return claims, ok
}
