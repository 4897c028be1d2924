package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/vantagemedia/adserver/internal/common"
	"github.com/vantagemedia/adserver/pkg/jwt"
)

const (
	ctxUserIDKey    = "user_id"
	ctxUserLevelKey = "user_level"
)

// JWTAuth verifies the Bearer token and stashes the caller's identity
// in the request context
func JWTAuth(manager *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			common.ErrorResponse(c, http.StatusUnauthorized, "missing bearer token", nil)
			c.Abort()
			return
		}

		claims, err := manager.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			common.ErrorResponse(c, http.StatusUnauthorized, "invalid or expired token", err)
			c.Abort()
			return
		}

		c.Set(ctxUserIDKey, claims.UserID)
		c.Set(ctxUserLevelKey, claims.Level)
		c.Next()
	}
}

// GetUserID returns the authenticated user id, empty when anonymous
func GetUserID(c *gin.Context) string {
	return c.GetString(ctxUserIDKey)
}

// GetUserLevel returns the authenticated user's level, 0 when anonymous
func GetUserLevel(c *gin.Context) int {
	return c.GetInt(ctxUserLevelKey)
}
