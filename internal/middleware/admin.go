package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vantagemedia/adserver/internal/common"
)

// adminLevel is the minimum level claim for the admin console API
const adminLevel = 10

// RequireAdmin checks that the authenticated user has admin level
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetUserLevel(c) < adminLevel {
			common.ErrorResponse(c, http.StatusForbidden, "admin permission required", nil)
			c.Abort()
			return
		}
		c.Next()
	}
}
