package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/opsdeck/appman/internal/domain/auth"
)

// roleKey is the gin context key carrying the caller's classified role.
const roleKey = "appman.role"

// Identify classifies the caller's bearer token and rejects callers with no
// role. The core never sees identity; everything ends here at the boundary.
func Identify(authorizer *auth.Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := authorizer.Classify(bearerToken(c))
		if role == auth.RoleNone {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "not authorized",
			})
			c.Abort()
			return
		}

		c.Set(roleKey, role)
		c.Next()
	}
}

// RequireAdmin gates admin-only operations. Must run after Identify.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if Role(c) != auth.RoleAdmin {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "admin privileges required",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// Role returns the caller's classified role, RoleNone when unclassified.
func Role(c *gin.Context) auth.Role {
	if v, ok := c.Get(roleKey); ok {
		if role, ok := v.(auth.Role); ok {
			return role
		}
	}
	return auth.RoleNone
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return ""
}
