package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const UserIDHeader = "X-User-ID"

// RequireUser resolves the owner identity for a request. Authentication
// itself is an upstream concern (gateway/session layer); by the time a
// request reaches this service the verified user id travels in a header.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(UserIDHeader)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error_code": "unauthorized",
				"message":    "missing user identity",
			})
			return
		}
		c.Set("user_id", userID)
		c.Next()
	}
}

// GetUserID returns the owner id set by RequireUser.
func GetUserID(c *gin.Context) string {
	return c.GetString("user_id")
}
