package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/broadbill/broadbill/internal/auditcontext"
	"github.com/broadbill/broadbill/internal/auth"
	"github.com/broadbill/broadbill/internal/authorization"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

const contextUserIDKey = "authenticated_user_id"

// Authenticate validates the bearer token and attaches the actor to
// both the gin context and the request audit context.
func Authenticate(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw := strings.TrimPrefix(header, "Bearer ")
		if raw == "" || raw == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apiError{Message: "missing bearer token", Code: "unauthorized"})
			return
		}

		userID, err := authService.AuthenticatedUserID(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apiError{Message: "invalid token", Code: "unauthorized"})
			return
		}

		c.Set(contextUserIDKey, userID)
		ctx := auditcontext.WithActor(c.Request.Context(), strconv.FormatInt(userID, 10))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequirePermission gates a route on one capability of the
// authenticated user. Runs after Authenticate.
func RequirePermission(authz authorization.Service, capability string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := authenticatedUserID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apiError{Message: "missing bearer token", Code: "unauthorized"})
			return
		}
		if err := authz.Authorize(c.Request.Context(), userID, capability); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, apiError{Message: "permission denied", Code: "forbidden"})
			return
		}
		c.Next()
	}
}

func authenticatedUserID(c *gin.Context) (snowflake.ID, bool) {
	value, exists := c.Get(contextUserIDKey)
	if !exists {
		return 0, false
	}
	raw, ok := value.(int64)
	if !ok {
		return 0, false
	}
	return snowflake.ID(raw), true
}
