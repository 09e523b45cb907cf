package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/atlasedu/academy-api/internal/models"
	appErrors "github.com/atlasedu/academy-api/pkg/errors"
	"github.com/atlasedu/academy-api/pkg/response"
)

// SelfRole is the pseudo-role that admits a caller whose user id matches
// the :id route parameter, regardless of their actual role.
const SelfRole = "SELF"

// RBAC gates a route on a set of roles. The set is resolved once at router
// construction, not per request.
func RBAC(allowed ...string) gin.HandlerFunc {
	allowSelf := false
	roles := make(map[models.UserRole]struct{}, len(allowed))
	for _, entry := range allowed {
		if entry == SelfRole {
			allowSelf = true
			continue
		}
		roles[models.UserRole(entry)] = struct{}{}
	}

	return func(c *gin.Context) {
		value, exists := c.Get(ContextUserKey)
		if !exists {
			abort(c, appErrors.ErrUnauthorized)
			return
		}
		claims, ok := value.(*models.JWTClaims)
		if !ok {
			abort(c, appErrors.ErrUnauthorized)
			return
		}

		if _, ok := roles[claims.Role]; ok {
			c.Next()
			return
		}
		if allowSelf && claims.UserID != "" && claims.UserID == c.Param("id") {
			c.Next()
			return
		}

		abort(c, appErrors.ErrForbidden)
	}
}

// RequireRoles is RBAC over typed roles, for routes with no SELF escape.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make([]string, len(roles))
	for i, r := range roles {
		allowed[i] = string(r)
	}
	return RBAC(allowed...)
}

func abort(c *gin.Context, err error) {
	response.Error(c, err)
	c.Abort()
}
