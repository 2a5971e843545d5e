package rbac

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tulen-chik/beltelekom-sub000/internal/auth"
)

// RequireAnyRole allows access if the caller has any of the provided roles.
// admin bypasses all checks.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if IsAdmin(role) {
			c.Next()
			return
		}
		if _, ok := allowedSet[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// CanAccessSubscriber reports whether the caller may read data of subscriberID.
// Staff may read any subscriber; a subscriber only itself.
func CanAccessSubscriber(ctx context.Context, subscriberID string) bool {
	role, err := auth.Role(ctx)
	if err != nil {
		return false
	}
	if IsStaff(role) {
		return true
	}
	own, ok := auth.SubscriberID(ctx)
	return ok && role == RoleSubscriber && own == subscriberID
}

// ScopeSubscriber resolves the subscriber a request is about. Subscribers are
// pinned to their own id when requested is empty.
func ScopeSubscriber(ctx context.Context, requested string) (string, bool) {
	if requested == "" {
		if own, ok := auth.SubscriberID(ctx); ok {
			return own, true
		}
		return "", false
	}
	return requested, CanAccessSubscriber(ctx, requested)
}
