package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/aura-lms/backend/internal/auth"
	"github.com/aura-lms/backend/internal/models"
	"github.com/aura-lms/backend/pkg/response"
)

const (
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = "user_id"
	// ContextUserRole is the key for user role in gin context.
	ContextUserRole = "user_role"
)

// BearerResolver resolves a bearer token to an identity.
type BearerResolver interface {
	ResolveBearer(ctx context.Context, token string) (models.Identity, error)
}

// JWT returns a middleware that validates the bearer token and stores the caller's identity.
func JWT(resolver BearerResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		id, err := resolver.ResolveBearer(c.Request.Context(), parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(auth.ContextIdentity, id)
		c.Set(ContextUserID, id.ID)
		c.Set(ContextUserRole, id.Role)
		c.Next()
	}
}
