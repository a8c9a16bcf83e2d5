package auth

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aura-lms/backend/internal/models"
	"github.com/aura-lms/backend/pkg/response"
)

// ContextIdentity is the gin context key holding the caller's models.Identity.
const ContextIdentity = "identity"

// IdentityFrom returns the identity stored by the bearer middleware.
func IdentityFrom(c *gin.Context) (models.Identity, bool) {
	v, ok := c.Get(ContextIdentity)
	if !ok {
		return models.Identity{}, false
	}
	id, ok := v.(models.Identity)
	return id, ok
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{logger: logger}
}

// Me handles GET /auth/me and echoes the resolved identity.
func (h *Handler) Me(c *gin.Context) {
	id, ok := IdentityFrom(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	response.OK(c, id)
}
