package chat

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-lms/backend/internal/auth"
	"github.com/aura-lms/backend/internal/middleware"
	"github.com/aura-lms/backend/pkg/response"
)

// Handler serves chat history over REST.
type Handler struct {
	relay  *Relay
	logger *zap.Logger
}

// NewHandler creates a chat handler.
func NewHandler(relay *Relay, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{relay: relay, logger: logger}
}

// History handles GET /lectures/:id/messages with the same visibility rules as the socket.
func (h *Handler) History(c *gin.Context) {
	lectureID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid lecture id")
		return
	}
	id, ok := auth.IdentityFrom(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	msgs, err := h.relay.FetchHistory(c.Request.Context(), id, lectureID)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	response.OK(c, msgs)
}
