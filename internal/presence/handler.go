package presence

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-lms/backend/internal/auth"
	"github.com/aura-lms/backend/internal/middleware"
	"github.com/aura-lms/backend/pkg/response"
)

// Handler serves the active roster over REST.
type Handler struct {
	lectures LectureGetter
	tracker  *Tracker
}

// NewHandler creates a presence handler.
func NewHandler(lectures LectureGetter, tracker *Tracker) *Handler {
	return &Handler{lectures: lectures, tracker: tracker}
}

// Participants handles GET /lectures/:id/participants (owning teacher only).
func (h *Handler) Participants(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid lecture id")
		return
	}
	caller, ok := auth.IdentityFrom(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	l, err := h.lectures.GetLecture(c.Request.Context(), id)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	if !l.IsOwnedBy(caller.ID) {
		response.Forbidden(c, "not the lecture owner")
		return
	}
	snap, err := h.tracker.Snapshot(c.Request.Context(), id)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	response.OK(c, snap)
}
