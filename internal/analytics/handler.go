package analytics

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-lms/backend/internal/auth"
	"github.com/aura-lms/backend/internal/middleware"
	"github.com/aura-lms/backend/internal/models"
	"github.com/aura-lms/backend/pkg/response"
)

// LectureGetter loads a lecture with history and participants.
type LectureGetter interface {
	GetLecture(ctx context.Context, id uuid.UUID) (*models.Lecture, error)
}

// MessageLister lists a lecture's chat messages.
type MessageLister interface {
	ListByLecture(ctx context.Context, lectureID uuid.UUID) ([]models.ChatMessage, error)
}

// Handler handles GET /lectures/:id/analytics.
type Handler struct {
	lectures LectureGetter
	messages MessageLister
	now      func() time.Time
}

// NewHandler creates an analytics handler.
func NewHandler(lectures LectureGetter, messages MessageLister) *Handler {
	return &Handler{lectures: lectures, messages: messages, now: time.Now}
}

// GetByLecture returns the attendance summary to the owning teacher.
func (h *Handler) GetByLecture(c *gin.Context) {
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

	ctx := c.Request.Context()
	l, err := h.lectures.GetLecture(ctx, id)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	if !l.IsOwnedBy(caller.ID) {
		response.Forbidden(c, "not the lecture owner")
		return
	}
	msgs, err := h.messages.ListByLecture(ctx, id)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	response.OK(c, Summarize(l, len(msgs), h.now()))
}
