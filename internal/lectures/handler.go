package lectures

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aura-lms/backend/internal/auth"
	"github.com/aura-lms/backend/internal/middleware"
	"github.com/aura-lms/backend/internal/models"
	"github.com/aura-lms/backend/pkg/response"
)

// View is what a student may see of a lecture.
type View struct {
	ID                uuid.UUID            `json:"id"`
	CourseID          uuid.UUID            `json:"course_id"`
	Title             string               `json:"title"`
	ContentType       models.ContentType   `json:"content_type"`
	Status            models.LectureStatus `json:"status"`
	IsPaid            bool                 `json:"is_paid"`
	PriceAmount       int64                `json:"price_amount"`
	Currency          string               `json:"currency"`
	PrivateChat       bool                 `json:"private_chat"`
	MessagingDisabled bool                 `json:"messaging_disabled"`
}

func viewOf(l *models.Lecture) View {
	return View{
		ID:                l.ID,
		CourseID:          l.CourseID,
		Title:             l.Title,
		ContentType:       l.ContentType,
		Status:            l.Status,
		IsPaid:            l.IsPaid,
		PriceAmount:       l.PriceAmount,
		Currency:          l.Currency,
		PrivateChat:       l.PrivateChat,
		MessagingDisabled: l.MessagingDisabled,
	}
}

// Handler handles lecture HTTP endpoints.
type Handler struct {
	store Store
}

// NewHandler creates a lecture handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// Get handles GET /lectures/:id. The owning teacher gets the full record with connection
// history and participants; students get the public view.
func (h *Handler) Get(c *gin.Context) {
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
	l, err := h.store.GetLecture(c.Request.Context(), id)
	if err != nil {
		middleware.WriteError(c, err)
		return
	}
	if caller.IsTeacher() {
		if !l.IsOwnedBy(caller.ID) {
			response.Forbidden(c, "not the lecture owner")
			return
		}
		response.OK(c, l)
		return
	}
	response.OK(c, viewOf(l))
}
