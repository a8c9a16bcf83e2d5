package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/aura-lms/backend/internal/models"
	"github.com/aura-lms/backend/pkg/response"
)

// WriteError maps a coordinator error to the matching HTTP response.
func WriteError(c *gin.Context, err error) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, models.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, models.ErrUnauthorized):
		response.Forbidden(c, err.Error())
	case errors.Is(err, models.ErrInvalidArgument):
		response.BadRequest(c, err.Error())
	case errors.Is(err, models.ErrMessagingDisabled), errors.Is(err, models.ErrLectureEnded):
		response.Conflict(c, err.Error())
	default:
		response.Internal(c, "internal error")
	}
}
