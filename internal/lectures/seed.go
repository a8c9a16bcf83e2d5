package lectures

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/aura-lms/backend/internal/models"
)

// Creator inserts a lecture.
type Creator interface {
	Create(ctx context.Context, l *models.Lecture) error
}

// Seed reads a JSON array of lectures and creates each one. Every entry needs a
// teacher_id; runtime state such as status history and participants is ignored.
func Seed(ctx context.Context, store Creator, r io.Reader) (int, error) {
	var in []models.Lecture
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return 0, fmt.Errorf("decode seed: %w", err)
	}
	for i := range in {
		l := &in[i]
		if l.TeacherID == uuid.Nil {
			return i, fmt.Errorf("seed entry %d: teacher_id is required: %w", i, models.ErrInvalidArgument)
		}
		l.Status = models.StatusIdle
		l.ConnectionHistory = nil
		l.Participants = nil
		if err := store.Create(ctx, l); err != nil {
			return i, fmt.Errorf("seed entry %d: %w", i, err)
		}
	}
	return len(in), nil
}
