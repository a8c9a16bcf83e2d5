// Package lectures is the session store for live lectures: status, connection history,
// participant records and chat-mode flags, keyed by lecture id.
package lectures

import (
	"context"

	"github.com/google/uuid"

	"github.com/aura-lms/backend/internal/models"
)

// LectureUpdate is a partial update. Nil fields are left unchanged.
// Event, when set, is appended to the connection history in the same atomic step.
type LectureUpdate struct {
	Status            *models.LectureStatus
	PrivateChat       *bool
	MessagingDisabled *bool
	Event             *models.ConnectionAction
}

// Guard inspects the locked current state before an update is applied.
// A non-nil error aborts the update and is returned unchanged.
type Guard func(l *models.Lecture) error

// Store is the persistence contract. Every method is atomic with respect to
// concurrent callers operating on the same lecture id.
type Store interface {
	GetLecture(ctx context.Context, id uuid.UUID) (*models.Lecture, error)
	UpdateLecture(ctx context.Context, id uuid.UUID, upd LectureUpdate, guard Guard) (*models.Lecture, error)
	AppendConnectionHistory(ctx context.Context, id uuid.UUID, action models.ConnectionAction) error
	// UpsertParticipant refreshes the user's latest record (clears left_at, bumps joined_at)
	// or creates one. It fails with models.ErrLectureEnded once the lecture has ended.
	UpsertParticipant(ctx context.Context, id, userID uuid.UUID, email string) (*models.ParticipantRecord, error)
	MarkParticipantLeft(ctx context.Context, id, userID uuid.UUID) error
	MarkAllParticipantsLeft(ctx context.Context, id uuid.UUID) error
	// ListLiveByTeacher returns live lectures owned by teacherID, without history or participants.
	ListLiveByTeacher(ctx context.Context, teacherID uuid.UUID) ([]models.Lecture, error)
	// ListEndedWithOpenParticipants returns ended lectures that still have active participant records.
	ListEndedWithOpenParticipants(ctx context.Context) ([]uuid.UUID, error)
}

// SetStatus returns an update that moves the lecture to status and records action.
func SetStatus(status models.LectureStatus, action models.ConnectionAction) LectureUpdate {
	return LectureUpdate{Status: &status, Event: &action}
}
