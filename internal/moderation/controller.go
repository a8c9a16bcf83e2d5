// Package moderation enforces teacher-controlled audio blocks for lecture participants.
package moderation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-lms/backend/internal/models"
	"github.com/aura-lms/backend/internal/presence"
	"github.com/aura-lms/backend/internal/signaling"
)

const (
	msgBlocked       = "Your microphone has been muted by the teacher."
	msgUnblocked     = "The teacher has unblocked your unmute. You may now unmute."
	msgUnblockedAll  = "The teacher has unblocked unmute for all. You may now unmute."
	msgUnmuteBlocked = "You are not allowed to unmute yourself. Please wait for the teacher's permission."
	msgUnmuteAllowed = "You may unmute."
)

// LectureGetter loads a lecture with its participant records.
type LectureGetter interface {
	GetLecture(ctx context.Context, id uuid.UUID) (*models.Lecture, error)
}

// Controller owns the per-lecture blocked set and the audio-control directives.
type Controller struct {
	lectures LectureGetter
	blocks   BlockStore
	rooms    signaling.Rooms
	logger   *zap.Logger
}

// NewController creates a moderation controller.
func NewController(lectures LectureGetter, blocks BlockStore, rooms signaling.Rooms, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{lectures: lectures, blocks: blocks, rooms: rooms, logger: logger}
}

// owned loads the lecture and verifies the caller is its teacher and it has not ended.
func (c *Controller) owned(ctx context.Context, caller signaling.Caller, lectureID uuid.UUID) (*models.Lecture, error) {
	if !caller.Identity.IsTeacher() {
		return nil, fmt.Errorf("moderation requires a teacher: %w", models.ErrUnauthorized)
	}
	l, err := c.lectures.GetLecture(ctx, lectureID)
	if err != nil {
		return nil, err
	}
	if !l.IsOwnedBy(caller.Identity.ID) {
		return nil, fmt.Errorf("lecture %s is not owned by caller: %w", lectureID, models.ErrUnauthorized)
	}
	if l.Status == models.StatusEnded {
		return nil, fmt.Errorf("lecture %s: %w", lectureID, models.ErrLectureEnded)
	}
	return l, nil
}

// BlockStudent bars userID from unmuting and tells their clients to mute.
func (c *Controller) BlockStudent(ctx context.Context, caller signaling.Caller, lectureID, userID uuid.UUID) error {
	l, err := c.owned(ctx, caller, lectureID)
	if err != nil {
		return err
	}
	if err := c.blocks.Add(ctx, lectureID, userID); err != nil {
		return err
	}
	c.rooms.SendToUser(userID, signaling.EventAudioControl, signaling.AudioControl{
		Mute: true, UnmuteBlocked: true, LectureID: lectureID, Message: msgBlocked,
	})
	c.logger.Info("student blocked", zap.String("lecture_id", lectureID.String()), zap.String("user_id", userID.String()))
	c.sendState(ctx, l)
	return nil
}

// UnblockStudent lifts the block on userID.
func (c *Controller) UnblockStudent(ctx context.Context, caller signaling.Caller, lectureID, userID uuid.UUID) error {
	l, err := c.owned(ctx, caller, lectureID)
	if err != nil {
		return err
	}
	if err := c.blocks.Remove(ctx, lectureID, userID); err != nil {
		return err
	}
	c.rooms.SendToUser(userID, signaling.EventAudioControl, signaling.AudioControl{
		Mute: false, UnmuteBlocked: false, LectureID: lectureID, Message: msgUnblocked,
	})
	c.logger.Info("student unblocked", zap.String("lecture_id", lectureID.String()), zap.String("user_id", userID.String()))
	c.sendState(ctx, l)
	return nil
}

// BlockAll blocks every active participant and returns the ids it blocked.
func (c *Controller) BlockAll(ctx context.Context, caller signaling.Caller, lectureID uuid.UUID) ([]uuid.UUID, error) {
	l, err := c.owned(ctx, caller, lectureID)
	if err != nil {
		return nil, err
	}
	ids := presence.ActiveUserIDs(l)
	if err := c.blocks.Add(ctx, lectureID, ids...); err != nil {
		return nil, err
	}
	for _, id := range ids {
		c.rooms.SendToUser(id, signaling.EventAudioControl, signaling.AudioControl{
			Mute: true, UnmuteBlocked: true, LectureID: lectureID, Message: msgBlocked,
		})
	}
	c.logger.Info("all students blocked", zap.String("lecture_id", lectureID.String()), zap.Int("count", len(ids)))
	c.sendState(ctx, l)
	return ids, nil
}

// UnblockAll clears the blocked set, signals the whole room and returns the ids that were blocked.
func (c *Controller) UnblockAll(ctx context.Context, caller signaling.Caller, lectureID uuid.UUID) ([]uuid.UUID, error) {
	l, err := c.owned(ctx, caller, lectureID)
	if err != nil {
		return nil, err
	}
	prev, err := c.blocks.Clear(ctx, lectureID)
	if err != nil {
		return nil, err
	}
	c.rooms.Broadcast(lectureID, signaling.EventAudioControl, signaling.AudioControl{
		Mute: false, UnmuteBlocked: false, LectureID: lectureID, Message: msgUnblockedAll,
	})
	c.logger.Info("all students unblocked", zap.String("lecture_id", lectureID.String()), zap.Int("count", len(prev)))
	c.sendState(ctx, l)
	return prev, nil
}

// StudentUnmuteRequest answers a client's attempt to unmute itself. A blocked caller gets
// its mute re-asserted; only the teacher's unblock lifts it.
func (c *Controller) StudentUnmuteRequest(ctx context.Context, caller signaling.Caller, lectureID uuid.UUID) error {
	blocked, err := c.blocks.IsBlocked(ctx, lectureID, caller.Identity.ID)
	if err != nil {
		return err
	}
	if blocked {
		c.rooms.SendToClient(caller.ClientID, signaling.EventUnmuteBlocked, signaling.AudioControl{
			Mute: true, UnmuteBlocked: true, LectureID: lectureID, Message: msgUnmuteBlocked,
		})
		return nil
	}
	c.rooms.SendToClient(caller.ClientID, signaling.EventUnmuteAllowed, signaling.AudioControl{
		Mute: false, UnmuteBlocked: false, LectureID: lectureID, Message: msgUnmuteAllowed,
	})
	return nil
}

// IsBlocked reports whether userID is currently blocked in the lecture.
func (c *Controller) IsBlocked(ctx context.Context, lectureID, userID uuid.UUID) (bool, error) {
	return c.blocks.IsBlocked(ctx, lectureID, userID)
}

// State returns the blocked set and the derived all-blocked flag.
func (c *Controller) State(ctx context.Context, l *models.Lecture) (signaling.ModerationState, error) {
	blocked, err := c.blocks.Members(ctx, l.ID)
	if err != nil {
		return signaling.ModerationState{}, err
	}
	set := make(map[uuid.UUID]bool, len(blocked))
	for _, id := range blocked {
		set[id] = true
	}
	active := presence.ActiveUserIDs(l)
	all := len(active) > 0
	for _, id := range active {
		if !set[id] {
			all = false
			break
		}
	}
	return signaling.ModerationState{LectureID: l.ID, BlockedUserIDs: blocked, AllBlocked: all}, nil
}

// Reset drops the lecture's moderation state.
func (c *Controller) Reset(ctx context.Context, lectureID uuid.UUID) error {
	_, err := c.blocks.Clear(ctx, lectureID)
	return err
}

func (c *Controller) sendState(ctx context.Context, l *models.Lecture) {
	st, err := c.State(ctx, l)
	if err != nil {
		c.logger.Warn("moderation state failed", zap.String("lecture_id", l.ID.String()), zap.Error(err))
		return
	}
	c.rooms.SendToUser(l.TeacherID, signaling.EventModerationState, st)
}
