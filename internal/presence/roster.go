// Package presence derives the active roster of a lecture and broadcasts it to the room.
package presence

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-lms/backend/internal/models"
	"github.com/aura-lms/backend/internal/signaling"
)

// ComputeActiveRoster groups records by user and keeps, for each user, the active record
// with the latest JoinedAt. Records without a user (deleted accounts) are skipped.
// The result is ordered by JoinedAt, then user id.
func ComputeActiveRoster(l *models.Lecture) []models.ParticipantRecord {
	if l == nil {
		return []models.ParticipantRecord{}
	}
	latest := make(map[uuid.UUID]models.ParticipantRecord)
	for _, p := range l.Participants {
		if p.UserID == nil || !p.Active() {
			continue
		}
		cur, ok := latest[*p.UserID]
		if !ok || p.JoinedAt.After(cur.JoinedAt) {
			latest[*p.UserID] = p.Clone()
		}
	}
	roster := make([]models.ParticipantRecord, 0, len(latest))
	for _, p := range latest {
		roster = append(roster, p)
	}
	sort.Slice(roster, func(i, j int) bool {
		if !roster[i].JoinedAt.Equal(roster[j].JoinedAt) {
			return roster[i].JoinedAt.Before(roster[j].JoinedAt)
		}
		return roster[i].UserID.String() < roster[j].UserID.String()
	})
	return roster
}

// ActiveUserIDs returns the user ids of the active roster.
func ActiveUserIDs(l *models.Lecture) []uuid.UUID {
	roster := ComputeActiveRoster(l)
	ids := make([]uuid.UUID, 0, len(roster))
	for _, p := range roster {
		ids = append(ids, *p.UserID)
	}
	return ids
}

// LectureGetter loads a lecture with its participant records.
type LectureGetter interface {
	GetLecture(ctx context.Context, id uuid.UUID) (*models.Lecture, error)
}

// Tracker emits roster snapshots.
type Tracker struct {
	lectures LectureGetter
	rooms    signaling.Rooms
	logger   *zap.Logger
	now      func() time.Time
}

// NewTracker creates a presence tracker.
func NewTracker(lectures LectureGetter, rooms signaling.Rooms, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{lectures: lectures, rooms: rooms, logger: logger, now: time.Now}
}

// Snapshot builds the participants-update payload for a lecture.
func (t *Tracker) Snapshot(ctx context.Context, lectureID uuid.UUID) (signaling.ParticipantsUpdate, error) {
	l, err := t.lectures.GetLecture(ctx, lectureID)
	if err != nil {
		return signaling.ParticipantsUpdate{}, err
	}
	roster := ComputeActiveRoster(l)
	return signaling.ParticipantsUpdate{
		LectureID:    lectureID,
		Participants: roster,
		Count:        len(roster),
		Timestamp:    t.now(),
	}, nil
}

// BroadcastRosterUpdate recomputes the roster and sends it to every connection in the room.
func (t *Tracker) BroadcastRosterUpdate(ctx context.Context, lectureID uuid.UUID) error {
	snap, err := t.Snapshot(ctx, lectureID)
	if err != nil {
		t.logger.Warn("roster broadcast failed", zap.String("lecture_id", lectureID.String()), zap.Error(err))
		return err
	}
	t.rooms.Broadcast(lectureID, signaling.EventParticipantsUpdate, snap)
	return nil
}

// SendRoster sends the current roster to a single connection.
func (t *Tracker) SendRoster(ctx context.Context, lectureID uuid.UUID, clientID string) error {
	snap, err := t.Snapshot(ctx, lectureID)
	if err != nil {
		return err
	}
	t.rooms.SendToClient(clientID, signaling.EventParticipantsUpdate, snap)
	return nil
}
