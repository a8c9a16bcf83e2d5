// Package lifecycle drives a lecture through idle → live ⇄ paused → ended and admits
// students into the lecture room.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-lms/backend/internal/lectures"
	"github.com/aura-lms/backend/internal/models"
	"github.com/aura-lms/backend/internal/signaling"
)

// TokenIssuer issues media channel tokens.
type TokenIssuer interface {
	PublisherToken(channel string, userID uuid.UUID) (string, error)
	SubscriberToken(channel string, userID uuid.UUID) (string, error)
}

// Entitlements answers paid-content checks.
type Entitlements interface {
	Verified(ctx context.Context, courseID, userID uuid.UUID) (bool, error)
	Checkout(ctx context.Context, l *models.Lecture, student models.Identity) (models.Checkout, error)
}

// Roster recomputes and emits the active roster.
type Roster interface {
	Snapshot(ctx context.Context, lectureID uuid.UUID) (signaling.ParticipantsUpdate, error)
	BroadcastRosterUpdate(ctx context.Context, lectureID uuid.UUID) error
	SendRoster(ctx context.Context, lectureID uuid.UUID, clientID string) error
}

// ModerationResetter drops a lecture's moderation state.
type ModerationResetter interface {
	Reset(ctx context.Context, lectureID uuid.UUID) error
}

// Archiver schedules post-lecture archiving.
type Archiver interface {
	EnqueueLectureArchive(ctx context.Context, lectureID uuid.UUID, endedAt time.Time) error
}

// JoinKind is the outcome of a student join request.
type JoinKind int

const (
	JoinSucceeded JoinKind = iota
	JoinEnded
	JoinPaymentRequired
)

// JoinResult is returned by StudentJoinRequest. Exactly one payload is set, matching Kind.
type JoinResult struct {
	Kind            JoinKind
	Success         *signaling.JoinSuccess
	Ended           *signaling.LectureEnded
	PaymentRequired *signaling.PaymentRequired
}

// Deps wires a Machine.
type Deps struct {
	Store        lectures.Store
	Tokens       TokenIssuer
	Entitlements Entitlements
	Roster       Roster
	Moderation   ModerationResetter
	Archiver     Archiver
	Rooms        signaling.Rooms
	Logger       *zap.Logger
}

// Machine implements the lecture lifecycle.
type Machine struct {
	store        lectures.Store
	tokens       TokenIssuer
	entitlements Entitlements
	roster       Roster
	moderation   ModerationResetter
	archiver     Archiver
	rooms        signaling.Rooms
	logger       *zap.Logger
	now          func() time.Time
}

// NewMachine creates a lifecycle machine. Moderation and Archiver are optional.
func NewMachine(d Deps) *Machine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Machine{
		store:        d.Store,
		tokens:       d.Tokens,
		entitlements: d.Entitlements,
		roster:       d.Roster,
		moderation:   d.Moderation,
		archiver:     d.Archiver,
		rooms:        d.Rooms,
		logger:       d.Logger,
		now:          time.Now,
	}
}

// SetClock overrides the time source.
func (m *Machine) SetClock(now func() time.Time) {
	m.now = now
}

var errNotLive = errors.New("lecture is not live")

// ownerGuard rejects a locked lecture the caller does not own or that has ended.
func ownerGuard(teacherID uuid.UUID) lectures.Guard {
	return func(l *models.Lecture) error {
		if !l.IsOwnedBy(teacherID) {
			return fmt.Errorf("lecture %s is not owned by caller: %w", l.ID, models.ErrUnauthorized)
		}
		if l.Status == models.StatusEnded {
			return fmt.Errorf("lecture %s: %w", l.ID, models.ErrLectureEnded)
		}
		return nil
	}
}

// ownedLecture loads a lecture the teacher may drive.
func (m *Machine) ownedLecture(ctx context.Context, caller signaling.Caller, lectureID uuid.UUID) (*models.Lecture, error) {
	if !caller.Identity.IsTeacher() {
		return nil, fmt.Errorf("teacher role required: %w", models.ErrUnauthorized)
	}
	l, err := m.store.GetLecture(ctx, lectureID)
	if err != nil {
		return nil, err
	}
	if err := ownerGuard(caller.Identity.ID)(l); err != nil {
		return nil, err
	}
	return l, nil
}

// GoLive starts or resumes the broadcast and returns a publisher token.
func (m *Machine) GoLive(ctx context.Context, caller signaling.Caller, lectureID uuid.UUID, isResume bool) (signaling.GoLiveSuccess, error) {
	l, err := m.ownedLecture(ctx, caller, lectureID)
	if err != nil {
		return signaling.GoLiveSuccess{}, err
	}
	if l.ContentType != models.ContentLive {
		return signaling.GoLiveSuccess{}, fmt.Errorf("lecture %s is not a live lecture: %w", lectureID, models.ErrNotFound)
	}
	token, err := m.tokens.PublisherToken(l.ChannelName, caller.Identity.ID)
	if err != nil {
		return signaling.GoLiveSuccess{}, fmt.Errorf("publisher token: %w", err)
	}
	action := models.ActionStart
	if isResume {
		action = models.ActionResume
	}
	updated, err := m.store.UpdateLecture(ctx, lectureID, lectures.SetStatus(models.StatusLive, action), ownerGuard(caller.Identity.ID))
	if err != nil {
		return signaling.GoLiveSuccess{}, err
	}
	m.rooms.Join(caller.ClientID, lectureID)
	m.logger.Info("lecture live",
		zap.String("lecture_id", lectureID.String()),
		zap.String("user_id", caller.Identity.ID.String()),
		zap.String("action", string(action)))
	return signaling.GoLiveSuccess{Token: token, ChannelName: updated.ChannelName, Status: updated.Status}, nil
}

// AdminConnect re-affirms live status once the teacher's media client joined the channel.
// An idle lecture must go live first.
func (m *Machine) AdminConnect(ctx context.Context, caller signaling.Caller, lectureID uuid.UUID) (signaling.LectureConnected, error) {
	if _, err := m.ownedLecture(ctx, caller, lectureID); err != nil {
		return signaling.LectureConnected{}, err
	}
	guard := ownerGuard(caller.Identity.ID)
	updated, err := m.store.UpdateLecture(ctx, lectureID, lectures.SetStatus(models.StatusLive, models.ActionConnect), func(l *models.Lecture) error {
		if err := guard(l); err != nil {
			return err
		}
		if l.Status == models.StatusIdle {
			return fmt.Errorf("lecture %s has not gone live: %w", lectureID, models.ErrInvalidArgument)
		}
		return nil
	})
	if err != nil {
		return signaling.LectureConnected{}, err
	}
	m.rooms.Join(caller.ClientID, lectureID)
	m.rooms.Broadcast(lectureID, signaling.EventLectureUpdate, signaling.LectureUpdate{
		LectureID: lectureID,
		Status:    models.StatusLive,
		Message:   "Teacher has joined the lecture",
		Teacher:   caller.Identity.Email,
		Timestamp: m.now(),
	})
	snap, err := m.roster.Snapshot(ctx, lectureID)
	if err != nil {
		return signaling.LectureConnected{}, err
	}
	return signaling.LectureConnected{
		LectureID:    lectureID,
		ChannelName:  updated.ChannelName,
		Participants: snap.Participants,
	}, nil
}

// EndLecture terminates the lecture, closes every participant record and empties the room.
func (m *Machine) EndLecture(ctx context.Context, caller signaling.Caller, lectureID uuid.UUID) error {
	if _, err := m.ownedLecture(ctx, caller, lectureID); err != nil {
		return err
	}
	if _, err := m.store.UpdateLecture(ctx, lectureID, lectures.SetStatus(models.StatusEnded, models.ActionEnd), ownerGuard(caller.Identity.ID)); err != nil {
		return err
	}
	endedAt := m.now()
	log := m.logger.With(zap.String("lecture_id", lectureID.String()))

	// The lecture is already ended; the rest is cleanup the sweeper can finish.
	if err := m.store.MarkAllParticipantsLeft(ctx, lectureID); err != nil {
		log.Error("mark participants left failed", zap.Error(err))
	}
	if m.moderation != nil {
		if err := m.moderation.Reset(ctx, lectureID); err != nil {
			log.Warn("moderation reset failed", zap.Error(err))
		}
	}
	m.rooms.Broadcast(lectureID, signaling.EventLectureEnded, signaling.LectureEnded{
		LectureID: lectureID,
		Status:    models.StatusEnded,
		Message:   "Lecture has ended",
		Timestamp: endedAt,
	})
	_ = m.roster.BroadcastRosterUpdate(ctx, lectureID)
	m.rooms.Close(lectureID)
	if m.archiver != nil {
		if err := m.archiver.EnqueueLectureArchive(ctx, lectureID, endedAt); err != nil {
			log.Warn("enqueue archive failed", zap.Error(err))
		}
	}
	log.Info("lecture ended", zap.String("user_id", caller.Identity.ID.String()))
	return nil
}

// StudentJoinRequest admits a student, or reports why not.
func (m *Machine) StudentJoinRequest(ctx context.Context, caller signaling.Caller, lectureID uuid.UUID) (JoinResult, error) {
	if !caller.Identity.IsStudent() {
		return JoinResult{}, fmt.Errorf("student role required: %w", models.ErrUnauthorized)
	}
	l, err := m.store.GetLecture(ctx, lectureID)
	if err != nil {
		return JoinResult{}, err
	}
	if l.ContentType != models.ContentLive {
		return JoinResult{}, fmt.Errorf("lecture %s is not a live lecture: %w", lectureID, models.ErrNotFound)
	}
	if l.Status == models.StatusEnded {
		return m.ended(lectureID), nil
	}
	if l.IsPaid {
		ok, err := m.entitlements.Verified(ctx, l.CourseID, caller.Identity.ID)
		if err != nil {
			return JoinResult{}, fmt.Errorf("entitlement check: %w", err)
		}
		if !ok {
			co, err := m.entitlements.Checkout(ctx, l, caller.Identity)
			if err != nil {
				return JoinResult{}, fmt.Errorf("checkout: %w", err)
			}
			return JoinResult{Kind: JoinPaymentRequired, PaymentRequired: &signaling.PaymentRequired{
				LectureID: lectureID,
				Message:   "This lecture requires purchase of the course",
				Checkout:  co,
			}}, nil
		}
	}

	if _, err := m.store.UpsertParticipant(ctx, lectureID, caller.Identity.ID, caller.Identity.Email); err != nil {
		if errors.Is(err, models.ErrLectureEnded) {
			return m.ended(lectureID), nil
		}
		return JoinResult{}, err
	}
	token, err := m.tokens.SubscriberToken(l.ChannelName, caller.Identity.ID)
	if err != nil {
		return JoinResult{}, fmt.Errorf("subscriber token: %w", err)
	}
	m.rooms.Join(caller.ClientID, lectureID)
	m.rooms.BroadcastExcept(lectureID, caller.ClientID, signaling.EventParticipantJoined, signaling.ParticipantJoined{
		LectureID: lectureID,
		UserID:    caller.Identity.ID,
		Timestamp: m.now(),
	})
	_ = m.roster.BroadcastRosterUpdate(ctx, lectureID)
	m.logger.Info("student joined",
		zap.String("lecture_id", lectureID.String()),
		zap.String("user_id", caller.Identity.ID.String()),
		zap.String("client_id", caller.ClientID))
	return JoinResult{Kind: JoinSucceeded, Success: &signaling.JoinSuccess{
		Token:       token,
		ChannelName: l.ChannelName,
		TeacherID:   l.TeacherID,
		Status:      l.Status,
	}}, nil
}

func (m *Machine) ended(lectureID uuid.UUID) JoinResult {
	return JoinResult{Kind: JoinEnded, Ended: &signaling.LectureEnded{
		LectureID: lectureID,
		Status:    models.StatusEnded,
		Message:   "Lecture has ended",
		Timestamp: m.now(),
	}}
}

// RemoveParticipant evicts a student from the lecture.
func (m *Machine) RemoveParticipant(ctx context.Context, caller signaling.Caller, lectureID, userID uuid.UUID) error {
	if _, err := m.ownedLecture(ctx, caller, lectureID); err != nil {
		return err
	}
	if err := m.store.MarkParticipantLeft(ctx, lectureID, userID); err != nil {
		return err
	}
	m.rooms.SendToUser(userID, signaling.EventRemovedFromLecture, signaling.RemovedFromLecture{
		LectureID: lectureID,
		Message:   "You have been removed from the lecture by the teacher",
	})
	m.rooms.EvictUser(lectureID, userID)
	_ = m.roster.BroadcastRosterUpdate(ctx, lectureID)
	m.logger.Info("participant removed", zap.String("lecture_id", lectureID.String()), zap.String("user_id", userID.String()))
	return nil
}

// RequestParticipants sends the current roster to the requesting connection. Teachers
// must own the lecture; students must be active participants in it.
func (m *Machine) RequestParticipants(ctx context.Context, caller signaling.Caller, lectureID uuid.UUID) error {
	switch {
	case caller.Identity.IsTeacher():
		if _, err := m.ownedLecture(ctx, caller, lectureID); err != nil && !errors.Is(err, models.ErrLectureEnded) {
			return err
		}
	case caller.Identity.IsStudent():
		l, err := m.store.GetLecture(ctx, lectureID)
		if err != nil {
			return err
		}
		if !l.HasActiveParticipant(caller.Identity.ID) {
			return fmt.Errorf("not a participant of lecture %s: %w", lectureID, models.ErrUnauthorized)
		}
	default:
		return fmt.Errorf("roster requires a teacher or student: %w", models.ErrUnauthorized)
	}
	return m.roster.SendRoster(ctx, lectureID, caller.ClientID)
}

// HandleDisconnect reconciles state after a connection drops. departed lists the lecture
// rooms the user no longer has any connection in; lastConnection is true when the user
// has no connection left at all. Failures are logged only.
func (m *Machine) HandleDisconnect(ctx context.Context, identity models.Identity, departed []uuid.UUID, lastConnection bool) {
	log := m.logger.With(zap.String("user_id", identity.ID.String()))
	if identity.IsTeacher() && lastConnection {
		live, err := m.store.ListLiveByTeacher(ctx, identity.ID)
		if err != nil {
			log.Error("list live lectures failed", zap.Error(err))
		}
		for _, l := range live {
			_, err := m.store.UpdateLecture(ctx, l.ID, lectures.SetStatus(models.StatusPaused, models.ActionDisconnect), func(cur *models.Lecture) error {
				if cur.Status != models.StatusLive {
					return errNotLive
				}
				return nil
			})
			if errors.Is(err, errNotLive) {
				continue
			}
			if err != nil {
				log.Error("pause lecture failed", zap.String("lecture_id", l.ID.String()), zap.Error(err))
				continue
			}
			m.rooms.Broadcast(l.ID, signaling.EventLectureUpdate, signaling.LectureUpdate{
				LectureID: l.ID,
				Status:    models.StatusPaused,
				Message:   "Teacher disconnected",
				Timestamp: m.now(),
			})
			log.Info("lecture paused on disconnect", zap.String("lecture_id", l.ID.String()))
		}
	}
	if identity.IsStudent() {
		for _, id := range departed {
			if err := m.store.MarkParticipantLeft(ctx, id, identity.ID); err != nil {
				log.Warn("mark participant left failed", zap.String("lecture_id", id.String()), zap.Error(err))
				continue
			}
			_ = m.roster.BroadcastRosterUpdate(ctx, id)
		}
	}
}
