package chat

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/aura-lms/backend/internal/lectures"
	"github.com/aura-lms/backend/internal/models"
	"github.com/aura-lms/backend/internal/signaling"
)

// MaxBodyLength is the longest accepted message, in characters.
const MaxBodyLength = 2000

// LectureStore is the subset of the session store the relay needs.
type LectureStore interface {
	GetLecture(ctx context.Context, id uuid.UUID) (*models.Lecture, error)
	UpdateLecture(ctx context.Context, id uuid.UUID, upd lectures.LectureUpdate, guard lectures.Guard) (*models.Lecture, error)
}

// Relay sends, lists and deletes chat messages.
type Relay struct {
	lectures LectureStore
	messages MessageStore
	rooms    signaling.Rooms
	logger   *zap.Logger
	now      func() time.Time
}

// NewRelay creates a chat relay.
func NewRelay(lectures LectureStore, messages MessageStore, rooms signaling.Rooms, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{lectures: lectures, messages: messages, rooms: rooms, logger: logger, now: time.Now}
}

func authenticated(id models.Identity) error {
	if id.ID == uuid.Nil || (!id.IsTeacher() && !id.IsStudent()) {
		return fmt.Errorf("chat requires a teacher or student: %w", models.ErrUnauthorized)
	}
	return nil
}

// SendMessage persists a message and fans it out. In private mode a student's message
// reaches only the sender's connection and the teacher; teacher messages always reach the room.
func (r *Relay) SendMessage(ctx context.Context, caller signaling.Caller, lectureID uuid.UUID, body string) (*models.ChatMessage, error) {
	if err := authenticated(caller.Identity); err != nil {
		return nil, err
	}
	body = strings.TrimSpace(body)
	if n := utf8.RuneCountInString(body); n == 0 || n > MaxBodyLength {
		return nil, fmt.Errorf("message must be 1..%d characters: %w", MaxBodyLength, models.ErrInvalidArgument)
	}
	l, err := r.lectures.GetLecture(ctx, lectureID)
	if err != nil {
		return nil, err
	}
	if l.MessagingDisabled {
		return nil, models.ErrMessagingDisabled
	}

	msg := &models.ChatMessage{
		ID:         ulid.Make().String(),
		LectureID:  lectureID,
		SenderID:   caller.Identity.ID,
		SenderKind: caller.Identity.Role,
		Body:       body,
		CreatedAt:  r.now().UTC(),
	}
	if err := r.messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	if !l.PrivateChat || caller.Identity.IsTeacher() {
		r.rooms.Broadcast(lectureID, signaling.EventNewMessage, msg)
	} else {
		r.rooms.SendToClient(caller.ClientID, signaling.EventNewMessage, msg)
		r.rooms.SendToUser(l.TeacherID, signaling.EventNewMessage, msg)
	}
	r.logger.Debug("chat message sent",
		zap.String("lecture_id", lectureID.String()),
		zap.String("user_id", caller.Identity.ID.String()),
		zap.Bool("private", l.PrivateChat))
	return msg, nil
}

// FetchHistory returns the lecture's messages as visible to the requester right now.
// Only the owning teacher sees every thread; in private mode everyone else sees
// teacher messages and their own.
func (r *Relay) FetchHistory(ctx context.Context, requester models.Identity, lectureID uuid.UUID) ([]models.ChatMessage, error) {
	if err := authenticated(requester); err != nil {
		return nil, err
	}
	l, err := r.lectures.GetLecture(ctx, lectureID)
	if err != nil {
		return nil, err
	}
	all, err := r.messages.ListByLecture(ctx, lectureID)
	if err != nil {
		return nil, err
	}
	if (requester.IsTeacher() && l.IsOwnedBy(requester.ID)) || !l.PrivateChat {
		return all, nil
	}
	visible := make([]models.ChatMessage, 0, len(all))
	for _, m := range all {
		if m.SenderKind == models.RoleTeacher || m.SenderID == requester.ID {
			visible = append(visible, m)
		}
	}
	return visible, nil
}

// DeleteMessage removes a message. Only the lecture's teacher may delete.
func (r *Relay) DeleteMessage(ctx context.Context, requester models.Identity, messageID string) error {
	if !requester.IsTeacher() {
		return fmt.Errorf("only a teacher may delete messages: %w", models.ErrUnauthorized)
	}
	msg, err := r.messages.Get(ctx, messageID)
	if err != nil {
		return err
	}
	l, err := r.lectures.GetLecture(ctx, msg.LectureID)
	if err != nil {
		return err
	}
	if !l.IsOwnedBy(requester.ID) {
		return fmt.Errorf("lecture %s is not owned by caller: %w", msg.LectureID, models.ErrUnauthorized)
	}
	if err := r.messages.Delete(ctx, messageID); err != nil {
		return err
	}
	r.rooms.Broadcast(msg.LectureID, signaling.EventMessageDeleted, signaling.MessageDeleted{MessageID: messageID})
	r.logger.Info("chat message deleted",
		zap.String("lecture_id", msg.LectureID.String()),
		zap.String("message_id", messageID),
		zap.String("user_id", requester.ID.String()))
	return nil
}

// SetChatMode persists both chat flags and broadcasts the new mode. Both flags are required.
func (r *Relay) SetChatMode(ctx context.Context, requester models.Identity, lectureID uuid.UUID, privateChat, messagingDisabled *bool) (signaling.ChatMode, error) {
	if !requester.IsTeacher() {
		return signaling.ChatMode{}, fmt.Errorf("only a teacher may change chat mode: %w", models.ErrUnauthorized)
	}
	if privateChat == nil || messagingDisabled == nil {
		return signaling.ChatMode{}, fmt.Errorf("privateChat and messagingDisabled must be booleans: %w", models.ErrInvalidArgument)
	}
	upd := lectures.LectureUpdate{PrivateChat: privateChat, MessagingDisabled: messagingDisabled}
	l, err := r.lectures.UpdateLecture(ctx, lectureID, upd, func(l *models.Lecture) error {
		if !l.IsOwnedBy(requester.ID) {
			return fmt.Errorf("lecture %s is not owned by caller: %w", lectureID, models.ErrUnauthorized)
		}
		return nil
	})
	if err != nil {
		return signaling.ChatMode{}, err
	}
	mode := signaling.ChatMode{LectureID: lectureID, PrivateChat: l.PrivateChat, MessagingDisabled: l.MessagingDisabled}
	r.rooms.Broadcast(lectureID, signaling.EventChatModeUpdated, mode)
	return mode, nil
}
