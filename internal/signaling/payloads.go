package signaling

import (
	"time"

	"github.com/google/uuid"

	"github.com/aura-lms/backend/internal/models"
)

// GoLiveRequest is the go-live payload.
type GoLiveRequest struct {
	LectureID string `json:"lectureId" validate:"required,uuid"`
	IsResume  bool   `json:"isResume"`
}

// LectureRef carries only a lecture id. Clients may also send the bare id string.
type LectureRef struct {
	LectureID string `json:"lectureId" validate:"required,uuid"`
}

// UserTargetRequest addresses one participant of a lecture.
type UserTargetRequest struct {
	LectureID string `json:"lectureId" validate:"required,uuid"`
	UserID    string `json:"userId" validate:"required,uuid"`
}

// SendMessageRequest is the send-message payload.
type SendMessageRequest struct {
	LectureID string `json:"lectureId" validate:"required,uuid"`
	Message   string `json:"message"`
}

// DeleteMessageRequest is the delete-message payload.
type DeleteMessageRequest struct {
	MessageID string `json:"messageId" validate:"required"`
}

// ChatModeRequest is the set-private-public-chat payload. Pointers detect missing flags.
type ChatModeRequest struct {
	LectureID         string `json:"lectureId" validate:"required,uuid"`
	PrivateChat       *bool  `json:"privateChat"`
	MessagingDisabled *bool  `json:"messagingDisabled"`
}

// GoLiveSuccess answers go-live.
type GoLiveSuccess struct {
	Token       string               `json:"token"`
	ChannelName string               `json:"channelName"`
	Status      models.LectureStatus `json:"status"`
}

// JoinSuccess answers a student join.
type JoinSuccess struct {
	Token       string               `json:"token"`
	ChannelName string               `json:"channelName"`
	TeacherID   uuid.UUID            `json:"teacherIdentity"`
	Status      models.LectureStatus `json:"status"`
}

// LectureUpdate is broadcast on live/paused transitions.
type LectureUpdate struct {
	LectureID uuid.UUID            `json:"lectureId"`
	Status    models.LectureStatus `json:"status"`
	Message   string               `json:"message"`
	Teacher   string               `json:"teacher,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

// LectureConnected confirms admin-connect to the teacher.
type LectureConnected struct {
	LectureID    uuid.UUID                  `json:"lectureId"`
	ChannelName  string                     `json:"channelName"`
	Participants []models.ParticipantRecord `json:"participants"`
}

// LectureEnded is the terminal broadcast.
type LectureEnded struct {
	LectureID uuid.UUID            `json:"lectureId"`
	Status    models.LectureStatus `json:"status"`
	Message   string               `json:"message"`
	Timestamp time.Time            `json:"timestamp"`
}

// ParticipantJoined notifies the room of a new participant.
type ParticipantJoined struct {
	LectureID uuid.UUID `json:"lectureId"`
	UserID    uuid.UUID `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

// ParticipantsUpdate is the roster broadcast.
type ParticipantsUpdate struct {
	LectureID    uuid.UUID                  `json:"lectureId"`
	Participants []models.ParticipantRecord `json:"participants"`
	Count        int                        `json:"count"`
	Timestamp    time.Time                  `json:"timestamp"`
}

// AudioControl is a mute directive for a student client.
type AudioControl struct {
	Mute          bool      `json:"mute"`
	UnmuteBlocked bool      `json:"unmuteBlocked"`
	LectureID     uuid.UUID `json:"lectureId"`
	Message       string    `json:"message"`
}

// ModerationState is sent to the owning teacher after a moderation change.
type ModerationState struct {
	LectureID      uuid.UUID   `json:"lectureId"`
	BlockedUserIDs []uuid.UUID `json:"blockedUserIds"`
	AllBlocked     bool        `json:"allBlocked"`
}

// MessageDeleted carries only the deleted message id.
type MessageDeleted struct {
	MessageID string `json:"messageId"`
}

// MessageHistory answers a history request.
type MessageHistory struct {
	LectureID uuid.UUID            `json:"lectureId"`
	Messages  []models.ChatMessage `json:"messages"`
}

// ChatMode is broadcast when the chat mode changes.
type ChatMode struct {
	LectureID         uuid.UUID `json:"lectureId"`
	PrivateChat       bool      `json:"privateChat"`
	MessagingDisabled bool      `json:"messagingDisabled"`
}

// ErrorMessage is the payload of every *-error event.
type ErrorMessage struct {
	Message string `json:"message"`
}

// RemovedFromLecture tells an evicted user why they were removed.
type RemovedFromLecture struct {
	LectureID uuid.UUID `json:"lectureId"`
	Message   string    `json:"message"`
}

// PaymentRequired answers a join for paid content the student has not bought.
type PaymentRequired struct {
	LectureID uuid.UUID       `json:"lectureId"`
	Message   string          `json:"message"`
	Checkout  models.Checkout `json:"checkout"`
}

// EndLectureSuccess confirms end-lecture to the teacher.
type EndLectureSuccess struct {
	LectureID uuid.UUID `json:"lectureId"`
}
