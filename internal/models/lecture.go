package models

import (
	"time"

	"github.com/google/uuid"
)

// LectureStatus is the lifecycle state of a live lecture.
type LectureStatus string

const (
	StatusIdle   LectureStatus = "idle"
	StatusLive   LectureStatus = "live"
	StatusPaused LectureStatus = "paused"
	StatusEnded  LectureStatus = "ended"
)

// ContentType distinguishes live-capable lectures from recorded content.
type ContentType string

const (
	ContentLive     ContentType = "live"
	ContentRecorded ContentType = "recorded"
)

// ConnectionAction is one entry kind in a lecture's connection history.
type ConnectionAction string

const (
	ActionStart      ConnectionAction = "start"
	ActionResume     ConnectionAction = "resume"
	ActionConnect    ConnectionAction = "connect"
	ActionDisconnect ConnectionAction = "disconnect"
	ActionEnd        ConnectionAction = "end"
)

// ConnectionEvent is an append-only audit entry.
type ConnectionEvent struct {
	Action    ConnectionAction `json:"action"`
	Timestamp time.Time        `json:"timestamp"`
}

// Lecture is the aggregate root of a live session.
type Lecture struct {
	ID                uuid.UUID           `json:"id"`
	CourseID          uuid.UUID           `json:"course_id"`
	TeacherID         uuid.UUID           `json:"teacher_id"`
	Title             string              `json:"title"`
	ChannelName       string              `json:"channel_name"`
	ContentType       ContentType         `json:"content_type"`
	Status            LectureStatus       `json:"status"`
	IsPaid            bool                `json:"is_paid"`
	PriceAmount       int64               `json:"price_amount"`
	Currency          string              `json:"currency"`
	PrivateChat       bool                `json:"private_chat"`
	MessagingDisabled bool                `json:"messaging_disabled"`
	ConnectionHistory []ConnectionEvent   `json:"connection_history"`
	Participants      []ParticipantRecord `json:"participants"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// IsOwnedBy reports whether userID is the lecture's teacher.
func (l *Lecture) IsOwnedBy(userID uuid.UUID) bool {
	return l.TeacherID == userID
}

// HasActiveParticipant reports whether userID holds an open participant record.
func (l *Lecture) HasActiveParticipant(userID uuid.UUID) bool {
	for _, p := range l.Participants {
		if p.Active() && p.UserID != nil && *p.UserID == userID {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers never share slices with a store.
func (l *Lecture) Clone() *Lecture {
	cp := *l
	cp.ConnectionHistory = append([]ConnectionEvent(nil), l.ConnectionHistory...)
	cp.Participants = make([]ParticipantRecord, len(l.Participants))
	for i, p := range l.Participants {
		cp.Participants[i] = p.Clone()
	}
	return &cp
}
