package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is a persisted lecture chat message. It is immutable; deletion removes it entirely.
type ChatMessage struct {
	ID         string    `json:"id"`
	LectureID  uuid.UUID `json:"lecture_id"`
	SenderID   uuid.UUID `json:"sender_id"`
	SenderKind Role      `json:"sender_kind"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}
