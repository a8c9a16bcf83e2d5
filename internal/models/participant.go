package models

import (
	"time"

	"github.com/google/uuid"
)

// ParticipantRecord is one join of one user into one lecture.
// UserID is nil when the account was deleted after joining.
type ParticipantRecord struct {
	UserID   *uuid.UUID `json:"user_id,omitempty"`
	Email    string     `json:"email,omitempty"`
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
}

// Active reports whether the record has no leave timestamp.
func (p ParticipantRecord) Active() bool {
	return p.LeftAt == nil
}

// Clone copies the pointer fields.
func (p ParticipantRecord) Clone() ParticipantRecord {
	cp := p
	if p.UserID != nil {
		id := *p.UserID
		cp.UserID = &id
	}
	if p.LeftAt != nil {
		t := *p.LeftAt
		cp.LeftAt = &t
	}
	return cp
}
