package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the kind of authenticated caller.
type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// ParseRole maps a handshake user type to a Role. The admin console calls teachers "admin".
func ParseRole(s string) (Role, bool) {
	switch s {
	case "admin", "teacher":
		return RoleTeacher, true
	case "student", "user":
		return RoleStudent, true
	}
	return "", false
}

// User represents a platform user.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Identity is the immutable result of authenticating a connection.
type Identity struct {
	ID    uuid.UUID `json:"id"`
	Role  Role      `json:"role"`
	Email string    `json:"email,omitempty"`
}

// IsTeacher reports whether the identity has the teacher role.
func (i Identity) IsTeacher() bool { return i.Role == RoleTeacher }

// IsStudent reports whether the identity has the student role.
func (i Identity) IsStudent() bool { return i.Role == RoleStudent }
