package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus values that matter for entitlement checks.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusRefunded  = "refunded"
)

// Payment is a course purchase by a student.
type Payment struct {
	ID          uuid.UUID `json:"id"`
	CourseID    uuid.UUID `json:"course_id"`
	UserID      uuid.UUID `json:"user_id"`
	Provider    string    `json:"provider"`
	OrderID     string    `json:"order_id"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Checkout describes how a student can pay for a paid lecture's course.
type Checkout struct {
	CourseID    uuid.UUID `json:"courseId"`
	LectureID   uuid.UUID `json:"lectureId"`
	Price       int64     `json:"price"`
	Currency    string    `json:"currency"`
	OrderID     string    `json:"orderId,omitempty"`
	Token       string    `json:"token,omitempty"`
	RedirectURL string    `json:"redirectUrl,omitempty"`
}
