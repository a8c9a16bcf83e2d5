// Package entitlements answers whether a student may watch a paid lecture and builds the
// checkout descriptor when they may not.
package entitlements

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-lms/backend/internal/models"
)

// PaymentStore records course payments.
type PaymentStore interface {
	HasCompleted(ctx context.Context, courseID, userID uuid.UUID) (bool, error)
	CreatePending(ctx context.Context, p *models.Payment) error
}

// Repository is the PostgreSQL PaymentStore.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a payments repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// HasCompleted reports whether userID has a completed payment for courseID.
func (r *Repository) HasCompleted(ctx context.Context, courseID, userID uuid.UUID) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM payments WHERE course_id = $1 AND user_id = $2 AND status = $3)`
	var ok bool
	if err := r.pool.QueryRow(ctx, q, courseID, userID, models.PaymentStatusCompleted).Scan(&ok); err != nil {
		return false, fmt.Errorf("entitlement lookup: %w", err)
	}
	return ok, nil
}

// CreatePending stores a pending payment for a checkout that was just opened.
func (r *Repository) CreatePending(ctx context.Context, p *models.Payment) error {
	const q = `INSERT INTO payments (id, course_id, user_id, provider, order_id, amount_cents, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at`
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.Status = models.PaymentStatusPending
	err := r.pool.QueryRow(ctx, q, p.ID, p.CourseID, p.UserID, p.Provider, p.OrderID, p.AmountCents, p.Currency, p.Status).
		Scan(&p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// MemoryStore is an in-process PaymentStore.
type MemoryStore struct {
	mu       sync.Mutex
	payments []models.Payment
}

// NewMemoryStore creates an empty payment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Grant records a completed payment.
func (s *MemoryStore) Grant(courseID, userID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments = append(s.payments, models.Payment{
		ID: uuid.New(), CourseID: courseID, UserID: userID,
		Status: models.PaymentStatusCompleted, CreatedAt: time.Now(),
	})
}

func (s *MemoryStore) HasCompleted(_ context.Context, courseID, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.payments {
		if p.CourseID == courseID && p.UserID == userID && p.Status == models.PaymentStatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) CreatePending(_ context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.Status = models.PaymentStatusPending
	p.CreatedAt = time.Now()
	s.payments = append(s.payments, *p)
	return nil
}

// Pending returns the pending payments recorded so far.
func (s *MemoryStore) Pending() []models.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Payment
	for _, p := range s.payments {
		if p.Status == models.PaymentStatusPending {
			out = append(out, p)
		}
	}
	return out
}
