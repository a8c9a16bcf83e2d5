// Package chat persists lecture chat messages and fans them out under the lecture's
// public/private visibility rules.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-lms/backend/internal/models"
)

// MessageStore persists chat messages. List returns messages in creation order.
type MessageStore interface {
	Create(ctx context.Context, m *models.ChatMessage) error
	Get(ctx context.Context, id string) (*models.ChatMessage, error)
	ListByLecture(ctx context.Context, lectureID uuid.UUID) ([]models.ChatMessage, error)
	// Delete hard-deletes the message. Missing ids yield models.ErrNotFound.
	Delete(ctx context.Context, id string) error
}

// MemoryStore keeps messages in process.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]models.ChatMessage
}

// NewMemoryStore creates an empty message store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]models.ChatMessage)}
}

func (s *MemoryStore) Create(_ context.Context, m *models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[m.ID]; ok {
		return fmt.Errorf("message %s already exists", m.ID)
	}
	s.byID[m.ID] = *m
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("message %s: %w", id, models.ErrNotFound)
	}
	return &m, nil
}

func (s *MemoryStore) ListByLecture(_ context.Context, lectureID uuid.UUID) ([]models.ChatMessage, error) {
	s.mu.RLock()
	out := make([]models.ChatMessage, 0)
	for _, m := range s.byID {
		if m.LectureID == lectureID {
			out = append(out, m)
		}
	}
	s.mu.RUnlock()
	// ULIDs sort lexically in creation order.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return fmt.Errorf("message %s: %w", id, models.ErrNotFound)
	}
	delete(s.byID, id)
	return nil
}

// Repository is the PostgreSQL MessageStore.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a chat message repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, m *models.ChatMessage) error {
	const q = `INSERT INTO chat_messages (id, lecture_id, sender_id, sender_kind, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, q, m.ID, m.LectureID, m.SenderID, string(m.SenderKind), m.Body, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*models.ChatMessage, error) {
	const q = `SELECT id, lecture_id, sender_id, sender_kind, body, created_at FROM chat_messages WHERE id = $1`
	var m models.ChatMessage
	err := r.pool.QueryRow(ctx, q, id).Scan(&m.ID, &m.LectureID, &m.SenderID, &m.SenderKind, &m.Body, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repository) ListByLecture(ctx context.Context, lectureID uuid.UUID) ([]models.ChatMessage, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, lecture_id, sender_id, sender_kind, body, created_at FROM chat_messages
		 WHERE lecture_id = $1 ORDER BY id`, lectureID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]models.ChatMessage, 0)
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.LectureID, &m.SenderID, &m.SenderKind, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM chat_messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete chat message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("message %s: %w", id, models.ErrNotFound)
	}
	return nil
}
