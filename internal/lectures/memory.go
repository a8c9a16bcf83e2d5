package lectures

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aura-lms/backend/internal/models"
)

// MemoryStore is an in-process Store. Each lecture has its own mutex so
// mutations on one lecture are serialized without blocking the others.
type MemoryStore struct {
	mu       sync.RWMutex
	lectures map[uuid.UUID]*memLecture
	now      func() time.Time
}

type memLecture struct {
	mu      sync.Mutex
	lecture *models.Lecture
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lectures: make(map[uuid.UUID]*memLecture),
		now:      time.Now,
	}
}

// SetClock overrides the time source.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.now = now
}

// Create inserts a lecture. Missing id, channel name, status and content type get defaults.
func (s *MemoryStore) Create(_ context.Context, l *models.Lecture) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.ChannelName == "" {
		l.ChannelName = "lecture-" + l.ID.String()
	}
	if l.Status == "" {
		l.Status = models.StatusIdle
	}
	if l.ContentType == "" {
		l.ContentType = models.ContentLive
	}
	now := s.now()
	l.CreatedAt, l.UpdatedAt = now, now

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lectures[l.ID]; ok {
		return fmt.Errorf("lecture %s already exists", l.ID)
	}
	s.lectures[l.ID] = &memLecture{lecture: l.Clone()}
	return nil
}

func (s *MemoryStore) entry(id uuid.UUID) (*memLecture, error) {
	s.mu.RLock()
	e, ok := s.lectures[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("lecture %s: %w", id, models.ErrNotFound)
	}
	return e, nil
}

func (s *MemoryStore) GetLecture(_ context.Context, id uuid.UUID) (*models.Lecture, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lecture.Clone(), nil
}

func (s *MemoryStore) UpdateLecture(_ context.Context, id uuid.UUID, upd LectureUpdate, guard Guard) (*models.Lecture, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if guard != nil {
		if err := guard(e.lecture.Clone()); err != nil {
			return nil, err
		}
	}
	now := s.now()
	l := e.lecture
	if upd.Status != nil {
		l.Status = *upd.Status
	}
	if upd.PrivateChat != nil {
		l.PrivateChat = *upd.PrivateChat
	}
	if upd.MessagingDisabled != nil {
		l.MessagingDisabled = *upd.MessagingDisabled
	}
	if upd.Event != nil {
		l.ConnectionHistory = append(l.ConnectionHistory, models.ConnectionEvent{Action: *upd.Event, Timestamp: now})
	}
	l.UpdatedAt = now
	return l.Clone(), nil
}

func (s *MemoryStore) AppendConnectionHistory(_ context.Context, id uuid.UUID, action models.ConnectionAction) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lecture.ConnectionHistory = append(e.lecture.ConnectionHistory, models.ConnectionEvent{Action: action, Timestamp: s.now()})
	return nil
}

func (s *MemoryStore) UpsertParticipant(_ context.Context, id, userID uuid.UUID, email string) (*models.ParticipantRecord, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.lecture.Status == models.StatusEnded {
		return nil, fmt.Errorf("lecture %s: %w", id, models.ErrLectureEnded)
	}
	now := s.now()
	latest := -1
	for i, p := range e.lecture.Participants {
		if p.UserID == nil || *p.UserID != userID {
			continue
		}
		if latest < 0 || p.JoinedAt.After(e.lecture.Participants[latest].JoinedAt) {
			latest = i
		}
	}
	if latest >= 0 {
		rec := &e.lecture.Participants[latest]
		rec.JoinedAt = now
		rec.LeftAt = nil
		if email != "" {
			rec.Email = email
		}
		cp := rec.Clone()
		return &cp, nil
	}
	uid := userID
	rec := models.ParticipantRecord{UserID: &uid, Email: email, JoinedAt: now}
	e.lecture.Participants = append(e.lecture.Participants, rec)
	cp := rec.Clone()
	return &cp, nil
}

func (s *MemoryStore) MarkParticipantLeft(_ context.Context, id, userID uuid.UUID) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	now := s.now()
	for i := range e.lecture.Participants {
		p := &e.lecture.Participants[i]
		if p.UserID != nil && *p.UserID == userID && p.LeftAt == nil {
			t := now
			p.LeftAt = &t
		}
	}
	return nil
}

func (s *MemoryStore) MarkAllParticipantsLeft(_ context.Context, id uuid.UUID) error {
	e, err := s.entry(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	now := s.now()
	for i := range e.lecture.Participants {
		p := &e.lecture.Participants[i]
		if p.LeftAt == nil {
			t := now
			p.LeftAt = &t
		}
	}
	return nil
}

func (s *MemoryStore) ListLiveByTeacher(_ context.Context, teacherID uuid.UUID) ([]models.Lecture, error) {
	var out []models.Lecture
	for _, e := range s.snapshot() {
		e.mu.Lock()
		if e.lecture.TeacherID == teacherID && e.lecture.Status == models.StatusLive {
			l := e.lecture.Clone()
			l.ConnectionHistory, l.Participants = nil, nil
			out = append(out, *l)
		}
		e.mu.Unlock()
	}
	return out, nil
}

func (s *MemoryStore) ListEndedWithOpenParticipants(_ context.Context) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for _, e := range s.snapshot() {
		e.mu.Lock()
		if e.lecture.Status == models.StatusEnded {
			for _, p := range e.lecture.Participants {
				if p.Active() {
					out = append(out, e.lecture.ID)
					break
				}
			}
		}
		e.mu.Unlock()
	}
	return out, nil
}

func (s *MemoryStore) snapshot() []*memLecture {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*memLecture, 0, len(s.lectures))
	for _, e := range s.lectures {
		out = append(out, e)
	}
	return out
}
