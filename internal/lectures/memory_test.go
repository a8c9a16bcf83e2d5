package lectures

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-lms/backend/internal/models"
)

func newLecture(t *testing.T, s *MemoryStore) *models.Lecture {
	t.Helper()
	l := &models.Lecture{TeacherID: uuid.New(), Title: "Algebra"}
	require.NoError(t, s.Create(context.Background(), l))
	return l
}

func TestMemoryStore_CreateDefaults(t *testing.T) {
	s := NewMemoryStore()
	l := newLecture(t, s)
	got, err := s.GetLecture(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusIdle, got.Status)
	assert.Equal(t, models.ContentLive, got.ContentType)
	assert.Equal(t, "lecture-"+l.ID.String(), got.ChannelName)

	err = s.Create(context.Background(), &models.Lecture{ID: l.ID})
	assert.Error(t, err)
}

func TestMemoryStore_GetMissing(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.GetLecture(context.Background(), uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemoryStore_UpdateLecture(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	l := newLecture(t, s)

	got, err := s.UpdateLecture(ctx, l.ID, SetStatus(models.StatusLive, models.ActionStart), nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLive, got.Status)
	require.Len(t, got.ConnectionHistory, 1)
	assert.Equal(t, models.ActionStart, got.ConnectionHistory[0].Action)

	priv := true
	got, err = s.UpdateLecture(ctx, l.ID, LectureUpdate{PrivateChat: &priv}, nil)
	require.NoError(t, err)
	assert.True(t, got.PrivateChat)
	assert.Equal(t, models.StatusLive, got.Status)
	assert.Len(t, got.ConnectionHistory, 1)
}

func TestMemoryStore_GuardRejects(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	l := newLecture(t, s)
	stop := errors.New("stop")

	_, err := s.UpdateLecture(ctx, l.ID, SetStatus(models.StatusEnded, models.ActionEnd), func(*models.Lecture) error { return stop })
	assert.ErrorIs(t, err, stop)

	got, err := s.GetLecture(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusIdle, got.Status)
	assert.Empty(t, got.ConnectionHistory)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	l := newLecture(t, s)
	_, err := s.UpsertParticipant(ctx, l.ID, uuid.New(), "")
	require.NoError(t, err)

	got, err := s.GetLecture(ctx, l.ID)
	require.NoError(t, err)
	got.Participants[0].Email = "mutated"
	got.Status = models.StatusEnded

	again, err := s.GetLecture(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "", again.Participants[0].Email)
	assert.Equal(t, models.StatusIdle, again.Status)
}

func TestMemoryStore_UpsertRefreshesLatest(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })
	ctx := context.Background()
	l := newLecture(t, s)
	user := uuid.New()

	_, err := s.UpsertParticipant(ctx, l.ID, user, "a@example.com")
	require.NoError(t, err)
	require.NoError(t, s.MarkParticipantLeft(ctx, l.ID, user))

	now = now.Add(time.Minute)
	rec, err := s.UpsertParticipant(ctx, l.ID, user, "")
	require.NoError(t, err)
	assert.Nil(t, rec.LeftAt)
	assert.Equal(t, now, rec.JoinedAt)
	assert.Equal(t, "a@example.com", rec.Email)

	got, err := s.GetLecture(ctx, l.ID)
	require.NoError(t, err)
	assert.Len(t, got.Participants, 1)
}

func TestMemoryStore_UpsertRefusedWhenEnded(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	l := newLecture(t, s)
	_, err := s.UpdateLecture(ctx, l.ID, SetStatus(models.StatusEnded, models.ActionEnd), nil)
	require.NoError(t, err)

	_, err = s.UpsertParticipant(ctx, l.ID, uuid.New(), "")
	assert.ErrorIs(t, err, models.ErrLectureEnded)
}

func TestMemoryStore_ConcurrentUpserts(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	l := newLecture(t, s)
	user := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpsertParticipant(ctx, l.ID, user, "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.GetLecture(ctx, l.ID)
	require.NoError(t, err)
	assert.Len(t, got.Participants, 1)
}

func TestMemoryStore_MarkAllAndListings(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	l := newLecture(t, s)
	other := newLecture(t, s)
	for i := 0; i < 3; i++ {
		_, err := s.UpsertParticipant(ctx, l.ID, uuid.New(), "")
		require.NoError(t, err)
	}
	_, err := s.UpdateLecture(ctx, other.ID, SetStatus(models.StatusLive, models.ActionStart), nil)
	require.NoError(t, err)

	live, err := s.ListLiveByTeacher(ctx, other.TeacherID)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, other.ID, live[0].ID)

	// End without closing records: the sweeper's view.
	_, err = s.UpdateLecture(ctx, l.ID, SetStatus(models.StatusEnded, models.ActionEnd), nil)
	require.NoError(t, err)
	ended, err := s.ListEndedWithOpenParticipants(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{l.ID}, ended)

	require.NoError(t, s.MarkAllParticipantsLeft(ctx, l.ID))
	got, err := s.GetLecture(ctx, l.ID)
	require.NoError(t, err)
	for _, p := range got.Participants {
		assert.NotNil(t, p.LeftAt)
	}
	ended, err = s.ListEndedWithOpenParticipants(ctx)
	require.NoError(t, err)
	assert.Empty(t, ended)
}
