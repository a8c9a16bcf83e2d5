package presence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-lms/backend/internal/lectures"
	"github.com/aura-lms/backend/internal/models"
	"github.com/aura-lms/backend/internal/signaling"
	"github.com/aura-lms/backend/internal/signaling/signalingtest"
)

func uid(id uuid.UUID) *uuid.UUID { return &id }

func at(min int) time.Time {
	return time.Date(2026, 3, 1, 10, min, 0, 0, time.UTC)
}

func TestComputeActiveRoster(t *testing.T) {
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()
	left := at(20)
	l := &models.Lecture{Participants: []models.ParticipantRecord{
		{UserID: uid(alice), JoinedAt: at(1)},
		{UserID: uid(bob), JoinedAt: at(2), LeftAt: &left},
		{UserID: uid(alice), JoinedAt: at(5)},
		{UserID: nil, JoinedAt: at(3)},
		{UserID: uid(carol), JoinedAt: at(4)},
	}}

	roster := ComputeActiveRoster(l)
	require.Len(t, roster, 2)
	assert.Equal(t, carol, *roster[0].UserID)
	assert.Equal(t, alice, *roster[1].UserID)
	assert.Equal(t, at(5), roster[1].JoinedAt)
	for _, p := range roster {
		assert.Nil(t, p.LeftAt)
	}
}

func TestComputeActiveRoster_NilAndEmpty(t *testing.T) {
	assert.Empty(t, ComputeActiveRoster(nil))
	assert.Empty(t, ComputeActiveRoster(&models.Lecture{}))
}

func TestComputeActiveRoster_OneRecordPerUserAfterChurn(t *testing.T) {
	store := lectures.NewMemoryStore()
	ctx := context.Background()
	l := &models.Lecture{TeacherID: uuid.New()}
	require.NoError(t, store.Create(ctx, l))

	users := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for round := 0; round < 4; round++ {
		for i, u := range users {
			_, err := store.UpsertParticipant(ctx, l.ID, u, "")
			require.NoError(t, err)
			if (round+i)%2 == 0 {
				require.NoError(t, store.MarkParticipantLeft(ctx, l.ID, u))
			}
		}
	}

	got, err := store.GetLecture(ctx, l.ID)
	require.NoError(t, err)
	seen := map[uuid.UUID]bool{}
	for _, p := range ComputeActiveRoster(got) {
		require.NotNil(t, p.UserID)
		assert.False(t, seen[*p.UserID], "duplicate user in roster")
		seen[*p.UserID] = true
		assert.Nil(t, p.LeftAt)
	}
}

func TestTracker_BroadcastAndSend(t *testing.T) {
	store := lectures.NewMemoryStore()
	rooms := signalingtest.NewRecorder()
	ctx := context.Background()
	l := &models.Lecture{TeacherID: uuid.New()}
	require.NoError(t, store.Create(ctx, l))
	student := uuid.New()
	_, err := store.UpsertParticipant(ctx, l.ID, student, "s@example.com")
	require.NoError(t, err)

	tr := NewTracker(store, rooms, nil)
	require.NoError(t, tr.BroadcastRosterUpdate(ctx, l.ID))
	require.NoError(t, tr.SendRoster(ctx, l.ID, "client-1"))

	bc := rooms.Events(signaling.EventParticipantsUpdate)
	require.Len(t, bc, 2)
	assert.Equal(t, "room", bc[0].Kind)
	assert.Equal(t, "client", bc[1].Kind)
	assert.Equal(t, "client-1", bc[1].Target)
	snap := bc[0].Payload.(signaling.ParticipantsUpdate)
	assert.Equal(t, 1, snap.Count)
	assert.Equal(t, l.ID, snap.LectureID)

	err = tr.BroadcastRosterUpdate(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
}
