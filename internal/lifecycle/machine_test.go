package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-lms/backend/internal/entitlements"
	"github.com/aura-lms/backend/internal/lectures"
	"github.com/aura-lms/backend/internal/models"
	"github.com/aura-lms/backend/internal/moderation"
	"github.com/aura-lms/backend/internal/presence"
	"github.com/aura-lms/backend/internal/signaling"
	"github.com/aura-lms/backend/internal/signaling/signalingtest"
)

type fakeTokens struct{ fail bool }

func (f fakeTokens) PublisherToken(channel string, userID uuid.UUID) (string, error) {
	if f.fail {
		return "", errors.New("issuer down")
	}
	return "pub:" + channel + ":" + userID.String(), nil
}

func (f fakeTokens) SubscriberToken(channel string, userID uuid.UUID) (string, error) {
	if f.fail {
		return "", errors.New("issuer down")
	}
	return "sub:" + channel + ":" + userID.String(), nil
}

type fakeArchiver struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (a *fakeArchiver) EnqueueLectureArchive(_ context.Context, id uuid.UUID, _ time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ids = append(a.ids, id)
	return nil
}

type harness struct {
	store    *lectures.MemoryStore
	rooms    *signalingtest.Recorder
	payments *entitlements.MemoryStore
	blocks   *moderation.MemoryBlockStore
	archiver *fakeArchiver
	machine  *Machine
	tracker  *presence.Tracker
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := lectures.NewMemoryStore()
	rooms := signalingtest.NewRecorder()
	payments := entitlements.NewMemoryStore()
	blocks := moderation.NewMemoryBlockStore()
	tracker := presence.NewTracker(store, rooms, nil)
	archiver := &fakeArchiver{}
	m := NewMachine(Deps{
		Store:        store,
		Tokens:       fakeTokens{},
		Entitlements: entitlements.NewService(payments, nil, nil),
		Roster:       tracker,
		Moderation:   moderation.NewController(store, blocks, rooms, nil),
		Archiver:     archiver,
		Rooms:        rooms,
	})
	return &harness{store: store, rooms: rooms, payments: payments, blocks: blocks, archiver: archiver, machine: m, tracker: tracker}
}

func (h *harness) lecture(t *testing.T, teacherID uuid.UUID, mutate ...func(*models.Lecture)) *models.Lecture {
	t.Helper()
	l := &models.Lecture{TeacherID: teacherID, CourseID: uuid.New(), Title: "Physics"}
	for _, fn := range mutate {
		fn(l)
	}
	require.NoError(t, h.store.Create(context.Background(), l))
	return l
}

func teacher(client string) signaling.Caller {
	return signaling.Caller{ClientID: client, Identity: models.Identity{ID: uuid.New(), Role: models.RoleTeacher, Email: client + "@school.test"}}
}

func student(client string) signaling.Caller {
	return signaling.Caller{ClientID: client, Identity: models.Identity{ID: uuid.New(), Role: models.RoleStudent}}
}

func (h *harness) get(t *testing.T, id uuid.UUID) *models.Lecture {
	t.Helper()
	l, err := h.store.GetLecture(context.Background(), id)
	require.NoError(t, err)
	return l
}

func actions(l *models.Lecture) []models.ConnectionAction {
	var out []models.ConnectionAction
	for _, ev := range l.ConnectionHistory {
		out = append(out, ev.Action)
	}
	return out
}

func TestLectureScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, b, s := teacher("a"), teacher("b"), student("s")
	l := h.lecture(t, a.Identity.ID)

	_, err := h.machine.GoLive(ctx, b, l.ID, false)
	require.ErrorIs(t, err, models.ErrUnauthorized)
	assert.Equal(t, models.StatusIdle, h.get(t, l.ID).Status)

	res, err := h.machine.GoLive(ctx, a, l.ID, false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLive, res.Status)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, l.ChannelName, res.ChannelName)
	assert.Equal(t, []models.ConnectionAction{models.ActionStart}, actions(h.get(t, l.ID)))

	join, err := h.machine.StudentJoinRequest(ctx, s, l.ID)
	require.NoError(t, err)
	require.Equal(t, JoinSucceeded, join.Kind)
	assert.Equal(t, a.Identity.ID, join.Success.TeacherID)
	assert.Len(t, presence.ComputeActiveRoster(h.get(t, l.ID)), 1)
	assert.True(t, h.rooms.InRoom("s", l.ID))

	h.machine.HandleDisconnect(ctx, a.Identity, []uuid.UUID{l.ID}, true)
	got := h.get(t, l.ID)
	assert.Equal(t, models.StatusPaused, got.Status)
	assert.Equal(t, []models.ConnectionAction{models.ActionStart, models.ActionDisconnect}, actions(got))

	res, err = h.machine.GoLive(ctx, a, l.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLive, res.Status)
	assert.Equal(t, models.ActionResume, actions(h.get(t, l.ID))[2])

	require.NoError(t, h.machine.EndLecture(ctx, a, l.ID))
	got = h.get(t, l.ID)
	assert.Equal(t, models.StatusEnded, got.Status)
	assert.Empty(t, presence.ComputeActiveRoster(got))
	for _, p := range got.Participants {
		assert.NotNil(t, p.LeftAt)
	}
	assert.Equal(t, 1, h.rooms.Closed(l.ID))
	assert.Equal(t, []uuid.UUID{l.ID}, h.archiver.ids)
	_, ok := h.rooms.Last(signaling.EventLectureEnded)
	assert.True(t, ok)
}

func TestEndedIsAbsorbing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, s := teacher("a"), student("s")
	l := h.lecture(t, a.Identity.ID)
	_, err := h.machine.GoLive(ctx, a, l.ID, false)
	require.NoError(t, err)
	require.NoError(t, h.machine.EndLecture(ctx, a, l.ID))
	before := h.get(t, l.ID)

	_, err = h.machine.GoLive(ctx, a, l.ID, true)
	assert.ErrorIs(t, err, models.ErrLectureEnded)
	_, err = h.machine.AdminConnect(ctx, a, l.ID)
	assert.ErrorIs(t, err, models.ErrLectureEnded)
	assert.ErrorIs(t, h.machine.EndLecture(ctx, a, l.ID), models.ErrLectureEnded)

	join, err := h.machine.StudentJoinRequest(ctx, s, l.ID)
	require.NoError(t, err)
	assert.Equal(t, JoinEnded, join.Kind)
	require.NotNil(t, join.Ended)
	assert.Equal(t, models.StatusEnded, join.Ended.Status)

	after := h.get(t, l.ID)
	assert.Equal(t, models.StatusEnded, after.Status)
	assert.Equal(t, before.ConnectionHistory, after.ConnectionHistory)
	assert.Equal(t, len(before.Participants), len(after.Participants))
}

func TestGoLive_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := teacher("a")

	_, err := h.machine.GoLive(ctx, a, uuid.New(), false)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = h.machine.GoLive(ctx, student("s"), uuid.New(), false)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	rec := h.lecture(t, a.Identity.ID, func(l *models.Lecture) { l.ContentType = models.ContentRecorded })
	_, err = h.machine.GoLive(ctx, a, rec.ID, false)
	assert.ErrorIs(t, err, models.ErrNotFound)

	l := h.lecture(t, a.Identity.ID)
	h.machine.tokens = fakeTokens{fail: true}
	_, err = h.machine.GoLive(ctx, a, l.ID, false)
	assert.Error(t, err)
	assert.Equal(t, models.StatusIdle, h.get(t, l.ID).Status)
}

func TestAdminConnect(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, s := teacher("a"), student("s")
	l := h.lecture(t, a.Identity.ID)
	_, err := h.machine.GoLive(ctx, a, l.ID, false)
	require.NoError(t, err)
	_, err = h.machine.StudentJoinRequest(ctx, s, l.ID)
	require.NoError(t, err)

	conn, err := h.machine.AdminConnect(ctx, a, l.ID)
	require.NoError(t, err)
	assert.Equal(t, l.ChannelName, conn.ChannelName)
	assert.Len(t, conn.Participants, 1)

	d, ok := h.rooms.Last(signaling.EventLectureUpdate)
	require.True(t, ok)
	assert.Equal(t, "room", d.Kind)
	upd := d.Payload.(signaling.LectureUpdate)
	assert.Equal(t, models.StatusLive, upd.Status)
	assert.Equal(t, "a@school.test", upd.Teacher)
	assert.Equal(t, models.ActionConnect, actions(h.get(t, l.ID))[1])

	_, err = h.machine.AdminConnect(ctx, teacher("b"), l.ID)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestStudentJoin_PaidContent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, s := teacher("a"), student("s")
	l := h.lecture(t, a.Identity.ID, func(l *models.Lecture) {
		l.IsPaid = true
		l.PriceAmount = 99000
		l.Currency = "IDR"
	})

	join, err := h.machine.StudentJoinRequest(ctx, s, l.ID)
	require.NoError(t, err)
	require.Equal(t, JoinPaymentRequired, join.Kind)
	assert.Equal(t, int64(99000), join.PaymentRequired.Checkout.Price)
	assert.Equal(t, l.CourseID, join.PaymentRequired.Checkout.CourseID)
	assert.Empty(t, h.get(t, l.ID).Participants)
	assert.False(t, h.rooms.InRoom("s", l.ID))

	h.payments.Grant(l.CourseID, s.Identity.ID)
	join, err = h.machine.StudentJoinRequest(ctx, s, l.ID)
	require.NoError(t, err)
	assert.Equal(t, JoinSucceeded, join.Kind)
}

func TestStudentJoin_BroadcastsAndRejoin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, s := teacher("a"), student("s")
	l := h.lecture(t, a.Identity.ID)

	_, err := h.machine.StudentJoinRequest(ctx, teacher("x"), l.ID)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	_, err = h.machine.StudentJoinRequest(ctx, s, uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = h.machine.StudentJoinRequest(ctx, s, l.ID)
	require.NoError(t, err)
	d, ok := h.rooms.Last(signaling.EventParticipantJoined)
	require.True(t, ok)
	assert.Equal(t, "room-except", d.Kind)
	assert.Equal(t, "s", d.Except)

	h.machine.HandleDisconnect(ctx, s.Identity, []uuid.UUID{l.ID}, true)
	assert.Empty(t, presence.ComputeActiveRoster(h.get(t, l.ID)))
	upd, ok := h.rooms.Last(signaling.EventParticipantsUpdate)
	require.True(t, ok)
	assert.Equal(t, 0, upd.Payload.(signaling.ParticipantsUpdate).Count)

	_, err = h.machine.StudentJoinRequest(ctx, s, l.ID)
	require.NoError(t, err)
	got := h.get(t, l.ID)
	assert.Len(t, got.Participants, 1, "rejoin refreshes the record")
	assert.Len(t, presence.ComputeActiveRoster(got), 1)
}

func TestRemoveParticipant(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, s := teacher("a"), student("s")
	l := h.lecture(t, a.Identity.ID)
	_, err := h.machine.StudentJoinRequest(ctx, s, l.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, h.machine.RemoveParticipant(ctx, teacher("b"), l.ID, s.Identity.ID), models.ErrUnauthorized)

	require.NoError(t, h.machine.RemoveParticipant(ctx, a, l.ID, s.Identity.ID))
	assert.Empty(t, presence.ComputeActiveRoster(h.get(t, l.ID)))
	assert.Equal(t, []uuid.UUID{s.Identity.ID}, h.rooms.Evicted(l.ID))
	d, ok := h.rooms.Last(signaling.EventRemovedFromLecture)
	require.True(t, ok)
	assert.Equal(t, s.Identity.ID.String(), d.Target)
}

func TestHandleDisconnect_TeacherWithOtherConnectionKeepsLive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := teacher("a")
	l := h.lecture(t, a.Identity.ID)
	_, err := h.machine.GoLive(ctx, a, l.ID, false)
	require.NoError(t, err)

	h.machine.HandleDisconnect(ctx, a.Identity, nil, false)
	assert.Equal(t, models.StatusLive, h.get(t, l.ID).Status)
}

func TestHandleDisconnect_OnlyLiveLecturesPause(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := teacher("a")
	live := h.lecture(t, a.Identity.ID)
	idle := h.lecture(t, a.Identity.ID)
	_, err := h.machine.GoLive(ctx, a, live.ID, false)
	require.NoError(t, err)

	h.machine.HandleDisconnect(ctx, a.Identity, nil, true)
	assert.Equal(t, models.StatusPaused, h.get(t, live.ID).Status)
	assert.Equal(t, models.StatusIdle, h.get(t, idle.ID).Status)
	assert.Empty(t, h.get(t, idle.ID).ConnectionHistory)
	assert.Len(t, h.rooms.Events(signaling.EventLectureUpdate), 1)
}

func TestEndLecture_ResetsModeration(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, s := teacher("a"), student("s")
	l := h.lecture(t, a.Identity.ID)
	_, err := h.machine.StudentJoinRequest(ctx, s, l.ID)
	require.NoError(t, err)
	require.NoError(t, h.blocks.Add(ctx, l.ID, s.Identity.ID))

	require.NoError(t, h.machine.EndLecture(ctx, a, l.ID))
	blocked, err := h.blocks.Members(ctx, l.ID)
	require.NoError(t, err)
	assert.Empty(t, blocked)
}

func TestConcurrentJoinsKeepOneRecordPerUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := teacher("a")
	l := h.lecture(t, a.Identity.ID)
	s := student("s")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := s
			c.ClientID = uuid.NewString()
			_, err := h.machine.StudentJoinRequest(ctx, c, l.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, presence.ComputeActiveRoster(h.get(t, l.ID)), 1)
}

func TestAdminConnect_RequiresGoLiveFirst(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := teacher("a")
	l := h.lecture(t, a.Identity.ID)

	_, err := h.machine.AdminConnect(ctx, a, l.ID)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	got := h.get(t, l.ID)
	assert.Equal(t, models.StatusIdle, got.Status)
	assert.Empty(t, got.ConnectionHistory)
	assert.Empty(t, h.rooms.Events(signaling.EventLectureUpdate))
}

func TestRequestParticipants_Authorization(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, member, outsider := teacher("a"), student("member"), student("outsider")
	member.Identity.Email = "paid@school.test"
	l := h.lecture(t, a.Identity.ID, func(l *models.Lecture) { l.IsPaid = true })
	h.payments.Grant(l.CourseID, member.Identity.ID)

	join, err := h.machine.StudentJoinRequest(ctx, member, l.ID)
	require.NoError(t, err)
	require.Equal(t, JoinSucceeded, join.Kind)
	join, err = h.machine.StudentJoinRequest(ctx, outsider, l.ID)
	require.NoError(t, err)
	require.Equal(t, JoinPaymentRequired, join.Kind)
	h.rooms.Reset()

	err = h.machine.RequestParticipants(ctx, outsider, l.ID)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	err = h.machine.RequestParticipants(ctx, teacher("b"), l.ID)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.Empty(t, h.rooms.Events(signaling.EventParticipantsUpdate))

	require.NoError(t, h.machine.RequestParticipants(ctx, member, l.ID))
	require.NoError(t, h.machine.RequestParticipants(ctx, a, l.ID))
	ds := h.rooms.Events(signaling.EventParticipantsUpdate)
	require.Len(t, ds, 2)
	assert.Equal(t, "client", ds[0].Kind)
	assert.Equal(t, "member", ds[0].Target)
	assert.Equal(t, "a", ds[1].Target)

	require.NoError(t, h.store.MarkParticipantLeft(ctx, l.ID, member.Identity.ID))
	err = h.machine.RequestParticipants(ctx, member, l.ID)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}
