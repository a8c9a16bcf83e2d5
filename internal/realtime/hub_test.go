package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-lms/backend/internal/models"
)

func connect(h *Hub, userID uuid.UUID, role models.Role) *Client {
	c := newClient(h, nil, models.Identity{ID: userID, Role: role}, h.logger)
	h.Register(c)
	return c
}

func recv(t *testing.T, c *Client) WSMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("client %s received nothing", c.ID)
	}
	return WSMessage{}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("client %s unexpectedly received %s", c.ID, msg.Event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_RoomFanOut(t *testing.T) {
	h := NewHub(nil, nil, nil)
	lecture := uuid.New()
	a := connect(h, uuid.New(), models.RoleTeacher)
	b := connect(h, uuid.New(), models.RoleStudent)
	outside := connect(h, uuid.New(), models.RoleStudent)
	h.Join(a.ID, lecture)
	h.Join(b.ID, lecture)

	h.Broadcast(lecture, "lecture-update", map[string]string{"status": "live"})
	msg := recv(t, a)
	assert.Equal(t, "lecture-update", msg.Event)
	assert.JSONEq(t, `{"status":"live"}`, string(msg.Data))
	recv(t, b)
	assertSilent(t, outside)

	h.BroadcastExcept(lecture, b.ID, "participant-joined", nil)
	recv(t, a)
	assertSilent(t, b)
}

func TestHub_SendToUserReachesEveryConnection(t *testing.T) {
	h := NewHub(nil, nil, nil)
	user := uuid.New()
	first := connect(h, user, models.RoleStudent)
	second := connect(h, user, models.RoleStudent)
	other := connect(h, uuid.New(), models.RoleStudent)

	h.SendToUser(user, "audio-control", map[string]bool{"mute": true})
	recv(t, first)
	recv(t, second)
	assertSilent(t, other)

	h.SendToClient(second.ID, "unmute-allowed", nil)
	assert.Equal(t, "unmute-allowed", recv(t, second).Event)
	assertSilent(t, first)
}

func TestHub_EvictAndClose(t *testing.T) {
	h := NewHub(nil, nil, nil)
	lecture := uuid.New()
	student := uuid.New()
	s1 := connect(h, student, models.RoleStudent)
	s2 := connect(h, student, models.RoleStudent)
	teacher := connect(h, uuid.New(), models.RoleTeacher)
	for _, c := range []*Client{s1, s2, teacher} {
		h.Join(c.ID, lecture)
	}

	h.EvictUser(lecture, student)
	assert.False(t, h.InRoom(s1.ID, lecture))
	assert.False(t, h.InRoom(s2.ID, lecture))
	assert.True(t, h.InRoom(teacher.ID, lecture))

	h.Close(lecture)
	assert.Equal(t, 0, h.RoomSize(lecture))
	h.Broadcast(lecture, "lecture-ended", nil)
	assertSilent(t, teacher)
}

func TestHub_UnregisterReportsDeparture(t *testing.T) {
	h := NewHub(nil, nil, nil)
	lecture, other := uuid.New(), uuid.New()
	user := uuid.New()
	c1 := connect(h, user, models.RoleStudent)
	c2 := connect(h, user, models.RoleStudent)
	h.Join(c1.ID, lecture)
	h.Join(c1.ID, other)
	h.Join(c2.ID, lecture)

	dep := h.Unregister(c1)
	assert.ElementsMatch(t, []uuid.UUID{other}, dep.Rooms)
	assert.False(t, dep.LastConnection)

	dep = h.Unregister(c2)
	assert.ElementsMatch(t, []uuid.UUID{lecture}, dep.Rooms)
	assert.True(t, dep.LastConnection)

	_, open := <-c2.send
	assert.False(t, open)
	h.SendToClient(c2.ID, "late", nil)
	assert.Equal(t, Departure{}, h.Unregister(c2))
}

func TestHub_FullBufferDrops(t *testing.T) {
	h := NewHub(nil, nil, nil)
	c := connect(h, uuid.New(), models.RoleStudent)
	for i := 0; i < cap(c.send)+10; i++ {
		h.SendToClient(c.ID, "tick", i)
	}
	assert.Len(t, c.send, cap(c.send))
}

func TestHub_RedisBridgeDeliversOncePerInstance(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	bridge := NewRedisPubSub(client, nil)

	hubA := NewHub(nil, bridge, bridge)
	hubB := NewHub(nil, bridge, bridge)
	lecture := uuid.New()
	user := uuid.New()
	onA := connect(hubA, uuid.New(), models.RoleTeacher)
	onB := connect(hubB, user, models.RoleStudent)
	hubA.Join(onA.ID, lecture)
	hubB.Join(onB.ID, lecture)

	hubA.Broadcast(lecture, "participants-update", map[string]int{"count": 1})
	assert.Equal(t, "participants-update", recv(t, onA).Event)
	assert.Equal(t, "participants-update", recv(t, onB).Event)
	assertSilent(t, onA)

	hubA.SendToUser(user, "audio-control", nil)
	assert.Equal(t, "audio-control", recv(t, onB).Event)

	hubA.EvictUser(lecture, user)
	require.Eventually(t, func() bool { return !hubB.InRoom(onB.ID, lecture) }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, hubA.InRoom(onA.ID, lecture))
}

func TestMarshalPassesRawJSONThrough(t *testing.T) {
	raw := json.RawMessage(`{"a":1}`)
	got, err := marshal(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = marshal(struct {
		B int `json:"b"`
	}{2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":2}`, string(got))
}

func TestHub_ShutdownClosesConnections(t *testing.T) {
	h := NewHub(nil, nil, nil)
	a := connect(h, uuid.New(), models.RoleStudent)
	h.Shutdown()
	_, open := <-a.send
	assert.False(t, open)

	// Delivery after shutdown is dropped rather than panicking.
	a.deliver(WSMessage{Event: "late"})
	h.Unregister(a)
}
