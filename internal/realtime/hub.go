package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Fan-out operations carried across instances.
const (
	opEmit  = "emit"
	opEvict = "evict"
	opClose = "close"
)

// Envelope is one fan-out instruction exchanged between instances.
type Envelope struct {
	Op     string          `json:"op"`
	Event  string          `json:"event,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Except string          `json:"except,omitempty"`
	UserID uuid.UUID       `json:"userId,omitempty"`
}

// Publisher publishes fan-out envelopes to other instances.
type Publisher interface {
	Publish(channel string, env Envelope) error
}

// Subscriber delivers envelopes published on a channel.
type Subscriber interface {
	Subscribe(channel string, handler func(Envelope)) (cancel func(), err error)
}

// Departure describes what a dropped connection left behind.
type Departure struct {
	// Rooms the user no longer has any connection in on this instance.
	Rooms []uuid.UUID
	// LastConnection is true when the user has no connection left on this instance.
	LastConnection bool
}

// Hub maintains lecture rooms and identity channels and implements signaling.Rooms.
// With a Redis bridge, room and identity emissions are published only and delivered by the
// subscription on every instance, this one included, so local clients receive them once.
type Hub struct {
	clients map[string]*Client
	// lectureID -> clientID -> client
	rooms map[uuid.UUID]map[string]*Client
	// userID -> clientID -> client
	users  map[uuid.UUID]map[string]*Client
	subs   map[string]func()
	mu     sync.RWMutex
	logger *zap.Logger
	pub    Publisher
	sub    Subscriber
}

// NewHub creates a hub. pub and sub may be nil for a single instance.
func NewHub(logger *zap.Logger, pub Publisher, sub Subscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[uuid.UUID]map[string]*Client),
		users:   make(map[uuid.UUID]map[string]*Client),
		subs:    make(map[string]func()),
		logger:  logger,
		pub:     pub,
		sub:     sub,
	}
}

func lectureChannel(id uuid.UUID) string { return "lecture:" + id.String() }
func userChannel(id uuid.UUID) string    { return "user:" + id.String() }

// subscribeLocked starts a channel subscription if none is running. Caller holds h.mu.
func (h *Hub) subscribeLocked(channel string, handler func(Envelope)) {
	if h.sub == nil {
		return
	}
	if _, ok := h.subs[channel]; ok {
		return
	}
	cancel, err := h.sub.Subscribe(channel, handler)
	if err != nil {
		h.logger.Warn("redis subscribe failed", zap.String("channel", channel), zap.Error(err))
		return
	}
	h.subs[channel] = cancel
}

func (h *Hub) unsubscribeLocked(channel string) {
	if cancel, ok := h.subs[channel]; ok {
		cancel()
		delete(h.subs, channel)
	}
}

// Register adds an authenticated connection and its identity channel.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.ID] = c
	userID := c.Identity.ID
	if h.users[userID] == nil {
		h.users[userID] = make(map[string]*Client)
		h.subscribeLocked(userChannel(userID), func(env Envelope) {
			h.applyUser(userID, env)
		})
	}
	h.users[userID][c.ID] = c
	h.logger.Debug("client connected", zap.String("client_id", c.ID), zap.String("user_id", userID.String()))
}

// Unregister removes a connection from every room and reports what the user left behind.
func (h *Hub) Unregister(c *Client) Departure {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID]; !ok {
		return Departure{}
	}
	delete(h.clients, c.ID)
	userID := c.Identity.ID

	var dep Departure
	for lectureID := range c.rooms {
		h.leaveLocked(c, lectureID)
		if !h.userInRoomLocked(userID, lectureID) {
			dep.Rooms = append(dep.Rooms, lectureID)
		}
	}
	if m, ok := h.users[userID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.users, userID)
			h.unsubscribeLocked(userChannel(userID))
		}
	}
	dep.LastConnection = len(h.users[userID]) == 0
	c.shutdown()
	h.logger.Debug("client disconnected", zap.String("client_id", c.ID), zap.String("user_id", userID.String()))
	return dep
}

func (h *Hub) userInRoomLocked(userID, lectureID uuid.UUID) bool {
	for _, other := range h.rooms[lectureID] {
		if other.Identity.ID == userID {
			return true
		}
	}
	return false
}

func (h *Hub) leaveLocked(c *Client, lectureID uuid.UUID) {
	delete(c.rooms, lectureID)
	m, ok := h.rooms[lectureID]
	if !ok {
		return
	}
	delete(m, c.ID)
	if len(m) == 0 {
		delete(h.rooms, lectureID)
		h.unsubscribeLocked(lectureChannel(lectureID))
	}
}

// Join adds a connection to the lecture room. Unknown client ids are ignored.
func (h *Hub) Join(clientID string, lectureID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[clientID]
	if !ok {
		return
	}
	if h.rooms[lectureID] == nil {
		h.rooms[lectureID] = make(map[string]*Client)
		h.subscribeLocked(lectureChannel(lectureID), func(env Envelope) {
			h.applyRoom(lectureID, env)
		})
	}
	h.rooms[lectureID][c.ID] = c
	c.rooms[lectureID] = struct{}{}
}

// Broadcast sends to every connection in the lecture room.
func (h *Hub) Broadcast(lectureID uuid.UUID, event string, payload interface{}) {
	h.BroadcastExcept(lectureID, "", event, payload)
}

// BroadcastExcept sends to every connection in the room except one.
func (h *Hub) BroadcastExcept(lectureID uuid.UUID, exceptClientID string, event string, payload interface{}) {
	data, err := marshal(payload)
	if err != nil {
		h.logger.Error("marshal payload failed", zap.String("event", event), zap.Error(err))
		return
	}
	h.route(lectureChannel(lectureID), Envelope{Op: opEmit, Event: event, Data: data, Except: exceptClientID}, func(env Envelope) {
		h.applyRoom(lectureID, env)
	})
}

// SendToUser sends to every connection authenticated as userID.
func (h *Hub) SendToUser(userID uuid.UUID, event string, payload interface{}) {
	data, err := marshal(payload)
	if err != nil {
		h.logger.Error("marshal payload failed", zap.String("event", event), zap.Error(err))
		return
	}
	h.route(userChannel(userID), Envelope{Op: opEmit, Event: event, Data: data}, func(env Envelope) {
		h.applyUser(userID, env)
	})
}

// SendToClient sends to a single connection of this instance.
func (h *Hub) SendToClient(clientID string, event string, payload interface{}) {
	data, err := marshal(payload)
	if err != nil {
		h.logger.Error("marshal payload failed", zap.String("event", event), zap.Error(err))
		return
	}
	h.mu.RLock()
	c, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	c.deliver(WSMessage{Event: event, Data: data})
}

// EvictUser removes every connection of userID from the lecture room.
func (h *Hub) EvictUser(lectureID uuid.UUID, userID uuid.UUID) {
	h.route(lectureChannel(lectureID), Envelope{Op: opEvict, UserID: userID}, func(env Envelope) {
		h.applyRoom(lectureID, env)
	})
}

// Close forces every connection out of the lecture room.
func (h *Hub) Close(lectureID uuid.UUID) {
	h.route(lectureChannel(lectureID), Envelope{Op: opClose}, func(env Envelope) {
		h.applyRoom(lectureID, env)
	})
}

// route publishes to Redis when bridged, otherwise applies locally.
func (h *Hub) route(channel string, env Envelope, local func(Envelope)) {
	if h.pub != nil {
		if err := h.pub.Publish(channel, env); err != nil {
			h.logger.Warn("redis publish failed, delivering locally", zap.String("channel", channel), zap.Error(err))
			local(env)
		}
		return
	}
	local(env)
}

func (h *Hub) applyRoom(lectureID uuid.UUID, env Envelope) {
	switch env.Op {
	case opEmit:
		h.mu.RLock()
		targets := make([]*Client, 0, len(h.rooms[lectureID]))
		for id, c := range h.rooms[lectureID] {
			if id != env.Except {
				targets = append(targets, c)
			}
		}
		h.mu.RUnlock()
		msg := WSMessage{Event: env.Event, Data: env.Data}
		for _, c := range targets {
			c.deliver(msg)
		}
	case opEvict:
		h.mu.Lock()
		for _, c := range h.rooms[lectureID] {
			if c.Identity.ID == env.UserID {
				h.leaveLocked(c, lectureID)
			}
		}
		h.mu.Unlock()
	case opClose:
		h.mu.Lock()
		for _, c := range h.rooms[lectureID] {
			h.leaveLocked(c, lectureID)
		}
		h.mu.Unlock()
	}
}

func (h *Hub) applyUser(userID uuid.UUID, env Envelope) {
	if env.Op != opEmit {
		return
	}
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.users[userID]))
	for _, c := range h.users[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	msg := WSMessage{Event: env.Event, Data: env.Data}
	for _, c := range targets {
		c.deliver(msg)
	}
}

// Shutdown stops every Redis subscription and closes all local connections. Their read
// loops then run the usual disconnect handling.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	for channel := range h.subs {
		h.unsubscribeLocked(channel)
	}
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.shutdown()
	}
	h.logger.Info("hub shut down", zap.Int("connections", len(clients)))
}

// RoomSize returns the number of local connections in a lecture room.
func (h *Hub) RoomSize(lectureID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[lectureID])
}

// InRoom reports whether a connection is in the lecture room.
func (h *Hub) InRoom(clientID string, lectureID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[lectureID][clientID]
	return ok
}

func marshal(payload interface{}) (json.RawMessage, error) {
	switch v := payload.(type) {
	case json.RawMessage:
		return v, nil
	case []byte:
		return v, nil
	}
	return json.Marshal(payload)
}
