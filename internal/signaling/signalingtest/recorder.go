// Package signalingtest provides an in-memory signaling.Rooms for tests.
package signalingtest

import (
	"sync"

	"github.com/google/uuid"
)

// Delivery is one recorded emission.
type Delivery struct {
	// Kind is "room", "room-except", "user" or "client".
	Kind    string
	Target  string
	Except  string
	Event   string
	Payload interface{}
}

// Recorder records every emission and tracks room membership.
type Recorder struct {
	mu         sync.Mutex
	deliveries []Delivery
	members    map[uuid.UUID]map[string]bool
	evicted    map[uuid.UUID][]uuid.UUID
	closed     map[uuid.UUID]int
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		members: make(map[uuid.UUID]map[string]bool),
		evicted: make(map[uuid.UUID][]uuid.UUID),
		closed:  make(map[uuid.UUID]int),
	}
}

func (r *Recorder) Join(clientID string, lectureID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members[lectureID] == nil {
		r.members[lectureID] = make(map[string]bool)
	}
	r.members[lectureID][clientID] = true
}

func (r *Recorder) Broadcast(lectureID uuid.UUID, event string, payload interface{}) {
	r.record(Delivery{Kind: "room", Target: lectureID.String(), Event: event, Payload: payload})
}

func (r *Recorder) BroadcastExcept(lectureID uuid.UUID, exceptClientID string, event string, payload interface{}) {
	r.record(Delivery{Kind: "room-except", Target: lectureID.String(), Except: exceptClientID, Event: event, Payload: payload})
}

func (r *Recorder) SendToUser(userID uuid.UUID, event string, payload interface{}) {
	r.record(Delivery{Kind: "user", Target: userID.String(), Event: event, Payload: payload})
}

func (r *Recorder) SendToClient(clientID string, event string, payload interface{}) {
	r.record(Delivery{Kind: "client", Target: clientID, Event: event, Payload: payload})
}

func (r *Recorder) EvictUser(lectureID uuid.UUID, userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evicted[lectureID] = append(r.evicted[lectureID], userID)
}

func (r *Recorder) Close(lectureID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, lectureID)
	r.closed[lectureID]++
}

func (r *Recorder) record(d Delivery) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, d)
}

// Deliveries returns a copy of everything recorded so far.
func (r *Recorder) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.deliveries...)
}

// Events returns the recorded deliveries with the given event name.
func (r *Recorder) Events(event string) []Delivery {
	var out []Delivery
	for _, d := range r.Deliveries() {
		if d.Event == event {
			out = append(out, d)
		}
	}
	return out
}

// Last returns the most recent delivery of event, if any.
func (r *Recorder) Last(event string) (Delivery, bool) {
	ds := r.Events(event)
	if len(ds) == 0 {
		return Delivery{}, false
	}
	return ds[len(ds)-1], true
}

// InRoom reports whether clientID joined lectureID and the room was not closed since.
func (r *Recorder) InRoom(clientID string, lectureID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.members[lectureID][clientID]
}

// Evicted returns the users evicted from lectureID.
func (r *Recorder) Evicted(lectureID uuid.UUID) []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uuid.UUID(nil), r.evicted[lectureID]...)
}

// Closed returns how many times lectureID was closed.
func (r *Recorder) Closed(lectureID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed[lectureID]
}

// Reset forgets recorded deliveries but keeps membership.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = nil
}
