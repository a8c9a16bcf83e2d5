// Package signaling defines the lecture room vocabulary shared by the coordinator
// components and the realtime transport.
package signaling

import (
	"github.com/google/uuid"

	"github.com/aura-lms/backend/internal/models"
)

// Client → server events.
const (
	EventGoLive               = "go-live"
	EventAdminConnect         = "admin-connect"
	EventEndLecture           = "end-lecture"
	EventStudentJoinRequest   = "student-join-request"
	EventRequestParticipants  = "request-participants"
	EventRemoveParticipant    = "remove-participant"
	EventBlockStudent         = "block-student"
	EventUnblockStudent       = "unblock-student"
	EventBlockAll             = "block-all"
	EventUnblockAll           = "unblock-all"
	EventStudentUnmuteRequest = "student-unmute-request"
	EventSendMessage          = "send-message"
	EventDeleteMessage        = "delete-message"
	EventHistoryAdmin         = "request-message-history-admin"
	EventHistoryStudent       = "request-message-history-student"
	EventSetChatMode          = "set-private-public-chat"
)

// Server → client events.
const (
	EventGoLiveSuccess       = "go-live-success"
	EventGoLiveError         = "go-live-error"
	EventLectureUpdate       = "lecture-update"
	EventLectureConnected    = "lecture-connected"
	EventLectureEnded        = "lecture-ended"
	EventEndLectureSuccess   = "end-lecture-success"
	EventEndLectureError     = "end-lecture-error"
	EventJoinSuccess         = "join-success"
	EventPaymentRequired     = "payment-required"
	EventLectureError        = "lecture-error"
	EventParticipantJoined   = "participant-joined"
	EventParticipantsUpdate  = "participants-update"
	EventRemovedFromLecture  = "removed-from-lecture"
	EventAudioControl        = "audio-control"
	EventUnmuteBlocked       = "unmute-blocked"
	EventUnmuteAllowed       = "unmute-allowed"
	EventModerationState     = "moderation-state"
	EventModerationError     = "moderation-error"
	EventNewMessage          = "new-message"
	EventMessageDeleted      = "message-deleted"
	EventMessageHistory      = "message-history"
	EventChatModeUpdated     = "chat-mode-updated"
	EventChatError           = "chat-error"
)

// Caller is the authenticated origin of one signaling event.
// The identity is resolved once per connection and never mutated.
type Caller struct {
	ClientID string
	Identity models.Identity
}

// Rooms is the fan-out surface the coordinator uses. Rooms are keyed by lecture id;
// identity channels are keyed by user id and reach every connection of that user.
type Rooms interface {
	// Join adds a connection to the lecture room.
	Join(clientID string, lectureID uuid.UUID)
	// Broadcast sends to every connection in the lecture room.
	Broadcast(lectureID uuid.UUID, event string, payload interface{})
	// BroadcastExcept sends to every connection in the room except one.
	BroadcastExcept(lectureID uuid.UUID, exceptClientID string, event string, payload interface{})
	// SendToUser sends to every connection authenticated as userID.
	SendToUser(userID uuid.UUID, event string, payload interface{})
	// SendToClient sends to a single connection.
	SendToClient(clientID string, event string, payload interface{})
	// EvictUser removes every connection of userID from the lecture room.
	EvictUser(lectureID uuid.UUID, userID uuid.UUID)
	// Close forces every connection out of the lecture room.
	Close(lectureID uuid.UUID)
}
