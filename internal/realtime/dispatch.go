package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-lms/backend/internal/chat"
	"github.com/aura-lms/backend/internal/lifecycle"
	"github.com/aura-lms/backend/internal/models"
	"github.com/aura-lms/backend/internal/moderation"
	"github.com/aura-lms/backend/internal/signaling"
)

// Dispatcher routes inbound signaling events to the coordinator components and answers
// the originating connection.
type Dispatcher struct {
	lifecycle  *lifecycle.Machine
	moderation *moderation.Controller
	chat       *chat.Relay
	rooms      signaling.Rooms
	validate   *validator.Validate
	logger     *zap.Logger
}

// NewDispatcher creates a dispatcher. rooms is used for replies to the caller.
func NewDispatcher(lc *lifecycle.Machine, mod *moderation.Controller, relay *chat.Relay, rooms signaling.Rooms, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := validator.New()
	// Report fields by their wire names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Dispatcher{
		lifecycle:  lc,
		moderation: mod,
		chat:       relay,
		rooms:      rooms,
		validate:   v,
		logger:     logger,
	}
}

// Dispatch handles one event. Failures are answered with the event family's error event.
func (d *Dispatcher) Dispatch(ctx context.Context, caller signaling.Caller, msg WSMessage) {
	var errEvent string
	var err error
	switch msg.Event {
	case signaling.EventGoLive:
		errEvent, err = signaling.EventGoLiveError, d.goLive(ctx, caller, msg.Data)
	case signaling.EventAdminConnect:
		errEvent, err = signaling.EventLectureError, d.adminConnect(ctx, caller, msg.Data)
	case signaling.EventEndLecture:
		errEvent, err = signaling.EventEndLectureError, d.endLecture(ctx, caller, msg.Data)
	case signaling.EventStudentJoinRequest:
		errEvent, err = signaling.EventLectureError, d.studentJoin(ctx, caller, msg.Data)
	case signaling.EventRequestParticipants:
		errEvent, err = signaling.EventLectureError, d.withLecture(msg.Data, func(id uuid.UUID) error {
			return d.lifecycle.RequestParticipants(ctx, caller, id)
		})
	case signaling.EventRemoveParticipant:
		errEvent, err = signaling.EventLectureError, d.withTarget(msg.Data, func(lectureID, userID uuid.UUID) error {
			return d.lifecycle.RemoveParticipant(ctx, caller, lectureID, userID)
		})
	case signaling.EventBlockStudent:
		errEvent, err = signaling.EventModerationError, d.withTarget(msg.Data, func(lectureID, userID uuid.UUID) error {
			return d.moderation.BlockStudent(ctx, caller, lectureID, userID)
		})
	case signaling.EventUnblockStudent:
		errEvent, err = signaling.EventModerationError, d.withTarget(msg.Data, func(lectureID, userID uuid.UUID) error {
			return d.moderation.UnblockStudent(ctx, caller, lectureID, userID)
		})
	case signaling.EventBlockAll:
		errEvent, err = signaling.EventModerationError, d.withLecture(msg.Data, func(id uuid.UUID) error {
			_, err := d.moderation.BlockAll(ctx, caller, id)
			return err
		})
	case signaling.EventUnblockAll:
		errEvent, err = signaling.EventModerationError, d.withLecture(msg.Data, func(id uuid.UUID) error {
			_, err := d.moderation.UnblockAll(ctx, caller, id)
			return err
		})
	case signaling.EventStudentUnmuteRequest:
		errEvent, err = signaling.EventModerationError, d.withLecture(msg.Data, func(id uuid.UUID) error {
			return d.moderation.StudentUnmuteRequest(ctx, caller, id)
		})
	case signaling.EventSendMessage:
		errEvent, err = signaling.EventChatError, d.sendMessage(ctx, caller, msg.Data)
	case signaling.EventDeleteMessage:
		errEvent, err = signaling.EventChatError, d.deleteMessage(ctx, caller, msg.Data)
	case signaling.EventHistoryAdmin, signaling.EventHistoryStudent:
		errEvent, err = signaling.EventChatError, d.history(ctx, caller, msg.Event, msg.Data)
	case signaling.EventSetChatMode:
		errEvent, err = signaling.EventChatError, d.setChatMode(ctx, caller, msg.Data)
	default:
		d.logger.Debug("ignoring unknown event", zap.String("event", msg.Event), zap.String("client_id", caller.ClientID))
		return
	}
	if err != nil {
		d.fail(caller, msg.Event, errEvent, err)
	}
}

// Disconnected reconciles lecture state after a connection is gone.
func (d *Dispatcher) Disconnected(ctx context.Context, identity models.Identity, dep Departure) {
	d.lifecycle.HandleDisconnect(ctx, identity, dep.Rooms, dep.LastConnection)
}

func (d *Dispatcher) fail(caller signaling.Caller, event, errEvent string, err error) {
	log := d.logger.With(
		zap.String("event", event),
		zap.String("client_id", caller.ClientID),
		zap.String("user_id", caller.Identity.ID.String()),
		zap.Error(err))
	msg := errorMessage(err)
	if msg == internalMessage {
		log.Error("signaling event failed")
	} else {
		log.Info("signaling event rejected")
	}
	d.rooms.SendToClient(caller.ClientID, errEvent, signaling.ErrorMessage{Message: msg})
}

const internalMessage = "Internal server error"

func errorMessage(err error) string {
	switch {
	case errors.Is(err, models.ErrUnauthorized):
		return "Unauthorized"
	case errors.Is(err, models.ErrNotFound):
		return "Not found"
	case errors.Is(err, models.ErrLectureEnded):
		return "Lecture has ended"
	case errors.Is(err, models.ErrMessagingDisabled):
		return "Messaging is disabled for this lecture"
	case errors.Is(err, models.ErrInvalidArgument):
		return strings.TrimSuffix(err.Error(), ": "+models.ErrInvalidArgument.Error())
	}
	return internalMessage
}

// decode unmarshals and validates a structured payload.
func (d *Dispatcher) decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("missing payload: %w", models.ErrInvalidArgument)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("malformed payload: %w", models.ErrInvalidArgument)
	}
	if err := d.validate.Struct(v); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return fmt.Errorf("invalid %s: %w", ve[0].Field(), models.ErrInvalidArgument)
		}
		return fmt.Errorf("invalid payload: %w", models.ErrInvalidArgument)
	}
	return nil
}

// lectureRef accepts a bare id string or {lectureId}.
func (d *Dispatcher) lectureRef(data json.RawMessage) (uuid.UUID, error) {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		id, err := uuid.Parse(bare)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid lectureId: %w", models.ErrInvalidArgument)
		}
		return id, nil
	}
	var ref signaling.LectureRef
	if err := d.decode(data, &ref); err != nil {
		return uuid.Nil, err
	}
	return uuid.MustParse(ref.LectureID), nil
}

func (d *Dispatcher) withLecture(data json.RawMessage, fn func(uuid.UUID) error) error {
	id, err := d.lectureRef(data)
	if err != nil {
		return err
	}
	return fn(id)
}

func (d *Dispatcher) withTarget(data json.RawMessage, fn func(lectureID, userID uuid.UUID) error) error {
	var req signaling.UserTargetRequest
	if err := d.decode(data, &req); err != nil {
		return err
	}
	return fn(uuid.MustParse(req.LectureID), uuid.MustParse(req.UserID))
}

func (d *Dispatcher) goLive(ctx context.Context, caller signaling.Caller, data json.RawMessage) error {
	var req signaling.GoLiveRequest
	if err := d.decode(data, &req); err != nil {
		return err
	}
	res, err := d.lifecycle.GoLive(ctx, caller, uuid.MustParse(req.LectureID), req.IsResume)
	if err != nil {
		return err
	}
	d.rooms.SendToClient(caller.ClientID, signaling.EventGoLiveSuccess, res)
	return nil
}

func (d *Dispatcher) adminConnect(ctx context.Context, caller signaling.Caller, data json.RawMessage) error {
	return d.withLecture(data, func(id uuid.UUID) error {
		res, err := d.lifecycle.AdminConnect(ctx, caller, id)
		if err != nil {
			return err
		}
		d.rooms.SendToClient(caller.ClientID, signaling.EventLectureConnected, res)
		return nil
	})
}

func (d *Dispatcher) endLecture(ctx context.Context, caller signaling.Caller, data json.RawMessage) error {
	return d.withLecture(data, func(id uuid.UUID) error {
		if err := d.lifecycle.EndLecture(ctx, caller, id); err != nil {
			return err
		}
		d.rooms.SendToClient(caller.ClientID, signaling.EventEndLectureSuccess, signaling.EndLectureSuccess{LectureID: id})
		return nil
	})
}

func (d *Dispatcher) studentJoin(ctx context.Context, caller signaling.Caller, data json.RawMessage) error {
	return d.withLecture(data, func(id uuid.UUID) error {
		res, err := d.lifecycle.StudentJoinRequest(ctx, caller, id)
		if err != nil {
			return err
		}
		switch res.Kind {
		case lifecycle.JoinSucceeded:
			d.rooms.SendToClient(caller.ClientID, signaling.EventJoinSuccess, res.Success)
		case lifecycle.JoinEnded:
			d.rooms.SendToClient(caller.ClientID, signaling.EventLectureEnded, res.Ended)
		case lifecycle.JoinPaymentRequired:
			d.rooms.SendToClient(caller.ClientID, signaling.EventPaymentRequired, res.PaymentRequired)
		}
		return nil
	})
}

func (d *Dispatcher) sendMessage(ctx context.Context, caller signaling.Caller, data json.RawMessage) error {
	var req signaling.SendMessageRequest
	if err := d.decode(data, &req); err != nil {
		return err
	}
	_, err := d.chat.SendMessage(ctx, caller, uuid.MustParse(req.LectureID), req.Message)
	return err
}

func (d *Dispatcher) deleteMessage(ctx context.Context, caller signaling.Caller, data json.RawMessage) error {
	var req signaling.DeleteMessageRequest
	if err := d.decode(data, &req); err != nil {
		return err
	}
	return d.chat.DeleteMessage(ctx, caller.Identity, req.MessageID)
}

func (d *Dispatcher) history(ctx context.Context, caller signaling.Caller, event string, data json.RawMessage) error {
	if event == signaling.EventHistoryAdmin && !caller.Identity.IsTeacher() {
		return fmt.Errorf("teacher role required: %w", models.ErrUnauthorized)
	}
	return d.withLecture(data, func(id uuid.UUID) error {
		msgs, err := d.chat.FetchHistory(ctx, caller.Identity, id)
		if err != nil {
			return err
		}
		d.rooms.SendToClient(caller.ClientID, signaling.EventMessageHistory, signaling.MessageHistory{LectureID: id, Messages: msgs})
		return nil
	})
}

func (d *Dispatcher) setChatMode(ctx context.Context, caller signaling.Caller, data json.RawMessage) error {
	var req signaling.ChatModeRequest
	if err := d.decode(data, &req); err != nil {
		return err
	}
	_, err := d.chat.SetChatMode(ctx, caller.Identity, uuid.MustParse(req.LectureID), req.PrivateChat, req.MessagingDisabled)
	return err
}
