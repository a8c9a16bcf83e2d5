package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aura-lms/backend/internal/models"
	"github.com/aura-lms/backend/internal/signaling"
)

const (
	writeWait    = 10 * time.Second
	readLimit    = 65536
	eventTimeout = 10 * time.Second
)

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// IdentityResolver authenticates the handshake credential.
type IdentityResolver interface {
	Resolve(ctx context.Context, token, userType string) (models.Identity, error)
}

// Client represents a single WebSocket connection. Its identity is fixed at handshake.
type Client struct {
	ID       string
	Identity models.Identity
	hub      *Hub
	conn     *websocket.Conn
	send     chan WSMessage
	rooms    map[uuid.UUID]struct{} // guarded by hub.mu
	logger   *zap.Logger

	mu     sync.Mutex
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn, identity models.Identity, logger *zap.Logger) *Client {
	return &Client{
		ID:       uuid.New().String(),
		Identity: identity,
		hub:      hub,
		conn:     conn,
		send:     make(chan WSMessage, 256),
		rooms:    make(map[uuid.UUID]struct{}),
		logger:   logger,
	}
}

// Caller returns the signaling origin for events read from this connection.
func (c *Client) Caller() signaling.Caller {
	return signaling.Caller{ClientID: c.ID, Identity: c.Identity}
}

// deliver queues msg; a full buffer drops it.
func (c *Client) deliver(msg WSMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		c.logger.Warn("send buffer full, dropping message", zap.String("client_id", c.ID), zap.String("event", msg.Event))
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ServeWs authenticates the handshake (token and userType query params), upgrades the
// connection and runs the client loop. A nil checkOrigin accepts every origin.
func ServeWs(hub *Hub, dispatcher *Dispatcher, resolver IdentityResolver, checkOrigin func(*http.Request) bool, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}
	return func(c *gin.Context) {
		token := c.Query("token")
		userType := c.Query("userType")
		if token == "" || userType == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "token and userType required"})
			return
		}
		identity, err := resolver.Resolve(c.Request.Context(), token, userType)
		if err != nil {
			logger.Info("websocket handshake rejected", zap.String("user_type", userType), zap.Error(err))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := newClient(hub, conn, identity, logger)
		hub.Register(client)
		logger.Info("socket connected",
			zap.String("client_id", client.ID),
			zap.String("user_id", identity.ID.String()),
			zap.String("role", string(identity.Role)))
		go client.writePump()
		client.readPump(dispatcher)
	}
}

func (c *Client) readPump(dispatcher *Dispatcher) {
	defer func() {
		dep := c.hub.Unregister(c)
		_ = c.conn.Close()
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		dispatcher.Disconnected(ctx, c.Identity, dep)
	}()

	c.conn.SetReadLimit(readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	caller := c.Caller()
	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("socket read error", zap.String("client_id", c.ID), zap.Error(err))
			}
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		dispatcher.Dispatch(ctx, caller, msg)
		cancel()
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
