package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Client represents a single WebSocket connection in a session room.
type Client struct {
	ID        string
	SessionID uuid.UUID
	SubjectID uuid.UUID
	Role      string
	hub       *Hub
	conn      *websocket.Conn
	send      chan WSMessage
	logger    *zap.Logger
}

// TokenValidator checks a JWT and returns the caller's identity. For guests,
// sessionID is the token's session scope; admins return a nil sessionID.
type TokenValidator func(token string) (subjectID uuid.UUID, sessionID *uuid.UUID, role string, err error)

// ServeWs handles the WebSocket upgrade and runs the client loop. Guests may
// only attach to the session their token is scoped to.
func ServeWs(hub *Hub, logger *zap.Logger, validate TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionIDStr := c.Query("session_id")
		token := c.Query("token")
		if sessionIDStr == "" || token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id and token required"})
			return
		}
		sessionID, err := uuid.Parse(sessionIDStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session_id"})
			return
		}
		subjectID, scope, role, err := validate(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if role == "guest" && (scope == nil || *scope != sessionID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "token not valid for this session"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:        uuid.New().String(),
			SessionID: sessionID,
			SubjectID: subjectID,
			Role:      role,
			hub:       hub,
			conn:      conn,
			send:      make(chan WSMessage, 256),
			logger:    logger,
		}
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		switch msg.Event {
		case "hello":
			c.hub.BroadcastAndPublish(c.SessionID, "listener_count", map[string]int{
				"count": c.hub.ListenerCount(c.SessionID),
			})
		default:
			// clients only listen; server-originated events carry the state
		}
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
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
