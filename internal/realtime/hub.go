package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crowdqueue/backend/internal/models"
)

const (
	// PingInterval and PongWait are used for heartbeat (seconds).
	PingInterval = 30
	PongWait     = 60
)

// Hub maintains session_id -> set of connections and broadcasts events.
// Uses Redis pub/sub for horizontal scaling: local broadcast + publish to Redis.
type Hub struct {
	// sessionID -> map[clientID]*Client
	sessions map[uuid.UUID]map[string]*Client
	subs     map[uuid.UUID]func() // cancel Redis subscription per session
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// RedisPublisher is the interface for publishing to Redis (for cross-instance broadcast).
type RedisPublisher interface {
	PublishSessionEvent(sessionID uuid.UUID, event string, payload []byte) error
}

// RedisSubscriber subscribes to session channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeSession(sessionID uuid.UUID, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	return &Hub{
		sessions: make(map[uuid.UUID]map[string]*Client),
		subs:     make(map[uuid.UUID]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a client to a session room. Starts Redis subscription for this session if first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.sessions[c.SessionID] == nil {
		h.sessions[c.SessionID] = make(map[string]*Client)
		if h.redisSub != nil {
			cancel, err := h.redisSub.SubscribeSession(c.SessionID, func(event string, payload []byte) {
				h.BroadcastToSession(c.SessionID, event, json.RawMessage(payload))
			})
			if err == nil {
				h.subs[c.SessionID] = cancel
			}
		}
	}
	h.sessions[c.SessionID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client joined session", zap.String("client_id", c.ID), zap.String("session_id", c.SessionID.String()))
}

// Unregister removes a client from a session room. Cancels Redis subscription when last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.sessions[c.SessionID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.sessions, c.SessionID)
			if cancel, ok := h.subs[c.SessionID]; ok {
				cancel()
				delete(h.subs, c.SessionID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client left session", zap.String("client_id", c.ID), zap.String("session_id", c.SessionID.String()))
}

// BroadcastToSession sends a message to all clients in a session (local only).
func (h *Hub) BroadcastToSession(sessionID uuid.UUID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		data, _ = json.Marshal(payload)
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	clients := h.sessions[sessionID]
	h.mu.RUnlock()

	if clients == nil {
		return
	}
	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// BroadcastAndPublish sends to local clients and publishes to Redis for other instances.
func (h *Hub) BroadcastAndPublish(sessionID uuid.UUID, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.BroadcastToSession(sessionID, event, json.RawMessage(data))
	if h.redis != nil {
		_ = h.redis.PublishSessionEvent(sessionID, event, data)
	}
}

// ListenerCount returns the number of connected clients in a session.
func (h *Hub) ListenerCount(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// NowPlaying implements the scheduler's notifier: the advance loop started a
// new track.
func (h *Hub) NowPlaying(sessionID uuid.UUID, trackExternalID string) {
	h.BroadcastAndPublish(sessionID, "now_playing", map[string]string{"spotify_track_id": trackExternalID})
}

// QueueChanged tells listeners to refetch the session queue.
func (h *Hub) QueueChanged(sessionID uuid.UUID) {
	h.BroadcastAndPublish(sessionID, "queue_updated", map[string]string{"session_id": sessionID.String()})
}

// GuestJoined announces a new guest to the room.
func (h *Hub) GuestJoined(sessionID uuid.UUID, guest *models.Guest) {
	h.BroadcastAndPublish(sessionID, "guest_joined", guest)
}

// SessionEnded tells listeners the admin ended the session.
func (h *Hub) SessionEnded(sessionID uuid.UUID) {
	h.BroadcastAndPublish(sessionID, "session_ended", map[string]string{"session_id": sessionID.String()})
}
