package history

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crowdqueue/backend/internal/middleware"
	"github.com/crowdqueue/backend/internal/models"
	"github.com/crowdqueue/backend/pkg/response"
)

// Store reads a session's play history.
type Store interface {
	ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.PlayedTrack, error)
	CountBySession(ctx context.Context, sessionID uuid.UUID) (int, error)
}

// SessionStore loads sessions for authorization. GetByID returns (nil, nil)
// when absent.
type SessionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
}

// ListResponse is the page of played tracks plus the session's total count,
// which can exceed the page when a limit applies.
type ListResponse struct {
	Items []models.PlayedTrack `json:"items"`
	Total int                  `json:"total"`
}

// Handler handles play-history HTTP endpoints.
type Handler struct {
	store    Store
	sessions SessionStore
	logger   *zap.Logger
}

// NewHandler creates a history handler.
func NewHandler(store Store, sessions SessionStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, sessions: sessions, logger: logger}
}

// ListBySession handles GET /sessions/:id/history?limit=.
func (h *Handler) ListBySession(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	session, err := h.sessions.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get session failed", zap.Error(err))
		response.Internal(c, "failed to load session")
		return
	}
	if session == nil {
		response.NotFound(c, "session not found")
		return
	}

	subject := c.MustGet(middleware.ContextSubjectID).(uuid.UUID)
	role, _ := c.Get(middleware.ContextRole)
	authorized := role == "admin" && session.AdminID == subject
	if !authorized && role == "guest" {
		if scope, ok := c.Get(middleware.ContextSessionID); ok && scope.(uuid.UUID) == session.ID {
			authorized = true
		}
	}
	if !authorized {
		response.Forbidden(c, "not a participant of this session")
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	list, err := h.store.ListBySession(c.Request.Context(), session.ID, limit)
	if err != nil {
		h.logger.Error("list history failed", zap.Error(err))
		response.Internal(c, "failed to list history")
		return
	}
	total, err := h.store.CountBySession(c.Request.Context(), session.ID)
	if err != nil {
		h.logger.Error("count history failed", zap.Error(err))
		response.Internal(c, "failed to list history")
		return
	}
	if list == nil {
		list = []models.PlayedTrack{}
	}
	response.OK(c, ListResponse{Items: list, Total: total})
}
