package sessions

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crowdqueue/backend/internal/auth"
	"github.com/crowdqueue/backend/internal/middleware"
	"github.com/crowdqueue/backend/internal/models"
	"github.com/crowdqueue/backend/pkg/response"
)

// codeRetries bounds join-code collision retries on create.
const codeRetries = 5

// TimerClearer cancels a pending advance timer when its session ends.
type TimerClearer interface {
	Clear(identity uuid.UUID)
}

// Notifier pushes session lifecycle events to connected listeners.
type Notifier interface {
	GuestJoined(sessionID uuid.UUID, guest *models.Guest)
	SessionEnded(sessionID uuid.UUID)
}

// CreateRequest is the body for POST /sessions.
type CreateRequest struct {
	Name string `json:"name" binding:"required,max=120"`
}

// JoinRequest is the body for POST /sessions/join.
type JoinRequest struct {
	Code string `json:"code" binding:"required"`
	Name string `json:"name" binding:"required,max=80"`
}

// JoinResponse carries the guest token for a successful join.
type JoinResponse struct {
	Token   string          `json:"token"`
	Guest   *models.Guest   `json:"guest"`
	Session *models.Session `json:"session"`
}

// Handler handles session HTTP endpoints.
type Handler struct {
	repo       *Repository
	jwt        *auth.JWTService
	timers     TimerClearer
	notifier   Notifier
	ttl        time.Duration
	codeLength int
	logger     *zap.Logger
}

// NewHandler creates a sessions handler. timers and notifier may be nil.
func NewHandler(repo *Repository, jwt *auth.JWTService, timers TimerClearer, notifier Notifier, ttl time.Duration, codeLength int, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		repo:       repo,
		jwt:        jwt,
		timers:     timers,
		notifier:   notifier,
		ttl:        ttl,
		codeLength: codeLength,
		logger:     logger,
	}
}

// Create handles POST /sessions (admin only).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	adminID := c.MustGet(middleware.ContextSubjectID).(uuid.UUID)

	var created *models.Session
	for attempt := 0; attempt < codeRetries; attempt++ {
		code, err := GenerateCode(h.codeLength)
		if err != nil {
			response.Internal(c, "failed to generate join code")
			return
		}
		s := &models.Session{
			Code:      code,
			Name:      req.Name,
			AdminID:   adminID,
			ExpiresAt: time.Now().Add(h.ttl),
		}
		if err := h.repo.Create(c.Request.Context(), s); err != nil {
			// unique violation on code: roll a new one
			continue
		}
		created = s
		break
	}
	if created == nil {
		response.Internal(c, "failed to create session")
		return
	}
	response.Created(c, created)
}

// List handles GET /sessions (admin only): the caller's sessions.
func (h *Handler) List(c *gin.Context) {
	adminID := c.MustGet(middleware.ContextSubjectID).(uuid.UUID)
	list, err := h.repo.ListByAdmin(c.Request.Context(), adminID)
	if err != nil {
		h.logger.Error("list sessions failed", zap.Error(err))
		response.Internal(c, "failed to list sessions")
		return
	}
	response.OK(c, list)
}

// GetByID handles GET /sessions/:id (owning admin or a guest of the session).
func (h *Handler) GetByID(c *gin.Context) {
	session, ok := h.authorizedSession(c)
	if !ok {
		return
	}
	response.OK(c, session)
}

// ListGuests handles GET /sessions/:id/guests.
func (h *Handler) ListGuests(c *gin.Context) {
	session, ok := h.authorizedSession(c)
	if !ok {
		return
	}
	guests, err := h.repo.ListGuests(c.Request.Context(), session.ID)
	if err != nil {
		h.logger.Error("list guests failed", zap.Error(err))
		response.Internal(c, "failed to list guests")
		return
	}
	response.OK(c, guests)
}

// End handles DELETE /sessions/:id (owning admin only). Clears any pending
// advance timer for the admin so the loop stops with the session.
func (h *Handler) End(c *gin.Context) {
	session, ok := h.authorizedSession(c)
	if !ok {
		return
	}
	adminID := c.MustGet(middleware.ContextSubjectID).(uuid.UUID)
	if session.AdminID != adminID {
		response.Forbidden(c, "only the session admin can end it")
		return
	}

	if err := h.repo.End(c.Request.Context(), session.ID); err != nil {
		h.logger.Error("end session failed", zap.Error(err), zap.String("session_id", session.ID.String()))
		response.Internal(c, "failed to end session")
		return
	}
	if h.timers != nil {
		h.timers.Clear(session.AdminID)
	}
	if h.notifier != nil {
		h.notifier.SessionEnded(session.ID)
	}
	response.NoContent(c)
}

// Join handles POST /sessions/join (public). Creates a guest and issues a
// session-scoped token.
func (h *Handler) Join(c *gin.Context) {
	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	session, err := h.repo.GetActiveByCode(c.Request.Context(), req.Code)
	if err != nil {
		h.logger.Error("lookup session by code failed", zap.Error(err))
		response.Internal(c, "failed to join session")
		return
	}
	if session == nil {
		response.NotFound(c, "no active session with that code")
		return
	}

	guest := &models.Guest{SessionID: session.ID, Name: req.Name}
	if err := h.repo.AddGuest(c.Request.Context(), guest); err != nil {
		h.logger.Error("add guest failed", zap.Error(err), zap.String("session_id", session.ID.String()))
		response.Internal(c, "failed to join session")
		return
	}

	token, err := h.jwt.GenerateGuest(guest.ID, session.ID, guest.Name)
	if err != nil {
		response.Internal(c, "failed to generate token")
		return
	}

	if h.notifier != nil {
		h.notifier.GuestJoined(session.ID, guest)
	}
	response.Created(c, JoinResponse{Token: token, Guest: guest, Session: session})
}

// authorizedSession parses :id, loads the session, and verifies the caller is
// its admin or one of its guests. Writes the error response on failure.
func (h *Handler) authorizedSession(c *gin.Context) (*models.Session, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return nil, false
	}
	session, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get session failed", zap.Error(err), zap.String("session_id", id.String()))
		response.Internal(c, "failed to load session")
		return nil, false
	}
	if session == nil {
		response.NotFound(c, "session not found")
		return nil, false
	}

	subject := c.MustGet(middleware.ContextSubjectID).(uuid.UUID)
	role, _ := c.Get(middleware.ContextRole)
	switch role {
	case "admin":
		if session.AdminID == subject {
			return session, true
		}
	case "guest":
		if scope, ok := c.Get(middleware.ContextSessionID); ok && scope.(uuid.UUID) == session.ID {
			return session, true
		}
	}
	response.Forbidden(c, "not a participant of this session")
	return nil, false
}
