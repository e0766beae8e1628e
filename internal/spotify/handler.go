package spotify

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crowdqueue/backend/internal/middleware"
	"github.com/crowdqueue/backend/internal/sessions"
	"github.com/crowdqueue/backend/pkg/response"
)

// Handler handles Spotify account and search HTTP endpoints.
type Handler struct {
	service     *Service
	repo        *Repository
	sessionRepo *sessions.Repository
	logger      *zap.Logger
}

// NewHandler creates a spotify handler.
func NewHandler(service *Service, repo *Repository, sessionRepo *sessions.Repository, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, repo: repo, sessionRepo: sessionRepo, logger: logger}
}

// Connect handles GET /spotify/connect (admin only). Returns the provider
// authorization URL; the admin user ID rides along as OAuth state.
func (h *Handler) Connect(c *gin.Context) {
	userID := c.MustGet(middleware.ContextSubjectID).(uuid.UUID)
	response.OK(c, gin.H{"auth_url": h.service.AuthURL(userID.String())})
}

// Callback handles GET /spotify/callback. Spotify redirects here after
// consent; state carries the admin user ID from Connect.
func (h *Handler) Callback(c *gin.Context) {
	if errMsg := c.Query("error"); errMsg != "" {
		response.BadRequest(c, "authorization declined: "+errMsg)
		return
	}
	code := c.Query("code")
	if code == "" {
		response.BadRequest(c, "missing authorization code")
		return
	}
	userID, err := uuid.Parse(c.Query("state"))
	if err != nil {
		response.BadRequest(c, "invalid state")
		return
	}

	account, err := h.service.Exchange(c.Request.Context(), userID, code)
	if err != nil {
		h.logger.Error("spotify connect failed", zap.Error(err), zap.String("user_id", userID.String()))
		response.BadGateway(c, "failed to connect spotify account")
		return
	}
	response.OK(c, gin.H{"connected": true, "spotify_user_id": account.SpotifyUserID})
}

// Status handles GET /spotify/status (admin only).
func (h *Handler) Status(c *gin.Context) {
	userID := c.MustGet(middleware.ContextSubjectID).(uuid.UUID)
	account, err := h.repo.GetByUserID(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("account lookup failed", zap.Error(err))
		response.Internal(c, "failed to load account")
		return
	}
	if account == nil {
		response.OK(c, gin.H{"connected": false})
		return
	}
	response.OK(c, gin.H{"connected": true, "spotify_user_id": account.SpotifyUserID, "expires_at": account.ExpiresAt})
}

// Disconnect handles DELETE /spotify/account (admin only).
func (h *Handler) Disconnect(c *gin.Context) {
	userID := c.MustGet(middleware.ContextSubjectID).(uuid.UUID)
	if err := h.repo.Delete(c.Request.Context(), userID); err != nil {
		h.logger.Error("disconnect failed", zap.Error(err))
		response.Internal(c, "failed to disconnect account")
		return
	}
	response.NoContent(c)
}

// Search handles GET /sessions/:id/search?q=. Any participant may search; the
// session admin's account is used against the provider.
func (h *Handler) Search(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return
	}
	query := c.Query("q")
	if query == "" {
		response.BadRequest(c, "missing query")
		return
	}

	session, err := h.sessionRepo.GetByID(c.Request.Context(), id)
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

	hits, err := h.service.SearchTracks(c.Request.Context(), session.AdminID, query, 20)
	if err != nil {
		if errors.Is(err, ErrNotConnected) {
			response.Conflict(c, "session admin has no connected spotify account")
			return
		}
		h.logger.Error("search failed", zap.Error(err))
		response.BadGateway(c, "search failed")
		return
	}
	response.OK(c, hits)
}
