// Package playback exposes the admin's playback controls: starting the
// advance loop, pausing, skipping and volume.
package playback

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crowdqueue/backend/internal/middleware"
	"github.com/crowdqueue/backend/internal/models"
	"github.com/crowdqueue/backend/internal/selector"
	"github.com/crowdqueue/backend/internal/sessions"
	"github.com/crowdqueue/backend/internal/spotify"
	"github.com/crowdqueue/backend/pkg/response"
)

// Advancer is the scheduler surface used by the handlers.
type Advancer interface {
	AdvanceNow(ctx context.Context, identity, sessionID uuid.UUID) (*selector.Resolution, error)
	Replan(ctx context.Context, identity, sessionID uuid.UUID) error
	Clear(identity uuid.UUID)
}

// Controller is the remote player surface used by the handlers.
type Controller interface {
	Pause(ctx context.Context, identity uuid.UUID) error
	Resume(ctx context.Context, identity uuid.UUID) error
	SetVolume(ctx context.Context, identity uuid.UUID, percent int) error
}

// VolumeRequest is the body for PUT /sessions/:id/playback/volume.
type VolumeRequest struct {
	Percent *int `json:"percent" binding:"required,min=0,max=100"`
}

// Handler handles playback HTTP endpoints. All of them are admin-only and
// scoped to the admin's own session.
type Handler struct {
	sessionRepo *sessions.Repository
	advancer    Advancer
	player      Controller
	logger      *zap.Logger
}

// NewHandler creates a playback handler.
func NewHandler(sessionRepo *sessions.Repository, advancer Advancer, player Controller, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{sessionRepo: sessionRepo, advancer: advancer, player: player, logger: logger}
}

// Start handles POST /sessions/:id/playback/start: plays the fairest queued
// track immediately and arms the advance loop.
func (h *Handler) Start(c *gin.Context) {
	session, ok := h.ownSession(c)
	if !ok {
		return
	}
	res, err := h.advancer.AdvanceNow(c.Request.Context(), session.AdminID, session.ID)
	if err != nil {
		h.respondAdvanceError(c, err)
		return
	}
	if res.Track == nil {
		response.Conflict(c, "queue is empty")
		return
	}
	response.OK(c, res.Track)
}

// Skip handles POST /sessions/:id/playback/skip: abandons the current track
// and advances to the next resolved one.
func (h *Handler) Skip(c *gin.Context) {
	session, ok := h.ownSession(c)
	if !ok {
		return
	}
	res, err := h.advancer.AdvanceNow(c.Request.Context(), session.AdminID, session.ID)
	if err != nil {
		h.respondAdvanceError(c, err)
		return
	}
	if res.Track == nil {
		response.OK(c, gin.H{"skipped": true, "next": nil})
		return
	}
	response.OK(c, res.Track)
}

// Pause handles POST /sessions/:id/playback/pause. The pending advance timer
// is cleared; a paused player would otherwise advance mid-silence.
func (h *Handler) Pause(c *gin.Context) {
	session, ok := h.ownSession(c)
	if !ok {
		return
	}
	if err := h.player.Pause(c.Request.Context(), session.AdminID); err != nil {
		h.respondPlayerError(c, err)
		return
	}
	h.advancer.Clear(session.AdminID)
	response.OK(c, gin.H{"paused": true})
}

// Resume handles POST /sessions/:id/playback/resume and re-arms the loop for
// whatever remains of the current track.
func (h *Handler) Resume(c *gin.Context) {
	session, ok := h.ownSession(c)
	if !ok {
		return
	}
	if err := h.player.Resume(c.Request.Context(), session.AdminID); err != nil {
		h.respondPlayerError(c, err)
		return
	}
	if err := h.advancer.Replan(c.Request.Context(), session.AdminID, session.ID); err != nil {
		h.logger.Warn("replan after resume failed", zap.Error(err), zap.String("session_id", session.ID.String()))
	}
	response.OK(c, gin.H{"resumed": true})
}

// Volume handles PUT /sessions/:id/playback/volume.
func (h *Handler) Volume(c *gin.Context) {
	session, ok := h.ownSession(c)
	if !ok {
		return
	}
	var req VolumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.player.SetVolume(c.Request.Context(), session.AdminID, *req.Percent); err != nil {
		h.respondPlayerError(c, err)
		return
	}
	response.OK(c, gin.H{"volume": *req.Percent})
}

func (h *Handler) respondAdvanceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, selector.ErrSessionNotFound), errors.Is(err, selector.ErrAdminNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, spotify.ErrNotConnected):
		response.Conflict(c, "no connected spotify account")
	default:
		h.logger.Error("advance failed", zap.Error(err))
		response.BadGateway(c, "playback advance failed")
	}
}

func (h *Handler) respondPlayerError(c *gin.Context, err error) {
	if errors.Is(err, spotify.ErrNotConnected) {
		response.Conflict(c, "no connected spotify account")
		return
	}
	h.logger.Error("player call failed", zap.Error(err))
	response.BadGateway(c, "player call failed")
}

// ownSession parses :id and verifies the caller is the owning admin.
func (h *Handler) ownSession(c *gin.Context) (*models.Session, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return nil, false
	}
	session, err := h.sessionRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get session failed", zap.Error(err))
		response.Internal(c, "failed to load session")
		return nil, false
	}
	if session == nil {
		response.NotFound(c, "session not found")
		return nil, false
	}
	adminID := c.MustGet(middleware.ContextSubjectID).(uuid.UUID)
	if session.AdminID != adminID {
		response.Forbidden(c, "only the session admin controls playback")
		return nil, false
	}
	return session, true
}
