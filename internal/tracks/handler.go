package tracks

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crowdqueue/backend/internal/middleware"
	"github.com/crowdqueue/backend/internal/models"
	"github.com/crowdqueue/backend/internal/sessions"
	"github.com/crowdqueue/backend/pkg/response"
)

// Replanner re-runs next-track selection for a session whose queue changed.
// Armed reports whether playback is currently being scheduled for an identity.
type Replanner interface {
	Armed(identity uuid.UUID) bool
	Replan(ctx context.Context, identity, sessionID uuid.UUID) error
}

// Notifier pushes queue events to session listeners.
type Notifier interface {
	QueueChanged(sessionID uuid.UUID)
}

// SubmitRequest is the body for POST /sessions/:id/queue.
type SubmitRequest struct {
	SpotifyTrackID string `json:"spotify_track_id" binding:"required"`
	Title          string `json:"title" binding:"required"`
	Artist         string `json:"artist"`
	Album          string `json:"album"`
	CoverURL       string `json:"cover_url"`
	DurationMS     int    `json:"duration_ms" binding:"min=0"`
}

// Handler handles queued-track HTTP endpoints.
type Handler struct {
	repo        *Repository
	sessionRepo *sessions.Repository
	replanner   Replanner
	notifier    Notifier
	logger      *zap.Logger
}

// NewHandler creates a tracks handler. replanner and notifier may be nil.
func NewHandler(repo *Repository, sessionRepo *sessions.Repository, replanner Replanner, notifier Notifier, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		repo:        repo,
		sessionRepo: sessionRepo,
		replanner:   replanner,
		notifier:    notifier,
		logger:      logger,
	}
}

// Submit handles POST /sessions/:id/queue. The track is appended to the
// caller's own queue; selection recomputes when playback is running, so a
// longer-waiting participant's submission can displace the pending next track.
func (h *Handler) Submit(c *gin.Context) {
	session, ownerKind, ownerID, ok := h.sessionParticipant(c)
	if !ok {
		return
	}

	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	track := &models.QueuedTrack{
		SessionID:      session.ID,
		OwnerKind:      ownerKind,
		OwnerID:        ownerID,
		SpotifyTrackID: req.SpotifyTrackID,
		Title:          req.Title,
		Artist:         req.Artist,
		Album:          req.Album,
		CoverURL:       req.CoverURL,
		DurationMS:     req.DurationMS,
	}
	if err := h.repo.Create(c.Request.Context(), track); err != nil {
		h.logger.Error("create queued track failed", zap.Error(err), zap.String("session_id", session.ID.String()))
		response.Internal(c, "failed to queue track")
		return
	}

	h.replanAndNotify(c.Request.Context(), session)
	response.Created(c, track)
}

// ListQueue handles GET /sessions/:id/queue.
func (h *Handler) ListQueue(c *gin.Context) {
	session, _, _, ok := h.sessionParticipant(c)
	if !ok {
		return
	}
	list, err := h.repo.ListBySession(c.Request.Context(), session.ID)
	if err != nil {
		h.logger.Error("list queue failed", zap.Error(err), zap.String("session_id", session.ID.String()))
		response.Internal(c, "failed to list queue")
		return
	}
	response.OK(c, list)
}

// Withdraw handles DELETE /queue/:id. Only the owner may withdraw a pending
// request; the fairness clock is untouched.
func (h *Handler) Withdraw(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid track id")
		return
	}
	track, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get queued track failed", zap.Error(err))
		response.Internal(c, "failed to load track")
		return
	}
	if track == nil {
		response.NotFound(c, "queued track not found")
		return
	}

	subject := c.MustGet(middleware.ContextSubjectID).(uuid.UUID)
	if track.OwnerID != subject {
		response.Forbidden(c, "not your request")
		return
	}

	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		if err == ErrTrackGone {
			response.NotFound(c, "queued track not found")
			return
		}
		h.logger.Error("withdraw track failed", zap.Error(err))
		response.Internal(c, "failed to withdraw track")
		return
	}

	session, err := h.sessionRepo.GetByID(c.Request.Context(), track.SessionID)
	if err == nil && session != nil {
		h.replanAndNotify(c.Request.Context(), session)
	}
	response.NoContent(c)
}

// replanAndNotify re-resolves the pending next track when the advance loop is
// running, and tells listeners the queue changed.
func (h *Handler) replanAndNotify(ctx context.Context, session *models.Session) {
	if h.replanner != nil && h.replanner.Armed(session.AdminID) {
		if err := h.replanner.Replan(ctx, session.AdminID, session.ID); err != nil {
			h.logger.Warn("replan after queue change failed",
				zap.Error(err),
				zap.String("session_id", session.ID.String()),
			)
		}
	}
	if h.notifier != nil {
		h.notifier.QueueChanged(session.ID)
	}
}

// sessionParticipant parses :id, loads the session, and resolves the caller to
// a participant of it. Writes the error response on failure.
func (h *Handler) sessionParticipant(c *gin.Context) (*models.Session, models.ParticipantKind, uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid session id")
		return nil, "", uuid.Nil, false
	}
	session, err := h.sessionRepo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get session failed", zap.Error(err), zap.String("session_id", id.String()))
		response.Internal(c, "failed to load session")
		return nil, "", uuid.Nil, false
	}
	if session == nil {
		response.NotFound(c, "session not found")
		return nil, "", uuid.Nil, false
	}

	subject := c.MustGet(middleware.ContextSubjectID).(uuid.UUID)
	role, _ := c.Get(middleware.ContextRole)
	switch role {
	case "admin":
		if session.AdminID == subject {
			return session, models.ParticipantAdmin, subject, true
		}
	case "guest":
		if scope, ok := c.Get(middleware.ContextSessionID); ok && scope.(uuid.UUID) == session.ID {
			return session, models.ParticipantGuest, subject, true
		}
	}
	response.Forbidden(c, "not a participant of this session")
	return nil, "", uuid.Nil, false
}
