// Package selector decides which queued track a session plays next.
//
// Selection is longest-wait-first over the session's participants (the admin
// plus every joined guest): the participant whose fairness clock is oldest and
// who actually has a pending track wins. Participants with empty queues never
// block others and are never selected themselves.
package selector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/crowdqueue/backend/internal/models"
)

var (
	// ErrSessionNotFound is returned when the session does not exist or has ended.
	ErrSessionNotFound = errors.New("session not found")
	// ErrAdminNotFound is returned when the session's admin record is missing.
	ErrAdminNotFound = errors.New("session admin not found")
)

// SessionStore reads sessions. GetByID returns (nil, nil) when absent.
type SessionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
}

// ParticipantStore reads a session's participants. AdminParticipant returns
// (nil, nil) when the admin record is missing.
type ParticipantStore interface {
	AdminParticipant(ctx context.Context, session *models.Session) (*models.Participant, error)
	GuestParticipants(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error)
}

// QueueStore reads per-participant queues. OldestByOwner returns (nil, nil)
// when the owner's queue in that session is empty. The session scope matters
// for admins, whose owner ID is the user ID and so spans their sessions.
type QueueStore interface {
	OldestByOwner(ctx context.Context, sessionID, ownerID uuid.UUID) (*models.QueuedTrack, error)
}

// Resolution is the outcome of next-track selection. Track is nil when every
// participant's queue is empty; that is a valid outcome, not an error.
type Resolution struct {
	Session *models.Session
	Admin   *models.Participant
	Track   *models.QueuedTrack
}

// Resolver computes the next track for a session. It only reads; updating the
// fairness clock happens when the chosen track is actually handed to the player.
type Resolver struct {
	sessions     SessionStore
	participants ParticipantStore
	queues       QueueStore
	now          func() time.Time
}

// New creates a resolver over the given stores.
func New(sessions SessionStore, participants ParticipantStore, queues QueueStore) *Resolver {
	return &Resolver{
		sessions:     sessions,
		participants: participants,
		queues:       queues,
		now:          time.Now,
	}
}

type candidate struct {
	participant models.Participant
	wait        time.Duration
}

// Resolve returns the next track for the session.
//
// Candidates are ordered admin first, then guests ascending by join time; on
// equal wait the earlier candidate wins, so selection is deterministic.
func (r *Resolver) Resolve(ctx context.Context, sessionID uuid.UUID) (*Resolution, error) {
	session, err := r.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	now := r.now()
	if session == nil || !session.Active(now) {
		return nil, ErrSessionNotFound
	}

	admin, err := r.participants.AdminParticipant(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("load admin: %w", err)
	}
	if admin == nil {
		return nil, ErrAdminNotFound
	}

	guests, err := r.participants.GuestParticipants(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load guests: %w", err)
	}

	candidates := make([]candidate, 0, len(guests)+1)
	candidates = append(candidates, candidate{participant: *admin, wait: now.Sub(admin.LastPlayedAt)})
	for _, g := range guests {
		candidates = append(candidates, candidate{participant: g, wait: now.Sub(g.LastPlayedAt)})
	}

	for len(candidates) > 0 {
		best := 0
		for i := 1; i < len(candidates); i++ {
			if candidates[i].wait > candidates[best].wait {
				best = i
			}
		}

		track, err := r.queues.OldestByOwner(ctx, sessionID, candidates[best].participant.ID)
		if err != nil {
			return nil, fmt.Errorf("load queue for %s: %w", candidates[best].participant.ID, err)
		}
		if track != nil {
			return &Resolution{Session: session, Admin: admin, Track: track}, nil
		}
		candidates = append(candidates[:best], candidates[best+1:]...)
	}

	return &Resolution{Session: session, Admin: admin, Track: nil}, nil
}
