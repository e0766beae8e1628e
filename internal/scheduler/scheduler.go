// Package scheduler owns the playback-advancement loop: at most one pending
// advance timer per playback identity, armed for the remaining duration of the
// current track and firing play → consume → re-resolve → re-arm.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crowdqueue/backend/internal/selector"
)

const (
	// DefaultLead is how far before the current track ends the advance fires.
	DefaultLead = time.Second
	// advanceTimeout bounds the remote calls made by one firing.
	advanceTimeout = 30 * time.Second
)

// Player controls the admin's remote player. The identity is the admin user
// whose connected account addresses the player.
type Player interface {
	Play(ctx context.Context, identity uuid.UUID, trackExternalID string) error
	RemainingDuration(ctx context.Context, identity uuid.UUID) (time.Duration, error)
}

// Resolver picks the next track for a session.
type Resolver interface {
	Resolve(ctx context.Context, sessionID uuid.UUID) (*selector.Resolution, error)
}

// QueueConsumer destroys a queued track once it has been handed to the player,
// advancing its owner's fairness clock in the same transaction.
type QueueConsumer interface {
	MarkPlayedAndRemove(ctx context.Context, trackID uuid.UUID) error
}

// Notifier pushes playback events to session listeners. Implementations must
// not block.
type Notifier interface {
	NowPlaying(sessionID uuid.UUID, trackExternalID string)
	QueueChanged(sessionID uuid.UUID)
}

type entry struct {
	timer *time.Timer
	gen   uint64
}

// Scheduler maps playback identities to at most one pending advance timer.
// Construct one per process and share it; all state is internal and protected.
type Scheduler struct {
	player   Player
	resolver Resolver
	queues   QueueConsumer
	notifier Notifier
	logger   *zap.Logger
	lead     time.Duration

	mu     sync.Mutex
	gen    uint64
	timers map[uuid.UUID]*entry
}

// New creates a scheduler. notifier may be nil; lead <= 0 uses DefaultLead.
func New(player Player, resolver Resolver, queues QueueConsumer, notifier Notifier, lead time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lead <= 0 {
		lead = DefaultLead
	}
	return &Scheduler{
		player:   player,
		resolver: resolver,
		queues:   queues,
		notifier: notifier,
		logger:   logger,
		lead:     lead,
		timers:   make(map[uuid.UUID]*entry),
	}
}

// Arm schedules the advance to the given track once the currently playing one
// ends. Any previously armed timer for the identity is cancelled first, so at
// most one timer per identity is ever pending. With no next track (empty
// external ID or nil record ID) Arm only clears and returns.
func (s *Scheduler) Arm(identity, sessionID uuid.UUID, remaining time.Duration, trackExternalID string, trackRecordID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearLocked(identity)

	if trackExternalID == "" || trackRecordID == uuid.Nil {
		return
	}

	delay := remaining - s.lead
	if delay < 0 {
		delay = 0
	}

	s.gen++
	e := &entry{gen: s.gen}
	myGen := s.gen
	e.timer = time.AfterFunc(delay, func() {
		s.fire(identity, sessionID, myGen, trackExternalID, trackRecordID)
	})
	s.timers[identity] = e

	s.logger.Debug("advance timer armed",
		zap.String("identity", identity.String()),
		zap.String("session_id", sessionID.String()),
		zap.Duration("delay", delay),
		zap.String("track", trackExternalID),
	)
}

// Clear cancels any pending timer for the identity. No-op when none exists.
func (s *Scheduler) Clear(identity uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked(identity)
}

// Armed reports whether a timer is currently pending for the identity.
func (s *Scheduler) Armed(identity uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[identity]
	return ok
}

func (s *Scheduler) clearLocked(identity uuid.UUID) {
	if e, ok := s.timers[identity]; ok {
		e.timer.Stop()
		delete(s.timers, identity)
	}
}

// fire runs on the timer goroutine. A stale generation means this timer was
// replaced or cleared after scheduling; it must not advance anything.
func (s *Scheduler) fire(identity, sessionID uuid.UUID, gen uint64, trackExternalID string, trackRecordID uuid.UUID) {
	s.mu.Lock()
	e, ok := s.timers[identity]
	if !ok || e.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.timers, identity)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), advanceTimeout)
	defer cancel()

	// Confirmed playback is a precondition for consuming the queue record:
	// on failure the track stays queued and the chain halts.
	if err := s.player.Play(ctx, identity, trackExternalID); err != nil {
		s.logger.Error("advance play failed, track left queued",
			zap.Error(err),
			zap.String("identity", identity.String()),
			zap.String("track", trackExternalID),
		)
		return
	}

	if err := s.queues.MarkPlayedAndRemove(ctx, trackRecordID); err != nil {
		s.logger.Error("consume queued track failed, chain halted",
			zap.Error(err),
			zap.String("track_record_id", trackRecordID.String()),
		)
		return
	}

	if s.notifier != nil {
		s.notifier.NowPlaying(sessionID, trackExternalID)
		s.notifier.QueueChanged(sessionID)
	}

	if err := s.Replan(ctx, identity, sessionID); err != nil {
		s.logger.Error("re-arm after advance failed",
			zap.Error(err),
			zap.String("session_id", sessionID.String()),
		)
	}
}

// Replan recomputes the next track for the session and (re)arms the identity's
// timer for the remaining duration of whatever is playing now. With nothing
// queued it clears the timer and the loop goes idle.
func (s *Scheduler) Replan(ctx context.Context, identity, sessionID uuid.UUID) error {
	res, err := s.resolver.Resolve(ctx, sessionID)
	if err != nil {
		return err
	}
	if res.Track == nil {
		s.Clear(identity)
		return nil
	}

	remaining, err := s.player.RemainingDuration(ctx, identity)
	if err != nil {
		return err
	}

	s.Arm(identity, sessionID, remaining, res.Track.SpotifyTrackID, res.Track.ID)
	return nil
}

// AdvanceNow resolves and plays the next track immediately, consuming it and
// re-arming for the one after. Used by the playback start and skip endpoints.
// The returned resolution's Track is nil when nothing was queued.
func (s *Scheduler) AdvanceNow(ctx context.Context, identity, sessionID uuid.UUID) (*selector.Resolution, error) {
	res, err := s.resolver.Resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if res.Track == nil {
		s.Clear(identity)
		return res, nil
	}

	if err := s.player.Play(ctx, identity, res.Track.SpotifyTrackID); err != nil {
		return nil, err
	}
	if err := s.queues.MarkPlayedAndRemove(ctx, res.Track.ID); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.NowPlaying(sessionID, res.Track.SpotifyTrackID)
		s.notifier.QueueChanged(sessionID)
	}

	if err := s.Replan(ctx, identity, sessionID); err != nil {
		s.logger.Warn("re-arm after manual advance failed", zap.Error(err))
	}
	return res, nil
}
