package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdqueue/backend/internal/models"
	"github.com/crowdqueue/backend/internal/selector"
)

type fakePlayer struct {
	mu        sync.Mutex
	played    []string
	playErr   error
	remaining time.Duration
}

func (p *fakePlayer) Play(_ context.Context, _ uuid.UUID, trackExternalID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playErr != nil {
		return p.playErr
	}
	p.played = append(p.played, trackExternalID)
	return nil
}

func (p *fakePlayer) RemainingDuration(_ context.Context, _ uuid.UUID) (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remaining, nil
}

func (p *fakePlayer) playedTracks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

// fakeResolver serves a fixed sequence of resolutions, then keeps returning
// the last one.
type fakeResolver struct {
	mu      sync.Mutex
	results []*selector.Resolution
}

func (r *fakeResolver) Resolve(_ context.Context, _ uuid.UUID) (*selector.Resolution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.results) == 0 {
		return &selector.Resolution{}, nil
	}
	res := r.results[0]
	if len(r.results) > 1 {
		r.results = r.results[1:]
	}
	return res, nil
}

type fakeConsumer struct {
	mu       sync.Mutex
	consumed []uuid.UUID
	err      error
}

func (c *fakeConsumer) MarkPlayedAndRemove(_ context.Context, trackID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.consumed = append(c.consumed, trackID)
	return nil
}

func (c *fakeConsumer) consumedTracks() []uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uuid.UUID(nil), c.consumed...)
}

func resolution(sessionID uuid.UUID, trackExternalID string) *selector.Resolution {
	return &selector.Resolution{
		Session: &models.Session{ID: sessionID},
		Track: &models.QueuedTrack{
			ID:             uuid.New(),
			SessionID:      sessionID,
			SpotifyTrackID: trackExternalID,
		},
	}
}

func emptyResolution(sessionID uuid.UUID) *selector.Resolution {
	return &selector.Resolution{Session: &models.Session{ID: sessionID}}
}

func TestArmKeepsAtMostOneTimer(t *testing.T) {
	s := New(&fakePlayer{}, &fakeResolver{}, &fakeConsumer{}, nil, DefaultLead, nil)
	identity := uuid.New()
	sessionID := uuid.New()

	s.Arm(identity, sessionID, time.Hour, "first", uuid.New())
	s.Arm(identity, sessionID, time.Hour, "second", uuid.New())

	assert.True(t, s.Armed(identity))
	s.mu.Lock()
	assert.Len(t, s.timers, 1)
	s.mu.Unlock()
}

func TestClearIsIdempotent(t *testing.T) {
	s := New(&fakePlayer{}, &fakeResolver{}, &fakeConsumer{}, nil, DefaultLead, nil)
	identity := uuid.New()

	s.Clear(identity)
	assert.False(t, s.Armed(identity))

	s.Arm(identity, uuid.New(), time.Hour, "track", uuid.New())
	s.Clear(identity)
	s.Clear(identity)
	assert.False(t, s.Armed(identity))
}

func TestArmWithNoNextTrackOnlyClears(t *testing.T) {
	s := New(&fakePlayer{}, &fakeResolver{}, &fakeConsumer{}, nil, DefaultLead, nil)
	identity := uuid.New()

	s.Arm(identity, uuid.New(), time.Hour, "track", uuid.New())
	require.True(t, s.Armed(identity))

	s.Arm(identity, uuid.New(), time.Hour, "", uuid.Nil)
	assert.False(t, s.Armed(identity))
}

func TestClearedTimerNeverFires(t *testing.T) {
	player := &fakePlayer{}
	s := New(player, &fakeResolver{}, &fakeConsumer{}, nil, DefaultLead, nil)
	identity := uuid.New()

	// Remaining below the lead clamps the delay to zero, so without the
	// clear this would fire almost immediately.
	s.Arm(identity, uuid.New(), time.Millisecond, "track", uuid.New())
	s.Clear(identity)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, player.playedTracks())
}

func TestFireAdvancesThroughQueue(t *testing.T) {
	sessionID := uuid.New()
	identity := uuid.New()

	player := &fakePlayer{remaining: 2 * time.Millisecond}
	consumer := &fakeConsumer{}
	resolver := &fakeResolver{results: []*selector.Resolution{
		resolution(sessionID, "track-b"),
		emptyResolution(sessionID),
	}}
	s := New(player, resolver, consumer, nil, time.Millisecond, nil)

	trackAID := uuid.New()
	s.Arm(identity, sessionID, time.Millisecond, "track-a", trackAID)

	// track-a fires, is consumed, and the replan arms track-b, which fires
	// in turn; the final replan sees an empty queue and goes idle.
	require.Eventually(t, func() bool {
		return len(player.playedTracks()) == 2
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"track-a", "track-b"}, player.playedTracks())
	consumed := consumer.consumedTracks()
	require.Len(t, consumed, 2)
	assert.Equal(t, trackAID, consumed[0])

	require.Eventually(t, func() bool {
		return !s.Armed(identity)
	}, time.Second, 5*time.Millisecond)
}

func TestFirePlayFailureLeavesTrackQueued(t *testing.T) {
	player := &fakePlayer{playErr: errors.New("device offline")}
	consumer := &fakeConsumer{}
	s := New(player, &fakeResolver{}, consumer, nil, time.Millisecond, nil)
	identity := uuid.New()

	s.Arm(identity, uuid.New(), time.Millisecond, "track", uuid.New())

	require.Eventually(t, func() bool {
		return !s.Armed(identity)
	}, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, consumer.consumedTracks())
}

func TestAdvanceNowPlaysAndConsumes(t *testing.T) {
	sessionID := uuid.New()
	identity := uuid.New()

	player := &fakePlayer{remaining: time.Hour}
	consumer := &fakeConsumer{}
	first := resolution(sessionID, "track-a")
	resolver := &fakeResolver{results: []*selector.Resolution{
		first,
		resolution(sessionID, "track-b"),
	}}
	s := New(player, resolver, consumer, nil, DefaultLead, nil)

	res, err := s.AdvanceNow(context.Background(), identity, sessionID)
	require.NoError(t, err)
	require.NotNil(t, res.Track)
	assert.Equal(t, "track-a", res.Track.SpotifyTrackID)

	assert.Equal(t, []string{"track-a"}, player.playedTracks())
	assert.Equal(t, []uuid.UUID{first.Track.ID}, consumer.consumedTracks())
	assert.True(t, s.Armed(identity))
}

func TestAdvanceNowEmptyQueueClears(t *testing.T) {
	sessionID := uuid.New()
	identity := uuid.New()

	player := &fakePlayer{}
	resolver := &fakeResolver{results: []*selector.Resolution{emptyResolution(sessionID)}}
	s := New(player, resolver, &fakeConsumer{}, nil, DefaultLead, nil)

	s.Arm(identity, sessionID, time.Hour, "stale", uuid.New())

	res, err := s.AdvanceNow(context.Background(), identity, sessionID)
	require.NoError(t, err)
	assert.Nil(t, res.Track)
	assert.False(t, s.Armed(identity))
	assert.Empty(t, player.playedTracks())
}

func TestReplanArmsForResolvedTrack(t *testing.T) {
	sessionID := uuid.New()
	identity := uuid.New()

	player := &fakePlayer{remaining: time.Hour}
	resolver := &fakeResolver{results: []*selector.Resolution{resolution(sessionID, "next")}}
	s := New(player, resolver, &fakeConsumer{}, nil, DefaultLead, nil)

	require.NoError(t, s.Replan(context.Background(), identity, sessionID))
	assert.True(t, s.Armed(identity))
}

func TestReplanEmptyQueueClears(t *testing.T) {
	sessionID := uuid.New()
	identity := uuid.New()

	resolver := &fakeResolver{results: []*selector.Resolution{emptyResolution(sessionID)}}
	s := New(&fakePlayer{}, resolver, &fakeConsumer{}, nil, DefaultLead, nil)

	s.Arm(identity, sessionID, time.Hour, "stale", uuid.New())
	require.NoError(t, s.Replan(context.Background(), identity, sessionID))
	assert.False(t, s.Armed(identity))
}
