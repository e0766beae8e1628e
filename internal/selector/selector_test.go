package selector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdqueue/backend/internal/models"
)

type fakeStores struct {
	session *models.Session
	admin   *models.Participant
	guests  []models.Participant
	queues  map[uuid.UUID]*models.QueuedTrack

	queueErr error
}

func (f *fakeStores) GetByID(_ context.Context, id uuid.UUID) (*models.Session, error) {
	if f.session == nil || f.session.ID != id {
		return nil, nil
	}
	return f.session, nil
}

func (f *fakeStores) AdminParticipant(_ context.Context, _ *models.Session) (*models.Participant, error) {
	return f.admin, nil
}

func (f *fakeStores) GuestParticipants(_ context.Context, _ uuid.UUID) ([]models.Participant, error) {
	return f.guests, nil
}

func (f *fakeStores) OldestByOwner(_ context.Context, sessionID, ownerID uuid.UUID) (*models.QueuedTrack, error) {
	if f.queueErr != nil {
		return nil, f.queueErr
	}
	t := f.queues[ownerID]
	if t == nil || t.SessionID != sessionID {
		return nil, nil
	}
	return t, nil
}

func newTestResolver(f *fakeStores, now time.Time) *Resolver {
	r := New(f, f, f)
	r.now = func() time.Time { return now }
	return r
}

func track(session, owner uuid.UUID, spotifyID string) *models.QueuedTrack {
	return &models.QueuedTrack{
		ID:             uuid.New(),
		SessionID:      session,
		OwnerID:        owner,
		SpotifyTrackID: spotifyID,
		Title:          spotifyID,
	}
}

func TestResolvePicksLongestWait(t *testing.T) {
	now := time.Now()
	sessionID := uuid.New()
	adminID := uuid.New()
	guestID := uuid.New()

	f := &fakeStores{
		session: &models.Session{ID: sessionID, AdminID: adminID, ExpiresAt: now.Add(time.Hour)},
		admin:   &models.Participant{ID: adminID, Kind: models.ParticipantAdmin, LastPlayedAt: now.Add(-5 * time.Second)},
		guests: []models.Participant{
			{ID: guestID, Kind: models.ParticipantGuest, LastPlayedAt: now.Add(-9 * time.Second)},
		},
		queues: map[uuid.UUID]*models.QueuedTrack{
			adminID: track(sessionID, adminID, "track-x"),
			guestID: track(sessionID, guestID, "track-y"),
		},
	}

	res, err := newTestResolver(f, now).Resolve(context.Background(), sessionID)
	require.NoError(t, err)
	require.NotNil(t, res.Track)
	assert.Equal(t, "track-y", res.Track.SpotifyTrackID)
	assert.Equal(t, guestID, res.Track.OwnerID)
}

func TestResolveSkipsEmptyQueues(t *testing.T) {
	now := time.Now()
	sessionID := uuid.New()
	adminID := uuid.New()
	guestID := uuid.New()

	// Guest has the larger wait but nothing queued; the admin's track wins.
	f := &fakeStores{
		session: &models.Session{ID: sessionID, AdminID: adminID, ExpiresAt: now.Add(time.Hour)},
		admin:   &models.Participant{ID: adminID, Kind: models.ParticipantAdmin, LastPlayedAt: now.Add(-5 * time.Second)},
		guests: []models.Participant{
			{ID: guestID, Kind: models.ParticipantGuest, LastPlayedAt: now.Add(-9 * time.Second)},
		},
		queues: map[uuid.UUID]*models.QueuedTrack{
			adminID: track(sessionID, adminID, "track-x"),
		},
	}

	res, err := newTestResolver(f, now).Resolve(context.Background(), sessionID)
	require.NoError(t, err)
	require.NotNil(t, res.Track)
	assert.Equal(t, adminID, res.Track.OwnerID)
}

func TestResolveAllQueuesEmpty(t *testing.T) {
	now := time.Now()
	sessionID := uuid.New()
	adminID := uuid.New()

	f := &fakeStores{
		session: &models.Session{ID: sessionID, AdminID: adminID, ExpiresAt: now.Add(time.Hour)},
		admin:   &models.Participant{ID: adminID, Kind: models.ParticipantAdmin, LastPlayedAt: now.Add(-time.Hour)},
		guests: []models.Participant{
			{ID: uuid.New(), Kind: models.ParticipantGuest, LastPlayedAt: now.Add(-2 * time.Hour)},
		},
		queues: map[uuid.UUID]*models.QueuedTrack{},
	}

	res, err := newTestResolver(f, now).Resolve(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Nil(t, res.Track)
	assert.NotNil(t, res.Session)
	assert.NotNil(t, res.Admin)
}

func TestResolveSessionNotFound(t *testing.T) {
	f := &fakeStores{}
	_, err := newTestResolver(f, time.Now()).Resolve(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestResolveAdminNotFound(t *testing.T) {
	now := time.Now()
	sessionID := uuid.New()
	f := &fakeStores{session: &models.Session{ID: sessionID, ExpiresAt: now.Add(time.Hour)}}
	_, err := newTestResolver(f, now).Resolve(context.Background(), sessionID)
	assert.ErrorIs(t, err, ErrAdminNotFound)
}

func TestResolveQueueError(t *testing.T) {
	now := time.Now()
	sessionID := uuid.New()
	adminID := uuid.New()
	boom := errors.New("db down")

	f := &fakeStores{
		session:  &models.Session{ID: sessionID, AdminID: adminID, ExpiresAt: now.Add(time.Hour)},
		admin:    &models.Participant{ID: adminID, Kind: models.ParticipantAdmin, LastPlayedAt: now},
		queueErr: boom,
	}

	_, err := newTestResolver(f, now).Resolve(context.Background(), sessionID)
	assert.ErrorIs(t, err, boom)
}

func TestResolveTieBreakIsDeterministic(t *testing.T) {
	now := time.Now()
	sessionID := uuid.New()
	adminID := uuid.New()
	guestID := uuid.New()
	sameClock := now.Add(-10 * time.Second)

	// Equal waits: the admin is first in candidate order and wins every time.
	f := &fakeStores{
		session: &models.Session{ID: sessionID, AdminID: adminID, ExpiresAt: now.Add(time.Hour)},
		admin:   &models.Participant{ID: adminID, Kind: models.ParticipantAdmin, LastPlayedAt: sameClock},
		guests: []models.Participant{
			{ID: guestID, Kind: models.ParticipantGuest, LastPlayedAt: sameClock},
		},
		queues: map[uuid.UUID]*models.QueuedTrack{
			adminID: track(sessionID, adminID, "admin-track"),
			guestID: track(sessionID, guestID, "guest-track"),
		},
	}

	r := newTestResolver(f, now)
	for i := 0; i < 5; i++ {
		res, err := r.Resolve(context.Background(), sessionID)
		require.NoError(t, err)
		require.NotNil(t, res.Track)
		assert.Equal(t, adminID, res.Track.OwnerID)
	}
}

func TestResolveRotatesAfterClockAdvance(t *testing.T) {
	now := time.Now()
	sessionID := uuid.New()
	adminID := uuid.New()
	guestA := uuid.New()
	guestB := uuid.New()

	f := &fakeStores{
		session: &models.Session{ID: sessionID, AdminID: adminID, ExpiresAt: now.Add(time.Hour)},
		admin:   &models.Participant{ID: adminID, Kind: models.ParticipantAdmin, LastPlayedAt: now.Add(-time.Second)},
		guests: []models.Participant{
			{ID: guestA, Kind: models.ParticipantGuest, LastPlayedAt: now.Add(-30 * time.Second)},
			{ID: guestB, Kind: models.ParticipantGuest, LastPlayedAt: now.Add(-20 * time.Second)},
		},
		queues: map[uuid.UUID]*models.QueuedTrack{
			guestA: track(sessionID, guestA, "a-track"),
			guestB: track(sessionID, guestB, "b-track"),
		},
	}

	r := newTestResolver(f, now)
	res, err := r.Resolve(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, guestA, res.Track.OwnerID)

	// Consuming A's track updates A's fairness clock and empties A's queue;
	// the next resolution must pick B.
	f.guests[0].LastPlayedAt = now
	delete(f.queues, guestA)

	res, err = r.Resolve(context.Background(), sessionID)
	require.NoError(t, err)
	require.NotNil(t, res.Track)
	assert.Equal(t, guestB, res.Track.OwnerID)
}

func TestResolveEndedSessionIsNotFound(t *testing.T) {
	now := time.Now()
	sessionID := uuid.New()
	adminID := uuid.New()
	endedAt := now.Add(-time.Hour)

	f := &fakeStores{
		session: &models.Session{ID: sessionID, AdminID: adminID, ExpiresAt: now.Add(time.Hour), EndedAt: &endedAt},
		admin:   &models.Participant{ID: adminID, Kind: models.ParticipantAdmin, LastPlayedAt: now.Add(-time.Minute)},
		queues: map[uuid.UUID]*models.QueuedTrack{
			adminID: track(sessionID, adminID, "ghost-track"),
		},
	}

	_, err := newTestResolver(f, now).Resolve(context.Background(), sessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestResolveExpiredSessionIsNotFound(t *testing.T) {
	now := time.Now()
	sessionID := uuid.New()
	adminID := uuid.New()

	f := &fakeStores{
		session: &models.Session{ID: sessionID, AdminID: adminID, ExpiresAt: now.Add(-2 * time.Hour)},
		admin:   &models.Participant{ID: adminID, Kind: models.ParticipantAdmin, LastPlayedAt: now.Add(-time.Minute)},
		queues: map[uuid.UUID]*models.QueuedTrack{
			adminID: track(sessionID, adminID, "ghost-track"),
		},
	}

	_, err := newTestResolver(f, now).Resolve(context.Background(), sessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestResolveIgnoresAdminTracksFromOtherSessions(t *testing.T) {
	now := time.Now()
	sessionID := uuid.New()
	otherSessionID := uuid.New()
	adminID := uuid.New()

	// The admin's owner ID is the user ID, shared across their sessions; a
	// track queued into another session must never resolve here.
	f := &fakeStores{
		session: &models.Session{ID: sessionID, AdminID: adminID, ExpiresAt: now.Add(time.Hour)},
		admin:   &models.Participant{ID: adminID, Kind: models.ParticipantAdmin, LastPlayedAt: now.Add(-time.Hour)},
		queues: map[uuid.UUID]*models.QueuedTrack{
			adminID: track(otherSessionID, adminID, "elsewhere-track"),
		},
	}

	res, err := newTestResolver(f, now).Resolve(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Nil(t, res.Track)
}
