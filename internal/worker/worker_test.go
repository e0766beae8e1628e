package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crowdqueue/backend/pkg/queue"
)

type fakeRefresher struct {
	refreshed []uuid.UUID
	err       error
}

func (f *fakeRefresher) RefreshTokens(_ context.Context, identity uuid.UUID) error {
	if f.err != nil {
		return f.err
	}
	f.refreshed = append(f.refreshed, identity)
	return nil
}

type fakeSessions struct {
	ended   []uuid.UUID
	expired []uuid.UUID
}

func (f *fakeSessions) End(_ context.Context, id uuid.UUID) error {
	f.ended = append(f.ended, id)
	return nil
}

func (f *fakeSessions) ListExpired(_ context.Context, _ int) ([]uuid.UUID, error) {
	return f.expired, nil
}

type fakeAccounts struct {
	expiring []uuid.UUID
}

func (f *fakeAccounts) ListExpiring(_ context.Context, _ time.Duration, _ int) ([]uuid.UUID, error) {
	return f.expiring, nil
}

func job(t *testing.T, jobType queue.JobType, payload interface{}) *queue.Job {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return &queue.Job{ID: uuid.New().String(), Type: jobType, Payload: body}
}

func TestProcessTokenRefresh(t *testing.T) {
	refresher := &fakeRefresher{}
	p := NewMaintenanceProcessor(refresher, &fakeAccounts{}, &fakeSessions{}, nil, nil)

	userID := uuid.New()
	err := p.Process(context.Background(), job(t, queue.JobTypeTokenRefresh, queue.TokenRefreshPayload{UserID: userID}))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{userID}, refresher.refreshed)
}

func TestProcessTokenRefreshPropagatesFailure(t *testing.T) {
	boom := errors.New("provider down")
	p := NewMaintenanceProcessor(&fakeRefresher{err: boom}, &fakeAccounts{}, &fakeSessions{}, nil, nil)

	err := p.Process(context.Background(), job(t, queue.JobTypeTokenRefresh, queue.TokenRefreshPayload{UserID: uuid.New()}))
	assert.ErrorIs(t, err, boom)
}

func TestProcessSessionCleanup(t *testing.T) {
	sessions := &fakeSessions{}
	p := NewMaintenanceProcessor(&fakeRefresher{}, &fakeAccounts{}, sessions, nil, nil)

	sessionID := uuid.New()
	err := p.Process(context.Background(), job(t, queue.JobTypeSessionCleanup, queue.SessionCleanupPayload{SessionID: sessionID}))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{sessionID}, sessions.ended)
}

func TestProcessRejectsUnknownType(t *testing.T) {
	p := NewMaintenanceProcessor(&fakeRefresher{}, &fakeAccounts{}, &fakeSessions{}, nil, nil)

	err := p.Process(context.Background(), &queue.Job{ID: "x", Type: "mystery"})
	assert.Error(t, err)
}

func TestProcessRejectsMalformedPayload(t *testing.T) {
	p := NewMaintenanceProcessor(&fakeRefresher{}, &fakeAccounts{}, &fakeSessions{}, nil, nil)

	err := p.Process(context.Background(), &queue.Job{ID: "x", Type: queue.JobTypeTokenRefresh, Payload: []byte("{")})
	assert.Error(t, err)
}
