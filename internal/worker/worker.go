package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crowdqueue/backend/pkg/queue"
)

const (
	// ScanInterval is how often the worker scans for expiring tokens and expired sessions.
	ScanInterval = 5 * time.Minute
	// TokenRefreshWindow refreshes tokens expiring within this window.
	TokenRefreshWindow = 15 * time.Minute
	// ScanBatchSize caps how many rows each scan picks up.
	ScanBatchSize = 100
)

// TokenRefresher refreshes one admin's provider tokens.
type TokenRefresher interface {
	RefreshTokens(ctx context.Context, identity uuid.UUID) error
}

// AccountStore lists linked accounts whose tokens expire soon.
type AccountStore interface {
	ListExpiring(ctx context.Context, within time.Duration, limit int) ([]uuid.UUID, error)
}

// SessionStore ends sessions and lists expired ones.
type SessionStore interface {
	End(ctx context.Context, id uuid.UUID) error
	ListExpired(ctx context.Context, limit int) ([]uuid.UUID, error)
}

// MaintenanceProcessor processes background maintenance jobs: provider token
// refresh and expired-session cleanup.
type MaintenanceProcessor struct {
	refresher TokenRefresher
	accounts  AccountStore
	sessions  SessionStore
	queue     *queue.Queue
	logger    *zap.Logger
}

// NewMaintenanceProcessor creates a maintenance job processor.
func NewMaintenanceProcessor(refresher TokenRefresher, accounts AccountStore, sessions SessionStore, q *queue.Queue, logger *zap.Logger) *MaintenanceProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MaintenanceProcessor{refresher: refresher, accounts: accounts, sessions: sessions, queue: q, logger: logger}
}

// Process executes one maintenance job.
func (p *MaintenanceProcessor) Process(ctx context.Context, job *queue.Job) error {
	switch job.Type {
	case queue.JobTypeTokenRefresh:
		var payload queue.TokenRefreshPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		if err := p.refresher.RefreshTokens(ctx, payload.UserID); err != nil {
			return fmt.Errorf("refresh tokens: %w", err)
		}
		p.logger.Info("tokens refreshed", zap.String("user_id", payload.UserID.String()))
		return nil

	case queue.JobTypeSessionCleanup:
		var payload queue.SessionCleanupPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("unmarshal payload: %w", err)
		}
		if err := p.sessions.End(ctx, payload.SessionID); err != nil {
			return fmt.Errorf("end session: %w", err)
		}
		p.logger.Info("expired session ended", zap.String("session_id", payload.SessionID.String()))
		return nil

	default:
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *MaintenanceProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("maintenance worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}

// RunScanner periodically scans for expiring tokens and expired sessions and
// enqueues the corresponding jobs.
func (p *MaintenanceProcessor) RunScanner(ctx context.Context) {
	ticker := time.NewTicker(ScanInterval)
	defer ticker.Stop()

	// Scan once at startup so a restart does not wait a full interval.
	p.scan(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("maintenance scanner stopping")
			return
		case <-ticker.C:
			p.scan(ctx)
		}
	}
}

func (p *MaintenanceProcessor) scan(ctx context.Context) {
	userIDs, err := p.accounts.ListExpiring(ctx, TokenRefreshWindow, ScanBatchSize)
	if err != nil {
		p.logger.Warn("list expiring accounts failed", zap.Error(err))
	} else {
		for _, id := range userIDs {
			if err := p.queue.EnqueueTokenRefresh(ctx, queue.TokenRefreshPayload{UserID: id}); err != nil {
				p.logger.Warn("enqueue token refresh failed", zap.Error(err), zap.String("user_id", id.String()))
			}
		}
		if len(userIDs) > 0 {
			p.logger.Info("token refresh jobs enqueued", zap.Int("count", len(userIDs)))
		}
	}

	sessionIDs, err := p.sessions.ListExpired(ctx, ScanBatchSize)
	if err != nil {
		p.logger.Warn("list expired sessions failed", zap.Error(err))
		return
	}
	for _, id := range sessionIDs {
		if err := p.queue.EnqueueSessionCleanup(ctx, queue.SessionCleanupPayload{SessionID: id}); err != nil {
			p.logger.Warn("enqueue session cleanup failed", zap.Error(err), zap.String("session_id", id.String()))
		}
	}
	if len(sessionIDs) > 0 {
		p.logger.Info("session cleanup jobs enqueued", zap.Int("count", len(sessionIDs)))
	}
}
