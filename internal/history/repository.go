package history

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crowdqueue/backend/internal/models"
)

// Repository reads the play history written when queued tracks are consumed.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a history repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListBySession returns a session's played tracks, newest first.
func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]models.PlayedTrack, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT id, session_id, owner_kind, owner_id, owner_name, spotify_track_id, title, artist, played_at
		FROM play_history WHERE session_id = $1 ORDER BY played_at DESC LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.PlayedTrack
	for rows.Next() {
		var p models.PlayedTrack
		if err := rows.Scan(&p.ID, &p.SessionID, &p.OwnerKind, &p.OwnerID, &p.OwnerName, &p.SpotifyTrackID, &p.Title, &p.Artist, &p.PlayedAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// CountBySession returns how many tracks a session has played.
func (r *Repository) CountBySession(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM play_history WHERE session_id = $1`, sessionID).Scan(&n)
	return n, err
}
