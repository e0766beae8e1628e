package spotify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crowdqueue/backend/internal/models"
)

// Repository handles Spotify account token persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a spotify accounts repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert stores or replaces the tokens of a user's connected account.
func (r *Repository) Upsert(ctx context.Context, a *models.SpotifyAccount) error {
	const q = `INSERT INTO spotify_accounts (user_id, spotify_user_id, access_token, refresh_token, token_type, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			spotify_user_id = EXCLUDED.spotify_user_id,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_type = EXCLUDED.token_type,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()
		RETURNING updated_at`
	return r.pool.QueryRow(ctx, q, a.UserID, a.SpotifyUserID, a.AccessToken, a.RefreshToken, a.TokenType, a.ExpiresAt).
		Scan(&a.UpdatedAt)
}

// GetByUserID returns a user's connected account, or nil when none exists.
func (r *Repository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.SpotifyAccount, error) {
	const q = `SELECT user_id, spotify_user_id, access_token, refresh_token, token_type, expires_at, updated_at
		FROM spotify_accounts WHERE user_id = $1`
	var a models.SpotifyAccount
	err := r.pool.QueryRow(ctx, q, userID).
		Scan(&a.UserID, &a.SpotifyUserID, &a.AccessToken, &a.RefreshToken, &a.TokenType, &a.ExpiresAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListExpiring returns user IDs whose access token expires within the window.
func (r *Repository) ListExpiring(ctx context.Context, within time.Duration, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM spotify_accounts WHERE expires_at <= $1 LIMIT $2`,
		time.Now().Add(within), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Delete disconnects a user's account.
func (r *Repository) Delete(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM spotify_accounts WHERE user_id = $1`, userID)
	return err
}
