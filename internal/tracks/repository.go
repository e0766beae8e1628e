package tracks

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crowdqueue/backend/internal/models"
)

// ErrTrackGone is returned when a queued track no longer exists, e.g. it was
// already consumed by an advance or withdrawn by its owner.
var ErrTrackGone = errors.New("queued track no longer exists")

// Repository handles queued-track persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a tracks repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a queued track at the tail of its owner's queue.
func (r *Repository) Create(ctx context.Context, t *models.QueuedTrack) error {
	const q = `INSERT INTO queued_tracks (session_id, owner_kind, owner_id, spotify_track_id, title, artist, album, cover_url, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`
	return r.pool.QueryRow(ctx, q, t.SessionID, t.OwnerKind, t.OwnerID, t.SpotifyTrackID, t.Title, t.Artist, t.Album, t.CoverURL, t.DurationMS).
		Scan(&t.ID, &t.CreatedAt)
}

// GetByID returns a queued track by ID, or nil when no such track exists.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.QueuedTrack, error) {
	const q = `SELECT id, session_id, owner_kind, owner_id, spotify_track_id, title, artist, album, cover_url, duration_ms, created_at
		FROM queued_tracks WHERE id = $1`
	var t models.QueuedTrack
	err := r.pool.QueryRow(ctx, q, id).
		Scan(&t.ID, &t.SessionID, &t.OwnerKind, &t.OwnerID, &t.SpotifyTrackID, &t.Title, &t.Artist, &t.Album, &t.CoverURL, &t.DurationMS, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// OldestByOwner returns the earliest-inserted pending track for one
// participant within one session, or nil when that queue is empty. Scoping by
// session matters for admins: their owner ID is the user ID, shared across
// every session they host.
func (r *Repository) OldestByOwner(ctx context.Context, sessionID, ownerID uuid.UUID) (*models.QueuedTrack, error) {
	const q = `SELECT id, session_id, owner_kind, owner_id, spotify_track_id, title, artist, album, cover_url, duration_ms, created_at
		FROM queued_tracks WHERE session_id = $1 AND owner_id = $2 ORDER BY created_at, id LIMIT 1`
	var t models.QueuedTrack
	err := r.pool.QueryRow(ctx, q, sessionID, ownerID).
		Scan(&t.ID, &t.SessionID, &t.OwnerKind, &t.OwnerID, &t.SpotifyTrackID, &t.Title, &t.Artist, &t.Album, &t.CoverURL, &t.DurationMS, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListBySession returns a session's whole queue in insertion order.
func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.QueuedTrack, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, session_id, owner_kind, owner_id, spotify_track_id, title, artist, album, cover_url, duration_ms, created_at
		FROM queued_tracks WHERE session_id = $1 ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.QueuedTrack
	for rows.Next() {
		var t models.QueuedTrack
		if err := rows.Scan(&t.ID, &t.SessionID, &t.OwnerKind, &t.OwnerID, &t.SpotifyTrackID, &t.Title, &t.Artist, &t.Album, &t.CoverURL, &t.DurationMS, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// Delete removes a queued track without touching the fairness clock
// (withdrawal by its owner).
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM queued_tracks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTrackGone
	}
	return nil
}

// MarkPlayedAndRemove consumes a queued track in one transaction: the owner's
// fairness clock advances, a play-history row is written, and the queue record
// is deleted. Returns ErrTrackGone when the track was already consumed, which
// keeps a double firing from deleting a second record.
func (r *Repository) MarkPlayedAndRemove(ctx context.Context, trackID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const sel = `SELECT session_id, owner_kind, owner_id, spotify_track_id, title, artist
		FROM queued_tracks WHERE id = $1 FOR UPDATE`
	var (
		sessionID uuid.UUID
		ownerKind models.ParticipantKind
		ownerID   uuid.UUID
		spotifyID string
		title     string
		artist    string
	)
	err = tx.QueryRow(ctx, sel, trackID).Scan(&sessionID, &ownerKind, &ownerID, &spotifyID, &title, &artist)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrTrackGone
	}
	if err != nil {
		return fmt.Errorf("lock track: %w", err)
	}

	var ownerName string
	switch ownerKind {
	case models.ParticipantAdmin:
		err = tx.QueryRow(ctx, `UPDATE sessions SET admin_last_played_at = NOW() WHERE id = $1
			RETURNING (SELECT display_name FROM users WHERE id = $2)`, sessionID, ownerID).Scan(&ownerName)
	case models.ParticipantGuest:
		err = tx.QueryRow(ctx, `UPDATE guests SET last_played_at = NOW() WHERE id = $1 RETURNING name`, ownerID).Scan(&ownerName)
	default:
		return fmt.Errorf("unknown owner kind %q", ownerKind)
	}
	if err != nil {
		return fmt.Errorf("advance fairness clock: %w", err)
	}

	const hist = `INSERT INTO play_history (session_id, owner_kind, owner_id, owner_name, spotify_track_id, title, artist)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := tx.Exec(ctx, hist, sessionID, ownerKind, ownerID, ownerName, spotifyID, title, artist); err != nil {
		return fmt.Errorf("write history: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM queued_tracks WHERE id = $1`, trackID); err != nil {
		return fmt.Errorf("delete track: %w", err)
	}

	return tx.Commit(ctx)
}
