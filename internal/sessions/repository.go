package sessions

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crowdqueue/backend/internal/models"
)

// Repository handles session and guest persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a sessions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new session with the given join code.
func (r *Repository) Create(ctx context.Context, s *models.Session) error {
	const q = `INSERT INTO sessions (code, name, admin_id, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, admin_last_played_at, created_at`
	return r.pool.QueryRow(ctx, q, s.Code, s.Name, s.AdminID, s.ExpiresAt).
		Scan(&s.ID, &s.AdminLastPlayedAt, &s.CreatedAt)
}

// GetByID returns a session by ID, or nil when no such session exists.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	const q = `SELECT id, code, name, admin_id, admin_last_played_at, expires_at, ended_at, created_at
		FROM sessions WHERE id = $1`
	var s models.Session
	err := r.pool.QueryRow(ctx, q, id).
		Scan(&s.ID, &s.Code, &s.Name, &s.AdminID, &s.AdminLastPlayedAt, &s.ExpiresAt, &s.EndedAt, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetActiveByCode returns the not-yet-ended session with the given join code,
// or nil when none matches.
func (r *Repository) GetActiveByCode(ctx context.Context, code string) (*models.Session, error) {
	const q = `SELECT id, code, name, admin_id, admin_last_played_at, expires_at, ended_at, created_at
		FROM sessions WHERE code = $1 AND ended_at IS NULL AND expires_at > NOW()`
	var s models.Session
	err := r.pool.QueryRow(ctx, q, code).
		Scan(&s.ID, &s.Code, &s.Name, &s.AdminID, &s.AdminLastPlayedAt, &s.ExpiresAt, &s.EndedAt, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListByAdmin returns the admin's sessions, newest first.
func (r *Repository) ListByAdmin(ctx context.Context, adminID uuid.UUID) ([]models.Session, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, code, name, admin_id, admin_last_played_at, expires_at, ended_at, created_at
		FROM sessions WHERE admin_id = $1 ORDER BY created_at DESC`, adminID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Session
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(&s.ID, &s.Code, &s.Name, &s.AdminID, &s.AdminLastPlayedAt, &s.ExpiresAt, &s.EndedAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// End marks a session as ended. Guests and queued tracks cascade on delete
// only; ending keeps them for history views.
func (r *Repository) End(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE sessions SET ended_at = NOW() WHERE id = $1 AND ended_at IS NULL`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}

// ListExpired returns IDs of active sessions past their validity window.
func (r *Repository) ListExpired(ctx context.Context, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM sessions WHERE ended_at IS NULL AND expires_at <= NOW() LIMIT $1`, limit)
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

// AddGuest inserts a guest into a session. The fairness clock starts at join
// time so a newcomer does not outrank everyone already waiting.
func (r *Repository) AddGuest(ctx context.Context, g *models.Guest) error {
	const q = `INSERT INTO guests (session_id, name)
		VALUES ($1, $2)
		RETURNING id, last_played_at, joined_at`
	return r.pool.QueryRow(ctx, q, g.SessionID, g.Name).
		Scan(&g.ID, &g.LastPlayedAt, &g.JoinedAt)
}

// GetGuest returns a guest by ID, or nil when no such guest exists.
func (r *Repository) GetGuest(ctx context.Context, id uuid.UUID) (*models.Guest, error) {
	const q = `SELECT id, session_id, name, last_played_at, joined_at FROM guests WHERE id = $1`
	var g models.Guest
	err := r.pool.QueryRow(ctx, q, id).Scan(&g.ID, &g.SessionID, &g.Name, &g.LastPlayedAt, &g.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// ListGuests returns a session's guests in join order.
func (r *Repository) ListGuests(ctx context.Context, sessionID uuid.UUID) ([]models.Guest, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, session_id, name, last_played_at, joined_at
		FROM guests WHERE session_id = $1 ORDER BY joined_at`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Guest
	for rows.Next() {
		var g models.Guest
		if err := rows.Scan(&g.ID, &g.SessionID, &g.Name, &g.LastPlayedAt, &g.JoinedAt); err != nil {
			return nil, err
		}
		list = append(list, g)
	}
	return list, rows.Err()
}

// AdminParticipant returns the session admin as a selection participant, or
// nil when the admin user record is gone.
func (r *Repository) AdminParticipant(ctx context.Context, session *models.Session) (*models.Participant, error) {
	const q = `SELECT u.id, u.display_name FROM users u WHERE u.id = $1`
	var id uuid.UUID
	var name string
	err := r.pool.QueryRow(ctx, q, session.AdminID).Scan(&id, &name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &models.Participant{
		ID:           id,
		SessionID:    session.ID,
		Kind:         models.ParticipantAdmin,
		Name:         name,
		LastPlayedAt: session.AdminLastPlayedAt,
	}, nil
}

// GuestParticipants returns a session's guests as selection participants, in
// join order.
func (r *Repository) GuestParticipants(ctx context.Context, sessionID uuid.UUID) ([]models.Participant, error) {
	guests, err := r.ListGuests(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	participants := make([]models.Participant, 0, len(guests))
	for _, g := range guests {
		participants = append(participants, models.Participant{
			ID:           g.ID,
			SessionID:    g.SessionID,
			Kind:         models.ParticipantGuest,
			Name:         g.Name,
			LastPlayedAt: g.LastPlayedAt,
		})
	}
	return participants, nil
}
