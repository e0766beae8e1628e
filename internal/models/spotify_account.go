package models

import (
	"time"

	"github.com/google/uuid"
)

// SpotifyAccount stores the OAuth tokens of an admin's connected Spotify
// account. The user ID doubles as the playback identity addressed by the
// scheduler.
type SpotifyAccount struct {
	UserID        uuid.UUID `json:"user_id"`
	SpotifyUserID string    `json:"spotify_user_id"`
	AccessToken   string    `json:"-"`
	RefreshToken  string    `json:"-"`
	TokenType     string    `json:"-"`
	ExpiresAt     time.Time `json:"expires_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
