package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is one live queue-and-playback event identified by a join code.
type Session struct {
	ID                uuid.UUID  `json:"id"`
	Code              string     `json:"code"`
	Name              string     `json:"name"`
	AdminID           uuid.UUID  `json:"admin_id"`
	AdminLastPlayedAt time.Time  `json:"-"`
	ExpiresAt         time.Time  `json:"expires_at"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// Active reports whether the session is still joinable and playable.
func (s *Session) Active(now time.Time) bool {
	return s.EndedAt == nil && now.Before(s.ExpiresAt)
}

// Guest is a session participant joined via join code. Guests submit tracks
// but never control playback.
type Guest struct {
	ID           uuid.UUID `json:"id"`
	SessionID    uuid.UUID `json:"session_id"`
	Name         string    `json:"name"`
	LastPlayedAt time.Time `json:"last_played_at"`
	JoinedAt     time.Time `json:"joined_at"`
}

// ParticipantKind discriminates the two participant variants of a session.
type ParticipantKind string

const (
	ParticipantAdmin ParticipantKind = "admin"
	ParticipantGuest ParticipantKind = "guest"
)

// Participant is the polymorphic view over the session admin and its guests
// used by next-track selection. LastPlayedAt is the fairness clock: the moment
// a track owned by this participant was last selected to play.
type Participant struct {
	ID           uuid.UUID       `json:"id"`
	SessionID    uuid.UUID       `json:"session_id"`
	Kind         ParticipantKind `json:"kind"`
	Name         string          `json:"name"`
	LastPlayedAt time.Time       `json:"last_played_at"`
}
