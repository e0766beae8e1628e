package models

import (
	"time"

	"github.com/google/uuid"
)

// QueuedTrack is one pending song request, owned by exactly one participant.
// Tracks are consumed oldest-first per owner when that owner is selected.
type QueuedTrack struct {
	ID             uuid.UUID       `json:"id"`
	SessionID      uuid.UUID       `json:"session_id"`
	OwnerKind      ParticipantKind `json:"owner_kind"`
	OwnerID        uuid.UUID       `json:"owner_id"`
	SpotifyTrackID string          `json:"spotify_track_id"`
	Title          string          `json:"title"`
	Artist         string          `json:"artist"`
	Album          string          `json:"album"`
	CoverURL       string          `json:"cover_url"`
	DurationMS     int             `json:"duration_ms"`
	CreatedAt      time.Time       `json:"created_at"`
}

// PlayedTrack is one play-history entry, written when a queued track is
// handed to the remote player.
type PlayedTrack struct {
	ID             uuid.UUID       `json:"id"`
	SessionID      uuid.UUID       `json:"session_id"`
	OwnerKind      ParticipantKind `json:"owner_kind"`
	OwnerID        uuid.UUID       `json:"owner_id"`
	OwnerName      string          `json:"owner_name"`
	SpotifyTrackID string          `json:"spotify_track_id"`
	Title          string          `json:"title"`
	Artist         string          `json:"artist"`
	PlayedAt       time.Time       `json:"played_at"`
}
