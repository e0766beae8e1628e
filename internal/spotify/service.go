// Package spotify wraps the Spotify Web API for playback control, search and
// account connection. The playback identity used throughout the scheduler is
// the admin user ID; this package maps it to that admin's stored tokens.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/crowdqueue/backend/internal/models"
)

var (
	// ErrNotConnected is returned when the admin has no connected Spotify account.
	ErrNotConnected = errors.New("spotify account not connected")
	// ErrNothingPlaying is returned when the player has no active track.
	ErrNothingPlaying = errors.New("nothing is playing")
)

// RemoteError wraps a failed provider call with its HTTP status when known.
type RemoteError struct {
	Op     string
	Status int
	Err    error
}

func (e *RemoteError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("spotify %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("spotify %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

func remoteErr(op string, err error) error {
	var se spotify.Error
	if errors.As(err, &se) {
		return &RemoteError{Op: op, Status: se.Status, Err: err}
	}
	return &RemoteError{Op: op, Err: err}
}

// TrackResult is one search hit trimmed for queue submission.
type TrackResult struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	CoverURL   string `json:"cover_url"`
	DurationMS int    `json:"duration_ms"`
}

// Service talks to the Spotify Web API on behalf of connected admins.
type Service struct {
	auth   *spotifyauth.Authenticator
	repo   *Repository
	logger *zap.Logger
}

// NewService creates the Spotify service from OAuth app credentials.
func NewService(clientID, clientSecret, redirectURL string, repo *Repository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	auth := spotifyauth.New(
		spotifyauth.WithClientID(clientID),
		spotifyauth.WithClientSecret(clientSecret),
		spotifyauth.WithRedirectURL(redirectURL),
		spotifyauth.WithScopes(
			spotifyauth.ScopeUserReadPlaybackState,
			spotifyauth.ScopeUserModifyPlaybackState,
			spotifyauth.ScopeUserReadCurrentlyPlaying,
		),
	)
	return &Service{auth: auth, repo: repo, logger: logger}
}

// AuthURL returns the provider authorization URL for the connect flow.
func (s *Service) AuthURL(state string) string {
	return s.auth.AuthURL(state)
}

// Exchange trades an authorization code for tokens and stores them for the
// admin, returning the connected account.
func (s *Service) Exchange(ctx context.Context, userID uuid.UUID, code string) (*models.SpotifyAccount, error) {
	token, err := s.auth.Exchange(ctx, code)
	if err != nil {
		return nil, remoteErr("token exchange", err)
	}

	client := spotify.New(s.auth.Client(ctx, token), spotify.WithRetry(true))
	me, err := client.CurrentUser(ctx)
	if err != nil {
		return nil, remoteErr("current user", err)
	}

	account := &models.SpotifyAccount{
		UserID:        userID,
		SpotifyUserID: me.ID,
		AccessToken:   token.AccessToken,
		RefreshToken:  token.RefreshToken,
		TokenType:     token.TokenType,
		ExpiresAt:     token.Expiry,
	}
	if err := s.repo.Upsert(ctx, account); err != nil {
		return nil, fmt.Errorf("store account: %w", err)
	}
	return account, nil
}

// Play starts playback of the given track on the identity's player.
func (s *Service) Play(ctx context.Context, identity uuid.UUID, trackExternalID string) error {
	client, account, err := s.clientFor(ctx, identity)
	if err != nil {
		return err
	}
	opts := &spotify.PlayOptions{
		URIs: []spotify.URI{spotify.URI("spotify:track:" + trackExternalID)},
	}
	if err := client.PlayOpt(ctx, opts); err != nil {
		return remoteErr("play", err)
	}
	s.persistIfRefreshed(ctx, client, account)
	return nil
}

// Pause pauses the identity's player.
func (s *Service) Pause(ctx context.Context, identity uuid.UUID) error {
	client, account, err := s.clientFor(ctx, identity)
	if err != nil {
		return err
	}
	if err := client.Pause(ctx); err != nil {
		return remoteErr("pause", err)
	}
	s.persistIfRefreshed(ctx, client, account)
	return nil
}

// Resume resumes the identity's player without changing the track.
func (s *Service) Resume(ctx context.Context, identity uuid.UUID) error {
	client, account, err := s.clientFor(ctx, identity)
	if err != nil {
		return err
	}
	if err := client.Play(ctx); err != nil {
		return remoteErr("resume", err)
	}
	s.persistIfRefreshed(ctx, client, account)
	return nil
}

// SetVolume sets the player volume in percent (0-100).
func (s *Service) SetVolume(ctx context.Context, identity uuid.UUID, percent int) error {
	client, account, err := s.clientFor(ctx, identity)
	if err != nil {
		return err
	}
	if err := client.Volume(ctx, percent); err != nil {
		return remoteErr("volume", err)
	}
	s.persistIfRefreshed(ctx, client, account)
	return nil
}

// RemainingDuration returns how long the currently playing track has left.
// Returns ErrNothingPlaying when the player is idle.
func (s *Service) RemainingDuration(ctx context.Context, identity uuid.UUID) (time.Duration, error) {
	client, account, err := s.clientFor(ctx, identity)
	if err != nil {
		return 0, err
	}
	playing, err := client.PlayerCurrentlyPlaying(ctx)
	if err != nil {
		return 0, remoteErr("currently playing", err)
	}
	s.persistIfRefreshed(ctx, client, account)
	if playing == nil || playing.Item == nil || !playing.Playing {
		return 0, ErrNothingPlaying
	}
	remaining := time.Duration(int(playing.Item.Duration)-int(playing.Progress)) * time.Millisecond
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// SearchTracks searches the catalog using the identity's account.
func (s *Service) SearchTracks(ctx context.Context, identity uuid.UUID, query string, limit int) ([]TrackResult, error) {
	client, account, err := s.clientFor(ctx, identity)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}
	result, err := client.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(limit))
	if err != nil {
		return nil, remoteErr("search", err)
	}
	s.persistIfRefreshed(ctx, client, account)

	if result.Tracks == nil {
		return nil, nil
	}
	hits := make([]TrackResult, 0, len(result.Tracks.Tracks))
	for _, t := range result.Tracks.Tracks {
		hits = append(hits, fullTrackResult(t))
	}
	return hits, nil
}

// RefreshTokens forces a token refresh for the identity and persists the
// result. Used by the background worker ahead of expiry.
func (s *Service) RefreshTokens(ctx context.Context, identity uuid.UUID) error {
	client, account, err := s.clientFor(ctx, identity)
	if err != nil {
		return err
	}
	// Token() pulls from the oauth2 source, refreshing when expired.
	token, err := client.Token()
	if err != nil {
		return remoteErr("refresh token", err)
	}
	return s.saveToken(ctx, account, token)
}

func (s *Service) clientFor(ctx context.Context, identity uuid.UUID) (*spotify.Client, *models.SpotifyAccount, error) {
	account, err := s.repo.GetByUserID(ctx, identity)
	if err != nil {
		return nil, nil, fmt.Errorf("load account: %w", err)
	}
	if account == nil {
		return nil, nil, ErrNotConnected
	}
	token := &oauth2.Token{
		AccessToken:  account.AccessToken,
		RefreshToken: account.RefreshToken,
		TokenType:    account.TokenType,
		Expiry:       account.ExpiresAt,
	}
	client := spotify.New(s.auth.Client(ctx, token), spotify.WithRetry(true))
	return client, account, nil
}

// persistIfRefreshed stores tokens back when the oauth2 transport refreshed
// them during a call. Best effort; a miss only costs one extra refresh later.
func (s *Service) persistIfRefreshed(ctx context.Context, client *spotify.Client, account *models.SpotifyAccount) {
	token, err := client.Token()
	if err != nil || token.AccessToken == account.AccessToken {
		return
	}
	if err := s.saveToken(ctx, account, token); err != nil {
		s.logger.Warn("persist refreshed token failed", zap.Error(err), zap.String("user_id", account.UserID.String()))
	}
}

func (s *Service) saveToken(ctx context.Context, account *models.SpotifyAccount, token *oauth2.Token) error {
	account.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		account.RefreshToken = token.RefreshToken
	}
	account.TokenType = token.TokenType
	account.ExpiresAt = token.Expiry
	return s.repo.Upsert(ctx, account)
}

func fullTrackResult(t spotify.FullTrack) TrackResult {
	artist := ""
	if len(t.Artists) > 0 {
		artist = t.Artists[0].Name
	}
	cover := ""
	if len(t.Album.Images) > 0 {
		cover = t.Album.Images[0].URL
	}
	return TrackResult{
		ID:         string(t.ID),
		Title:      t.Name,
		Artist:     artist,
		Album:      t.Album.Name,
		CoverURL:   cover,
		DurationMS: int(t.Duration),
	}
}
