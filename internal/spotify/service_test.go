package spotify

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	zspotify "github.com/zmb3/spotify/v2"
)

func TestRemoteErrCarriesProviderStatus(t *testing.T) {
	cause := fmt.Errorf("request: %w", zspotify.Error{Status: 404, Message: "Device not found"})
	err := remoteErr("play", cause)

	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "play", re.Op)
	assert.Equal(t, 404, re.Status)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, re.Error(), "status 404")
}

func TestRemoteErrWithoutProviderStatus(t *testing.T) {
	cause := errors.New("connection refused")
	err := remoteErr("search", cause)

	var re *RemoteError
	require.ErrorAs(t, err, &re)
	assert.Zero(t, re.Status)
	assert.ErrorIs(t, err, cause)
	assert.NotContains(t, re.Error(), "status")
}

func TestFullTrackResult(t *testing.T) {
	ft := zspotify.FullTrack{
		SimpleTrack: zspotify.SimpleTrack{
			ID:       "6rqhFgbbKwnb9MLmUQDhG6",
			Name:     "Song",
			Duration: 215000,
			Artists:  []zspotify.SimpleArtist{{Name: "Artist A"}, {Name: "Artist B"}},
		},
		Album: zspotify.SimpleAlbum{
			Name:   "Album",
			Images: []zspotify.Image{{URL: "https://img.example/cover.jpg"}},
		},
	}

	got := fullTrackResult(ft)
	assert.Equal(t, "Song", got.Title)
	assert.Equal(t, "Artist A", got.Artist)
	assert.Equal(t, "Album", got.Album)
	assert.Equal(t, "https://img.example/cover.jpg", got.CoverURL)
	assert.Equal(t, 215000, got.DurationMS)
}

func TestFullTrackResultHandlesMissingFields(t *testing.T) {
	got := fullTrackResult(zspotify.FullTrack{})
	assert.Empty(t, got.Artist)
	assert.Empty(t, got.CoverURL)
}
