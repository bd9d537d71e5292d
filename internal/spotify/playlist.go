package spotify

import (
	"context"
	"errors"
	"fmt"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/go-moodtunes/internal/music"
)

const maxTracksPerRequest = 100

// CreatePlaylist creates a playlist owned by userID and returns its ID and
// external URL.
func (c *Client) CreatePlaylist(ctx context.Context, userID, name, description string, public bool) (id, url string, err error) {
	api, err := c.api(ctx)
	if err != nil {
		return "", "", err
	}

	playlist, err := api.CreatePlaylistForUser(ctx, userID, name, description, public, false)
	if err != nil {
		return "", "", normalize("creating playlist", err)
	}
	return playlist.ID.String(), playlist.ExternalURLs["spotify"], nil
}

// AddTracks adds tracks to a playlist, batching to the API's limit.
func (c *Client) AddTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	if len(trackIDs) == 0 {
		return nil
	}
	api, err := c.api(ctx)
	if err != nil {
		return err
	}

	ids := make([]spotify.ID, len(trackIDs))
	for i, id := range trackIDs {
		ids[i] = spotify.ID(id)
	}

	for i := 0; i < len(ids); i += maxTracksPerRequest {
		end := min(i+maxTracksPerRequest, len(ids))
		if _, err := api.AddTracksToPlaylist(ctx, spotify.ID(playlistID), ids[i:end]...); err != nil {
			return normalize(fmt.Sprintf("adding tracks (batch %d-%d)", i+1, end), err)
		}
	}
	return nil
}

// PlaylistTracks lists every track in a playlist. Episodes and local files
// are skipped.
func (c *Client) PlaylistTracks(ctx context.Context, playlistID string) ([]music.Track, error) {
	api, err := c.api(ctx)
	if err != nil {
		return nil, err
	}

	page, err := api.GetPlaylistItems(ctx, spotify.ID(playlistID), c.requestOpts(maxTracksPerRequest)...)
	if err != nil {
		return nil, normalize("listing playlist tracks", err)
	}

	var tracks []music.Track
	for {
		for _, item := range page.Items {
			if item.Track.Track == nil {
				continue
			}
			tracks = append(tracks, convertFullTrack(item.Track.Track))
		}

		err = api.NextPage(ctx, page)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return nil, normalize("listing playlist tracks", err)
		}
	}
	return tracks, nil
}
