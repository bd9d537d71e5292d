package spotify

import (
	"context"
	"fmt"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/go-moodtunes/internal/music"
)

// Recommendations returns up to limit tracks seeded by one genre and tuned
// toward the given audio targets.
func (c *Client) Recommendations(ctx context.Context, genre string, limit int, targets music.AudioTargets) ([]music.Track, error) {
	api, err := c.api(ctx)
	if err != nil {
		return nil, err
	}

	attrs := spotify.NewTrackAttributes().
		TargetEnergy(targets.Energy).
		TargetValence(targets.Valence).
		TargetDanceability(targets.Danceability)

	recs, err := api.GetRecommendations(ctx, spotify.Seeds{Genres: []string{genre}}, attrs, c.requestOpts(limit)...)
	if err != nil {
		return nil, normalize(fmt.Sprintf("recommendations for %q", genre), err)
	}

	tracks := make([]music.Track, 0, len(recs.Tracks))
	for _, t := range recs.Tracks {
		tracks = append(tracks, convertSimpleTrack(t))
	}
	return tracks, nil
}

// Track returns full detail for one track.
func (c *Client) Track(ctx context.Context, id string) (music.Track, error) {
	api, err := c.api(ctx)
	if err != nil {
		return music.Track{}, err
	}

	full, err := api.GetTrack(ctx, spotify.ID(id), c.requestOpts(0)...)
	if err != nil {
		return music.Track{}, normalize(fmt.Sprintf("getting track %s", id), err)
	}
	return convertFullTrack(full), nil
}

// Search runs a track keyword search.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]music.Track, error) {
	api, err := c.api(ctx)
	if err != nil {
		return nil, err
	}

	result, err := api.Search(ctx, query, spotify.SearchTypeTrack, c.requestOpts(limit)...)
	if err != nil {
		return nil, normalize(fmt.Sprintf("searching %q", query), err)
	}
	if result.Tracks == nil {
		return []music.Track{}, nil
	}

	tracks := make([]music.Track, 0, len(result.Tracks.Tracks))
	for i := range result.Tracks.Tracks {
		tracks = append(tracks, convertFullTrack(&result.Tracks.Tracks[i]))
	}
	return tracks, nil
}

// convertSimpleTrack converts a summary track. Summary tracks carry no album
// art; enrichment fills it in.
func convertSimpleTrack(t spotify.SimpleTrack) music.Track {
	return music.Track{
		ID:          t.ID.String(),
		Title:       t.Name,
		Artist:      primaryArtist(t.Artists),
		PreviewURL:  t.PreviewURL,
		ExternalURL: t.ExternalURLs["spotify"],
		URI:         string(t.URI),
	}
}

func convertFullTrack(t *spotify.FullTrack) music.Track {
	track := convertSimpleTrack(t.SimpleTrack)
	if len(t.Album.Images) > 0 {
		track.AlbumArt = t.Album.Images[0].URL
	}
	return track
}

func primaryArtist(artists []spotify.SimpleArtist) string {
	if len(artists) == 0 {
		return ""
	}
	return artists[0].Name
}
