// Spotify Web API implementation of [Catalog]
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/musikai/musikd/internal/shared"
)

const spotifyBaseURL = "https://api.spotify.com/v1"

// addTracksBatchSize is the API's hard cap for one playlist-append call.
const addTracksBatchSize = 100

type spotifyFollowers struct {
	Total int `json:"total"`
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string           `json:"id"`
	DisplayName string           `json:"display_name"`
	Email       string           `json:"email"`
	Followers   spotifyFollowers `json:"followers"`
	Images      []Image          `json:"images"`
}

type spotifyExternalURLs struct {
	Spotify string `json:"spotify"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Images []Image `json:"images"`
	URI    string  `json:"uri"`
}

// SpotifyTrack represents a Spotify track.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	Popularity int             `json:"popularity"`
	PreviewURL string          `json:"preview_url"`
	URI        string          `json:"uri"`
}

type spotifyPlaylistTracks struct {
	Total int `json:"total"`
}

// SpotifySimplePlaylist represents a simplified playlist object (used in lists).
type SpotifySimplePlaylist struct {
	ID           string                `json:"id"`
	Name         string                `json:"name"`
	Tracks       spotifyPlaylistTracks `json:"tracks"`
	Images       []Image               `json:"images"`
	ExternalURLs spotifyExternalURLs   `json:"external_urls"`
	URI          string                `json:"uri"`
}

type spotifyPaginatedPlaylists struct {
	Items  []SpotifySimplePlaylist `json:"items"`
	Total  int                     `json:"total"`
	Limit  int                     `json:"limit"`
	Offset int                     `json:"offset"`
	Next   *string                 `json:"next"`
}

type spotifyPlaylistItem struct {
	Track *SpotifyTrack `json:"track"`
}

type spotifyPaginatedPlaylistItems struct {
	Items []spotifyPlaylistItem `json:"items"`
	Next  *string               `json:"next"`
}

type spotifyErrorBody struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// SpotifyService implements [Catalog] against the Spotify Web API.
//
// The http.Client is expected to carry the user's OAuth credentials (an
// oauth2 transport); the service itself holds no mutable session state.
type SpotifyService struct {
	baseURL    string
	httpClient *http.Client
}

// NewSpotifyService creates a Spotify catalog client over the given
// authenticated http.Client. baseURL overrides the API root for tests.
func NewSpotifyService(httpClient *http.Client, baseURL string) *SpotifyService {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = spotifyBaseURL
	}

	return &SpotifyService{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// doRequest performs an authenticated HTTP request to the Spotify API.
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	apiURL := s.baseURL + endpoint

	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrCatalogUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifySpotifyStatus(resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// classifySpotifyStatus maps API failure statuses onto the error taxonomy.
//
// None of these are retried here; playlist mutation is not idempotent and
// blind retries risk duplicate tracks.
func classifySpotifyStatus(resp *http.Response) error {
	detail := fmt.Sprintf("status %d", resp.StatusCode)

	var errBody spotifyErrorBody
	if err := json.NewDecoder(resp.Body).Decode(&errBody); err == nil && errBody.Error.Message != "" {
		detail = fmt.Sprintf("status %d: %s", resp.StatusCode, errBody.Error.Message)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", shared.ErrNotAuthenticated, detail)
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", shared.ErrWriteDenied, detail)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", shared.ErrNotFound, detail)
	case resp.StatusCode == http.StatusTooManyRequests:
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			return fmt.Errorf("%w: %s (retry after %ss)", shared.ErrRateLimited, detail, retryAfter)
		}
		return fmt.Errorf("%w: %s", shared.ErrRateLimited, detail)
	case resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", shared.ErrInvalidInput, detail)
	default:
		return fmt.Errorf("%w: %s", shared.ErrCatalogUnavailable, detail)
	}
}

// CurrentUser retrieves the authenticated user's profile.
func (s *SpotifyService) CurrentUser(ctx context.Context) (*UserProfile, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}

	displayName := user.DisplayName
	if displayName == "" {
		displayName = user.ID
	}

	return &UserProfile{
		ID:          user.ID,
		DisplayName: displayName,
		Email:       user.Email,
		Images:      user.Images,
	}, nil
}

// CurrentUserPlaylists retrieves all of the user's playlists, walking pagination.
func (s *SpotifyService) CurrentUserPlaylists(ctx context.Context) ([]PlaylistSummary, error) {
	playlists := []PlaylistSummary{}
	limit := 50
	offset := 0

	for {
		endpoint := fmt.Sprintf("/me/playlists?limit=%d&offset=%d", limit, offset)

		var page spotifyPaginatedPlaylists
		if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			summary := PlaylistSummary{
				ID:          item.ID,
				Name:        item.Name,
				TrackCount:  item.Tracks.Total,
				ExternalURL: item.ExternalURLs.Spotify,
			}
			if len(item.Images) > 0 {
				summary.ImageURL = item.Images[0].URL
			}
			playlists = append(playlists, summary)
		}

		if page.Next == nil {
			break
		}
		offset += limit
	}

	return playlists, nil
}

// SearchTracks searches the catalog and returns up to limit candidates in
// the catalog's native ranking.
func (s *SpotifyService) SearchTracks(ctx context.Context, query string, limit int) ([]Candidate, error) {
	if limit <= 0 {
		limit = 1
	}
	if limit > 50 {
		limit = 50
	}

	endpoint := "/search?q=" + url.QueryEscape(query) + "&type=track&limit=" + strconv.Itoa(limit)

	var response struct {
		Tracks struct {
			Items []SpotifyTrack `json:"items"`
		} `json:"tracks"`
	}

	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(response.Tracks.Items))
	for _, track := range response.Tracks.Items {
		candidates = append(candidates, candidateFromTrack(track))
	}

	return candidates, nil
}

// Track retrieves a single track by bare catalog ID.
func (s *SpotifyService) Track(ctx context.Context, trackID string) (*Candidate, error) {
	var track SpotifyTrack
	endpoint := "/tracks/" + url.PathEscape(trackID)
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &track); err != nil {
		return nil, err
	}

	candidate := candidateFromTrack(track)
	return &candidate, nil
}

// PlaylistTracks retrieves all tracks of a playlist, walking pagination.
//
// Entries without a track object (removed or unavailable items) are skipped.
func (s *SpotifyService) PlaylistTracks(ctx context.Context, playlistID string) ([]Candidate, error) {
	tracks := []Candidate{}
	limit := 100
	offset := 0

	for {
		endpoint := fmt.Sprintf("/playlists/%s/tracks?limit=%d&offset=%d", url.PathEscape(playlistID), limit, offset)

		var page spotifyPaginatedPlaylistItems
		if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			if item.Track == nil || item.Track.Name == "" {
				continue
			}
			tracks = append(tracks, candidateFromTrack(*item.Track))
		}

		if page.Next == nil {
			break
		}
		offset += limit
	}

	return tracks, nil
}

// CreatePlaylist creates an empty playlist owned by the given user.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, userID, name string) (*CreatedPlaylist, error) {
	body := struct {
		Name string `json:"name"`
	}{Name: name}

	var created struct {
		ID           string              `json:"id"`
		ExternalURLs spotifyExternalURLs `json:"external_urls"`
	}

	endpoint := "/users/" + url.PathEscape(userID) + "/playlists"
	if err := s.doRequest(ctx, http.MethodPost, endpoint, body, &created); err != nil {
		return nil, err
	}

	return &CreatedPlaylist{
		ID:  created.ID,
		URL: created.ExternalURLs.Spotify,
	}, nil
}

// AddTracks appends track URIs to a playlist in API-sized batches.
//
// No de-duplication against current playlist membership is performed; the
// catalog accepts repeated URIs and duplicates are a documented limitation.
func (s *SpotifyService) AddTracks(ctx context.Context, playlistID string, uris []string) error {
	endpoint := "/playlists/" + url.PathEscape(playlistID) + "/tracks"

	for start := 0; start < len(uris); start += addTracksBatchSize {
		end := start + addTracksBatchSize
		if end > len(uris) {
			end = len(uris)
		}

		body := struct {
			URIs []string `json:"uris"`
		}{URIs: uris[start:end]}

		if err := s.doRequest(ctx, http.MethodPost, endpoint, body, nil); err != nil {
			return err
		}
	}

	return nil
}

func candidateFromTrack(track SpotifyTrack) Candidate {
	candidate := Candidate{
		ID:         track.ID,
		URI:        track.URI,
		Name:       track.Name,
		Album:      track.Album.Name,
		Popularity: track.Popularity,
		PreviewURL: track.PreviewURL,
	}

	if len(track.Artists) > 0 {
		names := make([]string, 0, len(track.Artists))
		for _, artist := range track.Artists {
			names = append(names, artist.Name)
		}
		candidate.Artist = strings.Join(names, ", ")
	}

	if len(track.Album.Images) > 0 {
		candidate.ImageURL = track.Album.Images[0].URL
	}

	return candidate
}
