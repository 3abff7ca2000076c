// YouTube Data API v3 implementation of [SourceEnumerator]
//
// Enumerates playlist entries (video titles in playlist order) via the
// playlistItems endpoint using an API key.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/musikai/musikd/internal/shared"
)

const youtubeBaseURL = "https://www.googleapis.com/youtube/v3"

const youtubePageSize = 50

// playlistIDPrefixes are the structural prefixes YouTube playlist IDs use.
var playlistIDPrefixes = []string{"PL", "UU", "OL", "RD", "LL", "FL"}

type youtubeSnippet struct {
	Title    string `json:"title"`
	Position int    `json:"position"`
}

type youtubePlaylistItem struct {
	Snippet youtubeSnippet `json:"snippet"`
}

type youtubePlaylistItemsPage struct {
	Items         []youtubePlaylistItem `json:"items"`
	NextPageToken string                `json:"nextPageToken"`
}

type youtubeErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// YouTubeService implements [SourceEnumerator] against the YouTube Data API.
type YouTubeService struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewYouTubeService creates a YouTube enumeration client with the given API
// key. baseURL overrides the API root for tests.
func NewYouTubeService(apiKey string, httpClient *http.Client, baseURL string) *YouTubeService {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = youtubeBaseURL
	}

	return &YouTubeService{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// ParsePlaylistID extracts a playlist ID from user input.
//
// Accepts a bare ID (recognized by structural prefix), a full URL carrying
// the ID in the "list" query parameter, or falls back to the whole input.
func ParsePlaylistID(input string) string {
	trimmed := strings.TrimSpace(input)

	if strings.Contains(trimmed, "://") || strings.Contains(trimmed, "youtube.com/") || strings.Contains(trimmed, "youtu.be/") {
		raw := trimmed
		if !strings.Contains(raw, "://") {
			raw = "https://" + raw
		}
		if parsed, err := url.Parse(raw); err == nil {
			if list := parsed.Query().Get("list"); list != "" {
				return list
			}
		}
	}

	for _, prefix := range playlistIDPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return trimmed
		}
	}

	return trimmed
}

// PlaylistItems fetches all entries of a playlist in playlist order.
//
// An empty playlist is valid and yields an empty slice.
func (y *YouTubeService) PlaylistItems(ctx context.Context, playlistID string) ([]SourceItem, error) {
	if strings.TrimSpace(playlistID) == "" {
		return nil, fmt.Errorf("%w: playlist id cannot be empty", shared.ErrInvalidInput)
	}

	items := []SourceItem{}
	pageToken := ""

	for {
		endpoint := fmt.Sprintf("%s/playlistItems?part=snippet&playlistId=%s&maxResults=%d&key=%s",
			y.baseURL, url.QueryEscape(playlistID), youtubePageSize, url.QueryEscape(y.apiKey))
		if pageToken != "" {
			endpoint += "&pageToken=" + url.QueryEscape(pageToken)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := y.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrCatalogUnavailable, err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			err := classifyYouTubeResponse(resp, playlistID)
			resp.Body.Close()
			return nil, err
		}

		var page youtubePlaylistItemsPage
		decodeErr := json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if decodeErr != nil {
			return nil, fmt.Errorf("failed to decode response: %w", decodeErr)
		}

		for _, item := range page.Items {
			if item.Snippet.Title == "" {
				continue
			}
			items = append(items, SourceItem{
				Title:    item.Snippet.Title,
				Position: len(items),
			})
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	return items, nil
}

// classifyYouTubeResponse maps enumeration failures onto the error taxonomy.
//
// 404 and plain 403 both surface as not-found: a private playlist is
// indistinguishable from a missing one to the caller. Quota 403s are rate
// limiting and retryable later.
func classifyYouTubeResponse(resp *http.Response, playlistID string) error {
	var errBody youtubeErrorBody
	_ = json.NewDecoder(resp.Body).Decode(&errBody)

	reason := ""
	if len(errBody.Error.Errors) > 0 {
		reason = errBody.Error.Errors[0].Reason
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: youtube playlist %s", shared.ErrNotFound, playlistID)
	case resp.StatusCode == http.StatusForbidden:
		if reason == "quotaExceeded" || reason == "rateLimitExceeded" || reason == "userRateLimitExceeded" {
			return fmt.Errorf("%w: youtube quota exhausted", shared.ErrRateLimited)
		}
		return fmt.Errorf("%w: youtube playlist %s is private or inaccessible", shared.ErrNotFound, playlistID)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: youtube api", shared.ErrRateLimited)
	default:
		if errBody.Error.Message != "" {
			return fmt.Errorf("%w: youtube api status %d: %s", shared.ErrCatalogUnavailable, resp.StatusCode, errBody.Error.Message)
		}
		return fmt.Errorf("%w: youtube api status %d", shared.ErrCatalogUnavailable, resp.StatusCode)
	}
}
