// package services defines clients for the external APIs the conversion
// core consumes
//
// Spotify (catalog + playlist mutation), YouTube Data API (source
// enumeration), Groq (LLM recommendations), Resend (notification email)
package services

import (
	"context"
	"strings"
)

// SourceItem is one entry of a source playlist. Ordering is significant
// and preserved end-to-end so failure reporting stays deterministic.
type SourceItem struct {
	Title    string
	Position int
}

// Image represents an image resource exposed to the frontend.
type Image struct {
	URL    string `json:"url"`
	Height int    `json:"height,omitempty"`
	Width  int    `json:"width,omitempty"`
}

// Candidate is a catalog track returned by search or lookup. Popularity is
// the catalog's own availability signal, used only for tie-breaking.
type Candidate struct {
	ID         string
	URI        string
	Name       string
	Artist     string
	Album      string
	ImageURL   string
	PreviewURL string
	Popularity int
}

// TrackRef is an opaque reference into the external catalog plus the
// display fields the frontend renders. The core never mutates catalog data.
type TrackRef struct {
	URI        string `json:"uri"`
	Name       string `json:"name"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	ImageURL   string `json:"image"`
	PreviewURL string `json:"preview_url,omitempty"`
}

// PlaylistSummary describes one of the user's existing playlists.
type PlaylistSummary struct {
	ID          string
	Name        string
	TrackCount  int
	ImageURL    string
	ExternalURL string
}

// CreatedPlaylist is the externally resolvable address of a new playlist.
type CreatedPlaylist struct {
	ID  string
	URL string
}

// UserProfile is the authenticated catalog user's identity.
type UserProfile struct {
	ID          string
	DisplayName string
	Email       string
	Images      []Image
}

// SeedTrack is the minimal track description handed to the recommender.
type SeedTrack struct {
	Name   string
	Artist string
}

// Suggestion is a track the recommender proposes, prior to catalog lookup.
type Suggestion struct {
	Name   string `json:"name"`
	Artist string `json:"artist"`
}

// SourceEnumerator produces the ordered entries of an external playlist.
type SourceEnumerator interface {
	PlaylistItems(ctx context.Context, playlistID string) ([]SourceItem, error)
}

// Catalog is the per-user music catalog client. Implementations are shared
// read-only across concurrent matcher invocations within one request.
type Catalog interface {
	CurrentUser(ctx context.Context) (*UserProfile, error)
	CurrentUserPlaylists(ctx context.Context) ([]PlaylistSummary, error)
	SearchTracks(ctx context.Context, query string, limit int) ([]Candidate, error)
	Track(ctx context.Context, trackID string) (*Candidate, error)
	PlaylistTracks(ctx context.Context, playlistID string) ([]Candidate, error)
	CreatePlaylist(ctx context.Context, userID, name string) (*CreatedPlaylist, error)
	AddTracks(ctx context.Context, playlistID string, uris []string) error
}

// Recommender proposes stylistically similar tracks for a seed set.
type Recommender interface {
	Suggest(ctx context.Context, seeds []SeedTrack, limit int) ([]Suggestion, error)
}

// Notifier delivers access-request notifications to the operator.
type Notifier interface {
	NotifySignup(ctx context.Context, email, name string) error
}

// TrackIDFromURI extracts the bare catalog ID from a track URI.
//
// Accepts "spotify:track:{id}" or a bare ID.
func TrackIDFromURI(uri string) string {
	if strings.HasPrefix(uri, "spotify:track:") {
		parts := strings.Split(uri, ":")
		return parts[len(parts)-1]
	}
	return uri
}

// SplitURIList splits a comma-joined track URI list, dropping empty entries.
//
// This is the wire encoding the frontend uses for batch track references.
func SplitURIList(raw string) []string {
	parts := strings.Split(raw, ",")
	uris := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			uris = append(uris, trimmed)
		}
	}
	return uris
}
