package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/musikai/musikd/internal/models"
	"github.com/musikai/musikd/internal/repositories"
	"github.com/musikai/musikd/internal/services"
	"github.com/musikai/musikd/internal/shared"
	"github.com/musikai/musikd/internal/tasks"
)

type fakeProvider struct {
	catalog services.Catalog
	session *models.Session
	err     error
}

func (f *fakeProvider) Client(ctx context.Context, userID string) (services.Catalog, *models.Session, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.catalog, f.session, nil
}

type fakeCatalog struct {
	profile       *services.UserProfile
	playlists     []services.PlaylistSummary
	searchResults map[string][]services.Candidate
	tracks        map[string]services.Candidate
	playlist      []services.Candidate

	created []string
	added   map[string][]string
}

func (f *fakeCatalog) CurrentUser(ctx context.Context) (*services.UserProfile, error) {
	if f.profile == nil {
		return nil, fmt.Errorf("%w: token rejected", shared.ErrNotAuthenticated)
	}
	return f.profile, nil
}

func (f *fakeCatalog) CurrentUserPlaylists(ctx context.Context) ([]services.PlaylistSummary, error) {
	return f.playlists, nil
}

func (f *fakeCatalog) SearchTracks(ctx context.Context, query string, limit int) ([]services.Candidate, error) {
	for key, candidates := range f.searchResults {
		if strings.Contains(query, key) {
			return candidates, nil
		}
	}
	return nil, nil
}

func (f *fakeCatalog) Track(ctx context.Context, trackID string) (*services.Candidate, error) {
	if c, ok := f.tracks[trackID]; ok {
		return &c, nil
	}
	return nil, fmt.Errorf("%w: track %s", shared.ErrNotFound, trackID)
}

func (f *fakeCatalog) PlaylistTracks(ctx context.Context, playlistID string) ([]services.Candidate, error) {
	return f.playlist, nil
}

func (f *fakeCatalog) CreatePlaylist(ctx context.Context, userID, name string) (*services.CreatedPlaylist, error) {
	f.created = append(f.created, name)
	return &services.CreatedPlaylist{ID: "pl-new", URL: "https://open.spotify.com/playlist/pl-new"}, nil
}

func (f *fakeCatalog) AddTracks(ctx context.Context, playlistID string, uris []string) error {
	if f.added == nil {
		f.added = make(map[string][]string)
	}
	f.added[playlistID] = append(f.added[playlistID], uris...)
	return nil
}

type fakeEnumerator struct {
	items []services.SourceItem
	err   error
}

func (f *fakeEnumerator) PlaylistItems(ctx context.Context, playlistID string) ([]services.SourceItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

type fakeRecommender struct {
	suggestions []services.Suggestion
}

func (f *fakeRecommender) Suggest(ctx context.Context, seeds []services.SeedTrack, limit int) ([]services.Suggestion, error) {
	return f.suggestions, nil
}

type fakeNotifier struct {
	notified []string
	err      error
}

func (f *fakeNotifier) NotifySignup(ctx context.Context, email, name string) error {
	f.notified = append(f.notified, email)
	return f.err
}

func newTestAPI(t *testing.T, provider CatalogProvider, enumerator services.SourceEnumerator, recommender services.Recommender, notifier services.Notifier) *ConversionAPI {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := repositories.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	if enumerator == nil {
		enumerator = &fakeEnumerator{}
	}
	if recommender == nil {
		recommender = &fakeRecommender{}
	}

	engine := tasks.NewEngine(enumerator, recommender, tasks.Options{}, nil)

	return NewConversionAPI(provider, engine, notifier, repositories.NewAccessRequestRepository(db), nil)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response body %q: %v", rec.Body.String(), err)
	}
	return body
}

func authedProvider() *fakeProvider {
	return &fakeProvider{
		catalog: &fakeCatalog{profile: &services.UserProfile{ID: "user123", DisplayName: "Test User"}},
		session: models.NewSession("user123", "Test User", "", []byte(`{}`)),
	}
}

func TestConversionAPI(t *testing.T) {
	t.Run("Root", func(t *testing.T) {
		api := newTestAPI(t, authedProvider(), nil, nil, nil)

		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		body := decodeBody(t, rec)
		if body["name"] != "musik-ai API" {
			t.Errorf("unexpected name %v", body["name"])
		}
		if body["status"] != "running" {
			t.Errorf("unexpected status %v", body["status"])
		}
	})

	t.Run("MeUnauthenticated", func(t *testing.T) {
		api := newTestAPI(t, &fakeProvider{err: fmt.Errorf("%w: no session", shared.ErrNotAuthenticated)}, nil, nil, nil)

		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me?spotify_user_id=ghost", nil))

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		if body := decodeBody(t, rec); body["detail"] != "Not authenticated" {
			t.Errorf("unexpected detail %v", body["detail"])
		}
	})

	t.Run("MeMissingUserID", func(t *testing.T) {
		api := newTestAPI(t, authedProvider(), nil, nil, nil)

		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("Me", func(t *testing.T) {
		api := newTestAPI(t, authedProvider(), nil, nil, nil)

		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me?spotify_user_id=user123", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		body := decodeBody(t, rec)
		if body["id"] != "user123" || body["display_name"] != "Test User" {
			t.Errorf("unexpected body %v", body)
		}
		if _, ok := body["images"].([]any); !ok {
			t.Errorf("expected images array, got %v", body["images"])
		}
	})

	t.Run("Playlists", func(t *testing.T) {
		provider := authedProvider()
		provider.catalog.(*fakeCatalog).playlists = []services.PlaylistSummary{
			{ID: "pl1", Name: "Mix", TrackCount: 4, ImageURL: "https://img.example/p.jpg", ExternalURL: "https://open.spotify.com/playlist/pl1"},
			{ID: "pl2", Name: "No Art", TrackCount: 0},
		}

		api := newTestAPI(t, provider, nil, nil, nil)

		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/playlists?spotify_user_id=user123", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		body := decodeBody(t, rec)
		playlists := body["playlists"].([]any)
		if len(playlists) != 2 {
			t.Fatalf("expected 2 playlists, got %d", len(playlists))
		}

		first := playlists[0].(map[string]any)
		if first["tracks_count"] != float64(4) {
			t.Errorf("unexpected tracks_count %v", first["tracks_count"])
		}
		second := playlists[1].(map[string]any)
		if second["image"] != nil {
			t.Errorf("expected null image for artless playlist, got %v", second["image"])
		}
	})

	t.Run("MatchTracks", func(t *testing.T) {
		provider := authedProvider()
		provider.catalog.(*fakeCatalog).searchResults = map[string][]services.Candidate{
			"One More Time": {{ID: "t1", URI: "spotify:track:t1", Name: "One More Time", Artist: "Daft Punk"}},
		}
		enumerator := &fakeEnumerator{items: []services.SourceItem{
			{Title: "Daft Punk - One More Time (Official Video)", Position: 0},
			{Title: "Unfindable Bootleg Recording", Position: 1},
		}}

		api := newTestAPI(t, provider, enumerator, nil, nil)

		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/match-tracks?spotify_user_id=user123&yt_playlist_id=PLtest", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		body := decodeBody(t, rec)
		if body["status"] != "success" {
			t.Errorf("unexpected status %v", body["status"])
		}
		if body["total_videos"] != float64(2) {
			t.Errorf("unexpected total_videos %v", body["total_videos"])
		}
		matched := body["matched_tracks"].([]any)
		if len(matched) != 1 || matched[0] != "spotify:track:t1" {
			t.Errorf("unexpected matched_tracks %v", matched)
		}
		failed := body["failed_matches"].([]any)
		if len(failed) != 1 || failed[0] != "Unfindable Bootleg Recording" {
			t.Errorf("unexpected failed_matches %v", failed)
		}
	})

	t.Run("MatchTracksEmptyPlaylist", func(t *testing.T) {
		api := newTestAPI(t, authedProvider(), &fakeEnumerator{}, nil, nil)

		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/match-tracks?spotify_user_id=user123&yt_playlist_id=PLempty", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("empty playlist should be 200, got %d: %s", rec.Code, rec.Body.String())
		}

		body := decodeBody(t, rec)
		if body["total_videos"] != float64(0) {
			t.Errorf("unexpected total_videos %v", body["total_videos"])
		}
		if matched := body["matched_tracks"].([]any); len(matched) != 0 {
			t.Errorf("expected empty matched_tracks, got %v", matched)
		}
	})

	t.Run("MatchTracksMissingPlaylistID", func(t *testing.T) {
		api := newTestAPI(t, authedProvider(), nil, nil, nil)

		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/match-tracks?spotify_user_id=user123", nil))

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("MatchTracksSourceNotFound", func(t *testing.T) {
		enumerator := &fakeEnumerator{err: fmt.Errorf("%w: playlist gone", shared.ErrNotFound)}
		api := newTestAPI(t, authedProvider(), enumerator, nil, nil)

		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/match-tracks?spotify_user_id=user123&yt_playlist_id=PLgone", nil))

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("MatchTracksRateLimited", func(t *testing.T) {
		enumerator := &fakeEnumerator{err: fmt.Errorf("%w: quota exhausted", shared.ErrRateLimited)}
		api := newTestAPI(t, authedProvider(), enumerator, nil, nil)

		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/match-tracks?spotify_user_id=user123&yt_playlist_id=PLtest", nil))

		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", rec.Code)
		}
	})

	t.Run("Recommendations", func(t *testing.T) {
		provider := authedProvider()
		catalog := provider.catalog.(*fakeCatalog)
		catalog.tracks = map[string]services.Candidate{
			"seed1": {ID: "seed1", URI: "spotify:track:seed1", Name: "One More Time", Artist: "Daft Punk"},
		}
		catalog.searchResults = map[string][]services.Candidate{
			"Genesis": {{ID: "rec1", URI: "spotify:track:rec1", Name: "Genesis", Artist: "Justice", Album: "Cross"}},
		}
		recommender := &fakeRecommender{suggestions: []services.Suggestion{{Name: "Genesis", Artist: "Justice"}}}

		api := newTestAPI(t, provider, nil, recommender, nil)

		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/recommendations?spotify_user_id=user123&track_uris=spotify:track:seed1", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		body := decodeBody(t, rec)
		recs := body["recommendations"].([]any)
		if len(recs) != 1 {
			t.Fatalf("expected 1 recommendation, got %d", len(recs))
		}
		first := recs[0].(map[string]any)
		if first["uri"] != "spotify:track:rec1" || first["album"] != "Cross" {
			t.Errorf("unexpected recommendation %v", first)
		}
		if first["image"] != nil {
			t.Errorf("expected null image, got %v", first["image"])
		}
	})

	t.Run("RecommendationsMissingURIs", func(t *testing.T) {
		api := newTestAPI(t, authedProvider(), nil, nil, nil)

		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/recommendations?spotify_user_id=user123", nil))

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("EnhancePlaylist", func(t *testing.T) {
		provider := authedProvider()
		catalog := provider.catalog.(*fakeCatalog)
		catalog.playlist = []services.Candidate{
			{ID: "p1", URI: "spotify:track:p1", Name: "One More Time", Artist: "Daft Punk"},
		}
		catalog.searchResults = map[string][]services.Candidate{
			"Genesis": {{ID: "rec1", URI: "spotify:track:rec1", Name: "Genesis", Artist: "Justice"}},
		}
		recommender := &fakeRecommender{suggestions: []services.Suggestion{{Name: "Genesis", Artist: "Justice"}}}

		api := newTestAPI(t, provider, nil, recommender, nil)

		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/enhance-playlist?spotify_user_id=user123&playlist_id=pl1", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		body := decodeBody(t, rec)
		if recs := body["recommendations"].([]any); len(recs) != 1 {
			t.Errorf("expected 1 recommendation, got %d", len(recs))
		}
	})

	t.Run("EnhanceEmptyPlaylist", func(t *testing.T) {
		api := newTestAPI(t, authedProvider(), nil, nil, nil)

		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/enhance-playlist?spotify_user_id=user123&playlist_id=pl1", nil))

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for empty playlist, got %d", rec.Code)
		}
	})

	t.Run("Convert", func(t *testing.T) {
		provider := authedProvider()
		api := newTestAPI(t, provider, nil, nil, nil)

		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
			"/convert?spotify_user_id=user123&playlist_name=My+Mix&track_uris=spotify:track:t1,spotify:track:t2", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		body := decodeBody(t, rec)
		if body["playlist_id"] != "pl-new" {
			t.Errorf("unexpected playlist_id %v", body["playlist_id"])
		}
		if body["total_tracks"] != float64(2) {
			t.Errorf("unexpected total_tracks %v", body["total_tracks"])
		}
		if body["failed_matches"] != float64(0) {
			t.Errorf("unexpected failed_matches %v", body["failed_matches"])
		}

		catalog := provider.catalog.(*fakeCatalog)
		if got := catalog.added["pl-new"]; len(got) != 2 {
			t.Errorf("expected 2 tracks added, got %v", got)
		}
	})

	t.Run("ConvertEmptyTrackSet", func(t *testing.T) {
		provider := authedProvider()
		api := newTestAPI(t, provider, nil, nil, nil)

		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
			"/convert?spotify_user_id=user123&playlist_name=Empty&track_uris=", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("empty track set should still create playlist, got %d: %s", rec.Code, rec.Body.String())
		}

		catalog := provider.catalog.(*fakeCatalog)
		if len(catalog.created) != 1 {
			t.Errorf("expected playlist created, got %v", catalog.created)
		}
		if len(catalog.added) != 0 {
			t.Errorf("expected no add call, got %v", catalog.added)
		}
	})

	t.Run("ConvertMissingName", func(t *testing.T) {
		api := newTestAPI(t, authedProvider(), nil, nil, nil)

		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/convert?spotify_user_id=user123&track_uris=x", nil))

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("AddToPlaylist", func(t *testing.T) {
		provider := authedProvider()
		api := newTestAPI(t, provider, nil, nil, nil)

		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
			"/add-to-playlist?spotify_user_id=user123&playlist_id=pl1&track_uris=spotify:track:t1", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if body := decodeBody(t, rec); body["tracks_added"] != float64(1) {
			t.Errorf("unexpected tracks_added %v", body["tracks_added"])
		}
	})

	t.Run("AddToPlaylistWrongMethod", func(t *testing.T) {
		api := newTestAPI(t, authedProvider(), nil, nil, nil)

		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
			"/add-to-playlist?spotify_user_id=user123&playlist_id=pl1&track_uris=x", nil))

		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected 405, got %d", rec.Code)
		}
	})

	t.Run("RequestAccess", func(t *testing.T) {
		notifier := &fakeNotifier{}
		api := newTestAPI(t, authedProvider(), nil, nil, notifier)

		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, httptest.NewRequest(http.MethodPost,
			"/request-access?email=new%40example.com&name=New+User", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		if body := decodeBody(t, rec); body["status"] != "success" {
			t.Errorf("unexpected body %v", body)
		}
		if len(notifier.notified) != 1 || notifier.notified[0] != "new@example.com" {
			t.Errorf("expected notification sent, got %v", notifier.notified)
		}
	})

	t.Run("RequestAccessInvalidEmail", func(t *testing.T) {
		api := newTestAPI(t, authedProvider(), nil, nil, &fakeNotifier{})

		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/request-access?email=not-an-email", nil))

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if body := decodeBody(t, rec); body["detail"] != "Invalid email" {
			t.Errorf("unexpected detail %v", body["detail"])
		}
	})

	t.Run("RequestAccessNotifierFailureStillSucceeds", func(t *testing.T) {
		notifier := &fakeNotifier{err: fmt.Errorf("smtp down")}
		api := newTestAPI(t, authedProvider(), nil, nil, notifier)

		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/request-access?email=new%40example.com", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("stored request should succeed despite email failure, got %d", rec.Code)
		}
	})

	t.Run("UnknownPath", func(t *testing.T) {
		api := newTestAPI(t, authedProvider(), nil, nil, nil)

		rec := httptest.NewRecorder()
		api.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}
