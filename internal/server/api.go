package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/musikai/musikd/internal/models"
	"github.com/musikai/musikd/internal/repositories"
	"github.com/musikai/musikd/internal/services"
	"github.com/musikai/musikd/internal/shared"
	"github.com/musikai/musikd/internal/tasks"
)

const apiVersion = "1.0.0"

// failedMatchCap bounds how many unmatched titles a response reports.
const failedMatchCap = 10

// ConversionAPI serves the conversion endpoints. Every authenticated route
// resolves the caller's session into a catalog client first; the engine
// only ever sees per-user clients.
type ConversionAPI struct {
	provider       CatalogProvider
	engine         *tasks.Engine
	notifier       services.Notifier
	accessRequests *repositories.AccessRequestRepository
	logger         *log.Logger
}

func NewConversionAPI(provider CatalogProvider, engine *tasks.Engine, notifier services.Notifier, accessRequests *repositories.AccessRequestRepository, logger *log.Logger) *ConversionAPI {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &ConversionAPI{
		provider:       provider,
		engine:         engine,
		notifier:       notifier,
		accessRequests: accessRequests,
		logger:         logger,
	}
}

// Routes returns the path patterns this handler serves.
func (a *ConversionAPI) Routes() []string {
	return []string{
		"/",
		"/me",
		"/playlists",
		"/match-tracks",
		"/recommendations",
		"/enhance-playlist",
		"/convert",
		"/add-to-playlist",
		"/request-access",
	}
}

func (a *ConversionAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/":
		a.root(w, r)
	case "/me":
		a.me(w, r)
	case "/playlists":
		a.playlists(w, r)
	case "/match-tracks":
		a.matchTracks(w, r)
	case "/recommendations":
		a.recommendations(w, r)
	case "/enhance-playlist":
		a.enhancePlaylist(w, r)
	case "/convert":
		a.convert(w, r)
	case "/add-to-playlist":
		a.requirePost(w, r, a.addToPlaylist)
	case "/request-access":
		a.requirePost(w, r, a.requestAccess)
	default:
		a.writeError(w, http.StatusNotFound, "Not found")
	}
}

func (a *ConversionAPI) requirePost(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	if r.Method != http.MethodPost {
		a.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	next(w, r)
}

func (a *ConversionAPI) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		a.logger.Error("failed to encode response", "error", err)
	}
}

// writeError emits the {"detail": ...} error body the frontend expects.
func (a *ConversionAPI) writeError(w http.ResponseWriter, status int, detail string) {
	a.writeJSON(w, status, map[string]string{"detail": detail})
}

// writeServiceError maps the error taxonomy onto HTTP statuses.
func (a *ConversionAPI) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotAuthenticated), errors.Is(err, shared.ErrAuthFailed):
		a.writeError(w, http.StatusUnauthorized, "Not authenticated")
	case errors.Is(err, shared.ErrInvalidInput), errors.Is(err, shared.ErrInsufficientSeed):
		a.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, shared.ErrWriteDenied):
		a.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, shared.ErrNotFound):
		a.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, shared.ErrRateLimited):
		a.writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, shared.ErrCatalogUnavailable):
		a.writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, shared.ErrRecommendationUnavailable):
		a.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		a.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// catalog resolves the spotify_user_id query parameter into an
// authenticated client, writing the error response itself on failure.
func (a *ConversionAPI) catalog(w http.ResponseWriter, r *http.Request) (services.Catalog, *models.Session, bool) {
	userID := r.URL.Query().Get("spotify_user_id")
	if userID == "" {
		a.writeError(w, http.StatusUnauthorized, "Not authenticated")
		return nil, nil, false
	}

	catalog, session, err := a.provider.Client(r.Context(), userID)
	if err != nil {
		a.writeServiceError(w, err)
		return nil, nil, false
	}

	return catalog, session, true
}

func (a *ConversionAPI) root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		a.writeError(w, http.StatusNotFound, "Not found")
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]any{
		"name":    "musik-ai API",
		"version": apiVersion,
		"status":  "running",
		"endpoints": map[string]string{
			"docs":     "/docs",
			"health":   "/",
			"login":    "/login",
			"callback": "/callback",
		},
	})
}

func (a *ConversionAPI) me(w http.ResponseWriter, r *http.Request) {
	catalog, _, ok := a.catalog(w, r)
	if !ok {
		return
	}

	profile, err := catalog.CurrentUser(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	images := profile.Images
	if images == nil {
		images = []services.Image{}
	}

	a.writeJSON(w, http.StatusOK, map[string]any{
		"id":           profile.ID,
		"display_name": profile.DisplayName,
		"email":        profile.Email,
		"images":       images,
	})
}

func (a *ConversionAPI) playlists(w http.ResponseWriter, r *http.Request) {
	catalog, _, ok := a.catalog(w, r)
	if !ok {
		return
	}

	summaries, err := catalog.CurrentUserPlaylists(r.Context())
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	playlists := make([]map[string]any, 0, len(summaries))
	for _, p := range summaries {
		var image any
		if p.ImageURL != "" {
			image = p.ImageURL
		}
		playlists = append(playlists, map[string]any{
			"id":           p.ID,
			"name":         p.Name,
			"tracks_count": p.TrackCount,
			"image":        image,
			"external_url": p.ExternalURL,
		})
	}

	a.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"playlists": playlists,
	})
}

func (a *ConversionAPI) matchTracks(w http.ResponseWriter, r *http.Request) {
	playlistID := r.URL.Query().Get("yt_playlist_id")
	if playlistID == "" {
		a.writeError(w, http.StatusBadRequest, "Missing required parameters")
		return
	}

	catalog, _, ok := a.catalog(w, r)
	if !ok {
		return
	}

	summary, err := a.engine.MatchTracks(r.Context(), catalog, services.ParsePlaylistID(playlistID))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	matched := summary.MatchedURIs
	if matched == nil {
		matched = []string{}
	}
	failed := summary.FailedTitles
	if len(failed) > failedMatchCap {
		failed = failed[:failedMatchCap]
	}
	if failed == nil {
		failed = []string{}
	}

	a.writeJSON(w, http.StatusOK, map[string]any{
		"status":         "success",
		"matched_tracks": matched,
		"total_videos":   summary.TotalItems,
		"failed_matches": failed,
	})
}

func (a *ConversionAPI) recommendations(w http.ResponseWriter, r *http.Request) {
	rawURIs := r.URL.Query().Get("track_uris")
	if rawURIs == "" {
		a.writeError(w, http.StatusBadRequest, "Missing required parameters")
		return
	}

	catalog, _, ok := a.catalog(w, r)
	if !ok {
		return
	}

	set, err := a.engine.Recommend(r.Context(), catalog, services.SplitURIList(rawURIs))
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]any{
		"status":          "success",
		"recommendations": recommendationPayload(set),
	})
}

func (a *ConversionAPI) enhancePlaylist(w http.ResponseWriter, r *http.Request) {
	playlistID := r.URL.Query().Get("playlist_id")
	if playlistID == "" {
		a.writeError(w, http.StatusBadRequest, "Missing required parameters")
		return
	}

	catalog, _, ok := a.catalog(w, r)
	if !ok {
		return
	}

	set, err := a.engine.RecommendForPlaylist(r.Context(), catalog, playlistID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]any{
		"status":          "success",
		"recommendations": recommendationPayload(set),
	})
}

func recommendationPayload(set tasks.RecommendationSet) []map[string]any {
	payload := make([]map[string]any, 0, len(set.Tracks))
	for _, track := range set.Tracks {
		var image any
		if track.ImageURL != "" {
			image = track.ImageURL
		}
		payload = append(payload, map[string]any{
			"uri":    track.URI,
			"name":   track.Name,
			"artist": track.Artist,
			"album":  track.Album,
			"image":  image,
		})
	}
	return payload
}

func (a *ConversionAPI) convert(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	playlistName := query.Get("playlist_name")
	if playlistName == "" || !query.Has("track_uris") {
		a.writeError(w, http.StatusBadRequest, "Missing required parameters")
		return
	}

	catalog, session, ok := a.catalog(w, r)
	if !ok {
		return
	}

	uris := services.SplitURIList(query.Get("track_uris"))

	result, err := a.engine.CreatePlaylist(r.Context(), catalog, session.ID(), playlistName, uris)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]any{
		"status":              "success",
		"playlist_name":       playlistName,
		"playlist_id":         result.PlaylistID,
		"playlist_url":        result.PlaylistURL,
		"total_tracks":        result.TracksAdded,
		"matched_tracks":      result.TracksAdded,
		"total_videos":        result.TracksAdded,
		"failed_matches":      0,
		"failed_match_titles": []string{},
	})
}

func (a *ConversionAPI) addToPlaylist(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	playlistID := query.Get("playlist_id")
	rawURIs := query.Get("track_uris")
	if playlistID == "" || rawURIs == "" {
		a.writeError(w, http.StatusBadRequest, "Missing required parameters")
		return
	}

	catalog, _, ok := a.catalog(w, r)
	if !ok {
		return
	}

	uris := services.SplitURIList(rawURIs)
	if len(uris) == 0 {
		a.writeError(w, http.StatusBadRequest, "No valid track URIs")
		return
	}

	added, err := a.engine.AddTracks(r.Context(), catalog, playlistID, uris)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]any{
		"status":       "success",
		"tracks_added": added,
	})
}

func (a *ConversionAPI) requestAccess(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	email := query.Get("email")
	name := query.Get("name")

	request := models.NewAccessRequest(email, name)
	if err := request.Validate(); err != nil {
		a.writeError(w, http.StatusBadRequest, "Invalid email")
		return
	}

	if err := a.accessRequests.Create(request); err != nil {
		a.logger.Error("failed to store access request", "error", err)
		a.writeError(w, http.StatusInternalServerError, "Failed to process request")
		return
	}

	if a.notifier != nil {
		if err := a.notifier.NotifySignup(r.Context(), request.Email(), request.Name()); err != nil {
			// Request is stored; a lost email means the operator checks
			// the table instead.
			a.logger.Warn("signup notification failed", "error", err)
		}
	}

	a.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Access request submitted. Admin will add you within 24 hours.",
	})
}
