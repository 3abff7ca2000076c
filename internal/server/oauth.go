package server

import (
	"net/http"
	"net/url"

	"github.com/charmbracelet/log"
)

// OAuthHandler serves the login redirect and OAuth callback. Both endpoints
// redirect rather than render: errors land back on the frontend as query
// parameters.
type OAuthHandler struct {
	sessions    *SessionManager
	frontendURL string
	logger      *log.Logger
}

func NewOAuthHandler(sessions *SessionManager, frontendURL string, logger *log.Logger) *OAuthHandler {
	return &OAuthHandler{
		sessions:    sessions,
		frontendURL: frontendURL,
		logger:      logger,
	}
}

// Routes returns the path patterns this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{"/login", "/callback"}
}

func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/login":
		h.login(w, r)
	case "/callback":
		h.callback(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *OAuthHandler) login(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.sessions.AuthURL(), http.StatusFound)
}

func (h *OAuthHandler) callback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if errParam := query.Get("error"); errParam != "" {
		h.redirectFrontend(w, r, url.Values{"error": {errParam}})
		return
	}

	code, state := query.Get("code"), query.Get("state")
	if code == "" || state == "" {
		h.redirectFrontend(w, r, url.Values{"error": {"invalid_session"}})
		return
	}

	session, err := h.sessions.Exchange(r.Context(), state, code)
	if err != nil {
		h.logger.Error("oauth callback failed", "error", err)
		h.redirectFrontend(w, r, url.Values{"error": {"auth_failed"}})
		return
	}

	h.redirectFrontend(w, r, url.Values{
		"spotify_user_id": {session.ID()},
		"status":          {"success"},
	})
}

func (h *OAuthHandler) redirectFrontend(w http.ResponseWriter, r *http.Request, params url.Values) {
	http.Redirect(w, r, h.frontendURL+"?"+params.Encode(), http.StatusFound)
}
