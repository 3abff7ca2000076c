package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/musikai/musikd/internal/models"
	"github.com/musikai/musikd/internal/repositories"
	"github.com/musikai/musikd/internal/services"
	"github.com/musikai/musikd/internal/shared"
)

var spotifyEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.spotify.com/authorize",
	TokenURL: "https://accounts.spotify.com/api/token",
}

var spotifyScopes = []string{
	"playlist-modify-private",
	"playlist-modify-public",
	"user-read-private",
	"user-read-email",
}

// stateTTL bounds how long a login attempt may sit between redirect and
// callback before its state token expires.
const stateTTL = 10 * time.Minute

// CatalogProvider resolves a persisted session into an authenticated
// catalog client. Handlers depend on this interface so tests can swap in a
// fake catalog.
type CatalogProvider interface {
	Client(ctx context.Context, userID string) (services.Catalog, *models.Session, error)
}

// SessionManager owns the OAuth dance and per-user catalog clients.
// Sessions are persisted so a restart does not log users out.
type SessionManager struct {
	oauth    *oauth2.Config
	sessions *repositories.SessionRepository
	logger   *log.Logger

	mu      sync.Mutex
	pending map[string]time.Time
}

func NewSessionManager(config *shared.Config, sessions *repositories.SessionRepository, logger *log.Logger) *SessionManager {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &SessionManager{
		oauth: &oauth2.Config{
			ClientID:     config.Credentials.Spotify.ClientID,
			ClientSecret: config.Credentials.Spotify.ClientSecret,
			RedirectURL:  config.Credentials.Spotify.RedirectURI,
			Scopes:       spotifyScopes,
			Endpoint:     spotifyEndpoint,
		},
		sessions: sessions,
		logger:   logger,
		pending:  make(map[string]time.Time),
	}
}

// AuthURL returns the authorization redirect URL with a fresh state token.
func (m *SessionManager) AuthURL() string {
	state := shared.GenerateID()

	m.mu.Lock()
	m.pending[state] = time.Now().Add(stateTTL)
	for s, deadline := range m.pending {
		if time.Now().After(deadline) {
			delete(m.pending, s)
		}
	}
	m.mu.Unlock()

	return m.oauth.AuthCodeURL(state)
}

func (m *SessionManager) consumeState(state string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	deadline, ok := m.pending[state]
	if !ok {
		return false
	}
	delete(m.pending, state)

	return time.Now().Before(deadline)
}

// Exchange completes the OAuth flow: validates state, trades the code for
// a token, resolves the user profile, and persists the session.
func (m *SessionManager) Exchange(ctx context.Context, state, code string) (*models.Session, error) {
	if !m.consumeState(state) {
		return nil, fmt.Errorf("%w: unknown or expired state", shared.ErrAuthFailed)
	}

	token, err := m.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: token exchange failed: %v", shared.ErrAuthFailed, err)
	}

	catalog := services.NewSpotifyService(m.oauth.Client(ctx, token), "")
	profile, err := catalog.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user profile: %w", err)
	}

	tokenJSON, err := json.Marshal(token)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize token: %w", err)
	}

	session := models.NewSession(profile.ID, profile.DisplayName, profile.Email, tokenJSON)
	if err := m.sessions.Create(session); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	m.logger.Info("user authenticated", "user_id", profile.ID)

	return session, nil
}

// Client returns an authenticated catalog client for a logged-in user.
// Refreshed tokens are persisted best-effort so the next request does not
// have to refresh again.
func (m *SessionManager) Client(ctx context.Context, userID string) (services.Catalog, *models.Session, error) {
	if userID == "" {
		return nil, nil, fmt.Errorf("%w: user id required", shared.ErrNotAuthenticated)
	}

	session, err := m.sessions.Get(userID)
	if err != nil {
		return nil, nil, err
	}

	var token oauth2.Token
	if err := json.Unmarshal(session.TokenJSON(), &token); err != nil {
		return nil, nil, fmt.Errorf("%w: stored token unreadable", shared.ErrNotAuthenticated)
	}

	source := m.oauth.TokenSource(ctx, &token)
	current, err := source.Token()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: token refresh failed", shared.ErrNotAuthenticated)
	}

	if current.AccessToken != token.AccessToken {
		if refreshed, err := json.Marshal(current); err == nil {
			session.SetTokenJSON(refreshed)
			if err := m.sessions.Update(session); err != nil {
				m.logger.Warn("failed to persist refreshed token", "user_id", userID, "error", err)
			}
		}
	}

	catalog := services.NewSpotifyService(oauth2.NewClient(ctx, oauth2.StaticTokenSource(current)), "")

	return catalog, session, nil
}
