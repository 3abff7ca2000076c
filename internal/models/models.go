// package models defines the data model for the playlist conversion service
package models

import (
	"fmt"
	"strings"
	"time"
)

// Model defines the base interface for all persistent models in the conversion service.
type Model interface {
	ID() string           // ID returns the unique identifier for this model
	CreatedAt() time.Time // CreatedAt returns when this model was created
	UpdatedAt() time.Time // UpdatedAt returns when this model was last updated
	Validate() error      // Validate checks if the model's data is valid and returns an error if not
}

// Repository defines the interface for data access operations.
// Implementations handle database interactions for specific model types.
type Repository[T Model] interface {
	Create(model T) error     // Create inserts a new model into the database
	Get(id string) (T, error) // Get retrieves a model by its ID
	Update(model T) error     // Update modifies an existing model in the database
	Delete(id string) error   // Delete removes a model from the database by its ID
}

// Session is a persisted OAuth session for one Spotify user.
//
// TokenJSON holds the serialized oauth2 token; the core reads tokens and
// never mutates catalog-session state concurrently.
type Session struct {
	id          string
	displayName string
	email       string
	tokenJSON   []byte
	createdAt   time.Time
	updatedAt   time.Time
}

// NewSession creates a Session keyed by the external Spotify user ID.
func NewSession(userID, displayName, email string, tokenJSON []byte) *Session {
	now := time.Now().UTC()
	return &Session{
		id:          userID,
		displayName: displayName,
		email:       email,
		tokenJSON:   tokenJSON,
		createdAt:   now,
		updatedAt:   now,
	}
}

func (s *Session) ID() string           { return s.id }
func (s *Session) DisplayName() string  { return s.displayName }
func (s *Session) Email() string        { return s.email }
func (s *Session) TokenJSON() []byte    { return s.tokenJSON }
func (s *Session) CreatedAt() time.Time { return s.createdAt }
func (s *Session) UpdatedAt() time.Time { return s.updatedAt }

// SetTokenJSON replaces the serialized token and bumps the update timestamp.
func (s *Session) SetTokenJSON(tokenJSON []byte) {
	s.tokenJSON = tokenJSON
	s.updatedAt = time.Now().UTC()
}

// SetTimestamps restores persisted timestamps when hydrating from storage.
func (s *Session) SetTimestamps(createdAt, updatedAt time.Time) {
	s.createdAt = createdAt
	s.updatedAt = updatedAt
}

func (s *Session) Validate() error {
	if s.id == "" {
		return fmt.Errorf("session user id is required")
	}
	if len(s.tokenJSON) == 0 {
		return fmt.Errorf("session token is required")
	}
	return nil
}

// AccessRequest records a signup request submitted while the Spotify app
// runs in development mode and users must be allow-listed by hand.
type AccessRequest struct {
	id        string
	email     string
	name      string
	createdAt time.Time
	updatedAt time.Time
}

// NewAccessRequest creates an AccessRequest for the given contact details.
func NewAccessRequest(email, name string) *AccessRequest {
	now := time.Now().UTC()
	return &AccessRequest{
		email:     email,
		name:      name,
		createdAt: now,
		updatedAt: now,
	}
}

func (a *AccessRequest) ID() string           { return a.id }
func (a *AccessRequest) Email() string        { return a.email }
func (a *AccessRequest) Name() string         { return a.name }
func (a *AccessRequest) CreatedAt() time.Time { return a.createdAt }
func (a *AccessRequest) UpdatedAt() time.Time { return a.updatedAt }

// SetID assigns the generated identifier before insertion.
func (a *AccessRequest) SetID(id string) { a.id = id }

// SetTimestamps restores persisted timestamps when hydrating from storage.
func (a *AccessRequest) SetTimestamps(createdAt, updatedAt time.Time) {
	a.createdAt = createdAt
	a.updatedAt = updatedAt
}

func (a *AccessRequest) Validate() error {
	email := strings.TrimSpace(a.email)
	if email == "" || !strings.Contains(email, "@") || !strings.Contains(email, ".") {
		return fmt.Errorf("invalid email: %q", a.email)
	}
	return nil
}
