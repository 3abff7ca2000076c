package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/musikai/musikd/internal/models"
	"github.com/musikai/musikd/internal/shared"
)

// SessionRepository implements [models.Repository] for [models.Session] persistence.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new [SessionRepository] with the given database connection
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a session, replacing any previous session for the same user.
//
// A user re-running the OAuth flow supersedes their earlier token.
func (r *SessionRepository) Create(session *models.Session) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO sessions (user_id, display_name, email, token_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			display_name = excluded.display_name,
			email = excluded.email,
			token_json = excluded.token_json,
			updated_at = excluded.updated_at
	`

	_, err := r.db.Exec(query, session.ID(), session.DisplayName(), session.Email(),
		session.TokenJSON(), session.CreatedAt(), session.UpdatedAt())
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	return nil
}

// Get retrieves a session by Spotify user ID.
func (r *SessionRepository) Get(userID string) (*models.Session, error) {
	query := `
		SELECT user_id, display_name, email, token_json, created_at, updated_at
		FROM sessions
		WHERE user_id = ?
	`

	var (
		id          string
		displayName string
		email       string
		tokenJSON   []byte
		createdAt   time.Time
		updatedAt   time.Time
	)

	err := r.db.QueryRow(query, userID).Scan(&id, &displayName, &email, &tokenJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: session %s", shared.ErrNotAuthenticated, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	session := models.NewSession(id, displayName, email, tokenJSON)
	session.SetTimestamps(createdAt, updatedAt)

	return session, nil
}

// Update persists a refreshed token for an existing session.
func (r *SessionRepository) Update(session *models.Session) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		UPDATE sessions SET display_name = ?, email = ?, token_json = ?, updated_at = ?
		WHERE user_id = ?
	`

	result, err := r.db.Exec(query, session.DisplayName(), session.Email(),
		session.TokenJSON(), time.Now().UTC(), session.ID())
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: session %s", shared.ErrNotAuthenticated, session.ID())
	}

	return nil
}

// Delete removes a session by Spotify user ID.
func (r *SessionRepository) Delete(userID string) error {
	if _, err := r.db.Exec(`DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// List returns all persisted sessions, oldest first.
func (r *SessionRepository) List() ([]*models.Session, error) {
	query := `
		SELECT user_id, display_name, email, token_json, created_at, updated_at
		FROM sessions
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		var (
			id          string
			displayName string
			email       string
			tokenJSON   []byte
			createdAt   time.Time
			updatedAt   time.Time
		)

		if err := rows.Scan(&id, &displayName, &email, &tokenJSON, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}

		session := models.NewSession(id, displayName, email, tokenJSON)
		session.SetTimestamps(createdAt, updatedAt)
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	return sessions, nil
}
