// package repositories provides persistence layer implementations for all model types.
//
// Each repository implements [models.Repository] for a specific entity type.
// Sessions are keyed by the external Spotify user ID so OAuth sessions
// survive process restarts; access requests are append-mostly intake rows.
package repositories

import (
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	user_id      TEXT PRIMARY KEY,
	display_name TEXT NOT NULL DEFAULT '',
	email        TEXT NOT NULL DEFAULT '',
	token_json   BLOB NOT NULL,
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS access_requests (
	id         TEXT PRIMARY KEY,
	email      TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_access_requests_email ON access_requests(email);
`

// Migrate creates the schema if it does not exist yet.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
