package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/musikai/musikd/internal/models"
	"github.com/musikai/musikd/internal/shared"
)

// AccessRequestRepository implements [models.Repository] for [models.AccessRequest] persistence.
type AccessRequestRepository struct {
	db *sql.DB
}

// NewAccessRequestRepository creates a new [AccessRequestRepository] with the given database connection
func NewAccessRequestRepository(db *sql.DB) *AccessRequestRepository {
	return &AccessRequestRepository{db: db}
}

// Create inserts a new access request with a generated ID.
func (r *AccessRequestRepository) Create(request *models.AccessRequest) error {
	if err := request.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	request.SetID(shared.GenerateID())

	query := `
		INSERT INTO access_requests (id, email, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query, request.ID(), request.Email(), request.Name(),
		request.CreatedAt(), request.UpdatedAt())
	if err != nil {
		return fmt.Errorf("failed to insert access request: %w", err)
	}

	return nil
}

// Get retrieves an access request by ID.
func (r *AccessRequestRepository) Get(id string) (*models.AccessRequest, error) {
	query := `
		SELECT id, email, name, created_at, updated_at
		FROM access_requests
		WHERE id = ?
	`

	var (
		requestID string
		email     string
		name      string
		createdAt time.Time
		updatedAt time.Time
	)

	err := r.db.QueryRow(query, id).Scan(&requestID, &email, &name, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: access request %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query access request: %w", err)
	}

	request := models.NewAccessRequest(email, name)
	request.SetID(requestID)
	request.SetTimestamps(createdAt, updatedAt)

	return request, nil
}

// Update modifies an existing access request.
func (r *AccessRequestRepository) Update(request *models.AccessRequest) error {
	if err := request.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `UPDATE access_requests SET email = ?, name = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.Exec(query, request.Email(), request.Name(), time.Now().UTC(), request.ID())
	if err != nil {
		return fmt.Errorf("failed to update access request: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: access request %s", shared.ErrNotFound, request.ID())
	}

	return nil
}

// Delete removes an access request by ID.
func (r *AccessRequestRepository) Delete(id string) error {
	if _, err := r.db.Exec(`DELETE FROM access_requests WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete access request: %w", err)
	}
	return nil
}
