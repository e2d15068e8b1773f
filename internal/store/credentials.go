// ABOUTME: SQLite implementation for credential storage
// ABOUTME: One credential per (owner, type) pair; values are opaque to the hub

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateCredential stores a new credential for a user.
// Returns ErrDuplicate if the user already has a credential of that type.
func (s *SQLiteStore) CreateCredential(ctx context.Context, cred *Credential) error {
	if cred.ID == "" {
		cred.ID = uuid.New().String()
	}
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO credentials (id, owner_id, type, value, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		cred.ID,
		cred.OwnerID,
		cred.Type,
		cred.Value,
		cred.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("inserting credential: %w", err)
	}

	s.logger.Debug("created credential", "id", cred.ID, "owner_id", cred.OwnerID, "type", cred.Type)
	return nil
}

// ListCredentialsByOwner returns all credentials stored for a user.
// Returns an empty slice (not an error) when the user has none.
func (s *SQLiteStore) ListCredentialsByOwner(ctx context.Context, ownerID string) ([]*Credential, error) {
	query := `
		SELECT id, owner_id, type, value, created_at
		FROM credentials
		WHERE owner_id = ?
		ORDER BY type ASC
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying credentials: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var creds []*Credential
	for rows.Next() {
		var cred Credential
		var createdAt string
		if err := rows.Scan(&cred.ID, &cred.OwnerID, &cred.Type, &cred.Value, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning credential row: %w", err)
		}
		cred.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		creds = append(creds, &cred)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating credential rows: %w", err)
	}

	return creds, nil
}

// DeleteCredential removes a credential by ID.
// Returns ErrNotFound if the credential doesn't exist.
func (s *SQLiteStore) DeleteCredential(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted credential", "id", id)
	return nil
}

// Ensure SQLiteStore implements CredentialStore.
var _ CredentialStore = (*SQLiteStore)(nil)
