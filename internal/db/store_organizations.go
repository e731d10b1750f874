package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tuttiud/platform/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// GetOrganizationByID returns an organization by ID.
func (db *DB) GetOrganizationByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	var org models.Organization
	err := db.Pool.QueryRow(ctx, `
		SELECT id, name, tenant_store_url, encrypted_credential, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`, id).Scan(
		&org.ID, &org.Name, &org.TenantStoreURL, &org.EncryptedCredential,
		&org.CreatedAt, &org.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return &org, nil
}

// CreateOrganization inserts a new organization row.
func (db *DB) CreateOrganization(ctx context.Context, org *models.Organization) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO organizations (id, name, tenant_store_url, encrypted_credential, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, org.ID, org.Name, org.TenantStoreURL, org.EncryptedCredential, org.CreatedAt, org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create organization: %w", err)
	}
	return nil
}

// SetOrganizationCredential overwrites the stored credential ciphertext.
// A nil ciphertext clears the column; the credential is only ever replaced
// wholesale, never appended.
func (db *DB) SetOrganizationCredential(ctx context.Context, orgID uuid.UUID, ciphertext *string) error {
	result, err := db.Pool.Exec(ctx, `
		UPDATE organizations
		SET encrypted_credential = $2, updated_at = $3
		WHERE id = $1
	`, orgID, ciphertext, time.Now())
	if err != nil {
		return fmt.Errorf("set organization credential: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetOrganizationStoreURL records the organization's tenant store address.
func (db *DB) SetOrganizationStoreURL(ctx context.Context, orgID uuid.UUID, storeURL string) error {
	result, err := db.Pool.Exec(ctx, `
		UPDATE organizations
		SET tenant_store_url = $2, updated_at = $3
		WHERE id = $1
	`, orgID, storeURL, time.Now())
	if err != nil {
		return fmt.Errorf("set organization store URL: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
