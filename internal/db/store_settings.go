package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetOrgSettings returns the settings metadata document for an organization.
// A missing row reads as an empty document.
func (db *DB) GetOrgSettings(ctx context.Context, orgID uuid.UUID) (map[string]any, error) {
	var raw []byte
	err := db.Pool.QueryRow(ctx, `
		SELECT metadata FROM org_settings WHERE org_id = $1
	`, orgID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("get org settings: %w", err)
	}

	metadata := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &metadata); err != nil {
			return nil, fmt.Errorf("unmarshal org settings: %w", err)
		}
	}
	return metadata, nil
}

// PutOrgSettings writes the full settings metadata document. Callers must
// read, merge, and pass back the complete document; this keeps unrelated
// substructures intact across writers.
func (db *DB) PutOrgSettings(ctx context.Context, orgID uuid.UUID, metadata map[string]any) error {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal org settings: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
		INSERT INTO org_settings (org_id, metadata, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (org_id) DO UPDATE SET metadata = $2, updated_at = $3
	`, orgID, raw, time.Now())
	if err != nil {
		return fmt.Errorf("put org settings: %w", err)
	}
	return nil
}
