package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"assetd/internal/models"
)

// GetFilePolicy returns the stored instance policy, or nil when none was saved.
func (s *Store) GetFilePolicy(ctx context.Context) (*models.FilePolicy, error) {
	var policy models.FilePolicy
	var extensionsJSON, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT max_file_size, allowed_extensions, updated_at
		FROM file_policy
		WHERE id = 1
	`).Scan(&policy.MaxFileSizeBytes, &extensionsJSON, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(extensionsJSON), &policy.AllowedExtensions); err != nil {
		return nil, fmt.Errorf("decode allowed extensions: %w", err)
	}
	if policy.UpdatedAt, err = dbParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &policy, nil
}

// SaveFilePolicy replaces the instance policy. The policy must already be normalized.
func (s *Store) SaveFilePolicy(ctx context.Context, policy models.FilePolicy, now time.Time) (*models.FilePolicy, error) {
	extensionsJSON, err := json.Marshal(policy.AllowedExtensions)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO file_policy (id, max_file_size, allowed_extensions, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		  max_file_size = excluded.max_file_size,
		  allowed_extensions = excluded.allowed_extensions,
		  updated_at = excluded.updated_at
	`, policy.MaxFileSizeBytes, string(extensionsJSON), dbFormatTime(now))
	if err != nil {
		return nil, err
	}
	policy.UpdatedAt = now.UTC()
	return &policy, nil
}
