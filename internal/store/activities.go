package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"assetd/internal/models"
)

// CreateAssetActivity appends one activity row.
func (s *Store) CreateAssetActivity(ctx context.Context, activity *models.AssetActivity) error {
	if activity == nil {
		return fmt.Errorf("activity is required")
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now().UTC()
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO asset_activities (asset_id, entity_type, entity_id, verb, actor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, activity.AssetID, string(activity.EntityType), nullIfEmpty(activity.Owner.ID), activity.Verb,
		nullIfEmpty(activity.ActorID), dbFormatTime(activity.CreatedAt))
	if err != nil {
		return err
	}
	activity.ID, err = result.LastInsertId()
	return err
}

// ListAssetActivities returns the activity log of one asset, oldest first.
func (s *Store) ListAssetActivities(ctx context.Context, assetID string) ([]models.AssetActivity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, asset_id, entity_type, entity_id, verb, actor_id, created_at
		FROM asset_activities
		WHERE asset_id = ?
		ORDER BY id ASC
	`, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	activities := []models.AssetActivity{}
	for rows.Next() {
		var activity models.AssetActivity
		var entityType, createdAt string
		var entityID, actorID sql.NullString
		if err := rows.Scan(&activity.ID, &activity.AssetID, &entityType, &entityID, &activity.Verb, &actorID, &createdAt); err != nil {
			return nil, err
		}
		activity.EntityType = models.EntityType(entityType)
		activity.Owner = activity.EntityType.OwnerFor(entityID.String)
		activity.ActorID = actorID.String
		if activity.CreatedAt, err = dbParseTime(createdAt); err != nil {
			return nil, err
		}
		activities = append(activities, activity)
	}
	return activities, rows.Err()
}
