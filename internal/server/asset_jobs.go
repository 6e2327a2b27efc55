package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"assetd/internal/blobstore"
	"assetd/internal/jobs"
	"assetd/internal/models"
)

const (
	jobFetchMetadata = "asset.fetch_metadata"
	jobAssetActivity = "asset.activity"

	activityCreated  = "created"
	activityUploaded = "uploaded"
	activityDeleted  = "deleted"
)

type metadataJob struct {
	AssetID string `json:"asset_id"`
}

type activityJob struct {
	AssetID    string            `json:"asset_id"`
	EntityType models.EntityType `json:"entity_type"`
	Owner      models.OwnerRef   `json:"owner"`
	Verb       string            `json:"verb"`
	ActorID    string            `json:"actor_id,omitempty"`
}

// RegisterJobs installs the registry's background handlers on queue.
func (r *AssetRegistry) RegisterJobs(queue jobs.Queue) {
	queue.Register(jobFetchMetadata, r.handleFetchMetadata)
	queue.Register(jobAssetActivity, r.handleActivity)
}

// handleFetchMetadata is idempotent: metadata is only written while still empty.
func (r *AssetRegistry) handleFetchMetadata(ctx context.Context, payload json.RawMessage) error {
	var job metadataJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return fmt.Errorf("decode %s payload: %w", jobFetchMetadata, err)
	}
	asset, err := r.assets.GetAssetIncludingDeleted(ctx, job.AssetID)
	if err != nil {
		return err
	}
	if asset == nil || asset.StorageMetadata != nil {
		return nil
	}

	info, err := r.gateway.Head(ctx, asset.StorageKey)
	if errors.Is(err, blobstore.ErrNotFound) {
		r.logger.Warn("metadata fetch found no object", "asset_id", asset.ID, "key", asset.StorageKey)
		return nil
	}
	if err != nil {
		return err
	}

	_, err = r.assets.SetAssetStorageMetadata(ctx, asset.ID, models.StorageMetadata{
		ContentType:   info.ContentType,
		ContentLength: info.ContentLength,
		ETag:          info.ETag,
		LastModified:  info.LastModified,
		Metadata:      info.Metadata,
	}, r.now())
	return err
}

func (r *AssetRegistry) handleActivity(ctx context.Context, payload json.RawMessage) error {
	var job activityJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return fmt.Errorf("decode %s payload: %w", jobAssetActivity, err)
	}
	if r.activities == nil {
		return nil
	}
	return r.activities.CreateAssetActivity(ctx, &models.AssetActivity{
		AssetID:    job.AssetID,
		EntityType: job.EntityType,
		Owner:      job.Owner,
		Verb:       job.Verb,
		ActorID:    job.ActorID,
		CreatedAt:  r.now(),
	})
}

func (r *AssetRegistry) emitActivity(ctx context.Context, asset *models.FileAsset, verb, actorID string) {
	if !asset.EntityType.Behavior().Activity {
		return
	}
	err := r.queue.Enqueue(ctx, jobAssetActivity, activityJob{
		AssetID:    asset.ID,
		EntityType: asset.EntityType,
		Owner:      asset.Owner,
		Verb:       verb,
		ActorID:    actorID,
	})
	if err != nil {
		r.logger.Warn("enqueue asset activity failed", "asset_id", asset.ID, "verb", verb, "error", err)
	}
}
