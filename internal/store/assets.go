package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"assetd/internal/models"
)

const assetColumns = "id, storage_key, attributes, size, entity_type, entity_id, workspace_id, project_id, is_uploaded, is_deleted, deleted_at, storage_metadata, metadata_requested_at, created_by, created_at, updated_at"

const slotSwapAttempts = 5

var (
	// ErrAssetNotFound is returned by multi-row updates that reference a missing asset.
	ErrAssetNotFound = errors.New("asset not found")
	// ErrOwnerNotFound is returned when a rebind targets a missing owner row.
	ErrOwnerNotFound = errors.New("owner not found")
	// ErrSlotContended is returned when a pointer swap keeps losing races.
	ErrSlotContended = errors.New("owner pointer changed concurrently")
)

// AssetFilter selects assets for listing. Soft-deleted assets are never listed.
type AssetFilter struct {
	// WorkspaceID without ProjectID selects workspace-level assets only.
	WorkspaceID string
	ProjectID   string
	// UserID selects user-scoped assets created by that user.
	UserID         string
	EntityType     models.EntityType
	EntityID       string
	IncludePending bool
	Limit          int
}

type slotColumn struct {
	table  string
	column string
}

var slotColumns = map[models.RebindSlot]slotColumn{
	models.SlotWorkspaceLogo: {table: "workspaces", column: "logo_asset_id"},
	models.SlotProjectCover:  {table: "projects", column: "cover_image_asset_id"},
	models.SlotUserAvatar:    {table: "users", column: "avatar_asset_id"},
	models.SlotUserCover:     {table: "users", column: "cover_asset_id"},
}

// CreateAsset inserts a pending asset. ID is generated when empty.
func (s *Store) CreateAsset(ctx context.Context, asset *models.FileAsset) error {
	if asset == nil {
		return fmt.Errorf("asset is required")
	}
	if strings.TrimSpace(asset.StorageKey) == "" {
		return fmt.Errorf("storage key is required")
	}
	if !asset.EntityType.Valid() {
		return fmt.Errorf("invalid entity type %q", asset.EntityType)
	}
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}
	stampCreated(&asset.CreatedAt, &asset.UpdatedAt)

	attributes, err := json.Marshal(asset.Attributes)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO file_assets (id, storage_key, attributes, size, entity_type, entity_id, workspace_id, project_id,
			is_uploaded, is_deleted, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
	`, asset.ID, asset.StorageKey, string(attributes), asset.Size, string(asset.EntityType), nullIfEmpty(asset.Owner.ID),
		nullIfEmpty(asset.WorkspaceID), nullIfEmpty(asset.ProjectID), boolToInt(asset.IsUploaded),
		nullIfEmpty(asset.CreatedBy), dbFormatTime(asset.CreatedAt), dbFormatTime(asset.UpdatedAt))
	return err
}

// GetAsset returns a non-deleted asset by id.
func (s *Store) GetAsset(ctx context.Context, id string) (*models.FileAsset, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM file_assets WHERE id = ? AND is_deleted = 0`, id)
	return scanAsset(row)
}

// GetAssetIncludingDeleted returns an asset by id whether or not it is soft-deleted.
func (s *Store) GetAssetIncludingDeleted(ctx context.Context, id string) (*models.FileAsset, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM file_assets WHERE id = ?`, id)
	return scanAsset(row)
}

// GetAssetByKey returns the non-deleted asset stored under key.
func (s *Store) GetAssetByKey(ctx context.Context, key string) (*models.FileAsset, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM file_assets WHERE storage_key = ? AND is_deleted = 0`, key)
	return scanAsset(row)
}

// AssetKeyExists reports whether any asset, deleted or not, uses key.
func (s *Store) AssetKeyExists(ctx context.Context, key string) (bool, error) {
	return s.exists(ctx, `SELECT 1 FROM file_assets WHERE storage_key = ? LIMIT 1`, key)
}

// FindAssetByPath resolves an object path to the newest non-deleted asset whose
// key equals the path or ends with its final segment.
func (s *Store) FindAssetByPath(ctx context.Context, objectPath string) (*models.FileAsset, error) {
	objectPath = strings.Trim(objectPath, "/")
	name := path.Base(objectPath)
	if objectPath == "" || name == "." || name == "/" {
		return nil, nil
	}
	suffix := "/" + name
	row := s.db.QueryRowContext(ctx, `
		SELECT `+assetColumns+`
		FROM file_assets
		WHERE is_deleted = 0
		  AND (storage_key = ? OR storage_key = ? OR substr(storage_key, -?) = ?)
		ORDER BY (storage_key = ?) DESC, created_at DESC
		LIMIT 1
	`, objectPath, name, utf8.RuneCountInString(suffix), suffix, objectPath)
	return scanAsset(row)
}

// MarkAssetUploaded flags the asset uploaded and replaces its attributes.
// It returns false when the asset does not exist or is deleted.
func (s *Store) MarkAssetUploaded(ctx context.Context, id string, attributes models.AssetAttributes, now time.Time) (bool, error) {
	encoded, err := json.Marshal(attributes)
	if err != nil {
		return false, err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE file_assets
		SET is_uploaded = 1, attributes = ?, updated_at = ?
		WHERE id = ? AND is_deleted = 0
	`, string(encoded), dbFormatTime(now), id)
	if err != nil {
		return false, err
	}
	return rowsChanged(result)
}

// ClaimMetadataFetch sets the in-flight marker when metadata is missing and no
// fresher claim exists. Only the caller that gets true should enqueue a fetch.
func (s *Store) ClaimMetadataFetch(ctx context.Context, id string, now, staleBefore time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE file_assets
		SET metadata_requested_at = ?
		WHERE id = ?
		  AND storage_metadata IS NULL
		  AND (metadata_requested_at IS NULL OR metadata_requested_at < ?)
	`, dbFormatTime(now), id, dbFormatTime(staleBefore))
	if err != nil {
		return false, err
	}
	return rowsChanged(result)
}

// SetAssetStorageMetadata stores fetched metadata unless some was already stored.
func (s *Store) SetAssetStorageMetadata(ctx context.Context, id string, meta models.StorageMetadata, now time.Time) (bool, error) {
	encoded, err := json.Marshal(meta)
	if err != nil {
		return false, err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE file_assets
		SET storage_metadata = ?, metadata_requested_at = NULL, updated_at = ?
		WHERE id = ? AND storage_metadata IS NULL
	`, string(encoded), dbFormatTime(now), id)
	if err != nil {
		return false, err
	}
	return rowsChanged(result)
}

// SoftDeleteAsset marks the asset deleted and clears any owner pointer that
// still references it. Deleting an already deleted asset is a no-op.
func (s *Store) SoftDeleteAsset(ctx context.Context, id string, now time.Time) (changed bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	changed, err = softDeleteAssetTx(ctx, tx, id, now)
	if err != nil {
		return false, err
	}
	return changed, tx.Commit()
}

func softDeleteAssetTx(ctx context.Context, tx *sql.Tx, id string, now time.Time) (bool, error) {
	var entityType string
	err := tx.QueryRowContext(ctx, `SELECT entity_type FROM file_assets WHERE id = ? AND is_deleted = 0`, id).Scan(&entityType)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE file_assets
		SET is_deleted = 1, deleted_at = ?, updated_at = ?
		WHERE id = ?
	`, dbFormatTime(now), dbFormatTime(now), id); err != nil {
		return false, err
	}

	if slot, ok := slotColumns[models.EntityType(entityType).Behavior().Slot]; ok {
		if _, err := tx.ExecContext(ctx,
			`UPDATE `+slot.table+` SET `+slot.column+` = NULL, updated_at = ? WHERE `+slot.column+` = ?`,
			dbFormatTime(now), id); err != nil {
			return false, err
		}
	}
	return true, nil
}

// RestoreAsset clears the soft-delete marker. Restoring a live asset is a no-op.
func (s *Store) RestoreAsset(ctx context.Context, id string, now time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE file_assets
		SET is_deleted = 0, deleted_at = NULL, updated_at = ?
		WHERE id = ? AND is_deleted = 1
	`, dbFormatTime(now), id)
	if err != nil {
		return false, err
	}
	return rowsChanged(result)
}

// DeleteAsset removes the row outright. Used only for uploads that never became valid.
func (s *Store) DeleteAsset(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM file_assets WHERE id = ?`, id)
	return err
}

// BindAssets points every listed non-deleted asset of the workspace at entityID.
// It fails without changes unless every id matches.
func (s *Store) BindAssets(ctx context.Context, workspaceID string, ids []string, entityType models.EntityType, entityID string, now time.Time) (err error) {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	setClause := "entity_id = ?"
	setArgs := []any{entityID}
	// Project-owned assets also move into the project scope.
	if entityType.Behavior().Owner == models.OwnerProject {
		setClause += ", project_id = ?"
		setArgs = append(setArgs, entityID)
	}
	query := `UPDATE file_assets SET ` + setClause + `, updated_at = ?
		WHERE id = ? AND workspace_id = ? AND entity_type = ? AND is_deleted = 0`
	for _, id := range ids {
		args := append(append([]any{}, setArgs...), dbFormatTime(now), id, workspaceID, string(entityType))
		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		changed, err := rowsChanged(result)
		if err != nil {
			return err
		}
		if !changed {
			return fmt.Errorf("asset %s: %w", id, ErrAssetNotFound)
		}
	}
	return tx.Commit()
}

// SwapOwnerSlot points the owner's slot at assetID with a compare-and-swap on
// the previous value, then soft-deletes the previous asset. It returns the
// previous asset id, or "" when the slot was empty.
func (s *Store) SwapOwnerSlot(ctx context.Context, slot models.RebindSlot, ownerID, assetID string, now time.Time) (string, error) {
	target, ok := slotColumns[slot]
	if !ok {
		return "", fmt.Errorf("entity type has no owner slot: %q", slot)
	}
	for attempt := 0; attempt < slotSwapAttempts; attempt++ {
		previous, swapped, err := s.trySwapOwnerSlot(ctx, target, ownerID, assetID, now)
		if err != nil {
			return "", err
		}
		if swapped {
			return previous, nil
		}
	}
	return "", ErrSlotContended
}

func (s *Store) trySwapOwnerSlot(ctx context.Context, target slotColumn, ownerID, assetID string, now time.Time) (previous string, swapped bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, err
	}
	defer func() {
		if err != nil || !swapped {
			_ = tx.Rollback()
		}
	}()

	var current sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT `+target.column+` FROM `+target.table+` WHERE id = ?`, ownerID).Scan(&current)
	if err == sql.ErrNoRows {
		return "", false, ErrOwnerNotFound
	}
	if err != nil {
		return "", false, err
	}
	if current.String == assetID {
		return "", true, tx.Commit()
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE `+target.table+` SET `+target.column+` = ?, updated_at = ? WHERE id = ? AND `+target.column+` IS ?`,
		assetID, dbFormatTime(now), ownerID, nullIfEmpty(current.String))
	if err != nil {
		return "", false, err
	}
	changed, err := rowsChanged(result)
	if err != nil || !changed {
		return "", false, err
	}

	if current.String != "" {
		if _, err = softDeleteAssetTx(ctx, tx, current.String, now); err != nil {
			return "", false, err
		}
	}
	return current.String, true, tx.Commit()
}

// ListAssets returns matching non-deleted assets, newest first.
func (s *Store) ListAssets(ctx context.Context, filter AssetFilter) ([]models.FileAsset, error) {
	clauses := []string{"is_deleted = 0"}
	args := []any{}
	switch {
	case filter.UserID != "":
		clauses = append(clauses, "workspace_id IS NULL", "created_by = ?")
		args = append(args, filter.UserID)
	case filter.ProjectID != "":
		clauses = append(clauses, "project_id = ?")
		args = append(args, filter.ProjectID)
		if filter.WorkspaceID != "" {
			clauses = append(clauses, "workspace_id = ?")
			args = append(args, filter.WorkspaceID)
		}
	case filter.WorkspaceID != "":
		clauses = append(clauses, "workspace_id = ?", "project_id IS NULL")
		args = append(args, filter.WorkspaceID)
	default:
		return nil, fmt.Errorf("asset filter requires a scope")
	}
	if filter.EntityType != "" {
		clauses = append(clauses, "entity_type = ?")
		args = append(args, string(filter.EntityType))
	}
	if filter.EntityID != "" {
		clauses = append(clauses, "entity_id = ?")
		args = append(args, filter.EntityID)
	}
	if !filter.IncludePending {
		clauses = append(clauses, "is_uploaded = 1")
	}

	query := `SELECT ` + assetColumns + ` FROM file_assets WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at DESC, rowid DESC`
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assets := []models.FileAsset{}
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		if asset != nil {
			assets = append(assets, *asset)
		}
	}
	return assets, rows.Err()
}

func scanAsset(scanner interface {
	Scan(dest ...any) error
}) (*models.FileAsset, error) {
	var asset models.FileAsset
	var attributes, entityType, createdAt, updatedAt string
	var entityID, workspaceID, projectID, deletedAt, storageMeta, requestedAt, createdBy sql.NullString
	var uploaded, deleted int
	if err := scanner.Scan(&asset.ID, &asset.StorageKey, &attributes, &asset.Size, &entityType, &entityID,
		&workspaceID, &projectID, &uploaded, &deleted, &deletedAt, &storageMeta, &requestedAt, &createdBy,
		&createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if err := json.Unmarshal([]byte(attributes), &asset.Attributes); err != nil {
		return nil, fmt.Errorf("decode asset attributes: %w", err)
	}
	if storageMeta.Valid && storageMeta.String != "" {
		var meta models.StorageMetadata
		if err := json.Unmarshal([]byte(storageMeta.String), &meta); err != nil {
			return nil, fmt.Errorf("decode storage metadata: %w", err)
		}
		asset.StorageMetadata = &meta
	}

	asset.EntityType = models.EntityType(entityType)
	asset.Owner = asset.EntityType.OwnerFor(entityID.String)
	asset.WorkspaceID = workspaceID.String
	asset.ProjectID = projectID.String
	asset.IsUploaded = uploaded != 0
	asset.IsDeleted = deleted != 0
	asset.CreatedBy = createdBy.String

	var err error
	if asset.DeletedAt, err = dbParseNullTime(deletedAt); err != nil {
		return nil, err
	}
	if asset.MetadataRequestedAt, err = dbParseNullTime(requestedAt); err != nil {
		return nil, err
	}
	if asset.CreatedAt, err = dbParseTime(createdAt); err != nil {
		return nil, err
	}
	if asset.UpdatedAt, err = dbParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &asset, nil
}

func rowsChanged(result sql.Result) (bool, error) {
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
