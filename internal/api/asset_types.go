package api

import (
	"time"

	"assetd/internal/models"
)

// AssetCreateRequest asks for an upload slot.
type AssetCreateRequest struct {
	Name             string `json:"name"`
	Type             string `json:"type,omitempty"`
	Size             int64  `json:"size,omitempty"`
	EntityType       string `json:"entity_type"`
	EntityIdentifier string `json:"entity_identifier,omitempty"`
}

// UploadData is the presigned POST descriptor the client submits its file with.
type UploadData struct {
	URL       string            `json:"url"`
	Fields    map[string]string `json:"fields"`
	ExpiresIn int               `json:"expires_in,omitempty"`
}

// AssetCreateResponse is returned when an upload slot is issued.
type AssetCreateResponse struct {
	UploadData UploadData `json:"upload_data"`
	AssetID    string     `json:"asset_id"`
	AssetURL   string     `json:"asset_url"`
}

// AssetConfirmRequest confirms an upload and optionally refines its attributes.
type AssetConfirmRequest struct {
	Attributes *models.AssetAttributes `json:"attributes,omitempty"`
}

// AssetBulkBindRequest binds unowned assets to an entity.
type AssetBulkBindRequest struct {
	AssetIDs []string `json:"asset_ids"`
}

// AssetResponse is the listing view of an asset.
type AssetResponse struct {
	ID              string                  `json:"id"`
	Asset           string                  `json:"asset"`
	AssetURL        string                  `json:"asset_url"`
	Name            string                  `json:"name"`
	Attributes      models.AssetAttributes  `json:"attributes"`
	Size            int64                   `json:"size"`
	EntityType      string                  `json:"entity_type"`
	EntityID        string                  `json:"entity_identifier,omitempty"`
	WorkspaceID     string                  `json:"workspace_id,omitempty"`
	ProjectID       string                  `json:"project_id,omitempty"`
	IsUploaded      bool                    `json:"is_uploaded"`
	StorageMetadata *models.StorageMetadata `json:"storage_metadata,omitempty"`
	CreatedBy       string                  `json:"created_by,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
}

// FileSettingsResponse reports the instance file policy.
type FileSettingsResponse struct {
	MaxFileSize       int64      `json:"max_file_size"`
	MaxFileSizeMB     string     `json:"max_file_size_mb"`
	AllowedExtensions []string   `json:"allowed_extensions"`
	Configured        bool       `json:"configured"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
}

// FileSettingsUpdateRequest changes the instance file policy. Omitted fields keep their value.
type FileSettingsUpdateRequest struct {
	MaxFileSize       *int64   `json:"max_file_size,omitempty"`
	AllowedExtensions []string `json:"allowed_extensions,omitempty"`
}
