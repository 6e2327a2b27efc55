package models

import (
	"path"
	"strings"
	"time"
)

// AssetAttributes is the declared metadata snapshot of an asset.
type AssetAttributes struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// Merge returns a copy with every non-zero field of update applied.
func (a AssetAttributes) Merge(update AssetAttributes) AssetAttributes {
	if name := strings.TrimSpace(update.Name); name != "" {
		a.Name = name
	}
	if mediaType := strings.TrimSpace(update.Type); mediaType != "" {
		a.Type = mediaType
	}
	if update.Size > 0 {
		a.Size = update.Size
	}
	return a
}

// StorageMetadata caches what the blob store reports for an uploaded object.
type StorageMetadata struct {
	ContentType   string            `json:"content_type"`
	ContentLength int64             `json:"content_length"`
	ETag          string            `json:"etag,omitempty"`
	LastModified  time.Time         `json:"last_modified"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// FileAsset is one uploaded or pending blob and its owner binding.
type FileAsset struct {
	ID         string          `json:"id"`
	StorageKey string          `json:"asset"`
	Attributes AssetAttributes `json:"attributes"`
	Size       int64           `json:"size"`
	EntityType EntityType      `json:"entity_type"`
	Owner      OwnerRef        `json:"owner"`

	// Scope the asset was created in; empty for user-scoped assets.
	WorkspaceID string `json:"workspace_id,omitempty"`
	ProjectID   string `json:"project_id,omitempty"`

	IsUploaded          bool             `json:"is_uploaded"`
	IsDeleted           bool             `json:"is_deleted"`
	DeletedAt           *time.Time       `json:"deleted_at,omitempty"`
	StorageMetadata     *StorageMetadata `json:"storage_metadata,omitempty"`
	MetadataRequestedAt *time.Time       `json:"-"`

	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileName is the base name of the storage key.
func (a *FileAsset) FileName() string {
	if a == nil {
		return ""
	}
	return path.Base(a.StorageKey)
}

// DisplayName prefers the declared name over the storage key.
func (a *FileAsset) DisplayName() string {
	if a == nil {
		return ""
	}
	if name := strings.TrimSpace(a.Attributes.Name); name != "" {
		return name
	}
	return a.FileName()
}

// AssetActivity records an asset lifecycle event for issue attachments.
type AssetActivity struct {
	ID         int64      `json:"id"`
	AssetID    string     `json:"asset_id"`
	EntityType EntityType `json:"entity_type"`
	Owner      OwnerRef   `json:"owner"`
	Verb       string     `json:"verb"`
	ActorID    string     `json:"actor_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
