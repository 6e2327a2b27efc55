package store

import (
	"context"
	"time"

	"assetd/internal/models"
)

// AssetStore persists file assets and their owner bindings.
type AssetStore interface {
	CreateAsset(ctx context.Context, asset *models.FileAsset) error
	GetAsset(ctx context.Context, id string) (*models.FileAsset, error)
	GetAssetIncludingDeleted(ctx context.Context, id string) (*models.FileAsset, error)
	GetAssetByKey(ctx context.Context, key string) (*models.FileAsset, error)
	AssetKeyExists(ctx context.Context, key string) (bool, error)
	FindAssetByPath(ctx context.Context, objectPath string) (*models.FileAsset, error)
	MarkAssetUploaded(ctx context.Context, id string, attributes models.AssetAttributes, now time.Time) (bool, error)
	ClaimMetadataFetch(ctx context.Context, id string, now, staleBefore time.Time) (bool, error)
	SetAssetStorageMetadata(ctx context.Context, id string, meta models.StorageMetadata, now time.Time) (bool, error)
	SoftDeleteAsset(ctx context.Context, id string, now time.Time) (bool, error)
	RestoreAsset(ctx context.Context, id string, now time.Time) (bool, error)
	DeleteAsset(ctx context.Context, id string) error
	BindAssets(ctx context.Context, workspaceID string, ids []string, entityType models.EntityType, entityID string, now time.Time) error
	SwapOwnerSlot(ctx context.Context, slot models.RebindSlot, ownerID, assetID string, now time.Time) (string, error)
	ListAssets(ctx context.Context, filter AssetFilter) ([]models.FileAsset, error)
}

// OwnerStore persists the entities assets belong to and their memberships.
type OwnerStore interface {
	CreateWorkspace(ctx context.Context, workspace *models.Workspace) error
	GetWorkspace(ctx context.Context, ref string) (*models.Workspace, error)
	ListWorkspaces(ctx context.Context) ([]models.Workspace, error)
	CreateProject(ctx context.Context, project *models.Project) error
	GetProject(ctx context.Context, workspaceID, projectID string) (*models.Project, error)
	ListProjects(ctx context.Context, workspaceID string) ([]models.Project, error)
	AddWorkspaceMember(ctx context.Context, workspaceID, userID, role string, now time.Time) error
	AddProjectMember(ctx context.Context, projectID, userID, role string, now time.Time) error
	RemoveWorkspaceMember(ctx context.Context, workspaceID, userID string) (bool, error)
	IsWorkspaceMember(ctx context.Context, workspaceID, userID string) (bool, error)
	IsProjectMember(ctx context.Context, projectID, userID string) (bool, error)
}

// PolicyStore persists the instance file policy singleton.
type PolicyStore interface {
	GetFilePolicy(ctx context.Context) (*models.FilePolicy, error)
	SaveFilePolicy(ctx context.Context, policy models.FilePolicy, now time.Time) (*models.FilePolicy, error)
}

// ActivityStore records asset lifecycle events.
type ActivityStore interface {
	CreateAssetActivity(ctx context.Context, activity *models.AssetActivity) error
	ListAssetActivities(ctx context.Context, assetID string) ([]models.AssetActivity, error)
}

// AuthStore persists users and browser sessions.
type AuthStore interface {
	CountEnabledUsers(ctx context.Context) (int, error)
	CreateAdminUser(ctx context.Context, username, passwordHash string, now time.Time) (*AuthUser, error)
	CreateUser(ctx context.Context, username, passwordHash, role string, now time.Time) (*AuthUser, error)
	GetUserByUsername(ctx context.Context, username string) (*AuthUser, error)
	GetUserByID(ctx context.Context, id string) (*AuthUser, error)
	ListUsers(ctx context.Context) ([]AuthUser, error)
	SetUserDisabled(ctx context.Context, username string, disabled bool, now time.Time) (*AuthUser, error)
	DeleteUser(ctx context.Context, username string) (bool, error)
	CreateSession(ctx context.Context, userID, tokenHash string, expiresAt, createdAt time.Time) error
	GetUserBySessionTokenHash(ctx context.Context, tokenHash string, now time.Time) (*AuthUser, error)
	RevokeSessionByTokenHash(ctx context.Context, tokenHash string, revokedAt time.Time) error
}

var (
	_ AssetStore    = (*Store)(nil)
	_ OwnerStore    = (*Store)(nil)
	_ PolicyStore   = (*Store)(nil)
	_ ActivityStore = (*Store)(nil)
	_ AuthStore     = (*Store)(nil)
)
