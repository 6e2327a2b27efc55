package server

import (
	"context"
	"fmt"

	"assetd/internal/models"
	"assetd/internal/store"
)

// PermissionOracle decides whether a user may act within a scope.
type PermissionOracle interface {
	IsAuthorizedMember(ctx context.Context, scope models.ScopeKind, scopeID, userID string) (bool, error)
}

type membershipStore interface {
	IsWorkspaceMember(ctx context.Context, workspaceID, userID string) (bool, error)
	IsProjectMember(ctx context.Context, projectID, userID string) (bool, error)
}

// StoreOracle answers membership questions from the owner tables.
type StoreOracle struct {
	members membershipStore
}

func NewStoreOracle(members membershipStore) *StoreOracle {
	return &StoreOracle{members: members}
}

var _ membershipStore = (store.OwnerStore)(nil)

func (o *StoreOracle) IsAuthorizedMember(ctx context.Context, scope models.ScopeKind, scopeID, userID string) (bool, error) {
	if scopeID == "" || userID == "" {
		return false, nil
	}
	switch scope {
	case models.ScopeUser:
		return scopeID == userID, nil
	case models.ScopeWorkspace:
		return o.members.IsWorkspaceMember(ctx, scopeID, userID)
	case models.ScopeProject:
		return o.members.IsProjectMember(ctx, scopeID, userID)
	default:
		return false, fmt.Errorf("unknown scope %q", scope)
	}
}

// canReadAsset applies the membership rules for delivering or writing an
// existing asset's bytes.
func canReadAsset(ctx context.Context, oracle PermissionOracle, asset *models.FileAsset, principal authPrincipal) (bool, error) {
	if asset == nil {
		return false, nil
	}
	if principal.IsAdmin() {
		return true, nil
	}
	userID := principal.UserID()
	if userID == "" {
		return false, nil
	}
	if asset.WorkspaceID == "" {
		if asset.EntityType.Behavior().StaticRedirect {
			return true, nil
		}
		return oracle.IsAuthorizedMember(ctx, models.ScopeUser, asset.CreatedBy, userID)
	}
	ok, err := oracle.IsAuthorizedMember(ctx, models.ScopeWorkspace, asset.WorkspaceID, userID)
	if err != nil || !ok {
		return false, err
	}
	if asset.ProjectID != "" {
		return oracle.IsAuthorizedMember(ctx, models.ScopeProject, asset.ProjectID, userID)
	}
	return true, nil
}
