package server

import (
	"fmt"
	"net/http"
	"strings"

	"assetd/internal/api"
	"assetd/internal/models"
)

// scopedRequest is the resolved addressing context of an asset route.
type scopedRequest struct {
	scope     assetScope
	principal authPrincipal
	workspace *models.Workspace
}

func (q scopedRequest) workspaceSlug() string {
	if q.workspace == nil {
		return ""
	}
	return q.workspace.Slug
}

// resolveScope loads the owner named by the route and checks the caller's
// membership in it. It writes the error response itself.
func (s *Server) resolveScope(w http.ResponseWriter, r *http.Request, kind models.ScopeKind) (scopedRequest, bool) {
	principal, ok := s.requireUser(w, r)
	if !ok {
		return scopedRequest{}, false
	}
	req := scopedRequest{principal: principal}
	if kind == models.ScopeUser {
		req.scope = userScope(principal.UserID())
		return req, true
	}

	ctx := r.Context()
	workspace, err := s.owners.Workspace(ctx, strings.TrimSpace(r.PathValue("workspace")))
	if err != nil {
		s.writeStoreError(w, r, err)
		return scopedRequest{}, false
	}
	if workspace == nil {
		s.writeErrorReq(w, r, http.StatusNotFound, notFoundCode(fmt.Errorf("workspace not found"), ErrCodeOwnerNotFound))
		return scopedRequest{}, false
	}
	req.workspace = workspace
	if !s.authorizeMember(w, r, principal, models.ScopeWorkspace, workspace.ID) {
		return scopedRequest{}, false
	}
	if kind == models.ScopeWorkspace {
		req.scope = workspaceScope(workspace.ID)
		return req, true
	}

	projectID, err := requirePathValue(r, "project_id")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return scopedRequest{}, false
	}
	project, err := s.owners.Project(ctx, workspace.ID, projectID)
	if err != nil {
		s.writeStoreError(w, r, err)
		return scopedRequest{}, false
	}
	if project == nil {
		s.writeErrorReq(w, r, http.StatusNotFound, notFoundCode(fmt.Errorf("project not found"), ErrCodeOwnerNotFound))
		return scopedRequest{}, false
	}
	if !s.authorizeMember(w, r, principal, models.ScopeProject, project.ID) {
		return scopedRequest{}, false
	}
	req.scope = projectScope(workspace.ID, project.ID)
	return req, true
}

func (s *Server) authorizeMember(w http.ResponseWriter, r *http.Request, principal authPrincipal, scope models.ScopeKind, scopeID string) bool {
	if principal.IsAdmin() {
		return true
	}
	ok, err := s.oracle.IsAuthorizedMember(r.Context(), scope, scopeID, principal.UserID())
	if err != nil {
		s.writeStoreError(w, r, err)
		return false
	}
	if !ok {
		s.writeErrorReq(w, r, http.StatusForbidden, forbidden(fmt.Errorf("not a member of this %s", scope)))
		return false
	}
	return true
}

func (s *Server) handleCreateAsset(kind models.ScopeKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := s.resolveScope(w, r, kind)
		if !ok {
			return
		}
		var body api.AssetCreateRequest
		if !s.decodeJSONReq(w, r, &body) {
			return
		}
		entityType, err := models.ParseEntityType(body.EntityType)
		if err != nil {
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(err, ErrCodeInvalidEntityType))
			return
		}

		pending, err := s.registry.CreatePending(r.Context(), req.scope, CreateAssetInput{
			Name:       body.Name,
			Type:       body.Type,
			Size:       body.Size,
			EntityType: entityType,
			EntityID:   body.EntityIdentifier,
			ActorID:    req.principal.UserID(),
		})
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}

		s.writeJSON(w, http.StatusOK, api.AssetCreateResponse{
			UploadData: api.UploadData{
				URL:       pending.Upload.URL,
				Fields:    pending.Upload.Fields,
				ExpiresIn: pending.Upload.ExpiresIn,
			},
			AssetID:  pending.Asset.ID,
			AssetURL: assetURL(pending.Asset, req.workspaceSlug()),
		})
	}
}

func (s *Server) handleListAssets(kind models.ScopeKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := s.resolveScope(w, r, kind)
		if !ok {
			return
		}
		opts, err := parseListOptions(r)
		if err != nil {
			s.writeErrorReq(w, r, http.StatusBadRequest, err)
			return
		}
		assets, err := s.registry.ListForOwner(r.Context(), req.scope, opts)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		resp := make([]api.AssetResponse, 0, len(assets))
		for i := range assets {
			resp = append(resp, toAPIAsset(&assets[i], req.workspaceSlug()))
		}
		s.writeJSON(w, http.StatusOK, resp)
	}
}

func parseListOptions(r *http.Request) (ListOptions, error) {
	var opts ListOptions
	query := r.URL.Query()
	if raw := strings.TrimSpace(query.Get("entity_type")); raw != "" {
		entityType, err := models.ParseEntityType(raw)
		if err != nil {
			return opts, badRequestCode(err, ErrCodeInvalidEntityType)
		}
		opts.EntityType = entityType
	}
	if raw := strings.TrimSpace(query.Get("entity_identifier")); raw != "" {
		if !validateID(raw) {
			return opts, badRequestCode(fmt.Errorf("invalid entity_identifier"), ErrCodeInvalidQuery)
		}
		opts.EntityID = raw
	}
	pending, err := queryBool(r, "include_pending")
	if err != nil {
		return opts, err
	}
	opts.IncludePending = pending
	limit, err := queryIntDefault(r, "limit", 0)
	if err != nil {
		return opts, err
	}
	opts.Limit = limit
	return opts, nil
}

func (s *Server) handleGetAsset(kind models.ScopeKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := s.resolveScope(w, r, kind)
		if !ok {
			return
		}
		id, err := requirePathValue(r, "asset_id")
		if err != nil {
			s.writeErrorReq(w, r, http.StatusBadRequest, err)
			return
		}
		asset, err := s.registry.Get(r.Context(), req.scope, id)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		if err := s.proxy.Redirect(w, r, asset); err != nil {
			s.writeServiceError(w, r, err)
		}
	}
}

func (s *Server) handleConfirmAsset(kind models.ScopeKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := s.resolveScope(w, r, kind)
		if !ok {
			return
		}
		id, err := requirePathValue(r, "asset_id")
		if err != nil {
			s.writeErrorReq(w, r, http.StatusBadRequest, err)
			return
		}
		var body api.AssetConfirmRequest
		if !s.decodeOptionalJSONReq(w, r, &body) {
			return
		}
		if _, err := s.registry.ConfirmUpload(r.Context(), req.scope, id, body.Attributes, req.principal.UserID()); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleDeleteAsset(kind models.ScopeKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := s.resolveScope(w, r, kind)
		if !ok {
			return
		}
		id, err := requirePathValue(r, "asset_id")
		if err != nil {
			s.writeErrorReq(w, r, http.StatusBadRequest, err)
			return
		}
		if err := s.registry.SoftDelete(r.Context(), req.scope, id, req.principal.UserID()); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleRestoreAsset(kind models.ScopeKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := s.resolveScope(w, r, kind)
		if !ok {
			return
		}
		id, err := requirePathValue(r, "asset_id")
		if err != nil {
			s.writeErrorReq(w, r, http.StatusBadRequest, err)
			return
		}
		if err := s.registry.Restore(r.Context(), req.scope, id); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleAssetAction dispatches POST routes with two trailing segments, which
// a single mux pattern has to own.
func (s *Server) handleAssetAction(kind models.ScopeKind) http.HandlerFunc {
	restore := s.handleRestoreAsset(kind)
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case kind == models.ScopeProject && r.PathValue("asset_id") == "bulk":
			s.handleBulkBindAssets(w, r)
		case r.PathValue("action") == "restore":
			restore(w, r)
		default:
			s.writeErrorReq(w, r, http.StatusNotFound, notFoundCode(fmt.Errorf("route not found"), ErrCodeAssetNotFound))
		}
	}
}

func (s *Server) handleBulkBindAssets(w http.ResponseWriter, r *http.Request) {
	req, ok := s.resolveScope(w, r, models.ScopeProject)
	if !ok {
		return
	}
	entityID, err := requirePathValue(r, "action")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("invalid entity_id"), ErrCodeInvalidID))
		return
	}
	var body api.AssetBulkBindRequest
	if !s.decodeJSONReq(w, r, &body) {
		return
	}
	if err := requireIDs(body.AssetIDs); err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	if err := s.registry.BulkBind(r.Context(), req.scope, body.AssetIDs, entityID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleStaticAsset redirects to logos, covers and avatars without authentication.
func (s *Server) handleStaticAsset(w http.ResponseWriter, r *http.Request) {
	id, err := requirePathValue(r, "asset_id")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	asset, err := s.registry.GetStatic(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if err := s.proxy.Redirect(w, r, asset); err != nil {
		s.writeServiceError(w, r, err)
	}
}

func toAPIAsset(asset *models.FileAsset, workspaceSlug string) api.AssetResponse {
	return api.AssetResponse{
		ID:              asset.ID,
		Asset:           asset.StorageKey,
		AssetURL:        assetURL(asset, workspaceSlug),
		Name:            asset.DisplayName(),
		Attributes:      asset.Attributes,
		Size:            asset.Size,
		EntityType:      string(asset.EntityType),
		EntityID:        asset.Owner.ID,
		WorkspaceID:     asset.WorkspaceID,
		ProjectID:       asset.ProjectID,
		IsUploaded:      asset.IsUploaded,
		StorageMetadata: asset.StorageMetadata,
		CreatedBy:       asset.CreatedBy,
		CreatedAt:       asset.CreatedAt,
		UpdatedAt:       asset.UpdatedAt,
	}
}
