package server

import (
	"net/http"

	"assetd/internal/models"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check and metrics.
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	// Auth.
	mux.HandleFunc("POST /v1/auth/login", s.handleAuthLogin)
	mux.HandleFunc("POST /v1/auth/logout", s.handleAuthLogout)
	mux.HandleFunc("GET /v1/auth/me", s.handleAuthMe)

	// Instance file settings.
	mux.HandleFunc("GET /v1/instance/file-settings", s.handleGetFileSettings)
	mux.HandleFunc("PATCH /v1/instance/file-settings", s.handleUpdateFileSettings)

	// Owner views.
	mux.HandleFunc("GET /v1/workspaces/{workspace}", s.handleGetWorkspace)
	mux.HandleFunc("GET /v1/workspaces/{workspace}/projects/{project_id}", s.handleGetProject)

	// Workspace, project and user assets.
	s.assetRoutes(mux, "/v1/workspaces/{workspace}/assets", models.ScopeWorkspace)
	s.assetRoutes(mux, "/v1/workspaces/{workspace}/projects/{project_id}/assets", models.ScopeProject)
	s.assetRoutes(mux, "/v1/users/me/assets", models.ScopeUser)

	// Unauthenticated logo, cover and avatar redirects.
	mux.HandleFunc("GET /v1/static/assets/{asset_id}", s.handleStaticAsset)

	// Storage proxy.
	mux.HandleFunc("GET /storage/{bucket}/{path...}", s.handleStorageGet)
	mux.HandleFunc("POST /storage/{bucket}", s.handleStorageUpload)

	// Admin users.
	mux.HandleFunc("POST /v1/admin/users", s.handleAdminCreateUser)
	mux.HandleFunc("GET /v1/admin/users", s.handleAdminListUsers)
	mux.HandleFunc("PATCH /v1/admin/users/{username}", s.handleAdminSetUserDisabled)
	mux.HandleFunc("DELETE /v1/admin/users/{username}", s.handleAdminDeleteUser)

	// Admin owners and memberships.
	mux.HandleFunc("POST /v1/admin/workspaces", s.handleAdminCreateWorkspace)
	mux.HandleFunc("GET /v1/admin/workspaces", s.handleAdminListWorkspaces)
	mux.HandleFunc("POST /v1/admin/workspaces/{workspace}/projects", s.handleAdminCreateProject)
	mux.HandleFunc("POST /v1/admin/workspaces/{workspace}/members", s.handleAdminAddWorkspaceMember)
	mux.HandleFunc("DELETE /v1/admin/workspaces/{workspace}/members/{user_id}", s.handleAdminRemoveWorkspaceMember)
	mux.HandleFunc("POST /v1/admin/workspaces/{workspace}/projects/{project_id}/members", s.handleAdminAddProjectMember)

	return mux
}

func (s *Server) assetRoutes(mux *http.ServeMux, base string, kind models.ScopeKind) {
	mux.HandleFunc("POST "+base, s.handleCreateAsset(kind))
	mux.HandleFunc("GET "+base, s.handleListAssets(kind))
	mux.HandleFunc("GET "+base+"/{asset_id}", s.handleGetAsset(kind))
	mux.HandleFunc("PATCH "+base+"/{asset_id}", s.handleConfirmAsset(kind))
	mux.HandleFunc("DELETE "+base+"/{asset_id}", s.handleDeleteAsset(kind))
	// Covers .../{asset_id}/restore and, for projects, .../bulk/{entity_id}.
	mux.HandleFunc("POST "+base+"/{asset_id}/{action}", s.handleAssetAction(kind))
}
