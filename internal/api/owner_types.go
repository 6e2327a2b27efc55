package api

import "time"

// WorkspaceCreateRequest is the payload for POST /v1/admin/workspaces.
type WorkspaceCreateRequest struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// ProjectCreateRequest is the payload for POST /v1/admin/workspaces/{workspace}/projects.
type ProjectCreateRequest struct {
	Name string `json:"name"`
}

// MemberAddRequest adds a user to a workspace or project. Either field identifies the user.
type MemberAddRequest struct {
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
}

// WorkspaceResponse is the public representation of a workspace.
type WorkspaceResponse struct {
	ID          string    `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	LogoAssetID string    `json:"logo_asset_id,omitempty"`
	LogoURL     string    `json:"logo_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProjectResponse is the public representation of a project.
type ProjectResponse struct {
	ID                string    `json:"id"`
	WorkspaceID       string    `json:"workspace_id"`
	Name              string    `json:"name"`
	CoverImageAssetID string    `json:"cover_image_asset_id,omitempty"`
	CoverImageURL     string    `json:"cover_image_url,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
