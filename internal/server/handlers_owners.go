package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"assetd/internal/api"
	"assetd/internal/models"
)

func (s *Server) handleGetWorkspace(w http.ResponseWriter, r *http.Request) {
	req, ok := s.resolveScope(w, r, models.ScopeWorkspace)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, toAPIWorkspace(req.workspace))
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	req, ok := s.resolveScope(w, r, models.ScopeProject)
	if !ok {
		return
	}
	project, err := s.owners.Project(r.Context(), req.scope.WorkspaceID, req.scope.ProjectID)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if project == nil {
		s.writeErrorReq(w, r, http.StatusNotFound, notFoundCode(fmt.Errorf("project not found"), ErrCodeOwnerNotFound))
		return
	}
	s.writeJSON(w, http.StatusOK, toAPIProject(project))
}

func (s *Server) handleAdminCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req api.WorkspaceCreateRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	slug := strings.ToLower(strings.TrimSpace(req.Slug))
	if !validateID(slug) {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("invalid slug"), ErrCodeInvalidArgument))
		return
	}

	workspace := &models.Workspace{Slug: slug, Name: req.Name}
	now := time.Now().UTC()
	workspace.CreatedAt, workspace.UpdatedAt = now, now
	if err := s.store.CreateWorkspace(r.Context(), workspace); err != nil {
		if isUniqueConstraint(err) {
			s.writeErrorReq(w, r, http.StatusConflict, conflict(fmt.Errorf("workspace already exists")))
			return
		}
		s.writeStoreError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toAPIWorkspace(workspace))
}

func (s *Server) handleAdminListWorkspaces(w http.ResponseWriter, r *http.Request) {
	workspaces, err := s.store.ListWorkspaces(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	resp := make([]api.WorkspaceResponse, 0, len(workspaces))
	for i := range workspaces {
		resp = append(resp, toAPIWorkspace(&workspaces[i]))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAdminCreateProject(w http.ResponseWriter, r *http.Request) {
	workspace, ok := s.adminWorkspace(w, r)
	if !ok {
		return
	}
	var req api.ProjectCreateRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("name is required"), ErrCodeMissingRequired))
		return
	}

	project := &models.Project{WorkspaceID: workspace.ID, Name: name}
	now := time.Now().UTC()
	project.CreatedAt, project.UpdatedAt = now, now
	if err := s.store.CreateProject(r.Context(), project); err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toAPIProject(project))
}

func (s *Server) handleAdminAddWorkspaceMember(w http.ResponseWriter, r *http.Request) {
	workspace, ok := s.adminWorkspace(w, r)
	if !ok {
		return
	}
	userID, role, ok := s.decodeMember(w, r)
	if !ok {
		return
	}
	if err := s.store.AddWorkspaceMember(r.Context(), workspace.ID, userID, role, time.Now().UTC()); err != nil {
		s.writeMemberError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminRemoveWorkspaceMember(w http.ResponseWriter, r *http.Request) {
	workspace, ok := s.adminWorkspace(w, r)
	if !ok {
		return
	}
	userID, err := requirePathValue(r, "user_id")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	removed, err := s.store.RemoveWorkspaceMember(r.Context(), workspace.ID, userID)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if !removed {
		s.writeErrorReq(w, r, http.StatusNotFound, notFoundCode(fmt.Errorf("member not found"), ErrCodeUserNotFound))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminAddProjectMember(w http.ResponseWriter, r *http.Request) {
	workspace, ok := s.adminWorkspace(w, r)
	if !ok {
		return
	}
	projectID, err := requirePathValue(r, "project_id")
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, err)
		return
	}
	project, err := s.store.GetProject(r.Context(), workspace.ID, projectID)
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	if project == nil {
		s.writeErrorReq(w, r, http.StatusNotFound, notFoundCode(fmt.Errorf("project not found"), ErrCodeOwnerNotFound))
		return
	}
	userID, role, ok := s.decodeMember(w, r)
	if !ok {
		return
	}
	if err := s.store.AddProjectMember(r.Context(), project.ID, userID, role, time.Now().UTC()); err != nil {
		s.writeMemberError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) adminWorkspace(w http.ResponseWriter, r *http.Request) (*models.Workspace, bool) {
	workspace, err := s.store.GetWorkspace(r.Context(), strings.TrimSpace(r.PathValue("workspace")))
	if err != nil {
		s.writeStoreError(w, r, err)
		return nil, false
	}
	if workspace == nil {
		s.writeErrorReq(w, r, http.StatusNotFound, notFoundCode(fmt.Errorf("workspace not found"), ErrCodeOwnerNotFound))
		return nil, false
	}
	return workspace, true
}

// decodeMember resolves the user named by id or username in the request body.
func (s *Server) decodeMember(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	var req api.MemberAddRequest
	if !s.decodeJSONReq(w, r, &req) {
		return "", "", false
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		username := strings.TrimSpace(req.Username)
		if username == "" {
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("user_id or username is required"), ErrCodeMissingRequired))
			return "", "", false
		}
		user, err := s.store.GetUserByUsername(r.Context(), strings.ToLower(username))
		if err != nil {
			s.writeStoreError(w, r, err)
			return "", "", false
		}
		if user == nil {
			s.writeErrorReq(w, r, http.StatusNotFound, notFoundCode(fmt.Errorf("user not found"), ErrCodeUserNotFound))
			return "", "", false
		}
		userID = user.ID
	}
	return userID, req.Role, true
}

func (s *Server) writeMemberError(w http.ResponseWriter, r *http.Request, err error) {
	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "foreign key"):
		s.writeErrorReq(w, r, http.StatusNotFound, notFoundCode(fmt.Errorf("user not found"), ErrCodeUserNotFound))
	case strings.Contains(message, "role"):
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequest(err))
	default:
		s.writeStoreError(w, r, err)
	}
}

func toAPIWorkspace(workspace *models.Workspace) api.WorkspaceResponse {
	resp := api.WorkspaceResponse{
		ID:          workspace.ID,
		Slug:        workspace.Slug,
		Name:        workspace.Name,
		LogoAssetID: workspace.LogoAssetID,
		CreatedAt:   workspace.CreatedAt,
		UpdatedAt:   workspace.UpdatedAt,
	}
	if workspace.LogoAssetID != "" {
		resp.LogoURL = staticAssetURL(workspace.LogoAssetID)
	}
	return resp
}

func toAPIProject(project *models.Project) api.ProjectResponse {
	resp := api.ProjectResponse{
		ID:                project.ID,
		WorkspaceID:       project.WorkspaceID,
		Name:              project.Name,
		CoverImageAssetID: project.CoverImageAssetID,
		CreatedAt:         project.CreatedAt,
		UpdatedAt:         project.UpdatedAt,
	}
	if project.CoverImageAssetID != "" {
		resp.CoverImageURL = staticAssetURL(project.CoverImageAssetID)
	}
	return resp
}
