package server

import (
	"net/http"
	"time"

	"assetd/internal/api"
	"assetd/internal/models"
)

func (s *Server) handleGetFileSettings(w http.ResponseWriter, r *http.Request) {
	policy, err := s.store.GetFilePolicy(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toAPIFileSettings(policy))
}

// handleUpdateFileSettings merges the request into the stored policy, or into
// the defaults when none is stored yet.
func (s *Server) handleUpdateFileSettings(w http.ResponseWriter, r *http.Request) {
	var req api.FileSettingsUpdateRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	current, err := s.store.GetFilePolicy(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	next := models.DefaultFilePolicy()
	if current != nil {
		next = *current
	}
	if req.MaxFileSize != nil {
		next.MaxFileSizeBytes = *req.MaxFileSize
	}
	if req.AllowedExtensions != nil {
		next.AllowedExtensions = req.AllowedExtensions
	}
	normalized, err := next.Normalize()
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(err, ErrCodeInvalidPolicy))
		return
	}

	saved, err := s.store.SaveFilePolicy(r.Context(), normalized, time.Now().UTC())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toAPIFileSettings(saved))
}

func toAPIFileSettings(policy *models.FilePolicy) api.FileSettingsResponse {
	if policy == nil {
		defaults := models.DefaultFilePolicy()
		return api.FileSettingsResponse{
			MaxFileSize:       defaults.MaxFileSizeBytes,
			MaxFileSizeMB:     defaults.MaxFileSizeMB(),
			AllowedExtensions: defaults.AllowedExtensions,
			Configured:        false,
		}
	}
	resp := api.FileSettingsResponse{
		MaxFileSize:       policy.MaxFileSizeBytes,
		MaxFileSizeMB:     policy.MaxFileSizeMB(),
		AllowedExtensions: policy.AllowedExtensions,
		Configured:        true,
	}
	if !policy.UpdatedAt.IsZero() {
		updated := policy.UpdatedAt
		resp.UpdatedAt = &updated
	}
	return resp
}
