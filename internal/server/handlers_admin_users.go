package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"assetd/internal/api"
	"assetd/internal/store"
)

func (s *Server) handleAdminCreateUser(w http.ResponseWriter, r *http.Request) {
	var req api.AdminUserCreateRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	created, err := s.authService.CreateUser(r.Context(), req.Username, req.Password, req.Role, time.Now().UTC())
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toAPIAdminUser(*created))
}

func (s *Server) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.authService.ListUsers(r.Context())
	if err != nil {
		s.writeStoreError(w, r, err)
		return
	}
	resp := make([]api.AdminUser, len(users))
	for i, user := range users {
		resp[i] = toAPIAdminUser(user)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAdminSetUserDisabled(w http.ResponseWriter, r *http.Request) {
	name, ok := s.pathUsername(w, r)
	if !ok {
		return
	}
	var req api.AdminUserSetDisabledRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	updated, err := s.authService.SetUserDisabled(r.Context(), name, req.Disabled, time.Now().UTC())
	switch {
	case err != nil:
		s.writeAuthError(w, r, err)
	case updated == nil:
		s.writeUserNotFound(w, r)
	default:
		s.writeJSON(w, http.StatusOK, toAPIAdminUser(*updated))
	}
}

func (s *Server) handleAdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	name, ok := s.pathUsername(w, r)
	if !ok {
		return
	}

	deleted, err := s.authService.DeleteUser(r.Context(), name)
	switch {
	case err != nil:
		s.writeAuthError(w, r, err)
	case !deleted:
		s.writeUserNotFound(w, r)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) pathUsername(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := strings.TrimSpace(r.PathValue("username"))
	if name == "" {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("username is required"), ErrCodeMissingRequired))
		return "", false
	}
	return name, true
}

func (s *Server) writeUserNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeErrorReq(w, r, http.StatusNotFound, notFoundCode(fmt.Errorf("user not found"), ErrCodeUserNotFound))
}

func toAPIAdminUser(user store.AuthUser) api.AdminUser {
	return api.AdminUser{
		ID:        user.ID,
		Username:  user.Username,
		Role:      user.Role,
		Disabled:  user.Disabled,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}
