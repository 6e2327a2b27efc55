package server

import (
	"net/http"
	"strings"
)

func (s *Server) handleStorageGet(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	bucket := strings.TrimSpace(r.PathValue("bucket"))
	objectPath := strings.TrimSpace(r.PathValue("path"))
	if err := s.proxy.Stream(w, r, bucket, objectPath, principal); err != nil {
		s.writeServiceError(w, r, err)
	}
}

func (s *Server) handleStorageUpload(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	bucket := strings.TrimSpace(r.PathValue("bucket"))
	if _, err := s.proxy.Upload(r, bucket, principal); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
