package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const adminTokenHeader = "X-Admin-Token"

func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok, err := s.resolvePrincipal(r)
		if err != nil {
			s.writeStoreError(w, r, err)
			return
		}
		if ok {
			r = r.WithContext(contextWithAuthPrincipal(r.Context(), principal))
		}

		if isPublicRoute(r) {
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			s.writeErrorReq(w, r, http.StatusUnauthorized, unauthorized(fmt.Errorf("unauthorized")))
			return
		}
		if isAdminRoute(r) && !principal.IsAdmin() {
			s.writeErrorReq(w, r, http.StatusForbidden, forbidden(fmt.Errorf("instance admin required")))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) resolvePrincipal(r *http.Request) (authPrincipal, bool, error) {
	if s.matchesAdminToken(r.Header.Get(adminTokenHeader)) {
		return authPrincipal{AuthType: authTypeAdminToken, InstanceAdmin: true}, true, nil
	}

	if token := bearerToken(r); token != "" {
		if s.matchesAdminToken(token) {
			return authPrincipal{AuthType: authTypeAdminToken, InstanceAdmin: true}, true, nil
		}
		user, err := s.authService.AuthenticateSessionToken(r.Context(), token, time.Now().UTC())
		if err != nil || user == nil {
			return authPrincipal{}, false, err
		}
		return authPrincipal{AuthType: authTypeBearer, User: user}, true, nil
	}

	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		user, err := s.authService.AuthenticateSessionToken(r.Context(), cookie.Value, time.Now().UTC())
		if err != nil || user == nil {
			return authPrincipal{}, false, err
		}
		return authPrincipal{AuthType: authTypeSession, User: user}, true, nil
	}

	return authPrincipal{}, false, nil
}

func (s *Server) matchesAdminToken(candidate string) bool {
	candidate = strings.TrimSpace(candidate)
	if s.adminToken == "" || candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(s.adminToken)) == 1
}

func isPublicRoute(r *http.Request) bool {
	path := r.URL.Path
	switch {
	case path == "/health", path == "/metrics":
		return r.Method == http.MethodGet
	case path == "/v1/auth/login", path == "/v1/auth/logout":
		return r.Method == http.MethodPost
	case path == "/v1/auth/me":
		return true
	case strings.HasPrefix(path, "/v1/static/assets/"):
		return r.Method == http.MethodGet
	default:
		return false
	}
}

func isAdminRoute(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/v1/admin/") {
		return true
	}
	return r.URL.Path == "/v1/instance/file-settings" && r.Method != http.MethodGet
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func sessionTokenFromRequest(r *http.Request) string {
	if token := bearerToken(r); token != "" {
		return token
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		return strings.TrimSpace(cookie.Value)
	}
	return ""
}

func requestScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if proto := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); proto != "" {
		return strings.ToLower(proto)
	}
	return "http"
}

// requireUser returns the calling user, writing 401 when only the admin token
// or nothing identifies the caller.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (authPrincipal, bool) {
	principal, ok := authPrincipalFromContext(r.Context())
	if !ok || principal.User == nil {
		s.writeErrorReq(w, r, http.StatusUnauthorized, unauthorized(fmt.Errorf("user identity required")))
		return authPrincipal{}, false
	}
	return principal, true
}
