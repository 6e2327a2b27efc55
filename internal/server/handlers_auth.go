package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"assetd/internal/api"
)

func (s *Server) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req api.AuthLoginRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}

	now := time.Now().UTC()
	key := loginAttemptKey(req.Username, r)
	if !s.loginLimiter.Allow(key, now) {
		s.writeErrorReq(w, r, http.StatusTooManyRequests, apiError{
			status:  http.StatusTooManyRequests,
			code:    "resource_exhausted",
			errCode: ErrCodeResourceExhausted,
			err:     fmt.Errorf("too many login attempts; retry later"),
		})
		return
	}

	result, err := s.authService.Login(r.Context(), req.Username, req.Password, now)
	if errors.Is(err, errInvalidCredentials) {
		s.loginLimiter.RegisterFailure(key, now)
	}
	if err != nil {
		s.writeAuthError(w, r, err)
		return
	}
	s.loginLimiter.Reset(key)

	setSessionCookie(w, r, result.Token, result.ExpiresAt)
	s.writeJSON(w, http.StatusOK, api.AuthLoginResponse{
		AuthMeResponse: api.AuthMeResponse{
			Authenticated: true,
			UserID:        result.User.ID,
			Username:      result.User.Username,
			Role:          result.User.Role,
			AuthType:      authTypeSession,
		},
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
	})
}

// handleAuthLogout revokes the presented session and clears the cookie. The
// static admin token has no session to revoke.
func (s *Server) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	if token := sessionTokenFromRequest(r); token != "" && !s.matchesAdminToken(token) {
		if err := s.authService.RevokeSessionToken(r.Context(), token, time.Now().UTC()); err != nil {
			s.writeStoreError(w, r, err)
			return
		}
	}
	setSessionCookie(w, r, "", time.Time{})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAuthMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := authPrincipalFromContext(r.Context())
	if !ok {
		s.writeJSON(w, http.StatusOK, api.AuthMeResponse{})
		return
	}

	resp := api.AuthMeResponse{Authenticated: true, AuthType: principal.AuthType}
	switch {
	case principal.User != nil:
		resp.UserID = principal.User.ID
		resp.Username = principal.User.Username
		resp.Role = principal.User.Role
	case principal.InstanceAdmin:
		resp.Role = "admin"
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// writeAuthError maps AuthService failures onto the error taxonomy.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errInvalidCredentials):
		s.writeErrorReq(w, r, http.StatusUnauthorized, unauthorized(err))
	case isCredentialError(err):
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(err, ErrCodeInvalidArgument))
	case isUniqueConstraint(err):
		s.writeErrorReq(w, r, http.StatusConflict, conflict(fmt.Errorf("username already exists")))
	default:
		s.writeStoreError(w, r, err)
	}
}

// setSessionCookie installs token, or expires the cookie when token is empty.
func setSessionCookie(w http.ResponseWriter, r *http.Request, token string, expires time.Time) {
	cookie := &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   requestScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
	}
	if token == "" {
		cookie.MaxAge = -1
		cookie.Expires = time.Unix(0, 0).UTC()
	} else {
		cookie.MaxAge = int(time.Until(expires) / time.Second)
		cookie.Expires = expires
	}
	http.SetCookie(w, cookie)
}

// loginAttemptKey scopes limiter state to client address and username so one
// noisy client cannot lock a user out from elsewhere.
func loginAttemptKey(username string, r *http.Request) string {
	user := strings.ToLower(strings.TrimSpace(username))
	if user == "" {
		user = "<empty>"
	}
	ip := "<unknown>"
	if remote := strings.TrimSpace(r.RemoteAddr); remote != "" {
		ip = remote
		if host, _, err := net.SplitHostPort(remote); err == nil {
			ip = host
		}
	}
	return ip + "|" + user
}
