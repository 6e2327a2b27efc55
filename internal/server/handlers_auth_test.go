package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"assetd/internal/api"
	"assetd/internal/store"
)

func TestAuthMeAnonymous(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/auth/me", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	var resp api.AuthMeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode auth me response: %v", err)
	}
	if resp.Authenticated {
		t.Fatal("expected authenticated=false without credentials")
	}

	adminW := env.do(t, http.MethodGet, "/v1/auth/me", testAdminToken, nil)
	admin := decodeBody[api.AuthMeResponse](t, adminW)
	if !admin.Authenticated || admin.Role != store.UserRoleAdmin || admin.AuthType != authTypeAdminToken {
		t.Fatalf("unexpected admin token identity %+v", admin)
	}
}

func TestBrowserSessionLoginFlow(t *testing.T) {
	env := newTestEnv(t)
	seedAdminUser(t, env, "admin", "password-123")
	h := env.handler

	loginBody := []byte(`{"username":"admin","password":"password-123"}`)
	loginW := httptest.NewRecorder()
	h.ServeHTTP(loginW, httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewReader(loginBody)))
	if loginW.Code != http.StatusOK {
		t.Fatalf("expected login 200, got %d (%s)", loginW.Code, loginW.Body.String())
	}
	login := decodeBody[api.AuthLoginResponse](t, loginW)
	if login.Token == "" || login.UserID == "" {
		t.Fatalf("expected token and user id in login response, got %+v", login)
	}
	if !login.ExpiresAt.After(time.Now()) {
		t.Fatalf("expected future expiry, got %s", login.ExpiresAt)
	}

	var sessionCookie *http.Cookie
	for _, c := range loginW.Result().Cookies() {
		if c.Name == sessionCookieName {
			sessionCookie = c
			break
		}
	}
	if sessionCookie == nil {
		t.Fatal("expected session cookie on login response")
	}
	if !sessionCookie.HttpOnly {
		t.Fatal("expected HttpOnly session cookie")
	}

	meReq := httptest.NewRequest(http.MethodGet, "/v1/auth/me", nil)
	meReq.AddCookie(sessionCookie)
	meW := httptest.NewRecorder()
	h.ServeHTTP(meW, meReq)
	me := decodeBody[api.AuthMeResponse](t, meW)
	if !me.Authenticated || me.Username != "admin" || me.AuthType != authTypeSession {
		t.Fatalf("unexpected cookie identity %+v", me)
	}

	bearer := decodeBody[api.AuthMeResponse](t, env.do(t, http.MethodGet, "/v1/auth/me", login.Token, nil))
	if bearer.AuthType != authTypeBearer || bearer.UserID != login.UserID {
		t.Fatalf("unexpected bearer identity %+v", bearer)
	}

	logoutReq := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
	logoutReq.AddCookie(sessionCookie)
	logoutW := httptest.NewRecorder()
	h.ServeHTTP(logoutW, logoutReq)
	if logoutW.Code != http.StatusNoContent {
		t.Fatalf("expected logout 204, got %d (%s)", logoutW.Code, logoutW.Body.String())
	}

	afterReq := httptest.NewRequest(http.MethodGet, "/v1/instance/file-settings", nil)
	afterReq.AddCookie(sessionCookie)
	afterW := httptest.NewRecorder()
	h.ServeHTTP(afterW, afterReq)
	if afterW.Code != http.StatusUnauthorized {
		t.Fatalf("expected session to be revoked after logout, got %d", afterW.Code)
	}
}

func TestAuthLoginInvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	seedAdminUser(t, env, "admin", "password-123")

	w := env.do(t, http.MethodPost, "/v1/auth/login", "", api.AuthLoginRequest{Username: "admin", Password: "wrong"})
	requireErrorCode(t, w, http.StatusUnauthorized, ErrCodeUnauthorized)

	w = env.do(t, http.MethodPost, "/v1/auth/login", "", api.AuthLoginRequest{Username: "nobody", Password: "password-123"})
	requireErrorCode(t, w, http.StatusUnauthorized, ErrCodeUnauthorized)
}

func TestAuthLoginDisabledUser(t *testing.T) {
	env := newTestEnv(t)
	seedAdminUser(t, env, "admin", "password-123")
	if _, err := env.srv.authService.SetUserDisabled(t.Context(), "admin", true, time.Now().UTC()); err != nil {
		t.Fatalf("disable user: %v", err)
	}

	w := env.do(t, http.MethodPost, "/v1/auth/login", "", api.AuthLoginRequest{Username: "admin", Password: "password-123"})
	requireErrorCode(t, w, http.StatusUnauthorized, ErrCodeUnauthorized)
}

func TestAuthLoginRateLimitedAfterRepeatedFailures(t *testing.T) {
	env := newTestEnv(t)
	env.srv.loginLimiter = newLoginRateLimiter(2, time.Minute, 10*time.Minute)
	seedAdminUser(t, env, "admin", "password-123")
	h := env.handler

	for attempt := 1; attempt <= 2; attempt++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewReader([]byte(`{"username":"admin","password":"wrong"}`)))
		req.RemoteAddr = "127.0.0.1:12345"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d (%s)", attempt, w.Code, w.Body.String())
		}
	}

	blockedReq := httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewReader([]byte(`{"username":"admin","password":"password-123"}`)))
	blockedReq.RemoteAddr = "127.0.0.1:12345"
	blockedW := httptest.NewRecorder()
	h.ServeHTTP(blockedW, blockedReq)
	requireErrorCode(t, blockedW, http.StatusTooManyRequests, ErrCodeResourceExhausted)
}

func TestAuthLoginSuccessResetsRateLimiterState(t *testing.T) {
	env := newTestEnv(t)
	env.srv.loginLimiter = newLoginRateLimiter(2, time.Minute, 10*time.Minute)
	seedAdminUser(t, env, "admin", "password-123")
	h := env.handler

	login := func(password string) int {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewReader([]byte(`{"username":"admin","password":"`+password+`"}`)))
		req.RemoteAddr = "127.0.0.1:22334"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	if code := login("wrong"); code != http.StatusUnauthorized {
		t.Fatalf("expected first wrong login 401, got %d", code)
	}
	if code := login("password-123"); code != http.StatusOK {
		t.Fatalf("expected successful login 200, got %d", code)
	}
	for attempt := 1; attempt <= 2; attempt++ {
		if code := login("wrong"); code != http.StatusUnauthorized {
			t.Fatalf("post-reset attempt %d: expected 401, got %d", attempt, code)
		}
	}
}

func seedAdminUser(t *testing.T, env *testEnv, username, password string) {
	t.Helper()
	if _, err := env.srv.authService.CreateUser(t.Context(), username, password, store.UserRoleAdmin, time.Now().UTC()); err != nil {
		t.Fatalf("create admin user: %v", err)
	}
}
