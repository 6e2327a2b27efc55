package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"assetd/internal/api"
	"assetd/internal/models"
)

func TestListenAddrRemoteGuard(t *testing.T) {
	t.Run("allows loopback", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "")
		addr, err := ListenAddr("http://127.0.0.1:7333")
		if err != nil {
			t.Fatalf("expected loopback to be allowed, got error: %v", err)
		}
		if addr != "127.0.0.1:7333" {
			t.Fatalf("unexpected addr: %s", addr)
		}
	})

	t.Run("blocks non-loopback by default", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "")
		_, err := ListenAddr("http://0.0.0.0:7333")
		if err == nil {
			t.Fatal("expected error for non-loopback listen host")
		}
	})

	t.Run("allows non-loopback when explicitly enabled", func(t *testing.T) {
		t.Setenv(allowRemoteEnvKey, "true")
		addr, err := ListenAddr("http://0.0.0.0:7333")
		if err != nil {
			t.Fatalf("expected allow-remote to permit host, got error: %v", err)
		}
		if addr != "0.0.0.0:7333" {
			t.Fatalf("unexpected addr: %s", addr)
		}
	})
}

func TestWithAuth(t *testing.T) {
	newAuthServer := func(t *testing.T) *Server {
		t.Helper()
		return newTestEnv(t).srv
	}
	okHandler := func(called *bool) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*called = true
			w.WriteHeader(http.StatusNoContent)
		})
	}

	t.Run("denies missing auth", func(t *testing.T) {
		srv := newAuthServer(t)
		nextCalled := false
		handler := srv.withAuth(okHandler(&nextCalled))

		req := httptest.NewRequest(http.MethodGet, "/v1/workspaces/acme/assets", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
		var errResp api.ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
			t.Fatalf("decode error response: %v", err)
		}
		if errResp.ErrorCode != ErrCodeUnauthorized {
			t.Fatalf("expected error_code %d, got %d", ErrCodeUnauthorized, errResp.ErrorCode)
		}
		if nextCalled {
			t.Fatal("next handler should not be called")
		}
	})

	t.Run("unknown bearer token is rejected", func(t *testing.T) {
		srv := newAuthServer(t)
		nextCalled := false
		handler := srv.withAuth(okHandler(&nextCalled))

		req := httptest.NewRequest(http.MethodGet, "/v1/workspaces/acme/assets", nil)
		req.Header.Set("Authorization", "Bearer not-a-session")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", w.Code)
		}
		if nextCalled {
			t.Fatal("next handler should not be called")
		}
	})

	t.Run("public routes pass without auth", func(t *testing.T) {
		srv := newAuthServer(t)
		for _, target := range []string{"/health", "/v1/auth/me", "/v1/static/assets/abc"} {
			nextCalled := false
			handler := srv.withAuth(okHandler(&nextCalled))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
			if w.Code != http.StatusNoContent || !nextCalled {
				t.Fatalf("%s: expected public access, got %d", target, w.Code)
			}
		}
	})

	t.Run("admin routes require an admin", func(t *testing.T) {
		env := newTestEnv(t)
		_, memberToken := env.seedUser(t, "member", "member")
		nextCalled := false
		handler := env.srv.withAuth(okHandler(&nextCalled))

		req := httptest.NewRequest(http.MethodPost, "/v1/admin/users", nil)
		req.Header.Set("Authorization", "Bearer "+memberToken)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", w.Code)
		}
		var errResp api.ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &errResp); err != nil {
			t.Fatalf("decode error response: %v", err)
		}
		if errResp.ErrorCode != ErrCodeForbidden {
			t.Fatalf("expected error_code %d, got %d", ErrCodeForbidden, errResp.ErrorCode)
		}

		req = httptest.NewRequest(http.MethodPatch, "/v1/instance/file-settings", nil)
		req.Header.Set("Authorization", "Bearer "+memberToken)
		w = httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusForbidden {
			t.Fatalf("expected policy update to require admin, got %d", w.Code)
		}

		req = httptest.NewRequest(http.MethodGet, "/v1/instance/file-settings", nil)
		req.Header.Set("Authorization", "Bearer "+memberToken)
		w = httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusNoContent {
			t.Fatalf("expected members to read file settings, got %d", w.Code)
		}
	})

	t.Run("admin token header and bearer", func(t *testing.T) {
		srv := newAuthServer(t)
		nextCalled := false
		handler := srv.withAuth(okHandler(&nextCalled))

		req := httptest.NewRequest(http.MethodPost, "/v1/admin/users", nil)
		req.Header.Set(adminTokenHeader, testAdminToken)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", w.Code)
		}

		req = httptest.NewRequest(http.MethodPost, "/v1/admin/users", nil)
		req.Header.Set("Authorization", "Bearer "+testAdminToken)
		w = httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", w.Code)
		}

		req = httptest.NewRequest(http.MethodPost, "/v1/admin/users", nil)
		req.Header.Set(adminTokenHeader, "wrong")
		w = httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected wrong admin token to be rejected, got %d", w.Code)
		}
	})
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp := decodeBody[api.HealthResponse](t, w); resp.Status != "ok" {
		t.Fatalf("unexpected health response %+v", resp)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New("127.0.0.1:0", nil, Options{}, nil); err == nil {
		t.Fatal("expected error without store")
	}
	env := newTestEnv(t)
	if _, err := New("127.0.0.1:0", env.st, Options{}, nil); err == nil {
		t.Fatal("expected error without storage gateway")
	}
}

func TestAssetURL(t *testing.T) {
	tests := []struct {
		asset *models.FileAsset
		want  string
	}{
		{&models.FileAsset{ID: "a1", EntityType: models.EntityWorkspaceLogo, WorkspaceID: "w1"}, "/v1/static/assets/a1"},
		{&models.FileAsset{ID: "a2", EntityType: models.EntityIssueAttachment, WorkspaceID: "w1"}, "/v1/workspaces/acme/assets/a2"},
		{&models.FileAsset{ID: "a3", EntityType: models.EntityIssueAttachment, WorkspaceID: "w1", ProjectID: "p1"}, "/v1/workspaces/acme/projects/p1/assets/a3"},
		{&models.FileAsset{ID: "a4", EntityType: models.EntityIssueDescription}, "/v1/users/me/assets/a4"},
		{nil, ""},
	}
	for _, tc := range tests {
		if got := assetURL(tc.asset, "acme"); got != tc.want {
			t.Fatalf("assetURL: expected %q, got %q", tc.want, got)
		}
	}
}
