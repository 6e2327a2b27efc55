package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPTimeoutFromEnv(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "")
		if got := httpTimeoutFromEnv(); got != defaultHTTPTimeout {
			t.Fatalf("expected default timeout %v, got %v", defaultHTTPTimeout, got)
		}
	})

	t.Run("duration format", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "45s")
		if got := httpTimeoutFromEnv(); got != 45*time.Second {
			t.Fatalf("expected 45s timeout, got %v", got)
		}
	})

	t.Run("integer seconds", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "25")
		if got := httpTimeoutFromEnv(); got != 25*time.Second {
			t.Fatalf("expected 25s timeout, got %v", got)
		}
	})

	t.Run("invalid falls back", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "invalid")
		if got := httpTimeoutFromEnv(); got != defaultHTTPTimeout {
			t.Fatalf("expected default timeout %v, got %v", defaultHTTPTimeout, got)
		}
	})
}

func TestAssetScopePath(t *testing.T) {
	tests := []struct {
		name  string
		scope AssetScope
		want  string
	}{
		{name: "user", scope: AssetScope{User: true}, want: "/v1/users/me/assets"},
		{name: "workspace", scope: AssetScope{Workspace: "acme"}, want: "/v1/workspaces/acme/assets"},
		{name: "project", scope: AssetScope{Workspace: "acme", ProjectID: "p 1"}, want: "/v1/workspaces/acme/projects/p%201/assets"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.scope.Path()
			if err != nil {
				t.Fatalf("path: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}

	if _, err := (AssetScope{}).Path(); err == nil {
		t.Fatal("expected empty scope to fail")
	}
}

func TestDecodeErrorKeepsStructuredFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"asset not found","code":"not_found","error_code":2001}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	err := client.DeleteAsset(context.Background(), AssetScope{Workspace: "acme"}, "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T (%v)", err, err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Code != "not_found" || apiErr.ErrorCode != 2001 {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
	if !apiErr.IsNotFound() {
		t.Fatal("expected IsNotFound")
	}
	if !HasErrorCode(err, 2001) || HasErrorCode(err, 2003) {
		t.Fatalf("unexpected error code match for %+v", apiErr)
	}
}

func TestAssetLocationDoesNotFollowRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.Redirect(w, r, "/storage/uploads/ws/abc-a.png", http.StatusFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL).WithToken("tok")
	location, err := client.AssetLocation(context.Background(), AssetScope{Workspace: "acme"}, "asset-1")
	if err != nil {
		t.Fatalf("asset location: %v", err)
	}
	if location != srv.URL+"/storage/uploads/ws/abc-a.png" {
		t.Fatalf("unexpected location %q", location)
	}
}

func TestUploadFileSendsFieldsAndFile(t *testing.T) {
	var gotKey, gotContent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		gotKey = r.FormValue("key")
		file, _, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		gotContent = string(data)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	data := UploadData{URL: "/storage/uploads", Fields: map[string]string{"key": "ws/abc-notes.txt"}}
	if err := client.UploadFile(context.Background(), data, "notes.txt", strings.NewReader("hello")); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if gotKey != "ws/abc-notes.txt" || gotContent != "hello" {
		t.Fatalf("unexpected upload key=%q content=%q", gotKey, gotContent)
	}
}
