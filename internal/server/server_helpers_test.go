package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"assetd/internal/api"
	internalauth "assetd/internal/auth"
	"assetd/internal/blobstore"
	"assetd/internal/models"
	"assetd/internal/store"
)

const (
	testAdminToken = "admin-secret-token"
	testBucket     = "uploads"
	testPassword   = "password-123"
)

var (
	pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89\x00\x00\x00\rIDATx\x9cc\x00\x01\x00\x00\x05\x00\x01\r\n-\xb4\x00\x00\x00\x00IEND\xaeB`\x82")
	pdfBytes = []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")
)

type testEnv struct {
	srv     *Server
	st      *store.Store
	gateway *blobstore.MemoryGateway
	handler http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv(adminTokenEnvKey, testAdminToken)

	st, err := store.Open(filepath.Join(t.TempDir(), "assetd-test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})

	gateway := blobstore.NewMemoryGateway(testBucket, "/storage", "/storage")
	srv, err := New("127.0.0.1:0", st, Options{Gateway: gateway}, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return &testEnv{srv: srv, st: st, gateway: gateway, handler: srv.Handler()}
}

// seedUser provisions a user and returns it with a bearer session token.
func (e *testEnv) seedUser(t *testing.T, username, role string) (*store.AuthUser, string) {
	t.Helper()
	hash, err := internalauth.HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user, err := e.st.CreateUser(context.Background(), username, hash, role, time.Now().UTC())
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	login, err := e.srv.authService.Login(context.Background(), username, testPassword, time.Now().UTC())
	if err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
	return user, login.Token
}

func (e *testEnv) seedWorkspace(t *testing.T, slug string, members ...*store.AuthUser) *models.Workspace {
	t.Helper()
	ctx := context.Background()
	workspace := &models.Workspace{Slug: slug, Name: slug}
	if err := e.st.CreateWorkspace(ctx, workspace); err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	for _, member := range members {
		if err := e.st.AddWorkspaceMember(ctx, workspace.ID, member.ID, store.MemberRoleMember, time.Now().UTC()); err != nil {
			t.Fatalf("add workspace member: %v", err)
		}
	}
	return workspace
}

func (e *testEnv) seedProject(t *testing.T, workspace *models.Workspace, name string, members ...*store.AuthUser) *models.Project {
	t.Helper()
	ctx := context.Background()
	project := &models.Project{WorkspaceID: workspace.ID, Name: name}
	if err := e.st.CreateProject(ctx, project); err != nil {
		t.Fatalf("create project: %v", err)
	}
	for _, member := range members {
		if err := e.st.AddProjectMember(ctx, project.ID, member.ID, store.MemberRoleMember, time.Now().UTC()); err != nil {
			t.Fatalf("add project member: %v", err)
		}
	}
	return project
}

func (e *testEnv) savePolicy(t *testing.T, maxBytes int64, extensions ...string) {
	t.Helper()
	policy := models.FilePolicy{MaxFileSizeBytes: maxBytes, AllowedExtensions: extensions}
	if _, err := e.st.SaveFilePolicy(context.Background(), policy, time.Now().UTC()); err != nil {
		t.Fatalf("save policy: %v", err)
	}
}

func (e *testEnv) saveDefaultPolicy(t *testing.T) {
	t.Helper()
	e.savePolicy(t, 5<<20, "jpg", "jpeg", "png", "gif", "pdf", "txt")
}

// do runs a request through the full middleware chain. A non-empty token is
// sent as a bearer credential; body is JSON encoded unless it is an io.Reader.
func (e *testEnv) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case io.Reader:
		reader = b
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("encode request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) createAsset(t *testing.T, base, token string, req api.AssetCreateRequest) api.AssetCreateResponse {
	t.Helper()
	w := e.do(t, http.MethodPost, base, token, req)
	if w.Code != http.StatusOK {
		t.Fatalf("create asset: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	return decodeBody[api.AssetCreateResponse](t, w)
}

// upload stores content under the key of a presigned descriptor, standing in
// for the client's direct POST to the object store.
func (e *testEnv) upload(t *testing.T, created api.AssetCreateResponse, content []byte) {
	t.Helper()
	key := created.UploadData.Fields["key"]
	if key == "" {
		t.Fatal("upload descriptor has no key field")
	}
	if _, err := e.gateway.Put(context.Background(), key, created.UploadData.Fields["Content-Type"], bytes.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("put object: %v", err)
	}
}

func (e *testEnv) confirm(t *testing.T, base, token, assetID string) {
	t.Helper()
	w := e.do(t, http.MethodPatch, base+"/"+assetID, token, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("confirm asset: expected 204, got %d (%s)", w.Code, w.Body.String())
	}
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func requireErrorCode(t *testing.T, w *httptest.ResponseRecorder, status, code int) api.ErrorResponse {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected status %d, got %d (%s)", status, w.Code, w.Body.String())
	}
	resp := decodeBody[api.ErrorResponse](t, w)
	if resp.ErrorCode != code {
		t.Fatalf("expected error_code %d, got %d (%s)", code, resp.ErrorCode, resp.Error)
	}
	return resp
}

func workspaceAssetsPath(workspace *models.Workspace) string {
	return "/v1/workspaces/" + workspace.Slug + "/assets"
}

func projectAssetsPath(workspace *models.Workspace, project *models.Project) string {
	return "/v1/workspaces/" + workspace.Slug + "/projects/" + project.ID + "/assets"
}

const userAssetsPath = "/v1/users/me/assets"
