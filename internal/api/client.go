package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	httpTimeoutEnvKey  = "ASSETD_HTTP_TIMEOUT"
	apiTokenEnvKey     = "ASSETD_API_TOKEN"
	adminTokenEnvKey   = "ASSETD_ADMIN_TOKEN"
	adminTokenHeader   = "X-Admin-Token"
)

// Client is a simple HTTP client for the assetd API.
type Client struct {
	baseURL    string
	http       *http.Client
	authToken  string
	adminToken string
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: httpTimeoutFromEnv()},
		authToken:  strings.TrimSpace(os.Getenv(apiTokenEnvKey)),
		adminToken: strings.TrimSpace(os.Getenv(adminTokenEnvKey)),
	}
}

// WithToken returns a copy of the client that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	clone := *c
	clone.authToken = strings.TrimSpace(token)
	return &clone
}

// AssetScope selects which asset routes a call goes through.
type AssetScope struct {
	Workspace string
	ProjectID string
	User      bool
}

// Path returns the collection path of the scope.
func (s AssetScope) Path() (string, error) {
	switch {
	case s.User:
		return "/v1/users/me/assets", nil
	case s.Workspace != "" && s.ProjectID != "":
		return "/v1/workspaces/" + url.PathEscape(s.Workspace) + "/projects/" + url.PathEscape(s.ProjectID) + "/assets", nil
	case s.Workspace != "":
		return "/v1/workspaces/" + url.PathEscape(s.Workspace) + "/assets", nil
	default:
		return "", fmt.Errorf("workspace is required unless the user scope is selected")
	}
}

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

func (c *Client) Login(ctx context.Context, req AuthLoginRequest) (AuthLoginResponse, error) {
	var resp AuthLoginResponse
	err := c.do(ctx, http.MethodPost, "/v1/auth/login", nil, req, &resp)
	return resp, err
}

func (c *Client) Me(ctx context.Context) (AuthMeResponse, error) {
	var resp AuthMeResponse
	err := c.do(ctx, http.MethodGet, "/v1/auth/me", nil, nil, &resp)
	return resp, err
}

func (c *Client) GetFileSettings(ctx context.Context) (FileSettingsResponse, error) {
	var resp FileSettingsResponse
	err := c.do(ctx, http.MethodGet, "/v1/instance/file-settings", nil, nil, &resp)
	return resp, err
}

func (c *Client) UpdateFileSettings(ctx context.Context, req FileSettingsUpdateRequest) (FileSettingsResponse, error) {
	var resp FileSettingsResponse
	err := c.doAdmin(ctx, http.MethodPatch, "/v1/instance/file-settings", req, &resp)
	return resp, err
}

func (c *Client) CreateAsset(ctx context.Context, scope AssetScope, req AssetCreateRequest) (AssetCreateResponse, error) {
	var resp AssetCreateResponse
	path, err := scope.Path()
	if err != nil {
		return resp, err
	}
	err = c.do(ctx, http.MethodPost, path, nil, req, &resp)
	return resp, err
}

func (c *Client) ConfirmAsset(ctx context.Context, scope AssetScope, id string, req AssetConfirmRequest) error {
	path, err := scope.Path()
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPatch, path+"/"+url.PathEscape(id), nil, req, nil)
}

func (c *Client) DeleteAsset(ctx context.Context, scope AssetScope, id string) error {
	path, err := scope.Path()
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, path+"/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) RestoreAsset(ctx context.Context, scope AssetScope, id string) error {
	path, err := scope.Path()
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path+"/"+url.PathEscape(id)+"/restore", nil, nil, nil)
}

func (c *Client) ListAssets(ctx context.Context, scope AssetScope, query url.Values) ([]AssetResponse, error) {
	var resp []AssetResponse
	path, err := scope.Path()
	if err != nil {
		return resp, err
	}
	err = c.do(ctx, http.MethodGet, path, query, nil, &resp)
	return resp, err
}

func (c *Client) BulkBindAssets(ctx context.Context, workspace, projectID, entityID string, assetIDs []string) error {
	path, err := AssetScope{Workspace: workspace, ProjectID: projectID}.Path()
	if err != nil {
		return err
	}
	if projectID == "" {
		return fmt.Errorf("project is required for bulk binding")
	}
	return c.do(ctx, http.MethodPost, path+"/bulk/"+url.PathEscape(entityID), nil, AssetBulkBindRequest{AssetIDs: assetIDs}, nil)
}

// AssetLocation resolves an asset to its download URL without following the redirect.
func (c *Client) AssetLocation(ctx context.Context, scope AssetScope, id string) (string, error) {
	path, err := scope.Path()
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"/"+url.PathEscape(id), nil)
	if err != nil {
		return "", err
	}
	c.setAuthHeader(req)

	noFollow := *c.http
	noFollow.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	resp, err := noFollow.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", decodeError(resp)
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("api error: %s without location", resp.Status)
	}
	return c.resolve(location), nil
}

// UploadFile submits content to a presigned POST descriptor.
func (c *Client) UploadFile(ctx context.Context, data UploadData, filename string, content io.Reader) error {
	if strings.TrimSpace(data.URL) == "" {
		return errors.New("upload url is required")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range data.Fields {
		if err := writer.WriteField(key, value); err != nil {
			return err
		}
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, content); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolve(data.URL), &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if strings.HasPrefix(data.URL, "/") {
		c.setAuthHeader(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	return nil
}

func (c *Client) AdminCreateUser(ctx context.Context, req AdminUserCreateRequest) (AdminUser, error) {
	var resp AdminUser
	err := c.doAdmin(ctx, http.MethodPost, "/v1/admin/users", req, &resp)
	return resp, err
}

func (c *Client) AdminListUsers(ctx context.Context) ([]AdminUser, error) {
	var resp []AdminUser
	err := c.doAdmin(ctx, http.MethodGet, "/v1/admin/users", nil, &resp)
	return resp, err
}

func (c *Client) AdminSetUserDisabled(ctx context.Context, username string, disabled bool) (AdminUser, error) {
	var resp AdminUser
	err := c.doAdmin(ctx, http.MethodPatch, "/v1/admin/users/"+url.PathEscape(username), AdminUserSetDisabledRequest{Disabled: disabled}, &resp)
	return resp, err
}

func (c *Client) AdminDeleteUser(ctx context.Context, username string) error {
	return c.doAdmin(ctx, http.MethodDelete, "/v1/admin/users/"+url.PathEscape(username), nil, nil)
}

func (c *Client) AdminCreateWorkspace(ctx context.Context, req WorkspaceCreateRequest) (WorkspaceResponse, error) {
	var resp WorkspaceResponse
	err := c.doAdmin(ctx, http.MethodPost, "/v1/admin/workspaces", req, &resp)
	return resp, err
}

func (c *Client) AdminListWorkspaces(ctx context.Context) ([]WorkspaceResponse, error) {
	var resp []WorkspaceResponse
	err := c.doAdmin(ctx, http.MethodGet, "/v1/admin/workspaces", nil, &resp)
	return resp, err
}

func (c *Client) AdminCreateProject(ctx context.Context, workspace string, req ProjectCreateRequest) (ProjectResponse, error) {
	var resp ProjectResponse
	err := c.doAdmin(ctx, http.MethodPost, "/v1/admin/workspaces/"+url.PathEscape(workspace)+"/projects", req, &resp)
	return resp, err
}

func (c *Client) AdminAddWorkspaceMember(ctx context.Context, workspace string, req MemberAddRequest) error {
	return c.doAdmin(ctx, http.MethodPost, "/v1/admin/workspaces/"+url.PathEscape(workspace)+"/members", req, nil)
}

func (c *Client) AdminRemoveWorkspaceMember(ctx context.Context, workspace, userID string) error {
	return c.doAdmin(ctx, http.MethodDelete, "/v1/admin/workspaces/"+url.PathEscape(workspace)+"/members/"+url.PathEscape(userID), nil, nil)
}

func (c *Client) AdminAddProjectMember(ctx context.Context, workspace, projectID string, req MemberAddRequest) error {
	return c.doAdmin(ctx, http.MethodPost, "/v1/admin/workspaces/"+url.PathEscape(workspace)+"/projects/"+url.PathEscape(projectID)+"/members", req, nil)
}

func (c *Client) GetWorkspace(ctx context.Context, workspace string) (WorkspaceResponse, error) {
	var resp WorkspaceResponse
	err := c.do(ctx, http.MethodGet, "/v1/workspaces/"+url.PathEscape(workspace), nil, nil, &resp)
	return resp, err
}

func (c *Client) GetProject(ctx context.Context, workspace, projectID string) (ProjectResponse, error) {
	var resp ProjectResponse
	err := c.do(ctx, http.MethodGet, "/v1/workspaces/"+url.PathEscape(workspace)+"/projects/"+url.PathEscape(projectID), nil, nil, &resp)
	return resp, err
}

func (c *Client) doAdmin(ctx context.Context, method, path string, body any, out any) error {
	return c.request(ctx, method, path, nil, body, out, true)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	return c.request(ctx, method, path, query, body, out, false)
}

func (c *Client) request(ctx context.Context, method, path string, query url.Values, body any, out any, admin bool) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuthHeader(req)
	if admin {
		c.setAdminHeader(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) resolve(location string) string {
	if strings.HasPrefix(location, "/") {
		return c.baseURL + location
	}
	return location
}

func (c *Client) setAuthHeader(req *http.Request) {
	if c.authToken == "" || req == nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+c.authToken)
}

func (c *Client) setAdminHeader(req *http.Request) {
	if c.adminToken == "" || req == nil {
		return
	}
	req.Header.Set(adminTokenHeader, c.adminToken)
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
