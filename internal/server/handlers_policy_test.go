package server

import (
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"assetd/internal/api"
	"assetd/internal/models"
	"assetd/internal/store"
)

func TestFileSettingsDefaultsAndUpdate(t *testing.T) {
	env := newTestEnv(t)
	_, memberToken := env.seedUser(t, "alice", store.UserRoleMember)

	getW := env.do(t, http.MethodGet, "/v1/instance/file-settings", memberToken, nil)
	if getW.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", getW.Code, getW.Body.String())
	}
	defaults := decodeBody[api.FileSettingsResponse](t, getW)
	if defaults.Configured {
		t.Fatal("expected unconfigured settings before any update")
	}
	if defaults.MaxFileSize != models.DefaultMaxFileSizeBytes || defaults.MaxFileSizeMB != "5" {
		t.Fatalf("unexpected default size %d (%s MB)", defaults.MaxFileSize, defaults.MaxFileSizeMB)
	}

	// Asset creation is refused until settings exist.
	alice, err := env.st.GetUserByUsername(t.Context(), "alice")
	if err != nil || alice == nil {
		t.Fatalf("lookup alice: %v", err)
	}
	ws := env.seedWorkspace(t, "acme", alice)
	requireErrorCode(t,
		env.do(t, http.MethodPost, workspaceAssetsPath(ws), memberToken, api.AssetCreateRequest{Name: "a.png", Type: "image/png", Size: 10, EntityType: "ISSUE_DESCRIPTION"}),
		http.StatusBadRequest, ErrCodeSettingsNotFound)

	requireErrorCode(t,
		env.do(t, http.MethodPatch, "/v1/instance/file-settings", memberToken, api.FileSettingsUpdateRequest{AllowedExtensions: []string{"png"}}),
		http.StatusForbidden, ErrCodeForbidden)

	size := int64(2 << 20)
	patchW := env.do(t, http.MethodPatch, "/v1/instance/file-settings", testAdminToken, api.FileSettingsUpdateRequest{
		MaxFileSize:       &size,
		AllowedExtensions: []string{".PNG", "png", " Jpg "},
	})
	if patchW.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", patchW.Code, patchW.Body.String())
	}
	updated := decodeBody[api.FileSettingsResponse](t, patchW)
	if !updated.Configured || updated.UpdatedAt == nil {
		t.Fatalf("expected configured settings, got %+v", updated)
	}
	if updated.MaxFileSize != size || updated.MaxFileSizeMB != "2" {
		t.Fatalf("unexpected size %d (%s MB)", updated.MaxFileSize, updated.MaxFileSizeMB)
	}
	if !reflect.DeepEqual(updated.AllowedExtensions, []string{"png", "jpg"}) {
		t.Fatalf("unexpected extensions %v", updated.AllowedExtensions)
	}

	// A partial update keeps the stored extensions.
	bigger := int64(3 << 20)
	partial := decodeBody[api.FileSettingsResponse](t, env.do(t, http.MethodPatch, "/v1/instance/file-settings", testAdminToken, api.FileSettingsUpdateRequest{MaxFileSize: &bigger}))
	if partial.MaxFileSize != bigger || !reflect.DeepEqual(partial.AllowedExtensions, []string{"png", "jpg"}) {
		t.Fatalf("unexpected partial update %+v", partial)
	}

	if w := env.do(t, http.MethodPost, workspaceAssetsPath(ws), memberToken, api.AssetCreateRequest{Name: "a.png", Type: "image/png", Size: 10, EntityType: "ISSUE_DESCRIPTION"}); w.Code != http.StatusOK {
		t.Fatalf("expected create to succeed once configured, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestFileSettingsRejectsInvalidPolicy(t *testing.T) {
	env := newTestEnv(t)
	cases := map[string]string{
		"zero size":        `{"max_file_size":0}`,
		"size over cap":    `{"max_file_size":` + strconv.FormatInt(models.MaxPolicyFileSizeBytes+1, 10) + `}`,
		"empty extensions": `{"allowed_extensions":[]}`,
		"bad extension":    `{"allowed_extensions":["p/ng"]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := env.do(t, http.MethodPatch, "/v1/instance/file-settings", testAdminToken, strings.NewReader(body))
			requireErrorCode(t, w, http.StatusBadRequest, ErrCodeInvalidPolicy)
		})
	}

	settings := decodeBody[api.FileSettingsResponse](t, env.do(t, http.MethodGet, "/v1/instance/file-settings", testAdminToken, nil))
	if settings.Configured {
		t.Fatal("rejected updates must not persist a policy")
	}
}
