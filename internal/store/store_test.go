package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"assetd/internal/models"
)

// testStore creates a temporary store for testing.
func testStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

type fixture struct {
	user      *AuthUser
	workspace *models.Workspace
	project   *models.Project
}

func seedFixture(t *testing.T, st *Store) fixture {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	user, err := st.CreateUser(ctx, "member", "hash", UserRoleMember, now)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	workspace := &models.Workspace{Slug: "Acme", Name: "Acme Inc"}
	if err := st.CreateWorkspace(ctx, workspace); err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	project := &models.Project{WorkspaceID: workspace.ID, Name: "Roadmap"}
	if err := st.CreateProject(ctx, project); err != nil {
		t.Fatalf("create project: %v", err)
	}
	return fixture{user: user, workspace: workspace, project: project}
}

func createTestAsset(t *testing.T, st *Store, asset models.FileAsset) *models.FileAsset {
	t.Helper()
	if asset.StorageKey == "" {
		key, err := GenerateStorageKey(asset.WorkspaceID, "file.png", nil)
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
		asset.StorageKey = key
	}
	if asset.EntityType == "" {
		asset.EntityType = models.EntityIssueAttachment
	}
	if asset.Attributes.Name == "" {
		asset.Attributes = models.AssetAttributes{Name: "file.png", Type: "image/png", Size: 10}
		asset.Size = 10
	}
	if err := st.CreateAsset(context.Background(), &asset); err != nil {
		t.Fatalf("create asset: %v", err)
	}
	return &asset
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestOpenWithoutMigrationsReportsPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.db")
	st, err := OpenWithoutMigrations(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	plan, err := st.MigrationPlan()
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan.Pending) != len(migrations) {
		t.Fatalf("expected all migrations pending, got %d", len(plan.Pending))
	}
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	plan, err = st.MigrationPlan()
	if err != nil {
		t.Fatalf("plan after migrate: %v", err)
	}
	if len(plan.Pending) != 0 {
		t.Fatalf("expected nothing pending, got %d", len(plan.Pending))
	}
}
