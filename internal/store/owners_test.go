package store

import (
	"context"
	"testing"
	"time"

	"assetd/internal/models"
)

func TestWorkspaceAndProjectLookup(t *testing.T) {
	st := testStore(t)
	fx := seedFixture(t, st)
	ctx := context.Background()

	if fx.workspace.Slug != "acme" {
		t.Fatalf("expected normalized slug, got %q", fx.workspace.Slug)
	}
	bySlug, err := st.GetWorkspace(ctx, "ACME")
	if err != nil || bySlug == nil || bySlug.ID != fx.workspace.ID {
		t.Fatalf("expected lookup by slug, got %+v, %v", bySlug, err)
	}
	byID, err := st.GetWorkspace(ctx, fx.workspace.ID)
	if err != nil || byID == nil || byID.Slug != "acme" {
		t.Fatalf("expected lookup by id, got %+v, %v", byID, err)
	}

	project, err := st.GetProject(ctx, fx.workspace.ID, fx.project.ID)
	if err != nil || project == nil || project.Name != "Roadmap" {
		t.Fatalf("expected project, got %+v, %v", project, err)
	}
	other, err := st.GetProject(ctx, "other-workspace", fx.project.ID)
	if err != nil || other != nil {
		t.Fatalf("expected project hidden outside its workspace, got %+v, %v", other, err)
	}

	projects, err := st.ListProjects(ctx, fx.workspace.ID)
	if err != nil || len(projects) != 1 {
		t.Fatalf("expected 1 project, got %d, %v", len(projects), err)
	}
	workspaces, err := st.ListWorkspaces(ctx)
	if err != nil || len(workspaces) != 1 {
		t.Fatalf("expected 1 workspace, got %d, %v", len(workspaces), err)
	}

	if err := st.CreateWorkspace(ctx, &models.Workspace{Slug: "acme"}); err == nil {
		t.Fatal("expected duplicate slug to fail")
	}
	if err := st.CreateProject(ctx, &models.Project{WorkspaceID: "missing", Name: "x"}); err == nil {
		t.Fatal("expected project in missing workspace to fail")
	}
}

func TestMembership(t *testing.T) {
	st := testStore(t)
	fx := seedFixture(t, st)
	ctx := context.Background()
	now := time.Now().UTC()

	member, err := st.IsWorkspaceMember(ctx, fx.workspace.ID, fx.user.ID)
	if err != nil || member {
		t.Fatalf("expected non-member, got %v, %v", member, err)
	}

	if err := st.AddWorkspaceMember(ctx, fx.workspace.ID, fx.user.ID, "", now); err != nil {
		t.Fatalf("add workspace member: %v", err)
	}
	if err := st.AddWorkspaceMember(ctx, fx.workspace.ID, fx.user.ID, MemberRoleAdmin, now); err != nil {
		t.Fatalf("upsert workspace member: %v", err)
	}
	if err := st.AddProjectMember(ctx, fx.project.ID, fx.user.ID, MemberRoleMember, now); err != nil {
		t.Fatalf("add project member: %v", err)
	}
	if err := st.AddProjectMember(ctx, fx.project.ID, fx.user.ID, "owner", now); err == nil {
		t.Fatal("expected invalid role to fail")
	}

	member, err = st.IsWorkspaceMember(ctx, fx.workspace.ID, fx.user.ID)
	if err != nil || !member {
		t.Fatalf("expected workspace member, got %v, %v", member, err)
	}
	member, err = st.IsProjectMember(ctx, fx.project.ID, fx.user.ID)
	if err != nil || !member {
		t.Fatalf("expected project member, got %v, %v", member, err)
	}

	removed, err := st.RemoveWorkspaceMember(ctx, fx.workspace.ID, fx.user.ID)
	if err != nil || !removed {
		t.Fatalf("expected removal, got %v, %v", removed, err)
	}
	member, err = st.IsProjectMember(ctx, fx.project.ID, fx.user.ID)
	if err != nil || member {
		t.Fatalf("expected project membership removed with workspace, got %v, %v", member, err)
	}
}

func TestFilePolicyRoundTrip(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	policy, err := st.GetFilePolicy(ctx)
	if err != nil || policy != nil {
		t.Fatalf("expected no policy, got %+v, %v", policy, err)
	}

	now := time.Now().UTC().Truncate(time.Second)
	saved, err := st.SaveFilePolicy(ctx, models.FilePolicy{MaxFileSizeBytes: 1024, AllowedExtensions: []string{"png", "pdf"}}, now)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !saved.UpdatedAt.Equal(now) {
		t.Fatalf("expected updated_at %v, got %v", now, saved.UpdatedAt)
	}
	if _, err := st.SaveFilePolicy(ctx, models.FilePolicy{MaxFileSizeBytes: 2048, AllowedExtensions: []string{"txt"}}, now.Add(time.Minute)); err != nil {
		t.Fatalf("replace: %v", err)
	}

	policy, err = st.GetFilePolicy(ctx)
	if err != nil || policy == nil {
		t.Fatalf("expected policy, got %+v, %v", policy, err)
	}
	if policy.MaxFileSizeBytes != 2048 || len(policy.AllowedExtensions) != 1 || policy.AllowedExtensions[0] != "txt" {
		t.Fatalf("unexpected policy %+v", policy)
	}
}

func TestAssetActivities(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	for _, verb := range []string{"created", "uploaded", "deleted"} {
		activity := &models.AssetActivity{AssetID: "a1", EntityType: models.EntityIssueAttachment, Owner: models.IssueOwner("i1"), Verb: verb, ActorID: "u1"}
		if err := st.CreateAssetActivity(ctx, activity); err != nil {
			t.Fatalf("create activity: %v", err)
		}
		if activity.ID == 0 {
			t.Fatal("expected activity id")
		}
	}

	activities, err := st.ListAssetActivities(ctx, "a1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(activities) != 3 || activities[0].Verb != "created" || activities[2].Verb != "deleted" {
		t.Fatalf("unexpected activities %+v", activities)
	}
	if activities[1].Owner != models.IssueOwner("i1") || activities[1].ActorID != "u1" {
		t.Fatalf("unexpected owner or actor %+v", activities[1])
	}
}
