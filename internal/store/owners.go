package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"assetd/internal/models"
)

const (
	workspaceColumns = "id, slug, name, COALESCE(logo_asset_id, ''), created_at, updated_at"
	projectColumns   = "id, workspace_id, name, COALESCE(cover_image_asset_id, ''), created_at, updated_at"

	MemberRoleAdmin  = "admin"
	MemberRoleMember = "member"
)

// CreateWorkspace inserts a workspace. ID is generated when empty.
func (s *Store) CreateWorkspace(ctx context.Context, workspace *models.Workspace) error {
	if workspace == nil {
		return fmt.Errorf("workspace is required")
	}
	workspace.Slug = strings.ToLower(strings.TrimSpace(workspace.Slug))
	workspace.Name = strings.TrimSpace(workspace.Name)
	if workspace.Slug == "" {
		return fmt.Errorf("workspace slug is required")
	}
	if workspace.Name == "" {
		workspace.Name = workspace.Slug
	}
	if workspace.ID == "" {
		workspace.ID = uuid.NewString()
	}
	stampCreated(&workspace.CreatedAt, &workspace.UpdatedAt)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workspaces (id, slug, name, logo_asset_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, workspace.ID, workspace.Slug, workspace.Name, nullIfEmpty(workspace.LogoAssetID),
		dbFormatTime(workspace.CreatedAt), dbFormatTime(workspace.UpdatedAt))
	return err
}

// GetWorkspace returns a workspace by slug or id.
func (s *Store) GetWorkspace(ctx context.Context, ref string) (*models.Workspace, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+workspaceColumns+` FROM workspaces WHERE slug = ? OR id = ? LIMIT 1`, strings.ToLower(ref), ref)
	return scanWorkspace(row)
}

// ListWorkspaces returns every workspace sorted by slug.
func (s *Store) ListWorkspaces(ctx context.Context) ([]models.Workspace, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+workspaceColumns+` FROM workspaces ORDER BY slug ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	workspaces := []models.Workspace{}
	for rows.Next() {
		workspace, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		if workspace != nil {
			workspaces = append(workspaces, *workspace)
		}
	}
	return workspaces, rows.Err()
}

// CreateProject inserts a project under an existing workspace.
func (s *Store) CreateProject(ctx context.Context, project *models.Project) error {
	if project == nil {
		return fmt.Errorf("project is required")
	}
	project.Name = strings.TrimSpace(project.Name)
	if strings.TrimSpace(project.WorkspaceID) == "" {
		return fmt.Errorf("workspace id is required")
	}
	if project.Name == "" {
		return fmt.Errorf("project name is required")
	}
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	stampCreated(&project.CreatedAt, &project.UpdatedAt)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, workspace_id, name, cover_image_asset_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, project.ID, project.WorkspaceID, project.Name, nullIfEmpty(project.CoverImageAssetID),
		dbFormatTime(project.CreatedAt), dbFormatTime(project.UpdatedAt))
	return err
}

// GetProject returns a project only when it belongs to the workspace.
func (s *Store) GetProject(ctx context.Context, workspaceID, projectID string) (*models.Project, error) {
	if strings.TrimSpace(workspaceID) == "" || strings.TrimSpace(projectID) == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ? AND workspace_id = ?`, projectID, workspaceID)
	return scanProject(row)
}

// ListProjects returns the projects of a workspace sorted by name.
func (s *Store) ListProjects(ctx context.Context, workspaceID string) ([]models.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE workspace_id = ? ORDER BY name ASC`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	projects := []models.Project{}
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		if project != nil {
			projects = append(projects, *project)
		}
	}
	return projects, rows.Err()
}

// AddWorkspaceMember upserts a workspace membership.
func (s *Store) AddWorkspaceMember(ctx context.Context, workspaceID, userID, role string, now time.Time) error {
	role, err := normalizeMemberRole(role)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, role, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(workspace_id, user_id) DO UPDATE SET role = excluded.role
	`, workspaceID, userID, role, dbFormatTime(now))
	return err
}

// AddProjectMember upserts a project membership.
func (s *Store) AddProjectMember(ctx context.Context, projectID, userID, role string, now time.Time) error {
	role, err := normalizeMemberRole(role)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO project_members (project_id, user_id, role, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(project_id, user_id) DO UPDATE SET role = excluded.role
	`, projectID, userID, role, dbFormatTime(now))
	return err
}

// RemoveWorkspaceMember drops a workspace membership and the user's project
// memberships in that workspace.
func (s *Store) RemoveWorkspaceMember(ctx context.Context, workspaceID, userID string) (removed bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	result, err := tx.ExecContext(ctx, `DELETE FROM workspace_members WHERE workspace_id = ? AND user_id = ?`, workspaceID, userID)
	if err != nil {
		return false, err
	}
	if _, err = tx.ExecContext(ctx, `
		DELETE FROM project_members
		WHERE user_id = ?
		  AND project_id IN (SELECT id FROM projects WHERE workspace_id = ?)
	`, userID, workspaceID); err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, tx.Commit()
}

// IsWorkspaceMember reports whether the user belongs to the workspace.
func (s *Store) IsWorkspaceMember(ctx context.Context, workspaceID, userID string) (bool, error) {
	return s.exists(ctx, `SELECT 1 FROM workspace_members WHERE workspace_id = ? AND user_id = ? LIMIT 1`, workspaceID, userID)
}

// IsProjectMember reports whether the user belongs to the project.
func (s *Store) IsProjectMember(ctx context.Context, projectID, userID string) (bool, error) {
	return s.exists(ctx, `SELECT 1 FROM project_members WHERE project_id = ? AND user_id = ? LIMIT 1`, projectID, userID)
}

func (s *Store) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func scanWorkspace(scanner interface {
	Scan(dest ...any) error
}) (*models.Workspace, error) {
	var workspace models.Workspace
	var createdAt, updatedAt string
	if err := scanner.Scan(&workspace.ID, &workspace.Slug, &workspace.Name, &workspace.LogoAssetID, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	var err error
	if workspace.CreatedAt, err = dbParseTime(createdAt); err != nil {
		return nil, err
	}
	if workspace.UpdatedAt, err = dbParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &workspace, nil
}

func scanProject(scanner interface {
	Scan(dest ...any) error
}) (*models.Project, error) {
	var project models.Project
	var createdAt, updatedAt string
	if err := scanner.Scan(&project.ID, &project.WorkspaceID, &project.Name, &project.CoverImageAssetID, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	var err error
	if project.CreatedAt, err = dbParseTime(createdAt); err != nil {
		return nil, err
	}
	if project.UpdatedAt, err = dbParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &project, nil
}

func normalizeMemberRole(role string) (string, error) {
	switch role = strings.ToLower(strings.TrimSpace(role)); role {
	case "":
		return MemberRoleMember, nil
	case MemberRoleAdmin, MemberRoleMember:
		return role, nil
	default:
		return "", fmt.Errorf("invalid member role %q", role)
	}
}

func stampCreated(createdAt, updatedAt *time.Time) {
	if createdAt.IsZero() {
		*createdAt = time.Now().UTC()
	}
	if updatedAt.IsZero() {
		*updatedAt = *createdAt
	}
}
