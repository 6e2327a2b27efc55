package server

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"assetd/internal/models"
	"assetd/internal/store"
)

const defaultOwnerCacheSize = 512

// ownerCache memoizes workspace and project lookups. Slot rebinds change the
// cached rows, so the registry invalidates them through OwnerInvalidator.
type ownerCache struct {
	owners     store.OwnerStore
	workspaces *lru.Cache[string, models.Workspace]
	projects   *lru.Cache[string, models.Project]
	group      singleflight.Group
}

func newOwnerCache(owners store.OwnerStore, size int) (*ownerCache, error) {
	if size <= 0 {
		size = defaultOwnerCacheSize
	}
	workspaces, err := lru.New[string, models.Workspace](size)
	if err != nil {
		return nil, fmt.Errorf("create workspace cache: %w", err)
	}
	projects, err := lru.New[string, models.Project](size)
	if err != nil {
		return nil, fmt.Errorf("create project cache: %w", err)
	}
	return &ownerCache{owners: owners, workspaces: workspaces, projects: projects}, nil
}

// Workspace resolves a slug or id. It returns nil when none exists.
func (c *ownerCache) Workspace(ctx context.Context, ref string) (*models.Workspace, error) {
	if cached, ok := c.workspaces.Get(ref); ok {
		return &cached, nil
	}
	value, err, _ := c.group.Do("workspace:"+ref, func() (any, error) {
		workspace, err := c.owners.GetWorkspace(ctx, ref)
		if err != nil || workspace == nil {
			return nil, err
		}
		c.workspaces.Add(workspace.ID, *workspace)
		c.workspaces.Add(workspace.Slug, *workspace)
		return *workspace, nil
	})
	if err != nil || value == nil {
		return nil, err
	}
	workspace := value.(models.Workspace)
	return &workspace, nil
}

// Project resolves a project of the workspace. It returns nil when none exists.
func (c *ownerCache) Project(ctx context.Context, workspaceID, projectID string) (*models.Project, error) {
	if cached, ok := c.projects.Get(projectID); ok {
		if cached.WorkspaceID != workspaceID {
			return nil, nil
		}
		return &cached, nil
	}
	value, err, _ := c.group.Do("project:"+workspaceID+"/"+projectID, func() (any, error) {
		project, err := c.owners.GetProject(ctx, workspaceID, projectID)
		if err != nil || project == nil {
			return nil, err
		}
		c.projects.Add(project.ID, *project)
		return *project, nil
	})
	if err != nil || value == nil {
		return nil, err
	}
	project := value.(models.Project)
	return &project, nil
}

func (c *ownerCache) InvalidateWorkspace(id string) {
	if cached, ok := c.workspaces.Peek(id); ok {
		c.workspaces.Remove(cached.Slug)
	}
	c.workspaces.Remove(id)
}

func (c *ownerCache) InvalidateProject(id string) {
	c.projects.Remove(id)
}

// InvalidateOwner drops whatever cached row an owner slot lives on.
func (c *ownerCache) InvalidateOwner(owner models.OwnerRef) {
	switch owner.Kind {
	case models.OwnerWorkspace:
		c.InvalidateWorkspace(owner.ID)
	case models.OwnerProject:
		c.InvalidateProject(owner.ID)
	}
}
