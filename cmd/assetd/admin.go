package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"assetd/internal/api"
	"assetd/internal/config"
)

func newAdminCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative commands (require ASSETD_ADMIN_TOKEN or an admin session)",
	}

	cmd.AddCommand(newAdminUserCmd(cfg, jsonOutput))
	cmd.AddCommand(newAdminWorkspaceCmd(cfg, jsonOutput))
	cmd.AddCommand(newAdminProjectCmd(cfg, jsonOutput))
	cmd.AddCommand(newAdminMemberCmd(cfg))
	return cmd
}

func newAdminWorkspaceCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "Manage workspaces",
	}

	var name string
	create := &cobra.Command{
		Use:   "create <slug>",
		Short: "Create a workspace",
		Args:  requireExactlyArgs(1, "slug is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				name = args[0]
			}
			return withClient(cfg, func(client *api.Client) error {
				workspace, err := client.AdminCreateWorkspace(cmd.Context(), api.WorkspaceCreateRequest{Slug: args[0], Name: name})
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(workspace)
				}
				return writePlain("created workspace %s (%s)\n", workspace.Slug, workspace.ID)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "display name (defaults to the slug)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List workspaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				workspaces, err := client.AdminListWorkspaces(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(workspaces)
				}
				for _, workspace := range workspaces {
					if err := writePlain("%s\t%s\t%s\n", workspace.Slug, workspace.ID, workspace.Name); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.AddCommand(create, list)
	return cmd
}

func newAdminProjectCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}

	var workspace string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project in a workspace",
		Args:  requireExactlyArgs(1, "project name is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if workspace == "" {
				return fmt.Errorf("--workspace is required")
			}
			return withClient(cfg, func(client *api.Client) error {
				project, err := client.AdminCreateProject(cmd.Context(), workspace, api.ProjectCreateRequest{Name: args[0]})
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(project)
				}
				return writePlain("created project %s (%s)\n", project.Name, project.ID)
			})
		},
	}
	create.Flags().StringVarP(&workspace, "workspace", "w", "", "workspace slug or id")

	cmd.AddCommand(create)
	return cmd
}

func newAdminMemberCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Manage workspace and project membership",
	}

	var (
		workspace string
		project   string
		role      string
	)
	add := &cobra.Command{
		Use:   "add <username>",
		Short: "Add a user to a workspace, or to a project with --project",
		Args:  requireExactlyArgs(1, "username is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if workspace == "" {
				return fmt.Errorf("--workspace is required")
			}
			req := api.MemberAddRequest{Username: args[0], Role: role}
			return withClient(cfg, func(client *api.Client) error {
				if project != "" {
					if err := client.AdminAddProjectMember(cmd.Context(), workspace, project, req); err != nil {
						return err
					}
					return writePlain("added %s to project %s\n", args[0], project)
				}
				if err := client.AdminAddWorkspaceMember(cmd.Context(), workspace, req); err != nil {
					return err
				}
				return writePlain("added %s to workspace %s\n", args[0], workspace)
			})
		},
	}
	add.Flags().StringVarP(&workspace, "workspace", "w", "", "workspace slug or id")
	add.Flags().StringVarP(&project, "project", "p", "", "project id")
	add.Flags().StringVar(&role, "role", "", "membership role (admin or member)")

	var removeWorkspace string
	remove := &cobra.Command{
		Use:   "remove <user-id>",
		Short: "Remove a user from a workspace and its projects",
		Args:  requireExactlyArgs(1, "user id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if removeWorkspace == "" {
				return fmt.Errorf("--workspace is required")
			}
			return withClient(cfg, func(client *api.Client) error {
				if err := client.AdminRemoveWorkspaceMember(cmd.Context(), removeWorkspace, args[0]); err != nil {
					return err
				}
				return writePlain("removed %s from workspace %s\n", args[0], removeWorkspace)
			})
		},
	}
	remove.Flags().StringVarP(&removeWorkspace, "workspace", "w", "", "workspace slug or id")

	cmd.AddCommand(add, remove)
	return cmd
}
