package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"assetd/internal/api"
	"assetd/internal/config"
	"assetd/internal/models"
)

type scopeFlags struct {
	workspace string
	project   string
	user      bool
}

func (f *scopeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.workspace, "workspace", "w", "", "workspace slug or id")
	cmd.Flags().StringVarP(&f.project, "project", "p", "", "project id (requires --workspace)")
	cmd.Flags().BoolVar(&f.user, "user", false, "use the calling user's own asset scope")
}

func (f *scopeFlags) scope() (api.AssetScope, error) {
	scope := api.AssetScope{
		Workspace: strings.TrimSpace(f.workspace),
		ProjectID: strings.TrimSpace(f.project),
		User:      f.user,
	}
	if scope.User && (scope.Workspace != "" || scope.ProjectID != "") {
		return scope, fmt.Errorf("--user cannot be combined with --workspace or --project")
	}
	if scope.ProjectID != "" && scope.Workspace == "" {
		return scope, fmt.Errorf("--project requires --workspace")
	}
	if _, err := scope.Path(); err != nil {
		return scope, err
	}
	return scope, nil
}

func newAssetCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "asset",
		Short: "Create, confirm and manage file assets",
	}
	cmd.AddCommand(
		newAssetCreateCmd(cfg, jsonOutput),
		newAssetConfirmCmd(cfg),
		newAssetDeleteCmd(cfg),
		newAssetRestoreCmd(cfg),
		newAssetListCmd(cfg, jsonOutput),
		newAssetGetCmd(cfg, jsonOutput),
		newAssetBindCmd(cfg),
	)
	return cmd
}

func newAssetCreateCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		scope      scopeFlags
		name       string
		mediaType  string
		size       int64
		entityType string
		entityID   string
		file       string
		noConfirm  bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Request an upload slot, optionally uploading and confirming a local file",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := scope.scope()
			if err != nil {
				return err
			}
			if strings.TrimSpace(entityType) == "" {
				return fmt.Errorf("--entity-type is required")
			}

			var content *os.File
			if file != "" {
				content, err = os.Open(file)
				if err != nil {
					return err
				}
				defer content.Close()
				info, err := content.Stat()
				if err != nil {
					return err
				}
				if name == "" {
					name = filepath.Base(file)
				}
				if !cmd.Flags().Changed("size") {
					size = info.Size()
				}
			}
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf("--name is required without --file")
			}

			return withClient(cfg, func(client *api.Client) error {
				created, err := client.CreateAsset(cmd.Context(), target, api.AssetCreateRequest{
					Name:             name,
					Type:             mediaType,
					Size:             size,
					EntityType:       strings.ToUpper(strings.TrimSpace(entityType)),
					EntityIdentifier: entityID,
				})
				if err != nil {
					return err
				}

				confirmed := false
				if content != nil {
					if err := client.UploadFile(cmd.Context(), created.UploadData, name, content); err != nil {
						return fmt.Errorf("upload %s: %w", file, err)
					}
					if !noConfirm {
						if err := client.ConfirmAsset(cmd.Context(), target, created.AssetID, api.AssetConfirmRequest{}); err != nil {
							return fmt.Errorf("confirm %s: %w", created.AssetID, err)
						}
						confirmed = true
					}
				}

				if *jsonOutput {
					return writeJSON(map[string]any{
						"asset_id":    created.AssetID,
						"asset_url":   created.AssetURL,
						"upload_data": created.UploadData,
						"confirmed":   confirmed,
					})
				}
				if confirmed {
					return writePlain("uploaded %s (%s)\n", created.AssetID, created.AssetURL)
				}
				return writePlain("created %s\nupload to: %s\n", created.AssetID, created.UploadData.URL)
			})
		},
	}

	scope.register(cmd)
	cmd.Flags().StringVar(&name, "name", "", "file name (defaults to the --file base name)")
	cmd.Flags().StringVar(&mediaType, "type", "", "declared media type (guessed from the name when empty)")
	cmd.Flags().Int64Var(&size, "size", 0, "declared size in bytes (defaults to the --file size)")
	cmd.Flags().StringVarP(&entityType, "entity-type", "e", "", "entity type, e.g. ISSUE_ATTACHMENT or PROJECT_COVER")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "identifier of the owning issue, page, comment or draft")
	cmd.Flags().StringVarP(&file, "file", "f", "", "local file to upload")
	cmd.Flags().BoolVar(&noConfirm, "no-confirm", false, "upload without confirming")
	return cmd
}

func newAssetConfirmCmd(cfg *config.Config) *cobra.Command {
	var (
		scope scopeFlags
		name  string
	)

	cmd := &cobra.Command{
		Use:   "confirm <asset-id>",
		Short: "Mark an uploaded asset as complete",
		Args:  requireExactlyArgs(1, "asset id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := scope.scope()
			if err != nil {
				return err
			}
			var req api.AssetConfirmRequest
			if name != "" {
				req.Attributes = &models.AssetAttributes{Name: name}
			}
			return withClient(cfg, func(client *api.Client) error {
				if err := client.ConfirmAsset(cmd.Context(), target, args[0], req); err != nil {
					return err
				}
				return writePlain("confirmed %s\n", args[0])
			})
		},
	}

	scope.register(cmd)
	cmd.Flags().StringVar(&name, "rename", "", "replace the stored display name")
	return cmd
}

func newAssetDeleteCmd(cfg *config.Config) *cobra.Command {
	var scope scopeFlags

	cmd := &cobra.Command{
		Use:     "delete <asset-id>",
		Aliases: []string{"rm"},
		Short:   "Soft-delete an asset",
		Args:    requireExactlyArgs(1, "asset id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := scope.scope()
			if err != nil {
				return err
			}
			return withClient(cfg, func(client *api.Client) error {
				if err := client.DeleteAsset(cmd.Context(), target, args[0]); err != nil {
					return err
				}
				return writePlain("deleted %s\n", args[0])
			})
		},
	}

	scope.register(cmd)
	return cmd
}

func newAssetRestoreCmd(cfg *config.Config) *cobra.Command {
	var scope scopeFlags

	cmd := &cobra.Command{
		Use:   "restore <asset-id>",
		Short: "Restore a soft-deleted asset",
		Args:  requireExactlyArgs(1, "asset id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := scope.scope()
			if err != nil {
				return err
			}
			return withClient(cfg, func(client *api.Client) error {
				if err := client.RestoreAsset(cmd.Context(), target, args[0]); err != nil {
					return err
				}
				return writePlain("restored %s\n", args[0])
			})
		},
	}

	scope.register(cmd)
	return cmd
}

func newAssetListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		scope          scopeFlags
		entityType     string
		entityID       string
		includePending bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assets in a scope",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := scope.scope()
			if err != nil {
				return err
			}
			query := url.Values{}
			setIfNotEmpty(query, "entity_type", strings.ToUpper(entityType))
			setIfNotEmpty(query, "entity_id", entityID)
			if includePending {
				query.Set("include_pending", "true")
			}

			return withClient(cfg, func(client *api.Client) error {
				assets, err := client.ListAssets(cmd.Context(), target, query)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(assets)
				}
				return writeAssetList(assets)
			})
		},
	}

	scope.register(cmd)
	cmd.Flags().StringVarP(&entityType, "entity-type", "e", "", "filter by entity type")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "filter by entity identifier")
	cmd.Flags().BoolVar(&includePending, "include-pending", false, "include assets that are not confirmed yet")
	return cmd
}

func newAssetGetCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		scope      scopeFlags
		attachment bool
	)

	cmd := &cobra.Command{
		Use:   "get <asset-id>",
		Short: "Print the download URL of an asset",
		Args:  requireExactlyArgs(1, "asset id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := scope.scope()
			if err != nil {
				return err
			}
			return withClient(cfg, func(client *api.Client) error {
				location, err := client.AssetLocation(cmd.Context(), target, args[0])
				if err != nil {
					return err
				}
				if attachment {
					location = withDispositionQuery(location, "attachment")
				}
				if *jsonOutput {
					return writeJSON(map[string]string{"asset_id": args[0], "url": location})
				}
				return writePlain("%s\n", location)
			})
		},
	}

	scope.register(cmd)
	cmd.Flags().BoolVar(&attachment, "download", false, "request an attachment disposition from the storage proxy")
	return cmd
}

func newAssetBindCmd(cfg *config.Config) *cobra.Command {
	var scope scopeFlags

	cmd := &cobra.Command{
		Use:   "bind <entity-id> <asset-id>...",
		Short: "Attach uploaded project assets to an entity",
		Args:  requireAtLeastArgs(2, "entity id and at least one asset id are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := scope.scope()
			if err != nil {
				return err
			}
			if target.ProjectID == "" {
				return fmt.Errorf("bind requires --workspace and --project")
			}
			ids := make([]string, 0, len(args)-1)
			for _, arg := range args[1:] {
				ids = append(ids, splitCommaList(arg)...)
			}
			return withClient(cfg, func(client *api.Client) error {
				if err := client.BulkBindAssets(cmd.Context(), target.Workspace, target.ProjectID, args[0], ids); err != nil {
					return err
				}
				return writePlain("bound %d asset(s) to %s\n", len(ids), args[0])
			})
		},
	}

	scope.register(cmd)
	return cmd
}

// withDispositionQuery switches a proxy URL to the requested disposition.
// Presigned store URLs carry a signature and are returned unchanged.
func withDispositionQuery(location, disposition string) string {
	u, err := url.Parse(location)
	if err != nil || u.Query().Get("X-Amz-Signature") != "" {
		return location
	}
	query := u.Query()
	query.Set("response-content-disposition", disposition)
	u.RawQuery = query.Encode()
	return u.String()
}
