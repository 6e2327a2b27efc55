package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"assetd/internal/api"
	internalauth "assetd/internal/auth"
	"assetd/internal/config"
)

func newAdminUserCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage local users",
	}
	cmd.AddCommand(newAdminUserAddCmd(cfg, jsonOutput))
	cmd.AddCommand(newAdminUserListCmd(cfg, jsonOutput))
	cmd.AddCommand(newAdminUserSetDisabledCmd(cfg, jsonOutput, "disable", "Disable one user", true))
	cmd.AddCommand(newAdminUserSetDisabledCmd(cfg, jsonOutput, "enable", "Enable one user", false))
	cmd.AddCommand(newAdminUserDeleteCmd(cfg))
	return cmd
}

func newAdminUserAddCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		passwordStdin bool
		role          string
	)

	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create one local user",
		Args:  requireExactlyArgs(1, "username is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !passwordStdin {
				return fmt.Errorf("--password-stdin is required")
			}

			username, err := internalauth.NormalizeUsername(args[0])
			if err != nil {
				return err
			}

			normalizedRole, err := internalauth.NormalizeRole(role)
			if err != nil {
				return err
			}

			password, err := readPasswordStdin(cmd.InOrStdin())
			if err != nil {
				return err
			}
			if err := internalauth.ValidatePassword(password); err != nil {
				return err
			}

			return withClient(cfg, func(client *api.Client) error {
				created, err := client.AdminCreateUser(cmd.Context(), api.AdminUserCreateRequest{Username: username, Password: password, Role: normalizedRole})
				if err != nil {
					return err
				}

				if *jsonOutput {
					return writeJSON(created)
				}
				return writePlain("created %s user %s (%s)\n", created.Role, created.Username, created.ID)
			})
		},
	}

	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read password from stdin")
	cmd.Flags().StringVar(&role, "role", "member", "user role (admin or member)")
	return cmd
}

func newAdminUserListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List provisioned users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				users, err := client.AdminListUsers(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(map[string]any{"count": len(users), "users": users})
				}
				if len(users) == 0 {
					return writePlain("no users configured\n")
				}
				if err := writePlain("USERNAME\tROLE\tSTATUS\tID\n"); err != nil {
					return err
				}
				for _, user := range users {
					status := "enabled"
					if user.Disabled {
						status = "disabled"
					}
					if err := writePlain("%s\t%s\t%s\t%s\n", user.Username, user.Role, status, user.ID); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func newAdminUserSetDisabledCmd(cfg *config.Config, jsonOutput *bool, name, short string, disabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <username>",
		Short: short,
		Args:  requireExactlyArgs(1, "username is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			username, err := internalauth.NormalizeUsername(args[0])
			if err != nil {
				return err
			}

			return withClient(cfg, func(client *api.Client) error {
				updated, err := client.AdminSetUserDisabled(cmd.Context(), username, disabled)
				if err != nil {
					return err
				}

				if *jsonOutput {
					return writeJSON(updated)
				}

				action := "enabled"
				if disabled {
					action = "disabled"
				}
				return writePlain("%s user %s\n", action, updated.Username)
			})
		},
	}
}

func newAdminUserDeleteCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <username>",
		Aliases: []string{"rm"},
		Short:   "Delete one user",
		Args:    requireExactlyArgs(1, "username is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			username, err := internalauth.NormalizeUsername(args[0])
			if err != nil {
				return err
			}

			return withClient(cfg, func(client *api.Client) error {
				if err := client.AdminDeleteUser(cmd.Context(), username); err != nil {
					return err
				}
				return writePlain("deleted user %s\n", username)
			})
		},
	}
}

func readPasswordStdin(stdin io.Reader) (string, error) {
	passwordBytes, err := io.ReadAll(stdin)
	if err != nil {
		return "", err
	}
	password := strings.TrimSpace(string(passwordBytes))
	if password == "" {
		return "", fmt.Errorf("password is required on stdin")
	}
	return password, nil
}
