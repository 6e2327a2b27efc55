package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"assetd/internal/api"
	internalauth "assetd/internal/auth"
	"assetd/internal/config"
)

func newLoginCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "Open a session and print its bearer token for ASSETD_API_TOKEN",
		Args:  requireExactlyArgs(1, "username is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !passwordStdin {
				return fmt.Errorf("--password-stdin is required")
			}
			username, err := internalauth.NormalizeUsername(args[0])
			if err != nil {
				return err
			}
			password, err := readPasswordStdin(cmd.InOrStdin())
			if err != nil {
				return err
			}

			return withClient(cfg, func(client *api.Client) error {
				resp, err := client.Login(cmd.Context(), api.AuthLoginRequest{Username: username, Password: password})
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("%s\n", resp.Token)
			})
		},
	}

	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read password from stdin")
	return cmd
}

func newWhoamiCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the identity the configured credentials resolve to",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				me, err := client.Me(cmd.Context())
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(me)
				}
				if !me.Authenticated {
					return writePlain("not authenticated\n")
				}
				return writePlain("%s (%s via %s)\n", me.Username, me.Role, me.AuthType)
			})
		},
	}
}
