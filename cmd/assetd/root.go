package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"assetd/internal/config"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var (
		jsonOutput bool
		logLevel   string
		logFormat  string
	)

	cmd := &cobra.Command{
		Use:           "assetd",
		Short:         "assetd stores, validates and serves file assets for workspaces, projects and users",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			warning, err := configureLoggerForCLI(logLevel, logFormat, cfg)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newMigrateCmd(cfg, &jsonOutput),
		newConfigCmd(cfg, &jsonOutput),
		newPolicyCmd(cfg, &jsonOutput),
		newAssetCmd(cfg, &jsonOutput),
		newAdminCmd(cfg, &jsonOutput),
		newLoginCmd(cfg, &jsonOutput),
		newWhoamiCmd(cfg, &jsonOutput),
	)

	return cmd
}
