package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"assetd/internal/api"
	"assetd/internal/config"
	"assetd/internal/models"
)

// policyDocument is the file form accepted by "policy apply".
type policyDocument struct {
	MaxFileSize       *int64   `yaml:"max_file_size"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

func newPolicyCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Show or change the instance file upload policy",
	}
	cmd.AddCommand(newPolicyShowCmd(cfg, jsonOutput))
	cmd.AddCommand(newPolicyApplyCmd(cfg, jsonOutput))
	return cmd
}

func newPolicyShowCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current file policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				settings, err := client.GetFileSettings(cmd.Context())
				if err != nil {
					return err
				}
				switch {
				case *jsonOutput:
					return writeJSON(settings)
				case asYAML:
					size := settings.MaxFileSize
					return writeYAML(policyDocument{MaxFileSize: &size, AllowedExtensions: settings.AllowedExtensions})
				}
				return writeFileSettings(settings)
			})
		},
	}

	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print the policy as an applyable YAML document")
	return cmd
}

func newPolicyApplyCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var (
		file       string
		maxSize    int64
		extensions string
	)

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Update the file policy from a YAML document or flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := policyUpdateFromInputs(cmd, file, maxSize, extensions)
			if err != nil {
				return err
			}

			return withClient(cfg, func(client *api.Client) error {
				settings, err := client.UpdateFileSettings(cmd.Context(), req)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(settings)
				}
				return writeFileSettings(settings)
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML policy document, or - for stdin")
	cmd.Flags().Int64Var(&maxSize, "max-size", 0, "maximum file size in bytes")
	cmd.Flags().StringVar(&extensions, "extensions", "", "comma-separated allowed extensions")
	return cmd
}

// policyUpdateFromInputs merges a policy document with flag overrides and
// validates the result locally before it is sent.
func policyUpdateFromInputs(cmd *cobra.Command, file string, maxSize int64, extensions string) (api.FileSettingsUpdateRequest, error) {
	var req api.FileSettingsUpdateRequest
	if file != "" {
		doc, err := readPolicyDocument(cmd.InOrStdin(), file)
		if err != nil {
			return req, err
		}
		req.MaxFileSize = doc.MaxFileSize
		req.AllowedExtensions = doc.AllowedExtensions
	}
	if cmd.Flags().Changed("max-size") {
		req.MaxFileSize = &maxSize
	}
	if cmd.Flags().Changed("extensions") {
		req.AllowedExtensions = splitCommaList(extensions)
	}
	if req.MaxFileSize == nil && req.AllowedExtensions == nil {
		return req, fmt.Errorf("nothing to apply: pass --file, --max-size or --extensions")
	}

	check := models.DefaultFilePolicy()
	if req.MaxFileSize != nil {
		check.MaxFileSizeBytes = *req.MaxFileSize
	}
	if req.AllowedExtensions != nil {
		check.AllowedExtensions = req.AllowedExtensions
	}
	if _, err := check.Normalize(); err != nil {
		return req, err
	}
	return req, nil
}

func readPolicyDocument(stdin io.Reader, file string) (policyDocument, error) {
	var doc policyDocument
	var reader io.Reader
	if file == "-" {
		reader = stdin
	} else {
		f, err := os.Open(file)
		if err != nil {
			return doc, err
		}
		defer f.Close()
		reader = f
	}

	dec := yaml.NewDecoder(reader)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return doc, fmt.Errorf("policy document %s is empty", file)
		}
		return doc, fmt.Errorf("parse policy document: %w", err)
	}
	for i, ext := range doc.AllowedExtensions {
		doc.AllowedExtensions[i] = strings.TrimSpace(ext)
	}
	return doc, nil
}
