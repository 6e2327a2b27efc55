package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"assetd/internal/api"
	"assetd/internal/format"
)

var (
	outputFormatter format.Formatter = format.JSONFormatter{}
	yamlFormatter   format.Formatter = format.YAMLFormatter{}
)

func writeJSON(payload any) error {
	return outputFormatter.Write(os.Stdout, payload)
}

func writeYAML(payload any) error {
	return yamlFormatter.Write(os.Stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writeAssetList(assets []api.AssetResponse) error {
	if len(assets) == 0 {
		return writePlain("no assets\n")
	}
	for _, asset := range assets {
		if err := writePlain("%s\n", formatAssetLine(asset)); err != nil {
			return err
		}
	}
	return nil
}

func formatAssetLine(asset api.AssetResponse) string {
	state := "pending"
	if asset.IsUploaded {
		state = "uploaded"
	}
	return fmt.Sprintf("%s [%s] [%s] %s (%d bytes)", asset.ID, asset.EntityType, state, asset.Name, asset.Size)
}

func writeAssetDetail(asset api.AssetResponse) error {
	lines := []string{
		fmt.Sprintf("id: %s", asset.ID),
		fmt.Sprintf("name: %s", asset.Name),
		fmt.Sprintf("entity_type: %s", asset.EntityType),
		fmt.Sprintf("size: %d", asset.Size),
		fmt.Sprintf("uploaded: %t", asset.IsUploaded),
		fmt.Sprintf("key: %s", asset.Asset),
		fmt.Sprintf("url: %s", asset.AssetURL),
		fmt.Sprintf("created_at: %s", formatTime(asset.CreatedAt)),
	}
	if asset.EntityID != "" {
		lines = append(lines, fmt.Sprintf("entity_identifier: %s", asset.EntityID))
	}
	if asset.ProjectID != "" {
		lines = append(lines, fmt.Sprintf("project_id: %s", asset.ProjectID))
	}
	if meta := asset.StorageMetadata; meta != nil {
		lines = append(lines,
			fmt.Sprintf("content_type: %s", meta.ContentType),
			fmt.Sprintf("content_length: %d", meta.ContentLength),
		)
	}
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func writeFileSettings(settings api.FileSettingsResponse) error {
	lines := []string{
		fmt.Sprintf("max_file_size: %d (%s MB)", settings.MaxFileSize, settings.MaxFileSizeMB),
		fmt.Sprintf("allowed_extensions: %s", strings.Join(settings.AllowedExtensions, ", ")),
		fmt.Sprintf("configured: %t", settings.Configured),
	}
	if settings.UpdatedAt != nil {
		lines = append(lines, fmt.Sprintf("updated_at: %s", formatTime(*settings.UpdatedAt)))
	}
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
