package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"assetd/internal/config"
)

const (
	logLevelEnvKey  = "ASSETD_LOG_LEVEL"
	logFormatEnvKey = "ASSETD_LOG_FORMAT"
)

// logSetting is one logging knob resolved from flag, env and config file in
// that order.
type logSetting struct {
	value  string
	source string
}

func resolveLogSetting(flagValue, envValue, configValue string) logSetting {
	for _, candidate := range []logSetting{
		{value: flagValue, source: "flag"},
		{value: envValue, source: "env"},
		{value: configValue, source: "config"},
	} {
		if strings.TrimSpace(candidate.value) != "" {
			candidate.value = strings.TrimSpace(candidate.value)
			return candidate
		}
	}
	return logSetting{source: "default"}
}

// describe names where an invalid value came from, for warnings.
func (s logSetting) describe(flagName, envKey, configKey string) string {
	switch s.source {
	case "flag":
		return fmt.Sprintf("--%s %q", flagName, s.value)
	case "env":
		return fmt.Sprintf("%s=%q", envKey, s.value)
	default:
		return fmt.Sprintf("%s=%q", configKey, s.value)
	}
}

// configureLoggerForCLI installs the process logger. An invalid flag is an
// error; an invalid env or config value falls back to the default and
// returns a warning for stderr.
func configureLoggerForCLI(flagLevel, flagFormat string, cfg *config.Config) (string, error) {
	var configLevel, configFormat string
	if cfg != nil {
		configLevel, configFormat = cfg.LogLevel, cfg.LogFormat
	}
	levelSetting := resolveLogSetting(flagLevel, os.Getenv(logLevelEnvKey), configLevel)
	formatSetting := resolveLogSetting(flagFormat, os.Getenv(logFormatEnvKey), configFormat)

	var warnings []string
	level, err := parseLogLevel(levelSetting.value)
	if err != nil {
		if levelSetting.source == "flag" {
			return "", fmt.Errorf("invalid %s", levelSetting.describe("log-level", logLevelEnvKey, "log_level"))
		}
		warnings = append(warnings, fmt.Sprintf("warning: invalid %s; defaulting to %s", levelSetting.describe("log-level", logLevelEnvKey, "log_level"), config.DefaultLogLevel))
		level = slog.LevelDebug
	}
	format, err := parseLogFormat(formatSetting.value)
	if err != nil {
		if formatSetting.source == "flag" {
			return "", fmt.Errorf("invalid %s", formatSetting.describe("log-format", logFormatEnvKey, "log_format"))
		}
		warnings = append(warnings, fmt.Sprintf("warning: invalid %s; defaulting to %s", formatSetting.describe("log-format", logFormatEnvKey, "log_format"), config.DefaultLogFormat))
		format = config.DefaultLogFormat
	}

	slog.SetDefault(newLogger(os.Stderr, level, format))
	return strings.Join(warnings, "\n"), nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return slog.LevelDebug, nil
	}
	if strings.EqualFold(value, "warning") {
		value = "warn"
	}
	if numeric, err := strconv.Atoi(value); err == nil {
		return slog.Level(numeric), nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelDebug, fmt.Errorf("invalid log level %q", raw)
	}
	return level, nil
}

func parseLogFormat(raw string) (string, error) {
	switch value := strings.ToLower(strings.TrimSpace(raw)); value {
	case "":
		return config.DefaultLogFormat, nil
	case "text", "json":
		return value, nil
	default:
		return "", fmt.Errorf("invalid log format %q", raw)
	}
}

func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
