package main

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

// requireExactlyArgs and requireAtLeastArgs report message followed by the
// command's usage line.
func requireExactlyArgs(count int, message string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != count {
			return usageError(cmd, message)
		}
		return nil
	}
}

func requireAtLeastArgs(min int, message string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < min {
			return usageError(cmd, message)
		}
		return nil
	}
}

func usageError(cmd *cobra.Command, message string) error {
	if cmd == nil {
		return fmt.Errorf("%s", message)
	}
	return fmt.Errorf("%s (usage: %s)", message, cmd.UseLine())
}

// setIfNotEmpty adds key to values unless value is blank.
func setIfNotEmpty(values url.Values, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		values.Set(key, value)
	}
}

// splitCommaList splits "a, b,,c" into [a b c].
func splitCommaList(value string) []string {
	parts := strings.Split(value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	parts = slices.DeleteFunc(parts, func(part string) bool { return part == "" })
	if len(parts) == 0 {
		return nil
	}
	return parts
}
