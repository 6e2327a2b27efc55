package main

import (
	"context"
	"errors"
	"net"
	"slices"

	"assetd/internal/api"
)

// Hints keyed by the string code of an API error.
var codeHints = map[string]string{
	"unauthorized":        "hint: log in with 'assetd login' and export ASSETD_API_TOKEN, or set ASSETD_ADMIN_TOKEN for admin commands.",
	"forbidden":           "hint: you are not a member of this workspace or project; ask an admin to run 'assetd admin member add'.",
	"resource_exhausted":  "hint: too many failed logins; wait for the block to expire before retrying.",
	"storage_unavailable": "hint: the object store is unreachable; check the [storage] endpoint and credentials.",
}

// Hints keyed by numeric error_code.
var errorCodeHints = map[int]string{
	1002: "hint: the file is larger than the size declared when the upload slot was created.",
	1020: "hint: run 'assetd policy show' to see the allowed extensions and size limit.",
	1021: "hint: no file policy is configured; an admin can set one with 'assetd policy apply'.",
	2003: "hint: the upload was never confirmed; run 'assetd asset confirm <id>'.",
}

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}
	lines := []string{err.Error()}

	var apiErr *api.APIError
	switch {
	case errors.As(err, &apiErr):
		if apiErr.Code == "" {
			lines = append(lines, "hint: verify ASSETD_API_URL points to an assetd server.")
		}
		if hint, ok := codeHints[apiErr.Code]; ok {
			lines = append(lines, hint)
		}
		if hint, ok := errorCodeHints[apiErr.ErrorCode]; ok {
			lines = append(lines, hint)
		}
		if apiErr.Status >= 500 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
	case errors.Is(err, context.DeadlineExceeded):
		lines = append(lines, "hint: request timed out; check server health or increase ASSETD_HTTP_TIMEOUT.")
	default:
		var netErr net.Error
		if errors.As(err, &netErr) {
			lines = append(lines,
				"hint: ensure an assetd server is running at ASSETD_API_URL.",
				"hint: start local server manually with: assetd srv",
				"hint: you can increase ASSETD_HTTP_TIMEOUT for slower environments.",
			)
		}
	}
	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line != "" && !slices.Contains(out, line) {
			out = append(out, line)
		}
	}
	return out
}
