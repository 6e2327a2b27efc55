package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	bytesPerMB = 1024 * 1024

	DefaultMaxFileSizeBytes int64 = 5 * bytesPerMB
	MaxPolicyFileSizeBytes  int64 = 5000 * bytesPerMB
	MaxAllowedExtensions          = 50
)

var extensionPattern = regexp.MustCompile(`^[a-zA-Z0-9]{1,10}$`)

// DefaultAllowedExtensions is reported when no policy has been stored yet.
var DefaultAllowedExtensions = []string{"jpg", "jpeg", "png", "gif", "pdf"}

// FilePolicy is the instance-wide upload policy.
type FilePolicy struct {
	MaxFileSizeBytes  int64     `json:"max_file_size" yaml:"max_file_size"`
	AllowedExtensions []string  `json:"allowed_extensions" yaml:"allowed_extensions"`
	UpdatedAt         time.Time `json:"updated_at,omitempty" yaml:"-"`
}

// DefaultFilePolicy returns the policy shown for unconfigured instances.
func DefaultFilePolicy() FilePolicy {
	return FilePolicy{
		MaxFileSizeBytes:  DefaultMaxFileSizeBytes,
		AllowedExtensions: append([]string(nil), DefaultAllowedExtensions...),
	}
}

// Normalize lowercases and de-duplicates extensions and validates limits.
func (p FilePolicy) Normalize() (FilePolicy, error) {
	if p.MaxFileSizeBytes <= 0 {
		return FilePolicy{}, fmt.Errorf("max_file_size must be greater than 0")
	}
	if p.MaxFileSizeBytes > MaxPolicyFileSizeBytes {
		return FilePolicy{}, fmt.Errorf("max_file_size cannot exceed %d MB", MaxPolicyFileSizeBytes/bytesPerMB)
	}
	if len(p.AllowedExtensions) == 0 {
		return FilePolicy{}, fmt.Errorf("allowed_extensions must not be empty")
	}
	if len(p.AllowedExtensions) > MaxAllowedExtensions {
		return FilePolicy{}, fmt.Errorf("allowed_extensions cannot have more than %d entries", MaxAllowedExtensions)
	}

	seen := make(map[string]struct{}, len(p.AllowedExtensions))
	out := make([]string, 0, len(p.AllowedExtensions))
	for _, raw := range p.AllowedExtensions {
		ext := strings.TrimPrefix(strings.TrimSpace(raw), ".")
		if !extensionPattern.MatchString(ext) {
			return FilePolicy{}, fmt.Errorf("invalid extension %q: must be 1-10 alphanumeric characters", raw)
		}
		ext = strings.ToLower(ext)
		if _, ok := seen[ext]; ok {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}

	p.AllowedExtensions = out
	return p, nil
}

// Allows reports whether ext (already lowercased) is permitted.
func (p FilePolicy) Allows(ext string) bool {
	if ext == "" {
		return false
	}
	for _, allowed := range p.AllowedExtensions {
		if allowed == ext {
			return true
		}
	}
	return false
}

// MaxFileSizeMB renders the size limit in megabytes without trailing zeros.
func (p FilePolicy) MaxFileSizeMB() string {
	return strconv.FormatFloat(float64(p.MaxFileSizeBytes)/bytesPerMB, 'f', -1, 64)
}
