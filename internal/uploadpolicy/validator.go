// Package uploadpolicy enforces the instance file policy against uploads.
package uploadpolicy

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"assetd/internal/models"
)

// SniffLength is the number of leading bytes inspected for magic numbers.
const SniffLength = 1024

const genericMediaType = "application/octet-stream"

// ErrSettingsNotFound is wrapped by rejections caused by a missing policy record.
var ErrSettingsNotFound = errors.New("file upload settings not found")

// Rule names the validation step that rejected a file.
type Rule string

const (
	RuleSettings    Rule = "settings"
	RuleSize        Rule = "size"
	RuleExtension   Rule = "extension"
	RuleContentType Rule = "content_type"
)

// RejectedError is returned when a file violates the policy.
// Reason is safe to show to the caller verbatim.
type RejectedError struct {
	Rule     Rule
	Reason   string
	Detected string
	err      error
}

func (e *RejectedError) Error() string {
	if e == nil {
		return ""
	}
	return e.Reason
}

func (e *RejectedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// Metadata describes a file whose bytes the server has not seen.
type Metadata struct {
	Name         string
	DeclaredType string
	Size         int64
}

// Validator checks files against a policy supplied per call.
type Validator struct {
	mediaTypes map[string][]string
}

// New returns a validator using the built-in extension table.
func New() *Validator {
	return &Validator{mediaTypes: defaultMediaTypes}
}

// ValidateMetadata runs the size and extension rules, then checks the declared
// type against the extension table.
func (v *Validator) ValidateMetadata(policy *models.FilePolicy, meta Metadata) error {
	ext, err := v.checkPolicy(policy, meta.Name, meta.Size)
	if err != nil {
		return err
	}

	declared := NormalizeMediaType(meta.DeclaredType)
	if !v.matches(ext, declared) {
		return &RejectedError{
			Rule:     RuleContentType,
			Reason:   fmt.Sprintf("declared type %s does not match the file extension, expected: %s", orUnknown(declared), strings.Join(v.MediaTypesFor(ext), ", ")),
			Detected: declared,
		}
	}
	return nil
}

// ValidateContent runs every rule against actual bytes. Only the first
// SniffLength bytes of r are read. It returns the sniffed media type.
func (v *Validator) ValidateContent(policy *models.FilePolicy, name string, size int64, r io.Reader) (string, error) {
	if _, err := v.checkPolicy(policy, name, size); err != nil {
		return "", err
	}
	head, err := ReadHead(r)
	if err != nil {
		return "", err
	}
	return v.CheckConsistency(name, head)
}

// CheckConsistency sniffs head and requires the result to be one of the media
// types listed for the extension of name.
func (v *Validator) CheckConsistency(name string, head []byte) (string, error) {
	sniffed := Sniff(head)
	if v.matches(Extension(name), sniffed) {
		return sniffed, nil
	}
	return sniffed, &RejectedError{
		Rule:     RuleContentType,
		Reason:   fmt.Sprintf("file content does not match its extension, detected type: %s", sniffed),
		Detected: sniffed,
	}
}

// MediaTypesFor returns the accepted media types for an extension.
func (v *Validator) MediaTypesFor(ext string) []string {
	return append([]string(nil), v.mediaTypes[strings.ToLower(ext)]...)
}

// GuessMediaType returns the primary media type for name's extension, or the generic type.
func (v *Validator) GuessMediaType(name string) string {
	types := v.mediaTypes[Extension(name)]
	if len(types) == 0 {
		return genericMediaType
	}
	return types[0]
}

func (v *Validator) checkPolicy(policy *models.FilePolicy, name string, size int64) (string, error) {
	if policy == nil {
		return "", &RejectedError{Rule: RuleSettings, Reason: ErrSettingsNotFound.Error(), err: ErrSettingsNotFound}
	}

	if size > policy.MaxFileSizeBytes {
		return "", &RejectedError{
			Rule:   RuleSize,
			Reason: fmt.Sprintf("file size exceeds the allowed limit of %sMB", policy.MaxFileSizeMB()),
		}
	}

	ext := Extension(name)
	if !policy.Allows(ext) {
		return "", &RejectedError{
			Rule:   RuleExtension,
			Reason: fmt.Sprintf("file type %q is not allowed, allowed types: %s", ext, strings.Join(policy.AllowedExtensions, ", ")),
		}
	}
	return ext, nil
}

func (v *Validator) matches(ext, mediaType string) bool {
	if ext == "" || mediaType == "" {
		return false
	}
	for _, allowed := range v.mediaTypes[ext] {
		if allowed == mediaType {
			return true
		}
	}
	return false
}

// Extension returns the lowercased text after the last dot of name, or "".
func Extension(name string) string {
	name = strings.TrimSpace(name)
	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return ""
	}
	ext := name[idx+1:]
	if strings.ContainsAny(ext, `/\`) {
		return ""
	}
	return strings.ToLower(ext)
}

// Sniff detects the media type of the leading bytes of content.
func Sniff(head []byte) string {
	return NormalizeMediaType(mimetype.Detect(limitHead(head)).String())
}

// ReadHead reads up to SniffLength bytes from r.
func ReadHead(r io.Reader) ([]byte, error) {
	if r == nil {
		return nil, nil
	}
	buf := make([]byte, SniffLength)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("read file head: %w", err)
	}
	return buf[:n], nil
}

// NormalizeMediaType lowercases a media type and strips its parameters.
func NormalizeMediaType(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parsed, _, err := mime.ParseMediaType(raw)
	if err != nil {
		if idx := strings.Index(raw, ";"); idx >= 0 {
			raw = raw[:idx]
		}
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return strings.ToLower(parsed)
}

func limitHead(head []byte) []byte {
	if len(head) > SniffLength {
		return head[:SniffLength]
	}
	return head
}

func orUnknown(value string) string {
	if value == "" {
		return "(none)"
	}
	return value
}
