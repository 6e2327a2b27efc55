package blobstore

import (
	"mime"
	"net/url"
	"path"
	"strings"
)

// Disposition is the Content-Disposition type of a download.
type Disposition string

const (
	DispositionInline     Disposition = "inline"
	DispositionAttachment Disposition = "attachment"
)

// ParseDisposition accepts a bare type or a full header value and returns the
// type plus any filename parameter. Unknown types fall back to inline.
func ParseDisposition(raw string) (Disposition, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DispositionInline, ""
	}
	kind, params, err := mime.ParseMediaType(raw)
	if err != nil {
		kind = strings.ToLower(strings.TrimSpace(strings.SplitN(raw, ";", 2)[0]))
		params = nil
	}
	disposition := DispositionInline
	if Disposition(kind) == DispositionAttachment {
		disposition = DispositionAttachment
	}
	return disposition, params["filename"]
}

// ContentDisposition renders a header value. Non-ASCII filenames are sent in
// the RFC 2231 extended form.
func ContentDisposition(disposition Disposition, filename string) string {
	if disposition != DispositionAttachment {
		disposition = DispositionInline
	}
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return string(disposition)
	}
	return mime.FormatMediaType(string(disposition), map[string]string{"filename": filename})
}

// ProxyPath builds the storage proxy path for key under base and bucket.
func ProxyPath(base, bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	base = "/" + strings.Trim(base, "/")
	return path.Join(base, url.PathEscape(bucket)) + "/" + strings.Join(segments, "/")
}
