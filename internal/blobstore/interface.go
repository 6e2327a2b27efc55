// Package blobstore is the gateway to object storage for file assets.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	DefaultPresignExpiry = time.Hour
	DefaultTimeout       = 5 * time.Second
)

var (
	// ErrNotFound reports a missing object.
	ErrNotFound = errors.New("object not found")
	// ErrUnavailable is matched by every transport, auth or backend failure.
	ErrUnavailable = errors.New("storage unavailable")
)

// StorageError wraps a backend failure with the operation and object key.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e == nil {
		return ""
	}
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is makes every StorageError match ErrUnavailable.
func (e *StorageError) Is(target error) bool {
	return target == ErrUnavailable
}

func unavailable(op, key string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Key: key, Err: err}
}

func notFound(op, key string) error {
	return fmt.Errorf("storage %s %q: %w", op, key, ErrNotFound)
}

// UploadDescriptor is what a client needs to POST a file straight to storage.
type UploadDescriptor struct {
	URL       string            `json:"url"`
	Fields    map[string]string `json:"fields"`
	ExpiresIn int               `json:"expires_in"`
}

// ObjectInfo is the stored metadata of one object.
type ObjectInfo struct {
	Key           string            `json:"key"`
	ContentType   string            `json:"content_type"`
	ContentLength int64             `json:"content_length"`
	LastModified  time.Time         `json:"last_modified"`
	ETag          string            `json:"etag"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Object is an open object body. Callers must Close it.
type Object struct {
	io.ReadCloser
	Info ObjectInfo
}

// Gateway is the object-storage boundary.
type Gateway interface {
	Bucket() string
	PresignUpload(ctx context.Context, key, contentType string, maxBytes int64) (UploadDescriptor, error)
	PresignDownload(ctx context.Context, key string, disposition Disposition, filename string) (string, error)
	Head(ctx context.Context, key string) (ObjectInfo, error)
	Get(ctx context.Context, key string) (*Object, error)
	Put(ctx context.Context, key, contentType string, r io.Reader, size int64) (ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}
