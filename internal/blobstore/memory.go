package blobstore

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"
)

// MemoryGateway keeps objects in process memory. Used for tests and ephemeral runs.
type MemoryGateway struct {
	mu        sync.RWMutex
	bucket    string
	uploadURL string
	proxyPath string
	objects   map[string]memoryObject
	failures  map[string]error
	deletes   int
}

type memoryObject struct {
	data        []byte
	contentType string
	etag        string
	modifiedAt  time.Time
}

// NewMemoryGateway creates an empty in-memory gateway for bucket.
func NewMemoryGateway(bucket, publicUploadURL, proxyPath string) *MemoryGateway {
	return &MemoryGateway{
		bucket:    bucket,
		uploadURL: strings.TrimRight(publicUploadURL, "/"),
		proxyPath: proxyPath,
		objects:   make(map[string]memoryObject),
		failures:  make(map[string]error),
	}
}

// FailOn makes op ("presign_upload", "presign_download", "head", "get", "put",
// "delete") return a StorageError wrapping err. A nil err clears the failure.
func (g *MemoryGateway) FailOn(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.failures, op)
		return
	}
	g.failures[op] = err
}

// Has reports whether key is stored.
func (g *MemoryGateway) Has(key string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.objects[key]
	return ok
}

// Deletes counts successful Delete calls.
func (g *MemoryGateway) Deletes() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.deletes
}

func (g *MemoryGateway) Bucket() string {
	return g.bucket
}

func (g *MemoryGateway) PresignUpload(_ context.Context, key, contentType string, maxBytes int64) (UploadDescriptor, error) {
	if err := g.failure("presign_upload", key); err != nil {
		return UploadDescriptor{}, err
	}
	if maxBytes < 1 {
		return UploadDescriptor{}, fmt.Errorf("max bytes must be positive")
	}
	return UploadDescriptor{
		URL: g.uploadURL + "/" + url.PathEscape(g.bucket),
		Fields: map[string]string{
			"key":                    key,
			"Content-Type":           contentType,
			"x-content-length-range": fmt.Sprintf("1,%d", maxBytes),
		},
		ExpiresIn: int(DefaultPresignExpiry / time.Second),
	}, nil
}

func (g *MemoryGateway) PresignDownload(_ context.Context, key string, disposition Disposition, filename string) (string, error) {
	if err := g.failure("presign_download", key); err != nil {
		return "", err
	}
	header := ContentDisposition(disposition, filename)
	return ProxyPath(g.proxyPath, g.bucket, key) + "?" + url.Values{"response-content-disposition": {header}}.Encode(), nil
}

func (g *MemoryGateway) Head(_ context.Context, key string) (ObjectInfo, error) {
	if err := g.failure("head", key); err != nil {
		return ObjectInfo{}, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	obj, ok := g.objects[key]
	if !ok {
		return ObjectInfo{}, notFound("head", key)
	}
	return obj.info(key), nil
}

func (g *MemoryGateway) Get(_ context.Context, key string) (*Object, error) {
	if err := g.failure("get", key); err != nil {
		return nil, err
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	obj, ok := g.objects[key]
	if !ok {
		return nil, notFound("get", key)
	}
	return &Object{ReadCloser: io.NopCloser(bytes.NewReader(obj.data)), Info: obj.info(key)}, nil
}

func (g *MemoryGateway) Put(_ context.Context, key, contentType string, r io.Reader, size int64) (ObjectInfo, error) {
	if err := g.failure("put", key); err != nil {
		return ObjectInfo{}, err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return ObjectInfo{}, unavailable("put", key, err)
	}
	if size >= 0 && int64(len(data)) != size {
		return ObjectInfo{}, fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}
	sum := md5.Sum(data)
	obj := memoryObject{
		data:        data,
		contentType: contentType,
		etag:        hex.EncodeToString(sum[:]),
		modifiedAt:  time.Now().UTC(),
	}
	g.mu.Lock()
	g.objects[key] = obj
	g.mu.Unlock()
	return obj.info(key), nil
}

func (g *MemoryGateway) Delete(_ context.Context, key string) error {
	if err := g.failure("delete", key); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.objects, key)
	g.deletes++
	return nil
}

func (g *MemoryGateway) failure(op, key string) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if err, ok := g.failures[op]; ok {
		return unavailable(op, key, err)
	}
	return nil
}

func (o memoryObject) info(key string) ObjectInfo {
	return ObjectInfo{
		Key:           key,
		ContentType:   o.contentType,
		ContentLength: int64(len(o.data)),
		LastModified:  o.modifiedAt,
		ETag:          o.etag,
	}
}
