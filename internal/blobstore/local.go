package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalConfig configures a filesystem gateway.
type LocalConfig struct {
	Root            string
	Bucket          string
	PublicUploadURL string
	ProxyPath       string
	PresignExpiry   time.Duration
}

// LocalGateway stores objects under a local directory tree, one file per key,
// with a JSON sidecar for content type and digest. Uploads and downloads go
// through the storage proxy routes.
type LocalGateway struct {
	root string
	cfg  LocalConfig
}

type localMeta struct {
	ContentType string    `json:"content_type"`
	SHA256      string    `json:"sha256"`
	Size        int64     `json:"size"`
	ModifiedAt  time.Time `json:"modified_at"`
}

// NewLocalGateway creates the object and metadata trees under cfg.Root.
func NewLocalGateway(cfg LocalConfig) (*LocalGateway, error) {
	root := strings.TrimSpace(cfg.Root)
	if root == "" {
		return nil, fmt.Errorf("local storage root is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}
	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = DefaultPresignExpiry
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	for _, dir := range []string{"objects", "meta", "tmp"} {
		if err := os.MkdirAll(filepath.Join(abs, dir), 0o755); err != nil {
			return nil, err
		}
	}
	return &LocalGateway{root: abs, cfg: cfg}, nil
}

func (g *LocalGateway) Bucket() string {
	return g.cfg.Bucket
}

func (g *LocalGateway) PresignUpload(ctx context.Context, key, contentType string, maxBytes int64) (UploadDescriptor, error) {
	if err := ctx.Err(); err != nil {
		return UploadDescriptor{}, err
	}
	if _, err := g.objectPath(key); err != nil {
		return UploadDescriptor{}, err
	}
	return UploadDescriptor{
		URL:       strings.TrimRight(g.cfg.PublicUploadURL, "/") + "/" + url.PathEscape(g.cfg.Bucket),
		Fields:    map[string]string{"key": key, "Content-Type": contentType},
		ExpiresIn: int(g.cfg.PresignExpiry / time.Second),
	}, nil
}

func (g *LocalGateway) PresignDownload(ctx context.Context, key string, disposition Disposition, filename string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	header := ContentDisposition(disposition, filename)
	return ProxyPath(g.cfg.ProxyPath, g.cfg.Bucket, key) + "?" + url.Values{"response-content-disposition": {header}}.Encode(), nil
}

func (g *LocalGateway) Head(ctx context.Context, key string) (ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}
	meta, err := g.readMeta(key)
	if err != nil {
		return ObjectInfo{}, err
	}
	return meta.info(key), nil
}

func (g *LocalGateway) Get(ctx context.Context, key string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	meta, err := g.readMeta(key)
	if err != nil {
		return nil, err
	}
	path, err := g.objectPath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, notFound("get", key)
		}
		return nil, unavailable("get", key, err)
	}
	return &Object{ReadCloser: f, Info: meta.info(key)}, nil
}

// Put streams bytes to a temp file while hashing, then renames into place.
func (g *LocalGateway) Put(ctx context.Context, key, contentType string, r io.Reader, size int64) (ObjectInfo, error) {
	if r == nil {
		return ObjectInfo{}, fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}
	dst, err := g.objectPath(key)
	if err != nil {
		return ObjectInfo{}, err
	}

	tmp, err := os.CreateTemp(filepath.Join(g.root, "tmp"), "put-*")
	if err != nil {
		return ObjectInfo{}, unavailable("put", key, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), r)
	if err != nil {
		cleanup()
		return ObjectInfo{}, unavailable("put", key, err)
	}
	if size >= 0 && n != size {
		cleanup()
		return ObjectInfo{}, fmt.Errorf("size mismatch: expected %d bytes, got %d", size, n)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return ObjectInfo{}, unavailable("put", key, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		cleanup()
		return ObjectInfo{}, unavailable("put", key, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		cleanup()
		return ObjectInfo{}, unavailable("put", key, err)
	}

	meta := localMeta{
		ContentType: contentType,
		SHA256:      hex.EncodeToString(h.Sum(nil)),
		Size:        n,
		ModifiedAt:  time.Now().UTC(),
	}
	if err := g.writeMeta(key, meta); err != nil {
		return ObjectInfo{}, err
	}
	return meta.info(key), nil
}

// Delete removes an object and its sidecar. Missing files are ignored.
func (g *LocalGateway) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	objectPath, err := g.objectPath(key)
	if err != nil {
		return err
	}
	for _, path := range []string{objectPath, g.metaPath(objectPath)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return unavailable("delete", key, err)
		}
	}
	return nil
}

func (m localMeta) info(key string) ObjectInfo {
	return ObjectInfo{
		Key:           key,
		ContentType:   m.ContentType,
		ContentLength: m.Size,
		LastModified:  m.ModifiedAt,
		ETag:          m.SHA256,
	}
}

func (g *LocalGateway) readMeta(key string) (localMeta, error) {
	objectPath, err := g.objectPath(key)
	if err != nil {
		return localMeta{}, err
	}
	data, err := os.ReadFile(g.metaPath(objectPath))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return localMeta{}, notFound("head", key)
		}
		return localMeta{}, unavailable("head", key, err)
	}
	var meta localMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return localMeta{}, unavailable("head", key, err)
	}
	return meta, nil
}

func (g *LocalGateway) writeMeta(key string, meta localMeta) error {
	objectPath, err := g.objectPath(key)
	if err != nil {
		return err
	}
	path := g.metaPath(objectPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return unavailable("put", key, err)
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return unavailable("put", key, err)
	}
	return nil
}

func (g *LocalGateway) metaPath(objectPath string) string {
	rel, _ := filepath.Rel(filepath.Join(g.root, "objects"), objectPath)
	return filepath.Join(g.root, "meta", rel+".json")
}

func (g *LocalGateway) objectPath(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("object key is required")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("object key must be relative")
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || strings.Contains(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key")
	}
	return filepath.Join(g.root, "objects", clean), nil
}
