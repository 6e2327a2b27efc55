package blobstore

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Download modes for PresignDownload.
const (
	DownloadModeProxy     = "proxy"
	DownloadModePresigned = "presigned"
)

// S3Config configures an S3-compatible gateway.
type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool

	// PublicUploadURL replaces the store's own endpoint in upload descriptors.
	// The bucket name is appended. Empty keeps the store's URL.
	PublicUploadURL string
	// ProxyPath is the base path of the streaming proxy used in proxy download mode.
	ProxyPath     string
	DownloadMode  string
	PresignExpiry time.Duration
	Timeout       time.Duration
}

// S3Gateway talks to S3-compatible storage through minio-go.
type S3Gateway struct {
	client *minio.Client
	cfg    S3Config
}

// NewS3Gateway builds a gateway. It does not contact the store.
func NewS3Gateway(cfg S3Config) (*S3Gateway, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("storage endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}
	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = DefaultPresignExpiry
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.DownloadMode == "" {
		cfg.DownloadMode = DownloadModeProxy
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: newTransport(cfg.Timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &S3Gateway{client: client, cfg: cfg}, nil
}

func newTransport(timeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: time.Second,
	}
}

func (g *S3Gateway) Bucket() string {
	return g.cfg.Bucket
}

// PresignUpload issues a POST policy bound to bucket, key, content type and size range.
func (g *S3Gateway) PresignUpload(ctx context.Context, key, contentType string, maxBytes int64) (UploadDescriptor, error) {
	var zero UploadDescriptor
	if maxBytes < 1 {
		return zero, fmt.Errorf("max bytes must be positive")
	}

	policy := minio.NewPostPolicy()
	if err := policy.SetBucket(g.cfg.Bucket); err != nil {
		return zero, err
	}
	if err := policy.SetKey(key); err != nil {
		return zero, err
	}
	if err := policy.SetContentType(contentType); err != nil {
		return zero, err
	}
	if err := policy.SetContentLengthRange(1, maxBytes); err != nil {
		return zero, err
	}
	if err := policy.SetExpires(time.Now().UTC().Add(g.cfg.PresignExpiry)); err != nil {
		return zero, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	u, fields, err := g.client.PresignedPostPolicy(ctx, policy)
	if err != nil {
		return zero, unavailable("presign_upload", key, err)
	}

	return UploadDescriptor{
		URL:       g.uploadURL(u),
		Fields:    fields,
		ExpiresIn: int(g.cfg.PresignExpiry / time.Second),
	}, nil
}

func (g *S3Gateway) uploadURL(native *url.URL) string {
	public := strings.TrimRight(strings.TrimSpace(g.cfg.PublicUploadURL), "/")
	if public == "" && native != nil {
		return native.String()
	}
	return public + "/" + url.PathEscape(g.cfg.Bucket)
}

// PresignDownload returns a proxy path or a presigned GET URL, per the download mode.
func (g *S3Gateway) PresignDownload(ctx context.Context, key string, disposition Disposition, filename string) (string, error) {
	header := ContentDisposition(disposition, filename)
	if g.cfg.DownloadMode != DownloadModePresigned {
		return ProxyPath(g.cfg.ProxyPath, g.cfg.Bucket, key) + "?" + url.Values{"response-content-disposition": {header}}.Encode(), nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	params := url.Values{}
	params.Set("response-content-disposition", header)
	u, err := g.client.PresignedGetObject(ctx, g.cfg.Bucket, key, g.cfg.PresignExpiry, params)
	if err != nil {
		return "", unavailable("presign_download", key, err)
	}
	return u.String(), nil
}

func (g *S3Gateway) Head(ctx context.Context, key string) (ObjectInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	info, err := g.client.StatObject(ctx, g.cfg.Bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, g.classify("head", key, err)
	}
	return objectInfo(info), nil
}

// Get opens the object body. The caller's context bounds the whole read.
func (g *S3Gateway) Get(ctx context.Context, key string) (*Object, error) {
	obj, err := g.client.GetObject(ctx, g.cfg.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, g.classify("get", key, err)
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, g.classify("get", key, err)
	}
	return &Object{ReadCloser: obj, Info: objectInfo(info)}, nil
}

func (g *S3Gateway) Put(ctx context.Context, key, contentType string, r io.Reader, size int64) (ObjectInfo, error) {
	uploaded, err := g.client.PutObject(ctx, g.cfg.Bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return ObjectInfo{}, unavailable("put", key, err)
	}
	return ObjectInfo{
		Key:           key,
		ContentType:   contentType,
		ContentLength: uploaded.Size,
		LastModified:  uploaded.LastModified,
		ETag:          uploaded.ETag,
	}, nil
}

func (g *S3Gateway) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	if err := g.client.RemoveObject(ctx, g.cfg.Bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return g.classify("delete", key, err)
	}
	return nil
}

func (g *S3Gateway) classify(op, key string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return notFound(op, key)
	}
	return unavailable(op, key, err)
}

func objectInfo(info minio.ObjectInfo) ObjectInfo {
	meta := make(map[string]string, len(info.UserMetadata))
	for k, v := range info.UserMetadata {
		meta[k] = v
	}
	return ObjectInfo{
		Key:           info.Key,
		ContentType:   info.ContentType,
		ContentLength: info.Size,
		LastModified:  info.LastModified.UTC(),
		ETag:          strings.Trim(info.ETag, `"`),
		Metadata:      meta,
	}
}
