package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"assetd/internal/blobstore"
	"assetd/internal/models"
	"assetd/internal/store"
	"assetd/internal/uploadpolicy"
)

const (
	defaultStreamChunkBytes = 8 << 20
	dispositionQueryKey     = "response-content-disposition"
	maxKeyFieldBytes        = 1024
	genericContentType      = "application/octet-stream"
)

// Content types served when storage only reports a generic type.
var fallbackContentTypes = map[string]string{
	"pdf":  "application/pdf",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
}

var errUploadTooLarge = errors.New("upload exceeds the declared size")

// UploadScreener vets the head of a passthrough upload before it is stored.
type UploadScreener interface {
	ScreenUpload(ctx context.Context, asset *models.FileAsset, head []byte) error
}

// DeliveryProxy is the read path for asset bytes plus the raw upload passthrough.
type DeliveryProxy struct {
	assets   store.AssetStore
	oracle   PermissionOracle
	gateway  blobstore.Gateway
	screener UploadScreener
	chunk    int
	logger   *slog.Logger
}

func NewDeliveryProxy(assets store.AssetStore, oracle PermissionOracle, gateway blobstore.Gateway, screener UploadScreener, chunkBytes int, logger *slog.Logger) *DeliveryProxy {
	if chunkBytes <= 0 {
		chunkBytes = defaultStreamChunkBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DeliveryProxy{assets: assets, oracle: oracle, gateway: gateway, screener: screener, chunk: chunkBytes, logger: logger}
}

// RedirectURL returns where an uploaded asset's bytes can be fetched.
func (p *DeliveryProxy) RedirectURL(ctx context.Context, asset *models.FileAsset, disposition blobstore.Disposition) (string, error) {
	if asset == nil || asset.IsDeleted {
		return "", notFoundCode(fmt.Errorf("asset not found"), ErrCodeAssetNotFound)
	}
	if !asset.IsUploaded {
		return "", notFoundCode(fmt.Errorf("asset not uploaded"), ErrCodeAssetNotUploaded)
	}
	return p.gateway.PresignDownload(ctx, asset.StorageKey, disposition, asset.DisplayName())
}

// Redirect answers with 302 to the asset's download URL.
func (p *DeliveryProxy) Redirect(w http.ResponseWriter, r *http.Request, asset *models.FileAsset) error {
	disposition, _ := blobstore.ParseDisposition(r.URL.Query().Get("disposition"))
	target, err := p.RedirectURL(r.Context(), asset, disposition)
	if err != nil {
		return err
	}
	http.Redirect(w, r, target, http.StatusFound)
	return nil
}

// Stream resolves objectPath to an active uploaded asset, checks membership
// and copies the object to w in fixed-size chunks.
func (p *DeliveryProxy) Stream(w http.ResponseWriter, r *http.Request, bucket, objectPath string, principal authPrincipal) error {
	ctx := r.Context()
	if bucket != p.gateway.Bucket() {
		return notFoundCode(fmt.Errorf("bucket not found"), ErrCodeAssetNotFound)
	}
	asset, err := p.assets.FindAssetByPath(ctx, objectPath)
	if err != nil {
		return err
	}
	if asset == nil || !asset.IsUploaded {
		return notFoundCode(fmt.Errorf("asset not found"), ErrCodeAssetNotFound)
	}
	allowed, err := canReadAsset(ctx, p.oracle, asset, principal)
	if err != nil {
		return err
	}
	if !allowed {
		return forbidden(fmt.Errorf("not a member of the asset's scope"))
	}

	obj, err := p.gateway.Get(ctx, asset.StorageKey)
	if err != nil {
		return err
	}
	defer obj.Close()

	disposition, _ := blobstore.ParseDisposition(r.URL.Query().Get(dispositionQueryKey))
	header := w.Header()
	header.Set("Content-Type", deliveredContentType(obj.Info.ContentType, asset))
	header.Set("Content-Disposition", blobstore.ContentDisposition(disposition, asset.DisplayName()))
	header.Set("X-Content-Type-Options", "nosniff")
	if obj.Info.ContentLength > 0 {
		header.Set("Content-Length", strconv.FormatInt(obj.Info.ContentLength, 10))
	}
	if obj.Info.ETag != "" {
		header.Set("ETag", `"`+obj.Info.ETag+`"`)
	}

	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		p.logger.Debug("clear write deadline failed", "error", err)
	}
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return nil
	}

	written, err := p.copyChunks(ctx, w, rc, obj, obj.Info.ContentLength)
	if err != nil {
		// Headers are out; the client sees a truncated body.
		p.logger.Debug("stream interrupted", "key", asset.StorageKey, "written", written, "error", err)
	}
	return nil
}

func (p *DeliveryProxy) copyChunks(ctx context.Context, w io.Writer, rc *http.ResponseController, src io.Reader, size int64) (int64, error) {
	bufSize := p.chunk
	if size > 0 && size < int64(bufSize) {
		bufSize = int(size)
	}
	buf := make([]byte, bufSize)

	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, readErr := io.ReadFull(src, buf)
		if n > 0 {
			m, err := w.Write(buf[:n])
			written += int64(m)
			if err != nil {
				return written, err
			}
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return written, err
			}
		}
		switch {
		case readErr == nil:
		case errors.Is(readErr, io.EOF), errors.Is(readErr, io.ErrUnexpectedEOF):
			return written, nil
		default:
			return written, readErr
		}
	}
}

func deliveredContentType(stored string, asset *models.FileAsset) string {
	normalized := uploadpolicy.NormalizeMediaType(stored)
	if normalized != "" && normalized != genericContentType {
		return stored
	}
	if fallback, ok := fallbackContentTypes[uploadpolicy.Extension(asset.FileName())]; ok {
		return fallback
	}
	return genericContentType
}

// Upload stores a multipart "file" part under the key of a pending asset.
// The key comes from the query or from a "key" field sent before the file.
func (p *DeliveryProxy) Upload(r *http.Request, bucket string, principal authPrincipal) (*models.FileAsset, error) {
	ctx := r.Context()
	if bucket != p.gateway.Bucket() {
		return nil, notFoundCode(fmt.Errorf("bucket not found"), ErrCodeAssetNotFound)
	}
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, badRequest(fmt.Errorf("multipart body required: %w", err))
	}

	key := strings.TrimSpace(r.URL.Query().Get("key"))
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, badRequestCode(fmt.Errorf("file is required"), ErrCodeMissingRequired)
		}
		if err != nil {
			return nil, badRequest(fmt.Errorf("read multipart body: %w", err))
		}

		switch part.FormName() {
		case "key":
			if key == "" {
				value, err := io.ReadAll(io.LimitReader(part, maxKeyFieldBytes))
				if err != nil {
					return nil, badRequest(fmt.Errorf("read key field: %w", err))
				}
				key = strings.TrimSpace(string(value))
			}
		case "file":
			if key == "" {
				return nil, badRequestCode(fmt.Errorf("key is required"), ErrCodeMissingRequired)
			}
			return p.storePart(ctx, key, part, principal)
		}
		_ = part.Close()
	}
}

func (p *DeliveryProxy) storePart(ctx context.Context, key string, part *multipart.Part, principal authPrincipal) (*models.FileAsset, error) {
	defer part.Close()

	asset, err := p.assets.GetAssetByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, notFoundCode(fmt.Errorf("asset not found"), ErrCodeAssetNotFound)
	}
	allowed, err := canReadAsset(ctx, p.oracle, asset, principal)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, forbidden(fmt.Errorf("not a member of the asset's scope"))
	}
	if asset.IsUploaded {
		return nil, conflict(fmt.Errorf("asset already uploaded"))
	}

	body := bufio.NewReader(part)
	head, err := body.Peek(uploadpolicy.SniffLength)
	if len(head) == 0 && errors.Is(err, io.EOF) {
		return nil, badRequest(fmt.Errorf("file is empty"))
	}
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, badRequest(fmt.Errorf("read file: %w", err))
	}
	if p.screener != nil {
		if err := p.screener.ScreenUpload(ctx, asset, head); err != nil {
			return nil, err
		}
	}
	limited := &sizeLimitReader{r: body, remaining: asset.Size}
	contentType := asset.Attributes.Type
	if contentType == "" {
		contentType = genericContentType
	}
	if _, err := p.gateway.Put(ctx, asset.StorageKey, contentType, limited, -1); err != nil {
		if limited.exceeded {
			return nil, badRequestCode(errUploadTooLarge, ErrCodeRequestTooLarge)
		}
		return nil, err
	}
	return asset, nil
}

// sizeLimitReader fails once more than remaining bytes are read.
type sizeLimitReader struct {
	r         io.Reader
	remaining int64
	exceeded  bool
}

func (l *sizeLimitReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		l.exceeded = true
		return 0, errUploadTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		l.exceeded = true
		return n, errUploadTooLarge
	}
	return n, err
}
