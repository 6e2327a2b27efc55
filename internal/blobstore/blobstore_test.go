package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageErrorMatchesUnavailable(t *testing.T) {
	err := unavailable("head", "ws/a.png", errors.New("connection refused"))
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), `storage head "ws/a.png"`)

	missing := notFound("get", "ws/a.png")
	assert.True(t, errors.Is(missing, ErrNotFound))
	assert.False(t, errors.Is(missing, ErrUnavailable))
}

func TestContentDisposition(t *testing.T) {
	assert.Equal(t, "inline", ContentDisposition(DispositionInline, ""))
	assert.Equal(t, "attachment; filename=\"report final.pdf\"", ContentDisposition(DispositionAttachment, "report final.pdf"))
	assert.Equal(t, "inline; filename*=utf-8''r%C3%A9sum%C3%A9.pdf", ContentDisposition("bogus", "résumé.pdf"))
	assert.Equal(t, "attachment; filename*=utf-8''a%0D%0Ab.pdf", ContentDisposition(DispositionAttachment, "a\r\nb.pdf"))
}

func TestParseDisposition(t *testing.T) {
	kind, name := ParseDisposition("")
	assert.Equal(t, DispositionInline, kind)
	assert.Empty(t, name)

	kind, name = ParseDisposition("attachment")
	assert.Equal(t, DispositionAttachment, kind)
	assert.Empty(t, name)

	kind, name = ParseDisposition(ContentDisposition(DispositionAttachment, "résumé.pdf"))
	assert.Equal(t, DispositionAttachment, kind)
	assert.Equal(t, "résumé.pdf", name)

	kind, _ = ParseDisposition("evil\r\nX-Injected: 1")
	assert.Equal(t, DispositionInline, kind)
}

func TestProxyPathEscapesSegments(t *testing.T) {
	assert.Equal(t, "/storage/uploads/ws1/abc-my%20file.png", ProxyPath("/storage", "uploads", "ws1/abc-my file.png"))
	assert.Equal(t, "/uploads/abc.png", ProxyPath("", "uploads", "abc.png"))
}

func TestMemoryGatewayRoundTrip(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGateway("uploads", "", "/storage")

	desc, err := g.PresignUpload(ctx, "ws1/abc-a.png", "image/png", 1024)
	require.NoError(t, err)
	assert.Equal(t, "/uploads", desc.URL)
	assert.Equal(t, "ws1/abc-a.png", desc.Fields["key"])
	assert.Equal(t, "image/png", desc.Fields["Content-Type"])
	assert.Equal(t, 3600, desc.ExpiresIn)

	_, err = g.Head(ctx, "ws1/abc-a.png")
	assert.True(t, errors.Is(err, ErrNotFound))

	info, err := g.Put(ctx, "ws1/abc-a.png", "image/png", strings.NewReader("data"), 4)
	require.NoError(t, err)
	assert.Equal(t, int64(4), info.ContentLength)

	obj, err := g.Get(ctx, "ws1/abc-a.png")
	require.NoError(t, err)
	data, err := io.ReadAll(obj)
	require.NoError(t, err)
	require.NoError(t, obj.Close())
	assert.Equal(t, "data", string(data))
	assert.Equal(t, "image/png", obj.Info.ContentType)

	link, err := g.PresignDownload(ctx, "ws1/abc-a.png", DispositionAttachment, "a.png")
	require.NoError(t, err)
	parsed, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "/storage/uploads/ws1/abc-a.png", parsed.Path)
	assert.Equal(t, "attachment; filename=a.png", parsed.Query().Get("response-content-disposition"))

	require.NoError(t, g.Delete(ctx, "ws1/abc-a.png"))
	assert.False(t, g.Has("ws1/abc-a.png"))
	assert.Equal(t, 1, g.Deletes())
}

func TestMemoryGatewayFailureInjection(t *testing.T) {
	g := NewMemoryGateway("uploads", "", "/storage")
	g.FailOn("presign_upload", errors.New("access denied"))
	_, err := g.PresignUpload(context.Background(), "k", "image/png", 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))

	g.FailOn("presign_upload", nil)
	_, err = g.PresignUpload(context.Background(), "k", "image/png", 10)
	require.NoError(t, err)
}

func TestLocalGatewayPutHeadGetDelete(t *testing.T) {
	ctx := context.Background()
	g, err := NewLocalGateway(LocalConfig{Root: t.TempDir(), Bucket: "uploads", PublicUploadURL: "/storage", ProxyPath: "/storage"})
	require.NoError(t, err)

	desc, err := g.PresignUpload(ctx, "ws1/abc-a.txt", "text/plain", 100)
	require.NoError(t, err)
	assert.Equal(t, "/storage/uploads", desc.URL)

	info, err := g.Put(ctx, "ws1/abc-a.txt", "text/plain", bytes.NewBufferString("hello"), 5)
	require.NoError(t, err)
	assert.Len(t, info.ETag, 64)

	head, err := g.Head(ctx, "ws1/abc-a.txt")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", head.ContentType)
	assert.Equal(t, int64(5), head.ContentLength)

	obj, err := g.Get(ctx, "ws1/abc-a.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(obj)
	require.NoError(t, err)
	require.NoError(t, obj.Close())
	assert.Equal(t, "hello", string(data))

	require.NoError(t, g.Delete(ctx, "ws1/abc-a.txt"))
	require.NoError(t, g.Delete(ctx, "ws1/abc-a.txt"), "delete missing should be noop")
	_, err = g.Head(ctx, "ws1/abc-a.txt")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLocalGatewayRejectsTraversal(t *testing.T) {
	g, err := NewLocalGateway(LocalConfig{Root: t.TempDir(), Bucket: "uploads"})
	require.NoError(t, err)
	for _, key := range []string{"", "/abs", "../escape", "a/../../escape"} {
		_, err := g.Put(context.Background(), key, "text/plain", strings.NewReader("x"), 1)
		assert.Error(t, err, key)
	}
}

func TestLocalGatewaySizeMismatch(t *testing.T) {
	g, err := NewLocalGateway(LocalConfig{Root: t.TempDir(), Bucket: "uploads"})
	require.NoError(t, err)
	_, err = g.Put(context.Background(), "k.txt", "text/plain", strings.NewReader("hello"), 3)
	require.Error(t, err)
	_, err = g.Head(context.Background(), "k.txt")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestS3GatewayRequiresEndpointAndBucket(t *testing.T) {
	_, err := NewS3Gateway(S3Config{Bucket: "uploads"})
	assert.Error(t, err)
	_, err = NewS3Gateway(S3Config{Endpoint: "localhost:9000"})
	assert.Error(t, err)
}

func TestS3GatewayProxyDownloadDoesNotContactStore(t *testing.T) {
	g, err := NewS3Gateway(S3Config{Endpoint: "127.0.0.1:1", Bucket: "uploads", ProxyPath: "/storage"})
	require.NoError(t, err)
	link, err := g.PresignDownload(context.Background(), "ws1/abc-a.png", DispositionInline, "a.png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, "/storage/uploads/ws1/abc-a.png?"))
}

func TestS3GatewayUploadURLRewrite(t *testing.T) {
	g, err := NewS3Gateway(S3Config{Endpoint: "minio:9000", Bucket: "uploads", PublicUploadURL: "https://app.example.com/"})
	require.NoError(t, err)
	native, _ := url.Parse("http://minio:9000/uploads")
	assert.Equal(t, "https://app.example.com/uploads", g.uploadURL(native))

	g.cfg.PublicUploadURL = ""
	assert.Equal(t, "http://minio:9000/uploads", g.uploadURL(native))
}

func TestInstrumentedRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	observer, err := NewPrometheusObserver("test_blobstore", reg)
	require.NoError(t, err)
	again, err := NewPrometheusObserver("test_blobstore", reg)
	require.NoError(t, err, "re-registration reuses existing collectors")
	assert.NotNil(t, again)

	mem := NewMemoryGateway("uploads", "", "/storage")
	g := Instrument(mem, observer, nil)
	ctx := context.Background()

	_, err = g.Head(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, 0.0, testutil.ToFloat64(observer.errors.WithLabelValues("head")))

	mem.FailOn("delete", errors.New("boom"))
	err = g.Delete(ctx, "k")
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Equal(t, 1.0, testutil.ToFloat64(observer.errors.WithLabelValues("delete")))
	assert.Equal(t, "uploads", g.Bucket())
}
